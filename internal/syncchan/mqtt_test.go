package syncchan

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMQTTTopicMapping(t *testing.T) {
	ch := NewMQTTChannel(MQTTConfig{BrokerURL: "tcp://localhost:1883", ClientID: "t", TopicPrefix: "sunshine/"})

	assert.Equal(t, "sunshine/weather", ch.Topic("/weather"))

	path, ok := ch.Path("sunshine/weather_update")
	require.True(t, ok)
	assert.Equal(t, "/weather_update", path)

	_, ok = ch.Path("other/weather")
	assert.False(t, ok)
	_, ok = ch.Path("sunshineweather")
	assert.False(t, ok)
}

func TestDecodeEvent(t *testing.T) {
	data := DataMap{}
	data.PutLong("time", 42)
	raw, err := EncodePayload(data)
	require.NoError(t, err)

	ev, err := DecodeEvent("/weather", raw)
	require.NoError(t, err)
	assert.Equal(t, EventChanged, ev.Type)
	assert.True(t, data.Equal(ev.Data))

	ev, err = DecodeEvent("/weather", nil)
	require.NoError(t, err)
	assert.Equal(t, EventDeleted, ev.Type)

	_, err = DecodeEvent("/weather", []byte("not json"))
	require.Error(t, err)
}

func TestEncodePayloadEmptyIsNotDelete(t *testing.T) {
	raw, err := EncodePayload(DataMap{})
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
}

func TestMQTTPushWhileDisconnected(t *testing.T) {
	ch := NewMQTTChannel(MQTTConfig{BrokerURL: "tcp://localhost:1883", ClientID: "t", TopicPrefix: "sunshine"})
	assert.False(t, ch.IsConnected())

	var got error
	ch.Push("/weather_update", DataMap{"token": "x"}, func(err error) { got = err })
	assert.True(t, errors.Is(got, ErrNotConnected))
}

func TestMQTTSubscriptionRemovesListener(t *testing.T) {
	ch := NewMQTTChannel(MQTTConfig{BrokerURL: "tcp://localhost:1883", ClientID: "t", TopicPrefix: "sunshine"})
	sub := ch.Subscribe(func(DataEvent) {})
	assert.Len(t, ch.listeners, 1)
	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Len(t, ch.listeners, 0)
}

type fakeToken struct {
	done chan struct{}
	err  error
}

func doneToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool { <-t.done; return true }

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

// fakeClient connects once gate is closed.
type fakeClient struct {
	mqtt.Client
	gate chan struct{}

	mu          sync.Mutex
	connected   bool
	disconnects int
	subscribed  []string
}

func (f *fakeClient) Connect() mqtt.Token {
	t := &fakeToken{done: make(chan struct{})}
	go func() {
		<-f.gate
		f.mu.Lock()
		f.connected = true
		f.mu.Unlock()
		close(t.done)
	}()
	return t
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnects++
}

func (f *fakeClient) Subscribe(topic string, _ byte, _ mqtt.MessageHandler) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, topic)
	return doneToken(nil)
}

func (f *fakeClient) counts() (bool, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected, f.disconnects, len(f.subscribed)
}

func newFakeChannel() (*MQTTChannel, *fakeClient) {
	ch := NewMQTTChannel(MQTTConfig{BrokerURL: "tcp://localhost:1883", ClientID: "t", TopicPrefix: "sunshine"})
	fc := &fakeClient{gate: make(chan struct{})}
	ch.newClient = func(*mqtt.ClientOptions) mqtt.Client { return fc }
	return ch, fc
}

func TestMQTTConnectSubscribesThenReports(t *testing.T) {
	ch, fc := newFakeChannel()
	connected := make(chan struct{})
	ch.Connect(ConnectionHandlers{OnConnected: func() { close(connected) }})
	close(fc.gate)

	select {
	case <-connected:
	case <-time.After(time.Second):
		t.Fatal("OnConnected was not called")
	}
	assert.True(t, ch.IsConnected())
	assert.Equal(t, []string{"sunshine/#"}, fc.subscribed)

	ch.Disconnect()
	isConn, disconnects, _ := fc.counts()
	assert.False(t, isConn)
	assert.Equal(t, 1, disconnects)
	assert.False(t, ch.IsConnected())
}

func TestMQTTDisconnectWhileConnectingClosesClient(t *testing.T) {
	ch, fc := newFakeChannel()
	var reported atomic.Bool
	ch.Connect(ConnectionHandlers{
		OnConnected: func() { reported.Store(true) },
		OnFailed:    func(string) { reported.Store(true) },
	})

	ch.Disconnect()
	close(fc.gate)

	require.Eventually(t, func() bool {
		_, disconnects, _ := fc.counts()
		return disconnects == 1
	}, time.Second, 5*time.Millisecond)

	isConn, _, subs := fc.counts()
	assert.False(t, isConn)
	assert.Zero(t, subs, "an abandoned client must not subscribe")
	assert.False(t, ch.IsConnected())
	assert.False(t, reported.Load())
}
