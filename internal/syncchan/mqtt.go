package syncchan

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig configures an MQTTChannel.
type MQTTConfig struct {
	BrokerURL      string
	ClientID       string
	TopicPrefix    string
	ConnectTimeout time.Duration
}

// MQTTChannel maps data items onto retained MQTT messages: the topic is the
// prefix followed by the item path, and an empty retained payload deletes the item.
// Auto-reconnect is disabled; reconnecting is the caller's decision.
type MQTTChannel struct {
	cfg       MQTTConfig
	newClient func(*mqtt.ClientOptions) mqtt.Client

	mu        sync.Mutex
	client    mqtt.Client
	listeners map[int]Listener
	nextID    int
}

var _ Channel = (*MQTTChannel)(nil)

// NewMQTTChannel creates an unconnected channel.
func NewMQTTChannel(cfg MQTTConfig) *MQTTChannel {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	cfg.TopicPrefix = strings.TrimSuffix(cfg.TopicPrefix, "/")
	return &MQTTChannel{
		cfg:       cfg,
		newClient: mqtt.NewClient,
		listeners: make(map[int]Listener),
	}
}

// Topic returns the MQTT topic for an item path.
func (c *MQTTChannel) Topic(path string) string {
	return c.cfg.TopicPrefix + path
}

// Path returns the item path for an MQTT topic, or false if the topic is outside the prefix.
func (c *MQTTChannel) Path(topic string) (string, bool) {
	if !strings.HasPrefix(topic, c.cfg.TopicPrefix+"/") {
		return "", false
	}
	return strings.TrimPrefix(topic, c.cfg.TopicPrefix), true
}

func (c *MQTTChannel) Connect(h ConnectionHandlers) {
	opts := mqtt.NewClientOptions().
		AddBroker(c.cfg.BrokerURL).
		SetClientID(c.cfg.ClientID).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(c.cfg.ConnectTimeout).
		SetOrderMatters(true)

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		if h.OnSuspended != nil {
			h.OnSuspended(err.Error())
		}
	})

	client := c.newClient(opts)

	c.mu.Lock()
	c.client = client
	c.mu.Unlock()

	go func() {
		token := client.Connect()
		token.Wait()
		if err := token.Error(); err != nil {
			if h.OnFailed != nil {
				h.OnFailed(err.Error())
			}
			return
		}
		if !c.owns(client) {
			log.Printf("DEBUG: syncchan: dropping connection abandoned while connecting")
			client.Disconnect(250)
			return
		}

		sub := client.Subscribe(c.cfg.TopicPrefix+"/#", 1, c.handleMessage)
		sub.Wait()
		if err := sub.Error(); err != nil {
			client.Disconnect(250)
			if h.OnFailed != nil {
				h.OnFailed(fmt.Sprintf("subscribe: %v", err))
			}
			return
		}
		if !c.owns(client) {
			client.Disconnect(250)
			return
		}

		if h.OnConnected != nil {
			h.OnConnected()
		}
	}()
}

// owns reports whether client is still the channel's current client.
func (c *MQTTChannel) owns(client mqtt.Client) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client == client
}

// Disconnect drops the current client. A client still connecting is closed by
// its connect goroutine once the attempt completes.
func (c *MQTTChannel) Disconnect() {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()

	if client != nil && client.IsConnected() {
		client.Disconnect(250)
	}
}

func (c *MQTTChannel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client != nil && c.client.IsConnected()
}

func (c *MQTTChannel) Push(path string, data DataMap, done PushResult) {
	payload, err := EncodePayload(data)
	if err != nil {
		if done != nil {
			done(err)
		}
		return
	}
	c.publish(path, payload, done)
}

// Delete clears the retained item at path.
func (c *MQTTChannel) Delete(path string, done PushResult) {
	c.publish(path, []byte{}, done)
}

func (c *MQTTChannel) publish(path string, payload []byte, done PushResult) {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()

	if client == nil || !client.IsConnected() {
		if done != nil {
			done(ErrNotConnected)
		}
		return
	}

	token := client.Publish(c.Topic(path), 1, true, payload)
	go func() {
		token.Wait()
		if done != nil {
			done(token.Error())
		}
	}()
}

func (c *MQTTChannel) Subscribe(l Listener) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	return &mqttSubscription{ch: c, id: id}
}

func (c *MQTTChannel) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	path, ok := c.Path(msg.Topic())
	if !ok {
		return
	}

	ev, err := DecodeEvent(path, msg.Payload())
	if err != nil {
		log.Printf("ERROR: syncchan: dropping undecodable item on %s: %v", msg.Topic(), err)
		return
	}

	c.mu.Lock()
	listeners := make([]Listener, 0, len(c.listeners))
	for i := 0; i < c.nextID; i++ {
		if l, ok := c.listeners[i]; ok {
			listeners = append(listeners, l)
		}
	}
	c.mu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}

// EncodePayload serializes a DataMap for the MQTT transport.
func EncodePayload(data DataMap) ([]byte, error) {
	if len(data) == 0 {
		// An empty payload is reserved for deletion.
		return []byte("{}"), nil
	}
	return json.Marshal(data)
}

// DecodeEvent turns a retained MQTT payload into a data event.
func DecodeEvent(path string, payload []byte) (DataEvent, error) {
	if len(payload) == 0 {
		return DataEvent{Type: EventDeleted, Path: path}, nil
	}
	var data DataMap
	if err := json.Unmarshal(payload, &data); err != nil {
		return DataEvent{}, err
	}
	return DataEvent{Type: EventChanged, Path: path, Data: data}, nil
}

type mqttSubscription struct {
	ch   *MQTTChannel
	id   int
	once sync.Once
}

func (s *mqttSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.ch.mu.Lock()
		delete(s.ch.listeners, s.id)
		s.ch.mu.Unlock()
	})
}
