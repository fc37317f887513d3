// Package syncchan defines the push/subscribe data channel shared by the watch
// and its companion, plus two implementations: an in-process Hub and an MQTT
// adapter. Items are addressed by path; the latest value per path wins.
package syncchan

// EventType distinguishes item changes from deletions.
type EventType int

const (
	EventChanged EventType = iota
	EventDeleted
)

func (t EventType) String() string {
	switch t {
	case EventChanged:
		return "changed"
	case EventDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// DataEvent is a single change notification for one path.
type DataEvent struct {
	Type EventType
	Path string
	Data DataMap
}

// Listener receives data events. It may be called from any goroutine.
type Listener func(DataEvent)

// ConnectionHandlers are the callbacks a channel invokes for one Connect call.
// Any of them may be nil and may be called from any goroutine.
type ConnectionHandlers struct {
	OnConnected func()
	OnSuspended func(reason string)
	OnFailed    func(reason string)
}

// PushResult reports the asynchronous outcome of a Push; err is nil on success.
type PushResult func(err error)

// Subscription is a registered listener.
type Subscription interface {
	Unsubscribe()
}

// Channel is the platform sync channel. Implementations must not block callers:
// connection outcomes and push results are reported through callbacks.
type Channel interface {
	Connect(h ConnectionHandlers)
	Disconnect()
	IsConnected() bool
	Push(path string, data DataMap, done PushResult)
	Subscribe(l Listener) Subscription
}
