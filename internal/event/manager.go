package event

import (
	"sync"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"go.uber.org/zap"
)

const listenerBuffer = 1024

type Listener struct {
	eventType Type
	callback  func(msg interface{})
	channel   chan interface{}
}

// Manager fans events out to listeners. Each listener drains its own channel
// on its own goroutine, so a listener sees events in emission order. A
// synchronous manager calls listeners in-line instead.
type Manager struct {
	mu          sync.RWMutex
	listeners   []*Listener
	synchronous bool
	closed      bool
	wg          sync.WaitGroup
}

func NewManager() *Manager {
	return &Manager{listeners: make([]*Listener, 0)}
}

func NewSyncManager() *Manager {
	return &Manager{listeners: make([]*Listener, 0), synchronous: true}
}

func (m *Manager) AddEventListener(eventType Type, callback func(msg interface{})) {
	zap.L().With(zap.String("type", string(eventType))).Debug("EventManager: AddListener")

	listener := &Listener{
		eventType: eventType,
		callback:  callback,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.synchronous {
		listener.channel = make(chan interface{}, listenerBuffer)
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for msg := range listener.channel {
				callback(msg)
			}
		}()
	}

	m.listeners = append(m.listeners, listener)
}

func (m *Manager) EmitEvent(eventType Type, msg interface{}) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		zap.L().With(zap.String("type", string(eventType))).Warn("EventManager: Emit after close")
		return
	}
	if len(m.listeners) == 0 {
		zap.L().Debug("EventManager: No event listeners available")
	}

	for _, listener := range m.listeners {
		if listener.eventType != eventType {
			continue
		}
		zap.L().With(zap.String("type", string(eventType))).Debug("EventManager: Emitting event")
		if m.synchronous {
			listener.callback(msg)
		} else {
			listener.channel <- msg
		}
	}
}

// Emit publishes the events of one committed ledger invocation as envelopes,
// followed by a single InvocationCommittedEvent carrying the batch.
func (m *Manager) Emit(events ...entity.Event) {
	envelopes := make([]Envelope, 0, len(events))
	for _, ev := range events {
		envelope, err := NewEnvelope(ev)
		if err != nil {
			zap.L().With(zap.Error(err), zap.String("type", string(ev.Type()))).Error("EventManager: Failed to wrap event")
			continue
		}
		envelopes = append(envelopes, envelope)
		m.EmitEvent(envelope.Type, envelope)
	}

	m.EmitEvent(InvocationCommittedEvent, envelopes)
}

// Close stops accepting events and waits for listeners to drain.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for _, listener := range m.listeners {
		if listener.channel != nil {
			close(listener.channel)
		}
	}
	m.mu.Unlock()

	m.wg.Wait()
}
