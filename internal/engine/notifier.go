package engine

import (
	"sync"
	"time"
)

// RecordChanged announces one committed lifecycle transition. Exactly one
// notification is emitted per Ledger-confirmed transition; rolled-back
// attempts are silent.
type RecordChanged struct {
	EntityKind string    `json:"entity_kind"`
	EntityID   string    `json:"entity_id"`
	Action     string    `json:"action"`
	NewStatus  string    `json:"new_status"`
	Timestamp  time.Time `json:"timestamp"`
}

// Notifier fans committed transitions out to subscribers. Callbacks run
// synchronously on the coordinator's goroutine, so they must be cheap;
// anything slow should hand off to its own channel.
type Notifier struct {
	mu   sync.RWMutex
	subs []func(RecordChanged)
}

func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe registers a callback for every future committed transition.
func (n *Notifier) Subscribe(fn func(RecordChanged)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs = append(n.subs, fn)
}

func (n *Notifier) publish(ev RecordChanged) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, fn := range n.subs {
		fn(ev)
	}
}
