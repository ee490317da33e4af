package build

import (
	"sync"

	"github.com/thesara-space/forge/internal/shared/types"
)

// subscriberBuffer is the per-subscriber queue depth. Events beyond it are
// dropped for that subscriber.
const subscriberBuffer = 16

// Events fans lifecycle events out to per-build subscribers without ever
// blocking the publisher.
type Events struct {
	mu   sync.Mutex
	subs map[string]map[chan types.BuildEvent]struct{}
}

// NewEvents creates an empty event hub.
func NewEvents() *Events {
	return &Events{subs: make(map[string]map[chan types.BuildEvent]struct{})}
}

// Subscribe registers for a build's events. The returned cancel func
// unregisters and closes the channel; it is safe to call more than once.
func (e *Events) Subscribe(buildID string) (<-chan types.BuildEvent, func()) {
	ch := make(chan types.BuildEvent, subscriberBuffer)

	e.mu.Lock()
	set, ok := e.subs[buildID]
	if !ok {
		set = make(map[chan types.BuildEvent]struct{})
		e.subs[buildID] = set
	}
	set[ch] = struct{}{}
	e.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if set, ok := e.subs[buildID]; ok {
				if _, ok := set[ch]; ok {
					delete(set, ch)
					close(ch)
				}
				if len(set) == 0 {
					delete(e.subs, buildID)
				}
			}
		})
	}
	return ch, cancel
}

// Publish delivers ev to current subscribers, dropping it for any whose
// buffer is full. Final events close every subscription of the build.
func (e *Events) Publish(ev types.BuildEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	set := e.subs[ev.BuildID]
	for ch := range set {
		select {
		case ch <- ev:
		default:
		}
	}
	if ev.Final {
		for ch := range set {
			close(ch)
		}
		delete(e.subs, ev.BuildID)
	}
}

// Subscribers returns the number of live subscriptions for a build.
func (e *Events) Subscribers(buildID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs[buildID])
}
