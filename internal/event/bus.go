package event

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Subscriber is one registered event consumer. The connection handler that
// created it owns its lifetime; the bus only holds it in the registry for
// fan-out. Events arrive on the bounded queue; Done closes when the bus
// kicks the subscriber for sustained backpressure.
type Subscriber struct {
	id      uint64
	filters []string
	queue   chan Event

	done     chan struct{}
	kickOnce sync.Once

	lag         atomic.Uint64 // total events dropped for this subscriber
	consecutive atomic.Uint32 // consecutive publishes that dropped
}

// ID returns the subscriber id.
func (s *Subscriber) ID() uint64 { return s.id }

// Events returns the delivery queue.
func (s *Subscriber) Events() <-chan Event { return s.queue }

// Done closes when the subscriber has been kicked for lagging. The owner
// must then unregister and close its connection.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Lag returns the total number of events dropped for this subscriber.
func (s *Subscriber) Lag() uint64 { return s.lag.Load() }

func (s *Subscriber) wants(k Kind) bool { return k.MatchesAnyFilter(s.filters) }

func (s *Subscriber) kick() {
	s.kickOnce.Do(func() { close(s.done) })
}

// Bus assigns a global order to events and fans them out to subscribers.
// Publish never blocks on a subscriber: each subscriber has a bounded
// queue, and when it is full the oldest queued event is dropped so the
// newest is kept.
type Bus struct {
	seq    atomic.Uint64
	nextID atomic.Uint64

	mu   sync.RWMutex
	subs map[uint64]*Subscriber

	queueSize int
	maxDrops  int
	logger    *zap.Logger
}

// NewBus creates a bus. queueSize bounds each subscriber's outbound queue;
// maxConsecutiveDrops is the run of dropped publishes after which a
// subscriber is kicked.
func NewBus(queueSize, maxConsecutiveDrops int, logger *zap.Logger) *Bus {
	return &Bus{
		subs:      make(map[uint64]*Subscriber),
		queueSize: queueSize,
		maxDrops:  maxConsecutiveDrops,
		logger:    logger,
	}
}

// Register adds a subscriber with the given kind filters (empty = all).
func (b *Bus) Register(filters []string) *Subscriber {
	sub := &Subscriber{
		id:      b.nextID.Add(1),
		filters: filters,
		queue:   make(chan Event, b.queueSize),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()

	b.logger.Debug("subscriber registered",
		zap.Uint64("id", sub.id),
		zap.Strings("filters", filters))
	return sub
}

// Unregister removes a subscriber from the registry. Safe to call more
// than once.
func (b *Bus) Unregister(id uint64) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	delete(b.subs, id)
	b.mu.Unlock()

	if ok {
		// Wake a pump blocked on the queue so the owner can exit.
		sub.kick()
		b.logger.Debug("subscriber unregistered",
			zap.Uint64("id", id),
			zap.Uint64("lag", sub.Lag()))
	}
}

// SubscriberCount returns the number of registered subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Seq returns the last assigned sequence number.
func (b *Bus) Seq() uint64 { return b.seq.Load() }

// Publish stamps the next sequence number and wall-clock time on an event
// and delivers it to every subscriber whose filter matches. It never
// blocks on subscriber I/O and cannot fail; a slow subscriber only loses
// its own oldest events and is kicked after a sustained run of drops.
func (b *Bus) Publish(kind Kind, data any) Event {
	ev := Event{
		Seq:  b.seq.Add(1),
		Ts:   time.Now().UTC(),
		Kind: kind,
		Data: data,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if !sub.wants(kind) {
			continue
		}
		b.deliver(sub, ev)
	}
	return ev
}

// deliver enqueues without blocking. On a full queue the oldest queued
// event is discarded, never the newest. Kicking only closes the
// subscriber's Done channel; the registry is not mutated here, so this
// stays safe under the publish read lock.
func (b *Bus) deliver(sub *Subscriber, ev Event) {
	select {
	case sub.queue <- ev:
		sub.consecutive.Store(0)
		return
	default:
	}

	// Queue full: drop oldest to keep recency.
	select {
	case <-sub.queue:
	default:
	}
	sub.lag.Add(1)

	select {
	case sub.queue <- ev:
	default:
		// Lost the race with a concurrent publisher; the event counts
		// as dropped for this subscriber either way.
	}

	if n := sub.consecutive.Add(1); int(n) == b.maxDrops {
		b.logger.Warn("kicking lagging subscriber",
			zap.Uint64("id", sub.id),
			zap.Uint64("lag", sub.Lag()),
			zap.Int("consecutive_drops", int(n)))
		sub.kick()
	}
}
