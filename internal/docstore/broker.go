package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// QueryFunc evaluates a filter against a collection.
type QueryFunc func(ctx context.Context, collection string, filter Filter) ([]Document, error)

// queryTimeout bounds a single re-evaluation of a live query.
const queryTimeout = 30 * time.Second

// Broker runs live queries on behalf of a backend. Each subscription
// re-evaluates its query whenever its collection is touched and redelivers
// the full result set if it changed since the last delivery.
type Broker struct {
	query QueryFunc
	log   *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	subs   map[string]map[*subscription]struct{}
	closed bool
}

// NewBroker creates a broker that evaluates queries with query.
func NewBroker(query QueryFunc, log *logrus.Logger) *Broker {
	ctx, cancel := context.WithCancel(context.Background())

	return &Broker{
		query:  query,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]map[*subscription]struct{}),
	}
}

type subscription struct {
	collection string
	filter     Filter
	fn         SnapshotFunc

	dirty chan struct{}
	done  chan struct{}
	once  sync.Once

	last      []byte
	delivered bool
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscription) mark() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// Subscribe starts a live query. The initial result set is delivered
// asynchronously; subsequent deliveries follow writes to the collection.
func (b *Broker) Subscribe(collection string, filter Filter, fn SnapshotFunc) (Unsubscribe, error) {
	if err := ValidateCollection(collection); err != nil {
		return nil, err
	}

	if err := filter.Validate(); err != nil {
		return nil, err
	}

	sub := &subscription{
		collection: collection,
		filter:     filter,
		fn:         fn,
		dirty:      make(chan struct{}, 1),
		done:       make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}

	set, ok := b.subs[collection]
	if !ok {
		set = make(map[*subscription]struct{})
		b.subs[collection] = set
	}

	set[sub] = struct{}{}
	b.wg.Add(1)
	b.mu.Unlock()

	sub.mark()

	go b.run(sub)

	return func() {
		sub.stop()
		b.remove(sub)
	}, nil
}

// Touch marks every live query on collection for re-evaluation.
func (b *Broker) Touch(collection string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs[collection] {
		sub.mark()
	}
}

// TouchAll marks every live query for re-evaluation. Used after a change
// feed reconnects and may have missed notifications.
func (b *Broker) TouchAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, set := range b.subs {
		for sub := range set {
			sub.mark()
		}
	}
}

// Subscriptions returns the number of active live queries.
func (b *Broker) Subscriptions() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, set := range b.subs {
		n += len(set)
	}

	return n
}

// Close stops every subscription and waits for their goroutines to exit.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}

	b.closed = true

	for _, set := range b.subs {
		for sub := range set {
			sub.stop()
		}
	}

	b.subs = make(map[string]map[*subscription]struct{})
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
}

func (b *Broker) remove(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if set, ok := b.subs[sub.collection]; ok {
		delete(set, sub)

		if len(set) == 0 {
			delete(b.subs, sub.collection)
		}
	}
}

func (b *Broker) run(sub *subscription) {
	defer b.wg.Done()

	for {
		select {
		case <-sub.done:
			return
		case <-sub.dirty:
		}

		b.evaluate(sub)
	}
}

func (b *Broker) evaluate(sub *subscription) {
	ctx, cancel := context.WithTimeout(b.ctx, queryTimeout)
	defer cancel()

	docs, err := b.query(ctx, sub.collection, sub.filter)

	if stopped(sub) {
		return
	}

	if err != nil {
		b.log.WithError(err).WithFields(logrus.Fields{
			"collection": sub.collection,
			"filter":     sub.filter.String(),
		}).Warn("live query evaluation failed")
		sub.fn(nil, err)

		return
	}

	fp, err := json.Marshal(docs)
	if err != nil {
		sub.fn(nil, err)
		return
	}

	if sub.delivered && bytes.Equal(fp, sub.last) {
		return
	}

	sub.last = fp
	sub.delivered = true

	if docs == nil {
		docs = []Document{}
	}

	sub.fn(docs, nil)
}

func stopped(sub *subscription) bool {
	select {
	case <-sub.done:
		return true
	default:
		return false
	}
}
