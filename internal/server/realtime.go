package server

import (
	"context"
	"sync"

	"github.com/MarcoPoloResearchLab/hostflow/internal/waitlist"
)

const realtimeBufferSize = 16

// RealtimeDispatcher fans committed queue changes out to subscribers of one restaurant.
// Delivery never blocks the publisher; a full subscriber buffer drops the event and
// the subscriber catches up on its next resync.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan waitlist.ChangeEvent
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  realtimeBufferSize,
	}
}

// Subscribe registers for changes of slug until ctx ends or the returned cleanup runs.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, slug string) (<-chan waitlist.ChangeEvent, func()) {
	if slug == "" {
		ch := make(chan waitlist.ChangeEvent)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		stream: make(chan waitlist.ChangeEvent, d.bufferSize),
	}
	d.register(slug, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregister(slug, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// PublishChange implements waitlist.ChangePublisher.
func (d *RealtimeDispatcher) PublishChange(event waitlist.ChangeEvent) {
	if event.Slug == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[event.Slug]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- event:
		default:
		}
	}
}

// SubscriberCount reports the live subscriptions of slug.
func (d *RealtimeDispatcher) SubscriberCount(slug string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[slug])
}

func (d *RealtimeDispatcher) register(slug string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	subscriber.id = d.nextID
	if _, ok := d.subscribers[slug]; !ok {
		d.subscribers[slug] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[slug][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregister(slug string, subscriberID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subscribers := d.subscribers[slug]
	if subscribers == nil {
		return
	}
	delete(subscribers, subscriberID)
	if len(subscribers) == 0 {
		delete(d.subscribers, slug)
	}
}
