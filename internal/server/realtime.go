package server

import (
	"context"
	"sync"

	"github.com/kushal2060/SpeakFutbol/backend/internal/events"
)

const (
	realtimeEventRoster    = "roster"
	realtimeEventHeartbeat = "heartbeat"
	realtimeSourceBackend  = "speakfootball-api"
)

// RosterDispatcher fans roster changes out to the stream subscribers of each event.
type RosterDispatcher struct {
	mu          sync.RWMutex
	subscribers map[uint]map[int64]*rosterSubscriber
	nextID      int64
	bufferSize  int
}

type rosterSubscriber struct {
	id     int64
	stream chan events.RosterChange
}

// NewRosterDispatcher returns an empty dispatcher.
func NewRosterDispatcher() *RosterDispatcher {
	return &RosterDispatcher{
		subscribers: make(map[uint]map[int64]*rosterSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a stream for eventID until ctx is done or the returned cleanup runs.
func (d *RosterDispatcher) Subscribe(ctx context.Context, eventID uint) (<-chan events.RosterChange, func()) {
	if eventID == 0 {
		ch := make(chan events.RosterChange)
		close(ch)
		return ch, func() {}
	}
	subscriber := &rosterSubscriber{
		id:     d.nextSequence(),
		stream: make(chan events.RosterChange, d.bufferSize),
	}
	d.registerSubscriber(eventID, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(eventID, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// PublishRoster delivers change to every subscriber of its event. Slow subscribers drop messages.
func (d *RosterDispatcher) PublishRoster(change events.RosterChange) {
	if change.EventID == 0 || change.Action == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[change.EventID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*rosterSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- change:
		default:
		}
	}
}

// SubscriberCount reports the number of open streams for eventID.
func (d *RosterDispatcher) SubscriberCount(eventID uint) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[eventID])
}

func (d *RosterDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RosterDispatcher) registerSubscriber(eventID uint, subscriber *rosterSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[eventID]; !ok {
		d.subscribers[eventID] = make(map[int64]*rosterSubscriber)
	}
	d.subscribers[eventID][subscriber.id] = subscriber
}

func (d *RosterDispatcher) unregisterSubscriber(eventID uint, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[eventID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, eventID)
		}
	}
	d.mu.Unlock()
}
