// Package bus is the in-process notification bus between the calendar
// module, the HTTP ingest and the scheduler.
package bus

import (
	"context"
	"errors"
	"sync"

	"mirrorcal/internal/config"
	"mirrorcal/internal/model"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("bus: closed")

// Name identifies a notification.
type Name string

const (
	AddCalendar        Name = "ADD_CALENDAR"
	FetchCalendar      Name = "FETCH_CALENDAR"
	CalendarEvents     Name = "CALENDAR_EVENTS"
	CalendarError      Name = "CALENDAR_ERROR"
	SwedishDays        Name = "SWEDISH_DAYS"
	AddSwedishCalendar Name = "ADD_SWEDISH_CALENDAR"
	// BroadcastEvents carries the resolved event list to other modules.
	BroadcastEvents Name = "BROADCAST_EVENTS"
)

// Message is one notification. ID is the identifier of the module instance
// the message is addressed to or sent from.
type Message struct {
	Name    Name
	ID      string
	Payload any
}

// CalendarEventsPayload is a fresh batch for one source.
type CalendarEventsPayload struct {
	URL    string                `json:"url"`
	Events []model.CalendarEvent `json:"events"`
}

// CalendarErrorPayload reports a fetch failure for one source.
type CalendarErrorPayload struct {
	URL       string `json:"url"`
	ErrorType string `json:"error_type"`
}

// SwedishDaysPayload carries holiday data for the current year.
type SwedishDaysPayload struct {
	Data model.HolidayData `json:"data"`
}

// FetchCalendarPayload asks the fetcher to refresh one source.
type FetchCalendarPayload struct {
	URL string `json:"url"`
}

// AddCalendarPayload tells the fetcher about a source and how to fetch it.
type AddCalendarPayload struct {
	ID                  string                 `json:"id"`
	URL                 string                 `json:"url"`
	ExcludedEvents      []config.ExcludedEvent `json:"excludedEvents"`
	MaximumEntries      int                    `json:"maximumEntries"`
	MaximumNumberOfDays int                    `json:"maximumNumberOfDays"`
	PastDaysCount       int                    `json:"pastDaysCount"`
	FetchInterval       int64                  `json:"fetchInterval"`
	SymbolClass         string                 `json:"symbolClass"`
	TitleClass          string                 `json:"titleClass"`
	TimeClass           string                 `json:"timeClass"`
	BroadcastPastEvents bool                   `json:"broadcastPastEvents"`
}

// BroadcastEventsPayload is the resolved list sent to other modules.
type BroadcastEventsPayload struct {
	Events []model.BroadcastEvent `json:"events"`
}

type subscriber struct {
	ch    chan Message
	names map[Name]struct{}

	// done is closed on unsubscribe and releases pending sends. ch is closed
	// only once no send is in flight.
	done     chan struct{}
	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

func (s *subscriber) wants(n Name) bool {
	if len(s.names) == 0 {
		return true
	}
	_, ok := s.names[n]
	return ok
}

// send blocks until msg is buffered, the subscriber goes away or ctx is done.
func (s *subscriber) send(ctx context.Context, msg Message) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	select {
	case s.ch <- msg:
		return nil
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	s.inflight.Wait()
	close(s.ch)
}

// Bus fans messages out to subscribers. Delivery to one subscriber is in
// publish order. A subscriber that stops reading only stalls publishers
// waiting on it; it never holds up Subscribe, unsubscribe or Close.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
	closed bool
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Subscribe registers a subscriber for the given names, or for every name
// when none are given. The returned cancel func unsubscribes and closes the
// channel.
func (b *Bus) Subscribe(buffer int, names ...Name) (<-chan Message, func()) {
	s := &subscriber{
		ch:    make(chan Message, buffer),
		names: make(map[Name]struct{}, len(names)),
		done:  make(chan struct{}),
	}
	for _, n := range names {
		s.names[n] = struct{}{}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.close()
		return s.ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = s
	b.mu.Unlock()

	return s.ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		s.close()
	}
}

// Publish delivers msg to every interested subscriber. It blocks while a
// subscriber's buffer is full, until that subscriber reads, unsubscribes or
// ctx is done. No lock is held while waiting.
func (b *Bus) Publish(ctx context.Context, msg Message) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	targets := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		if s.wants(msg.Name) {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		if err := s.send(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every subscriber channel. Later publishes fail with
// ErrClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[int]*subscriber)
	b.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}
