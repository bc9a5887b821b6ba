// Package stream fans out book activity to live subscribers, so a
// dashboard can watch balances move without polling.
package stream

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"tallybook.org/internal/timeutil"
)

// Event kinds published by the API.
const (
	EventScheduleProcessed  = "schedule_processed"
	EventSnapshotRecorded   = "snapshot_recorded"
	EventAccountDeactivated = "account_deactivated"
)

// BookEvent describes one state change in the book.
type BookEvent struct {
	Type      string          `json:"type"`
	AccountID string          `json:"account_id"`
	Name      string          `json:"name,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	At        timeutil.Aware  `json:"at"`
}

// Stream fans events out to all active subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan BookEvent
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{
		subs: make(map[int]chan BookEvent),
	}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan BookEvent {
	ch := make(chan BookEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fans the event out to all subscribers.
func (s *Stream) Publish(evt BookEvent) {
	if evt.At.IsZero() {
		evt.At = timeutil.NowAware()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// Subscribers reports the number of live subscriptions.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
