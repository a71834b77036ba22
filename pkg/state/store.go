// Package state keeps the latest canonical snapshot and connection status and
// fans changes out to subscribers.
package state

import (
	"sync"
	"time"

	"racedirector/pkg/metrics"
	"racedirector/pkg/model"
	"racedirector/pkg/pubsub"
)

// Store is written by a single owner. Readers get copies of the current State;
// snapshots are replaced wholesale, never mutated.
type Store struct {
	mu      sync.RWMutex
	state   model.State
	now     func() time.Time
	metrics *metrics.Manager

	snapshots *pubsub.PubSub[model.State]
	statuses  *pubsub.PubSub[model.ConnectionStatus]
}

type Option func(*Store)

func WithMetrics(m *metrics.Manager) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		state:     model.InitialState(),
		now:       time.Now,
		snapshots: pubsub.NewPubSub[model.State](),
		statuses:  pubsub.NewPubSub[model.ConnectionStatus](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) State() model.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Store) Status() model.ConnectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Connection
}

// Replace swaps in a freshly normalized snapshot and notifies snapshot
// subscribers.
func (s *Store) Replace(snap model.Snapshot) model.State {
	standings := snap.Standings
	if standings == nil {
		standings = []model.DriverStanding{}
	}
	updated := s.now()

	s.mu.Lock()
	s.state.Session = snap.Session
	s.state.Standings = standings
	s.state.LastUpdated = &updated
	current := s.state
	s.mu.Unlock()

	s.metrics.SetStandings(len(standings))
	s.snapshots.Publish(current)
	return current
}

// SetStatus records a transition and notifies status subscribers.
func (s *Store) SetStatus(status model.ConnectionStatus) {
	s.mu.Lock()
	s.state.Connection = status
	s.mu.Unlock()

	s.metrics.RecordStatus(string(status))
	s.statuses.Publish(status)
}

// Clear drops the snapshot but keeps the connection status. Nothing is
// published; follow with PublishState.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Session = nil
	s.state.Standings = []model.DriverStanding{}
	s.state.LastUpdated = nil
	s.metrics.SetStandings(0)
}

// PublishState sends the current state to snapshot subscribers.
func (s *Store) PublishState() {
	s.snapshots.Publish(s.State())
}

func (s *Store) OnSnapshot(fn func(model.State)) func() {
	_, cancel := s.snapshots.Subscribe(fn)
	return cancel
}

func (s *Store) OnStatus(fn func(model.ConnectionStatus)) func() {
	_, cancel := s.statuses.Subscribe(fn)
	return cancel
}
