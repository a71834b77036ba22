// Package settings persists the last used connection settings and the chat
// subscribers for status alerts in SQLite.
package settings

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"racedirector/pkg/logging"
	"racedirector/pkg/model"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const DefaultPath = "./racedirector.db"

var ErrUnsupportedStatus = errors.New("alerts are not available for this status")

// Connection is what Configure last accepted.
type Connection struct {
	Endpoint     string
	PollInterval time.Duration
	Schema       string
	UpdatedAt    time.Time
}

type Subscriber struct {
	ChatID int64
	Name   string
}

// Alerts says which connection statuses a subscriber is told about.
type Alerts map[model.ConnectionStatus]bool

// AlertStatuses lists the statuses a subscriber can opt into.
var AlertStatuses = []model.ConnectionStatus{model.Error, model.Connected, model.Disconnected}

func AllEnabled() Alerts {
	return Alerts{model.Error: true, model.Connected: true, model.Disconnected: true}
}

func AllDisabled() Alerts {
	return Alerts{model.Error: false, model.Connected: false, model.Disconnected: false}
}

func (a Alerts) String() string {
	status := []string{}
	for _, s := range AlertStatuses {
		status = append(status, fmt.Sprintf("%s %s", symbolStatus(a[s]), s))
	}
	return strings.Join(status, "\n")
}

func symbolStatus(enabled bool) string {
	if enabled {
		return "🔔"
	}
	return "🔕"
}

type Manager struct {
	db *sql.DB
	mu sync.Mutex
}

// NewManager opens (or creates) the database at path. ":memory:" is accepted.
func NewManager(path string) (*Manager, error) {
	if path == "" {
		path = DefaultPath
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	// sqlite serializes writers anyway; one connection also keeps :memory: databases alive
	db.SetMaxOpenConns(1)

	if _, err = db.Exec(createTables); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "initializing settings database")
	}
	logging.Debug().Str("path", path).Msg("settings database ready")
	return &Manager{db: db}, nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.db.Close()
}

func (m *Manager) SaveConnection(ctx context.Context, c Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
	_, err := m.db.ExecContext(ctx, upsertConnection,
		c.Endpoint, c.PollInterval.Milliseconds(), c.Schema, c.UpdatedAt.UTC().Format(time.RFC3339Nano))
	return errors.Wrap(err, "saving connection settings")
}

// LoadConnection reports false when nothing was saved yet.
func (m *Manager) LoadConnection(ctx context.Context) (Connection, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, found, err := readConnection(m.db.QueryRowContext(ctx, selectConnection))
	if err != nil {
		return c, false, errors.Wrap(err, "loading connection settings")
	}
	return c, found, nil
}

func (m *Manager) ListAlerts(ctx context.Context, chatID int64) (Alerts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.listAlerts(ctx, chatID)
}

func (m *Manager) SetAlerts(ctx context.Context, chatID int64, name string, a Alerts) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.setAlerts(ctx, chatID, name, a)
}

// ToggleAlert flips one status for a chat and returns the result.
func (m *Manager) ToggleAlert(ctx context.Context, chatID int64, name string, status model.ConnectionStatus) (Alerts, error) {
	if _, ok := selectSubscribers[status]; !ok {
		return nil, errors.Wrapf(ErrUnsupportedStatus, "%s", status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	a, err := m.listAlerts(ctx, chatID)
	if err != nil {
		return nil, err
	}
	a[status] = !a[status]
	if err := m.setAlerts(ctx, chatID, name, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (m *Manager) RemoveSubscriber(ctx context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.db.ExecContext(ctx, deleteSubscriber, chatID)
	return errors.Wrap(err, "removing subscriber")
}

// ListSubscribers returns the chats that opted into status.
func (m *Manager) ListSubscribers(ctx context.Context, status model.ConnectionStatus) ([]Subscriber, error) {
	query, ok := selectSubscribers[status]
	if !ok {
		return []Subscriber{}, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "listing subscribers")
	}
	subs, err := readSubscribers(rows)
	sort.Slice(subs, func(i, j int) bool { return subs[i].ChatID < subs[j].ChatID })
	return subs, err
}

func (m *Manager) listAlerts(ctx context.Context, chatID int64) (Alerts, error) {
	rows, err := m.db.QueryContext(ctx, selectAlerts, chatID)
	if err != nil {
		return AllDisabled(), errors.Wrap(err, "listing alerts")
	}
	return readAlerts(rows)
}

func (m *Manager) setAlerts(ctx context.Context, chatID int64, name string, a Alerts) error {
	_, err := m.db.ExecContext(ctx, upsertSubscriber, chatID, name,
		boolInt(a[model.Error]), boolInt(a[model.Connected]), boolInt(a[model.Disconnected]))
	return errors.Wrap(err, "saving alerts")
}
