// Package connection owns the simulator connection lifecycle:
// DISCONNECTED -> CONNECTING -> CONNECTED, with ERROR falling back to
// DISCONNECTED after a cool-down.
package connection

import (
	"context"
	"net/http"
	"sync"
	"time"

	"racedirector/pkg/adapter"
	"racedirector/pkg/lmu"
	"racedirector/pkg/logging"
	"racedirector/pkg/metrics"
	"racedirector/pkg/model"
	"racedirector/pkg/poller"
	"racedirector/pkg/state"

	"github.com/pkg/errors"
)

const DefaultResetDelay = 3 * time.Second

var (
	ErrNotDisconnected = errors.New("connection settings can only change while disconnected")
	ErrInvalidInterval = errors.New("poll interval must be positive")
)

type Config struct {
	Endpoint     string
	PollInterval time.Duration
	ProbeTimeout time.Duration
	FetchTimeout time.Duration
	ResetDelay   time.Duration
	// Schema is an adapter name or adapter.Auto.
	Schema string
}

func DefaultConfig() Config {
	return Config{
		Endpoint:     lmu.DefaultEndpoint,
		PollInterval: poller.DefaultInterval,
		ProbeTimeout: lmu.DefaultProbeTimeout,
		FetchTimeout: poller.DefaultFetchTimeout,
		ResetDelay:   DefaultResetDelay,
		Schema:       adapter.Auto,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Endpoint == "" {
		c.Endpoint = d.Endpoint
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = d.ProbeTimeout
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = d.FetchTimeout
	}
	if c.ResetDelay <= 0 {
		c.ResetDelay = d.ResetDelay
	}
	if c.Schema == "" {
		c.Schema = d.Schema
	}
	return c
}

// Manager serializes every transition behind one mutex. Subscribers are
// called while it is held: they must not call Connect, Disconnect or
// Configure synchronously.
type Manager struct {
	ctx        context.Context
	mu         sync.Mutex
	cfg        Config
	client     *lmu.Client
	httpClient *http.Client
	store      *state.Store
	metrics    *metrics.Manager

	// generation invalidates probes, ticks and reset timers that belong to a
	// superseded Connect or Disconnect.
	generation uint64
	poller     *poller.Poller
	resetTimer *time.Timer
	schema     string
}

type Option func(*Manager)

func WithStore(s *state.Store) Option {
	return func(m *Manager) {
		if s != nil {
			m.store = s
		}
	}
}

func WithMetrics(mm *metrics.Manager) Option {
	return func(m *Manager) {
		m.metrics = mm
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(m *Manager) {
		m.httpClient = hc
	}
}

func NewManager(ctx context.Context, cfg Config, opts ...Option) (*Manager, error) {
	cfg = cfg.withDefaults()
	endpoint, err := lmu.NormalizeEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	if !adapter.Valid(cfg.Schema) {
		return nil, errors.Wrapf(adapter.ErrUnknownAdapter, "%q", cfg.Schema)
	}
	cfg.Endpoint = endpoint

	m := &Manager{ctx: ctx, cfg: cfg}
	for _, opt := range opts {
		opt(m)
	}
	if m.store == nil {
		m.store = state.NewStore(state.WithMetrics(m.metrics))
	}
	m.client = m.newClient(endpoint)
	return m, nil
}

func (m *Manager) newClient(endpoint string) *lmu.Client {
	return lmu.NewClient(endpoint, lmu.WithHTTPClient(m.httpClient), lmu.WithMetrics(m.metrics))
}

func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Configure sets the endpoint and poll interval for the next Connect.
func (m *Manager) Configure(endpoint string, pollInterval time.Duration) error {
	if pollInterval <= 0 {
		return ErrInvalidInterval
	}
	endpoint, err := lmu.NormalizeEndpoint(endpoint)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store.Status() != model.Disconnected {
		return ErrNotDisconnected
	}
	if endpoint != m.cfg.Endpoint {
		m.client = m.newClient(endpoint)
	}
	m.cfg.Endpoint = endpoint
	m.cfg.PollInterval = pollInterval
	logging.Info().Str("endpoint", endpoint).Dur("poll_interval", pollInterval).Msg("connection configured")
	return nil
}

// SetSchema pins the adapter used by the next Connect.
func (m *Manager) SetSchema(name string) error {
	if !adapter.Valid(name) {
		return errors.Wrapf(adapter.ErrUnknownAdapter, "%q", name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store.Status() != model.Disconnected {
		return ErrNotDisconnected
	}
	if name == "" {
		name = adapter.Auto
	}
	m.cfg.Schema = name
	return nil
}

// Schema reports the adapter chosen by the last successful probe.
func (m *Manager) Schema() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schema
}

// Connect probes the simulator and starts polling on success. It never fails:
// problems surface as an ERROR transition followed by DISCONNECTED.
func (m *Manager) Connect(ctx context.Context) {
	m.mu.Lock()
	m.generation++
	gen := m.generation
	m.stopLocked()
	client, cfg := m.client, m.cfg
	m.setStatusLocked(model.Connecting)
	m.mu.Unlock()

	logging.Info().Str("endpoint", cfg.Endpoint).Msg("probing simulator")
	session, err := client.Probe(ctx, cfg.ProbeTimeout)

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation {
		logging.Debug().Msg("probe result discarded, connection superseded")
		return
	}
	if err != nil {
		m.failLocked(gen, err)
		return
	}
	a, err := adapter.Resolve(cfg.Schema, session)
	if err != nil {
		m.failLocked(gen, err)
		return
	}
	m.schema = a.Name()

	m.setStatusLocked(model.Connected)
	logging.Info().Str("endpoint", cfg.Endpoint).Str("schema", a.Name()).Msg("connected")

	p := poller.New(poller.Config{
		Interval:     cfg.PollInterval,
		FetchTimeout: cfg.FetchTimeout,
		Fetcher:      client,
		Adapter:      a,
		OnSnapshot:   func(s model.Snapshot) { m.handleSnapshot(gen, s) },
		OnFailure:    func(err error) { m.handleFailure(gen, err) },
		Metrics:      m.metrics,
	})
	m.poller = p
	p.Start(m.ctx)
}

// Disconnect stops polling, clears the snapshot and reports DISCONNECTED.
// Once it returns no callback from an earlier connection fires.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	m.stopLocked()
	m.store.Clear()
	m.setStatusLocked(model.Disconnected)
	m.store.PublishState()
	logging.Info().Msg("disconnected")
}

func (m *Manager) State() model.State {
	return m.store.State()
}

func (m *Manager) Status() model.ConnectionStatus {
	return m.store.Status()
}

func (m *Manager) OnSnapshot(fn func(model.State)) func() {
	return m.store.OnSnapshot(fn)
}

func (m *Manager) OnStatus(fn func(model.ConnectionStatus)) func() {
	return m.store.OnStatus(fn)
}

func (m *Manager) FocusVehicle(ctx context.Context, slotID int) error {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()
	return client.FocusVehicle(ctx, slotID)
}

func (m *Manager) SetCameraAngle(ctx context.Context, cameraType, trackSideGroup int, shouldAdvance bool) error {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()
	return client.SetCameraAngle(ctx, cameraType, trackSideGroup, shouldAdvance)
}

// Close stops background work without emitting anything.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	m.stopLocked()
}

func (m *Manager) handleSnapshot(gen uint64, snap model.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation || m.store.Status() != model.Connected {
		logging.Debug().Msg("stale tick discarded")
		return
	}
	m.store.Replace(snap)
}

func (m *Manager) handleFailure(gen uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation {
		return
	}
	m.stopLocked()
	m.failLocked(gen, err)
}

func (m *Manager) failLocked(gen uint64, err error) {
	logging.Warn().Err(err).Dur("reset_in", m.cfg.ResetDelay).Msg("connection error")
	m.setStatusLocked(model.Error)
	m.resetTimer = time.AfterFunc(m.cfg.ResetDelay, func() { m.reset(gen) })
}

func (m *Manager) reset(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation || m.store.Status() != model.Error {
		return
	}
	m.resetTimer = nil
	m.setStatusLocked(model.Disconnected)
}

func (m *Manager) stopLocked() {
	if m.poller != nil {
		m.poller.Stop()
		m.poller = nil
	}
	if m.resetTimer != nil {
		m.resetTimer.Stop()
		m.resetTimer = nil
	}
}

func (m *Manager) setStatusLocked(status model.ConnectionStatus) {
	logging.Debug().Str("status", string(status)).Msg("connection status")
	m.store.SetStatus(status)
}
