// Package webserver exposes the connection controls over HTTP and pushes
// state and status changes to websocket clients.
package webserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"racedirector/pkg/connection"
	"racedirector/pkg/logging"
	"racedirector/pkg/metrics"
	"racedirector/pkg/model"
	"racedirector/pkg/settings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const DefaultAddr = ":8085"

// Controller is the connection surface the API drives.
type Controller interface {
	Configure(endpoint string, pollInterval time.Duration) error
	SetSchema(name string) error
	Config() connection.Config
	Schema() string
	Connect(ctx context.Context)
	Disconnect()
	State() model.State
	OnSnapshot(fn func(model.State)) func()
	OnStatus(fn func(model.ConnectionStatus)) func()
	FocusVehicle(ctx context.Context, slotID int) error
	SetCameraAngle(ctx context.Context, cameraType, trackSideGroup int, shouldAdvance bool) error
}

// SettingsStore persists what the API changes. Optional.
type SettingsStore interface {
	SaveConnection(ctx context.Context, c settings.Connection) error
	ListAlerts(ctx context.Context, chatID int64) (settings.Alerts, error)
	ToggleAlert(ctx context.Context, chatID int64, name string, status model.ConnectionStatus) (settings.Alerts, error)
}

type Manager struct {
	r        *mux.Router
	addr     string
	conn     Controller
	hub      *Hub
	settings SettingsStore
	metrics  *metrics.Manager
	upgrader websocket.Upgrader
	cancels  []func()
}

type Option func(*Manager)

func WithSettings(s SettingsStore) Option {
	return func(m *Manager) {
		m.settings = s
	}
}

func WithMetrics(mm *metrics.Manager) Option {
	return func(m *Manager) {
		m.metrics = mm
	}
}

// WithAllowedOrigins restricts websocket upgrades to the given origins. By
// default any origin is accepted since the API binds to a local address.
func WithAllowedOrigins(origins ...string) Option {
	return func(m *Manager) {
		if len(origins) == 0 {
			return
		}
		m.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			for _, o := range origins {
				if strings.EqualFold(o, origin) {
					return true
				}
			}
			return false
		}
	}
}

func NewManager(addr string, conn Controller, opts ...Option) *Manager {
	if addr == "" {
		addr = DefaultAddr
	}
	m := &Manager{
		r:    mux.NewRouter(),
		addr: addr,
		conn: conn,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.hub = NewHub(m.metrics)
	m.cancels = append(m.cancels,
		conn.OnStatus(m.hub.PublishStatus),
		conn.OnSnapshot(m.hub.PublishState),
	)
	m.rootHandlers()
	return m
}

func (m *Manager) rootHandlers() {
	api := m.r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", m.handleState).Methods(http.MethodGet)
	api.HandleFunc("/config", m.handleConfig).Methods(http.MethodGet)
	api.HandleFunc("/configure", m.handleConfigure).Methods(http.MethodPost)
	api.HandleFunc("/connect", m.handleConnect).Methods(http.MethodPost)
	api.HandleFunc("/disconnect", m.handleDisconnect).Methods(http.MethodPost)
	api.HandleFunc("/vehicles/{slotID:[0-9]+}/focus", m.handleFocus).Methods(http.MethodPost)
	api.HandleFunc("/camera", m.handleCamera).Methods(http.MethodPost)
	if m.settings != nil {
		api.HandleFunc("/alerts/{chatID:-?[0-9]+}", m.handleListAlerts).Methods(http.MethodGet)
		api.HandleFunc("/alerts/{chatID:-?[0-9]+}/{status}/toggle", m.handleToggleAlert).Methods(http.MethodPost)
	}
	m.r.HandleFunc("/ws", m.handleWebsocket)
	if m.metrics != nil {
		m.r.Handle("/metrics", m.metrics.Handler()).Methods(http.MethodGet)
	}
}

func (m *Manager) Handler() http.Handler {
	return m.r
}

func (m *Manager) Hub() *Hub {
	return m.hub
}

// Debug logs every registered route.
func (m *Manager) Debug() {
	_ = m.r.Walk(func(route *mux.Route, router *mux.Router, ancestors []*mux.Route) error {
		path, err := route.GetPathTemplate()
		if err != nil {
			return nil
		}
		methods, _ := route.GetMethods()
		logging.Debug().Str("path", path).Strs("methods", methods).Msg("route")
		return nil
	})
}

// Serve listens until ctx is done, then shuts down gracefully.
func (m *Manager) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         m.addr,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
		Handler:      m.r,
	}

	errChan := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", m.addr).Msg("webserver listening")
		errChan <- srv.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		return errors.Wrap(err, "webserver")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logging.Info().Msg("webserver shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "webserver shutdown")
	}
	return nil
}

// Close drops the connection subscriptions.
func (m *Manager) Close() {
	for _, cancel := range m.cancels {
		cancel()
	}
	m.cancels = nil
}
