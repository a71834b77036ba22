package webserver

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"racedirector/pkg/adapter"
	"racedirector/pkg/caster"
	"racedirector/pkg/connection"
	"racedirector/pkg/lmu"
	"racedirector/pkg/logging"
	"racedirector/pkg/model"
	"racedirector/pkg/settings"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
)

// ConnectionSettings is the body of /api/configure and /api/connect.
type ConnectionSettings struct {
	Endpoint       string `json:"endpoint"`
	PollIntervalMs int    `json:"pollIntervalMs"`
	Schema         string `json:"schema,omitempty"`
	ActiveSchema   string `json:"activeSchema,omitempty"`
}

type CameraRequest struct {
	CameraType     int  `json:"cameraType"`
	TrackSideGroup int  `json:"trackSideGroup"`
	ShouldAdvance  bool `json:"shouldAdvance"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("writing response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (m *Manager) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, m.conn.State())
}

func (m *Manager) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, m.currentSettings())
}

func (m *Manager) currentSettings() ConnectionSettings {
	cfg := m.conn.Config()
	return ConnectionSettings{
		Endpoint:       cfg.Endpoint,
		PollIntervalMs: int(cfg.PollInterval.Milliseconds()),
		Schema:         cfg.Schema,
		ActiveSchema:   m.conn.Schema(),
	}
}

// decodeSettings reads an optional settings body. ok is false when the body
// was empty.
func decodeSettings(w http.ResponseWriter, r *http.Request) (ConnectionSettings, bool, error) {
	var s ConnectionSettings
	if r.Body == nil || r.ContentLength == 0 {
		return s, false, nil
	}
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&s)
	if errors.Is(err, io.EOF) {
		return s, false, nil
	}
	if err != nil {
		return s, false, errors.Wrap(err, "decoding body")
	}
	return s, true, nil
}

// apply stores a validated s on the controller. Zero fields keep their
// current value.
func (m *Manager) apply(ctx context.Context, s ConnectionSettings) (int, error) {
	cfg := m.conn.Config()
	endpoint := cfg.Endpoint
	if s.Endpoint != "" {
		endpoint = s.Endpoint
	}
	interval := cfg.PollInterval
	if s.PollIntervalMs > 0 {
		interval = time.Duration(s.PollIntervalMs) * time.Millisecond
	}

	if err := m.conn.Configure(endpoint, interval); err != nil {
		return statusFor(err), err
	}
	if s.Schema != "" {
		if err := m.conn.SetSchema(s.Schema); err != nil {
			return statusFor(err), err
		}
	}

	if m.settings != nil {
		current := m.conn.Config()
		err := m.settings.SaveConnection(ctx, settings.Connection{
			Endpoint:     current.Endpoint,
			PollInterval: current.PollInterval,
			Schema:       current.Schema,
		})
		if err != nil {
			logging.Warn().Err(err).Msg("persisting connection settings")
		}
	}
	return http.StatusOK, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, connection.ErrNotDisconnected):
		return http.StatusConflict
	case errors.Is(err, connection.ErrInvalidInterval),
		errors.Is(err, lmu.ErrInvalidEndpoint),
		errors.Is(err, adapter.ErrUnknownAdapter):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (m *Manager) handleConfigure(w http.ResponseWriter, r *http.Request) {
	s, ok, err := decodeSettings(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !ok {
		writeError(w, http.StatusBadRequest, errors.New("missing body"))
		return
	}
	if err := validate(s); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if status, err := m.apply(r.Context(), s); err != nil {
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, m.currentSettings())
}

// handleConnect optionally reconfigures, dropping a live connection first when
// the settings change, then connects and returns the resulting state.
func (m *Manager) handleConnect(w http.ResponseWriter, r *http.Request) {
	s, ok, err := decodeSettings(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if ok && m.changes(s) {
		if err := validate(s); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if m.conn.State().Connection != model.Disconnected {
			m.conn.Disconnect()
		}
		if status, err := m.apply(r.Context(), s); err != nil {
			writeError(w, status, err)
			return
		}
	}
	// the probe must not be cut short by the client hanging up
	m.conn.Connect(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusOK, m.conn.State())
}

func validate(s ConnectionSettings) error {
	if s.Endpoint != "" {
		if _, err := lmu.NormalizeEndpoint(s.Endpoint); err != nil {
			return err
		}
	}
	if s.PollIntervalMs < 0 {
		return connection.ErrInvalidInterval
	}
	if s.Schema != "" && !adapter.Valid(s.Schema) {
		return errors.Wrapf(adapter.ErrUnknownAdapter, "%q", s.Schema)
	}
	return nil
}

func (m *Manager) changes(s ConnectionSettings) bool {
	cfg := m.conn.Config()
	endpoint, err := lmu.NormalizeEndpoint(s.Endpoint)
	if s.Endpoint != "" && (err != nil || endpoint != cfg.Endpoint) {
		return true
	}
	if s.PollIntervalMs != 0 && time.Duration(s.PollIntervalMs)*time.Millisecond != cfg.PollInterval {
		return true
	}
	return s.Schema != "" && !strings.EqualFold(s.Schema, cfg.Schema)
}

func (m *Manager) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	m.conn.Disconnect()
	writeJSON(w, http.StatusOK, m.conn.State())
}

func (m *Manager) handleFocus(w http.ResponseWriter, r *http.Request) {
	slotID, err := strconv.Atoi(mux.Vars(r)["slotID"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := m.conn.FocusVehicle(r.Context(), slotID); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (m *Manager) handleCamera(w http.ResponseWriter, r *http.Request) {
	var req CameraRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "decoding body"))
		return
	}
	if req.CameraType < 0 || req.TrackSideGroup < 0 {
		writeError(w, http.StatusBadRequest, errors.New("camera type and track side group must not be negative"))
		return
	}
	if err := m.conn.SetCameraAngle(r.Context(), req.CameraType, req.TrackSideGroup, req.ShouldAdvance); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (m *Manager) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(mux.Vars(r)["chatID"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	alerts, err := m.settings.ListAlerts(r.Context(), chatID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (m *Manager) handleToggleAlert(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	chatID, err := strconv.ParseInt(vars["chatID"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	status := model.ConnectionStatus(strings.ToUpper(vars["status"]))
	alerts, err := m.settings.ToggleAlert(r.Context(), chatID, r.URL.Query().Get("name"), status)
	if errors.Is(err, settings.ErrUnsupportedStatus) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (m *Manager) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	c := newClient(m.hub, conn)
	m.hub.register(c, func() [][]byte {
		st := m.conn.State()
		status, _ := caster.Wrap(MessageTypeConnection, st.Connection)
		state, _ := caster.Wrap(MessageTypeState, st)
		return [][]byte{status, state}
	})
	go c.writePump()
	go c.readPump()
}
