// Package lmu talks to the simulator's local REST service.
package lmu

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"racedirector/pkg/logging"
	"racedirector/pkg/metrics"
	"racedirector/pkg/raw"

	"github.com/pkg/errors"
	gobreaker "github.com/sony/gobreaker/v2"
)

const (
	DefaultEndpoint = "http://localhost:6397"

	SessionInfoPath = "/rest/watch/sessionInfo"
	StandingsPath   = "/rest/watch/standings"
	FocusPath       = "/rest/watch/focus"
	CameraPath      = "/rest/watch/focus/camera"

	DefaultProbeTimeout = 3 * time.Second

	commandBreaker = "lmu-commands"
	// payloads are a few hundred kB at most even on full grids
	maxBodySize = 16 << 20
)

var (
	ErrStatus          = errors.New("unexpected response status")
	ErrInvalidEndpoint = errors.New("invalid endpoint")
)

type Client struct {
	endpoint string
	http     *http.Client
	metrics  *metrics.Manager
	breaker  *gobreaker.CircuitBreaker[struct{}]
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithMetrics(m *metrics.Manager) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient expects an endpoint already checked by NormalizeEndpoint.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.metrics.SetBreakerState(commandBreaker, 0)
	c.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        commandBreaker,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			c.metrics.SetBreakerState(name, breakerStateValue(to))
		},
	})
	return c
}

// NormalizeEndpoint validates a base URL and strips trailing slashes.
func NormalizeEndpoint(endpoint string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return DefaultEndpoint, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", errors.Wrapf(ErrInvalidEndpoint, "%q: %v", endpoint, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", errors.Wrapf(ErrInvalidEndpoint, "%q: want http(s)://host[:port]", endpoint)
	}
	return strings.TrimRight(endpoint, "/"), nil
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

// Probe fetches the session payload once, bounded by timeout.
func (c *Client) Probe(ctx context.Context, timeout time.Duration) (raw.Object, error) {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	session, err := c.FetchSession(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "probe")
	}
	return session, nil
}

func (c *Client) FetchSession(ctx context.Context) (raw.Object, error) {
	body, err := c.do(ctx, http.MethodGet, SessionInfoPath)
	if err != nil {
		return nil, err
	}
	session, err := raw.DecodeObject(body)
	if err != nil {
		return nil, errors.Wrap(err, SessionInfoPath)
	}
	return session, nil
}

func (c *Client) FetchStandings(ctx context.Context) ([]raw.Object, error) {
	body, err := c.do(ctx, http.MethodGet, StandingsPath)
	if err != nil {
		return nil, err
	}
	vehicles, err := raw.DecodeArray(body)
	if err != nil {
		return nil, errors.Wrap(err, StandingsPath)
	}
	return vehicles, nil
}

// FocusVehicle points the simulator's camera at the car in slotID.
func (c *Client) FocusVehicle(ctx context.Context, slotID int) error {
	if slotID < 0 {
		return errors.Errorf("invalid slot id %d", slotID)
	}
	return c.command(ctx, fmt.Sprintf("%s/%d", FocusPath, slotID))
}

func (c *Client) SetCameraAngle(ctx context.Context, cameraType, trackSideGroup int, shouldAdvance bool) error {
	return c.command(ctx, fmt.Sprintf("%s/%d/%d/%t", CameraPath, cameraType, trackSideGroup, shouldAdvance))
}

func (c *Client) command(ctx context.Context, path string) error {
	_, err := c.breaker.Execute(func() (struct{}, error) {
		_, err := c.do(ctx, http.MethodPut, path)
		return struct{}{}, err
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.metrics.RecordBreakerRequest(commandBreaker, "rejected")
		return errors.Wrapf(err, "PUT %s", path)
	case err != nil:
		c.metrics.RecordBreakerRequest(commandBreaker, "failure")
		return err
	}
	c.metrics.RecordBreakerRequest(commandBreaker, "success")
	return nil
}

func (c *Client) do(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Wrapf(ErrStatus, "%s %s: %s", method, path, resp.Status)
	}
	return body, nil
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	}
	return 0
}
