package connection_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"racedirector/pkg/adapter"
	"racedirector/pkg/connection"
	"racedirector/pkg/mocksim"
	"racedirector/pkg/model"

	"github.com/pkg/errors"
	"github.com/smartystreets/goconvey/convey"
)

type recorder struct {
	mu       sync.Mutex
	statuses []model.ConnectionStatus
	states   []model.State
}

func (r *recorder) status(s model.ConnectionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recorder) state(s model.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) Statuses() []model.ConnectionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ConnectionStatus(nil), r.statuses...)
}

func (r *recorder) States() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func newManager(t *testing.T, endpoint string) (*connection.Manager, *recorder) {
	m, err := connection.NewManager(context.Background(), connection.Config{
		Endpoint:     endpoint,
		PollInterval: 10 * time.Millisecond,
		ProbeTimeout: 200 * time.Millisecond,
		FetchTimeout: 200 * time.Millisecond,
		ResetDelay:   50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("creating manager: %v", err)
	}
	r := &recorder{}
	m.OnStatus(r.status)
	m.OnSnapshot(r.state)
	return m, r
}

func TestConnectFailures(t *testing.T) {
	convey.Convey("Given a host that refuses connections", t, func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		endpoint := srv.URL
		srv.Close()
		m, r := newManager(t, endpoint)
		defer m.Close()

		convey.Convey("When connecting", func() {
			m.Connect(context.Background())

			convey.Convey("Then it goes CONNECTING, ERROR and back to DISCONNECTED after the cool-down", func() {
				convey.So(r.Statuses(), convey.ShouldResemble, []model.ConnectionStatus{model.Connecting, model.Error})
				convey.So(eventually(func() bool { return m.Status() == model.Disconnected }), convey.ShouldBeTrue)
				convey.So(r.Statuses(), convey.ShouldResemble, []model.ConnectionStatus{
					model.Connecting, model.Error, model.Disconnected,
				})
				convey.So(r.States(), convey.ShouldEqual, 0)
			})
		})
	})

	convey.Convey("Given a simulator answering 503", t, func() {
		sim := mocksim.New(adapter.LMU)
		sim.SetStatus(http.StatusServiceUnavailable)
		srv := httptest.NewServer(sim.Handler())
		defer srv.Close()
		m, r := newManager(t, srv.URL)
		defer m.Close()

		convey.Convey("When connecting", func() {
			m.Connect(context.Background())
			convey.So(eventually(func() bool { return m.Status() == model.Disconnected }), convey.ShouldBeTrue)
			time.Sleep(30 * time.Millisecond)

			convey.Convey("Then only the probe reached the simulator and no tick ran", func() {
				session, standings := sim.Hits()
				convey.So(session, convey.ShouldEqual, 1)
				convey.So(standings, convey.ShouldEqual, 0)
				convey.So(r.States(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When reconnecting successfully during the cool-down", func() {
			m.Connect(context.Background())
			convey.So(m.Status(), convey.ShouldEqual, model.Error)
			sim.SetStatus(http.StatusOK)
			m.Connect(context.Background())
			time.Sleep(100 * time.Millisecond)

			convey.Convey("Then the old reset timer does not knock the new connection over", func() {
				convey.So(m.Status(), convey.ShouldEqual, model.Connected)
				convey.So(r.Statuses(), convey.ShouldResemble, []model.ConnectionStatus{
					model.Connecting, model.Error, model.Connecting, model.Connected,
				})
			})
		})
	})
}

func TestConnected(t *testing.T) {
	convey.Convey("Given a healthy lmu simulator", t, func() {
		sim := mocksim.New(adapter.LMU)
		srv := httptest.NewServer(sim.Handler())
		defer srv.Close()
		m, r := newManager(t, srv.URL)
		defer m.Close()

		m.Connect(context.Background())

		convey.Convey("Then it is connected and publishes normalized state", func() {
			convey.So(m.Status(), convey.ShouldEqual, model.Connected)
			convey.So(m.Schema(), convey.ShouldEqual, adapter.LMU)
			convey.So(eventually(func() bool { return r.States() >= 2 }), convey.ShouldBeTrue)
			st := m.State()
			convey.So(st.Connection, convey.ShouldEqual, model.Connected)
			convey.So(st.Session, convey.ShouldNotBeNil)
			convey.So(st.Session.TrackName, convey.ShouldEqual, "Circuit de la Sarthe")
			convey.So(st.Standings, convey.ShouldNotBeEmpty)
			convey.So(st.LastUpdated, convey.ShouldNotBeNil)
		})

		convey.Convey("When disconnecting right after connecting", func() {
			m.Disconnect()
			after := r.States()
			statuses := len(r.Statuses())
			time.Sleep(60 * time.Millisecond)

			convey.Convey("Then no callback fires afterwards and the snapshot is cleared", func() {
				convey.So(r.States(), convey.ShouldEqual, after)
				convey.So(r.Statuses(), convey.ShouldHaveLength, statuses)
				convey.So(r.Statuses()[statuses-1], convey.ShouldEqual, model.Disconnected)
				st := m.State()
				convey.So(st.Connection, convey.ShouldEqual, model.Disconnected)
				convey.So(st.Session, convey.ShouldBeNil)
				convey.So(st.Standings, convey.ShouldBeEmpty)
			})

			convey.Convey("Then disconnecting again only re-emits the status", func() {
				m.Disconnect()
				convey.So(r.Statuses()[len(r.Statuses())-1], convey.ShouldEqual, model.Disconnected)
				convey.So(m.State().Session, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a tick is in flight during Disconnect", func() {
			convey.So(eventually(func() bool { return r.States() >= 1 }), convey.ShouldBeTrue)
			sim.SetDelay(40 * time.Millisecond)
			time.Sleep(20 * time.Millisecond)
			m.Disconnect()
			after := r.States()
			time.Sleep(100 * time.Millisecond)

			convey.Convey("Then its result is discarded", func() {
				convey.So(r.States(), convey.ShouldEqual, after)
				convey.So(m.Status(), convey.ShouldEqual, model.Disconnected)
			})
		})

		convey.Convey("When the simulator starts failing", func() {
			convey.So(eventually(func() bool { return r.States() >= 1 }), convey.ShouldBeTrue)
			sim.SetStatus(http.StatusInternalServerError)

			convey.Convey("Then polling stops, ERROR is reported and the last snapshot survives the reset", func() {
				convey.So(eventually(func() bool { return m.Status() == model.Disconnected }), convey.ShouldBeTrue)
				statuses := r.Statuses()
				convey.So(statuses[len(statuses)-2:], convey.ShouldResemble, []model.ConnectionStatus{model.Error, model.Disconnected})
				convey.So(m.State().Session, convey.ShouldNotBeNil)

				_, before := sim.Hits()
				time.Sleep(50 * time.Millisecond)
				_, later := sim.Hits()
				convey.So(later, convey.ShouldEqual, before)
			})
		})

		convey.Convey("When the connection is reconfigured while connected", func() {
			err := m.Configure("http://localhost:1", time.Second)

			convey.Convey("Then it is rejected", func() {
				convey.So(errors.Is(err, connection.ErrNotDisconnected), convey.ShouldBeTrue)
				convey.So(m.Config().Endpoint, convey.ShouldEqual, srv.URL)
			})
		})

		convey.Convey("When commands are passed through", func() {
			convey.So(m.FocusVehicle(context.Background(), 3), convey.ShouldBeNil)
			convey.So(m.SetCameraAngle(context.Background(), 4, 0, false), convey.ShouldBeNil)
			convey.So(sim.Commands(), convey.ShouldResemble, []string{
				"/rest/watch/focus/3",
				"/rest/watch/focus/camera/4/0/false",
			})
		})
	})

	convey.Convey("Given an rf2 simulator and automatic schema detection", t, func() {
		sim := mocksim.New(adapter.RF2)
		srv := httptest.NewServer(sim.Handler())
		defer srv.Close()
		m, r := newManager(t, srv.URL)
		defer m.Close()

		m.Connect(context.Background())

		convey.Convey("Then the rf2 adapter is picked", func() {
			convey.So(m.Schema(), convey.ShouldEqual, adapter.RF2)
			convey.So(eventually(func() bool { return r.States() >= 1 }), convey.ShouldBeTrue)
			convey.So(m.State().Session.Kind, convey.ShouldEqual, model.Race)
		})
	})
}

func TestConfigure(t *testing.T) {
	convey.Convey("Given a disconnected manager", t, func() {
		m, _ := newManager(t, "")
		defer m.Close()

		convey.Convey("Then it defaults to the local simulator", func() {
			convey.So(m.Config().Endpoint, convey.ShouldEqual, "http://localhost:6397")
			convey.So(m.Config().Schema, convey.ShouldEqual, adapter.Auto)
		})

		convey.Convey("When configured with valid settings", func() {
			err := m.Configure("http://10.0.0.5:6397/", 500*time.Millisecond)

			convey.Convey("Then they are stored", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(m.Config().Endpoint, convey.ShouldEqual, "http://10.0.0.5:6397")
				convey.So(m.Config().PollInterval, convey.ShouldEqual, 500*time.Millisecond)
			})
		})

		convey.Convey("When configured with bad settings", func() {
			convey.So(m.Configure("http://10.0.0.5:6397", 0), convey.ShouldEqual, connection.ErrInvalidInterval)
			convey.So(m.Configure("10.0.0.5", time.Second), convey.ShouldNotBeNil)
			convey.So(m.SetSchema("ams2"), convey.ShouldNotBeNil)
			convey.So(m.SetSchema(adapter.RF2), convey.ShouldBeNil)
			convey.So(m.Config().Schema, convey.ShouldEqual, adapter.RF2)
		})
	})

	convey.Convey("Given an unknown schema", t, func() {
		_, err := connection.NewManager(context.Background(), connection.Config{Schema: "ams2"})
		convey.So(errors.Is(err, adapter.ErrUnknownAdapter), convey.ShouldBeTrue)
	})
}
