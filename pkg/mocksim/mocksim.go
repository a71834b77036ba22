// Package mocksim serves synthetic simulator REST payloads of either schema
// generation. It backs the mock command and the package tests.
package mocksim

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"racedirector/pkg/adapter"
	"racedirector/pkg/lmu"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
)

type car struct {
	slot    int
	number  string
	driver  string
	team    string
	vehicle string
	class   string
	pace    float64 // seconds per lap
	fuel    float64
	stops   int
}

var grid = []car{
	{0, "50", "Antonio Fuoco", "Ferrari AF Corse", "Ferrari 499P #50:LM", "Hyper", 207.1, 1, 0},
	{1, "6", "Kevin Estre", "Porsche Penske Motorsport", "Porsche 963 #6:LM", "Hyper", 207.4, 1, 0},
	{2, "8", "Sebastien Buemi", "Toyota Gazoo Racing", "Toyota GR010 #8:LM", "Hyper", 207.9, 1, 0},
	{3, "007", "Harry Tincknell", "Aston Martin THOR Team", "Aston Martin Valkyrie #007:EC", "Hyper", 208.6, 1, 0},
	{4, "22", "Oliver Jarvis", "United Autosports", "Oreca 07 #22:LM", "LMP2", 214.2, 1, 0},
	{5, "28", "Pietro Fittipaldi", "IDEC Sport", "Oreca 07 #28:LM", "LMP2", 214.8, 1, 0},
	{6, "92", "Klaus Bachler", "Manthey PureRxcing", "Porsche 911 GT3 R #92:LM", "GT3", 229.3, 1, 0},
	{7, "31", "Augusto Farfus", "Team WRT", "BMW M4 GT3 #31:LM", "GT3", 229.9, 1, 0},
	{8, "85", "Sarah Bovy", "Iron Dames", "Lamborghini Huracan GT3 #85:LM", "GT3", 230.4, 1, 0},
}

// Simulator is an in-memory simulator REST service. Until Advance is called it
// serves a static grid; SetSession and SetStandings replace the payloads
// verbatim.
type Simulator struct {
	mu         sync.Mutex
	generation string
	elapsed    float64
	duration   float64
	track      string
	status     int
	delay      time.Duration

	session   any
	standings any

	sessionHits   int
	standingsHits int
	commands      []string
}

func New(generation string) *Simulator {
	if generation != adapter.RF2 {
		generation = adapter.LMU
	}
	return &Simulator{
		generation: generation,
		duration:   6 * 3600,
		track:      "Circuit de la Sarthe",
		status:     http.StatusOK,
	}
}

func (s *Simulator) Generation() string {
	return s.generation
}

// Handler returns the REST routes served by the real simulator.
func (s *Simulator) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(lmu.SessionInfoPath, s.handleSessionInfo).Methods(http.MethodGet)
	r.HandleFunc(lmu.StandingsPath, s.handleStandings).Methods(http.MethodGet)
	r.HandleFunc(lmu.CameraPath+"/{cameraType:[0-9]+}/{group:[0-9]+}/{advance}", s.handleCommand).Methods(http.MethodPut)
	r.HandleFunc(lmu.FocusPath+"/{slotID:[0-9]+}", s.handleCommand).Methods(http.MethodPut)
	return r
}

// SetStatus makes every route answer with code. Use http.StatusOK to recover.
func (s *Simulator) SetStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = code
}

// SetDelay holds every response for d or until the request is cancelled.
func (s *Simulator) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// SetSession overrides the session payload. nil restores the synthetic one.
func (s *Simulator) SetSession(payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = payload
}

// SetStandings overrides the standings payload. nil restores the synthetic one.
func (s *Simulator) SetStandings(payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.standings = payload
}

// Advance moves the synthetic session clock forward.
func (s *Simulator) Advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elapsed = math.Min(s.duration, s.elapsed+d.Seconds())
}

// Hits reports how many session and standings requests were served.
func (s *Simulator) Hits() (session, standings int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionHits, s.standingsHits
}

// Commands lists the paths of the command requests received so far.
func (s *Simulator) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *Simulator) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.sessionHits++
	payload := s.session
	if payload == nil {
		payload = s.sessionPayload()
	}
	s.mu.Unlock()
	s.respond(w, r, payload)
}

func (s *Simulator) handleStandings(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.standingsHits++
	payload := s.standings
	if payload == nil {
		payload = s.standingsPayload()
	}
	s.mu.Unlock()
	s.respond(w, r, payload)
}

func (s *Simulator) handleCommand(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.commands = append(s.commands, r.URL.Path)
	s.mu.Unlock()
	s.respond(w, r, map[string]any{"ok": true})
}

func (s *Simulator) respond(w http.ResponseWriter, r *http.Request, payload any) {
	s.mu.Lock()
	status, delay := s.status, s.delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if status < 200 || status > 299 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

type progress struct {
	car
	laps     int
	distance float64
}

// order must be called with mu held.
func (s *Simulator) order() []progress {
	ps := make([]progress, 0, len(grid))
	for _, c := range grid {
		d := s.elapsed / c.pace
		ps = append(ps, progress{car: c, laps: int(d), distance: d})
	}
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].distance > ps[j].distance })
	return ps
}

// sessionPayload must be called with mu held.
func (s *Simulator) sessionPayload() map[string]any {
	p := map[string]any{
		"trackName":        s.track,
		"currentEventTime": s.elapsed,
		"endEventTime":     s.duration,
		"numberOfVehicles": len(grid),
	}
	if s.generation == adapter.RF2 {
		p["session"] = 10
		p["maximumLaps"] = 2147483647
		p["yellowFlagState"] = 0
		p["gamePhase"] = 5
		p["sectorFlag"] = []int{0, 0, 0}
		if s.elapsed >= s.duration {
			p["gamePhase"] = 8
		}
		return p
	}
	p["session"] = "RACE1"
	p["maximumLaps"] = int64(4294967295)
	p["maxTime"] = s.duration
	p["timeRemainingInGamePhase"] = math.Max(0, s.duration-s.elapsed)
	p["yellowFlagState"] = "NONE"
	p["sectorFlag"] = []string{"GREEN", "GREEN", "GREEN"}
	return p
}

// standingsPayload must be called with mu held.
func (s *Simulator) standingsPayload() []map[string]any {
	ps := s.order()
	out := make([]map[string]any, 0, len(ps))
	for i, p := range ps {
		v := map[string]any{
			"position":      i + 1,
			"slotID":        p.slot,
			"driverName":    p.driver,
			"fullTeamName":  p.team,
			"vehicleName":   p.vehicle,
			"carClass":      p.class,
			"lapsCompleted": p.laps,
			"pitstops":      p.laps / 12,
			"pitting":       false,
			"inGarageStall": false,
			"player":        i == 0,
			"hasFocus":      false,
			"penalties":     0,
			"lastLapTime":   -1.0,
			"bestLapTime":   -1.0,
		}
		if p.laps > 0 {
			v["lastLapTime"] = p.pace
			v["bestLapTime"] = p.pace - 0.4
			v["timeBehindLeader"] = (ps[0].distance - p.distance) * p.pace
			if i > 0 {
				v["timeBehindNext"] = (ps[i-1].distance - p.distance) * p.pace
			}
		}
		lapFraction := p.distance - float64(p.laps)
		if s.generation == adapter.RF2 {
			v["carNumber"] = p.number
			v["finishStatus"] = 0
			if p.laps > 0 {
				v["bestLapSectorTime1"] = p.pace * 0.31
				v["bestLapSectorTime2"] = p.pace * 0.66
			}
			v["currentSectorTime1"] = sectorSplit(lapFraction, 0.31, p.pace)
			v["currentSectorTime2"] = sectorSplit(lapFraction, 0.66, p.pace)
		} else {
			v["carNumber"] = ""
			v["finishStatus"] = "FSTAT_NONE"
			v["fuelFraction"] = math.Max(0, p.fuel-lapFraction*0.08)
			if p.laps > 0 {
				v["bestSectorTime1"] = p.pace * 0.31
				v["bestSectorTime2"] = p.pace * 0.35
			}
			v["currentSectorTime1"] = sectorSplit(lapFraction, 0.31, p.pace)
			v["currentSectorTime2"] = -1.0
		}
		if s.elapsed >= s.duration {
			v["finishStatus"] = finished(s.generation)
		}
		out = append(out, v)
	}
	return out
}

func sectorSplit(fraction, split, pace float64) float64 {
	if fraction < split {
		return -1
	}
	return pace * split
}

func finished(generation string) any {
	if generation == adapter.RF2 {
		return 1
	}
	return "FSTAT_FINISHED"
}

// Describe is used by the mock command banner.
func (s *Simulator) Describe() string {
	return fmt.Sprintf("%s schema, %d cars at %s, %s session", s.generation, len(grid), s.track,
		strconv.FormatFloat(s.duration/3600, 'f', -1, 64)+"h")
}
