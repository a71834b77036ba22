package model

import "time"

type SessionSnapshot struct {
	Kind           SessionKind `json:"sessionType"`
	TrackName      string      `json:"trackName"`
	CurrentLap     int         `json:"currentLap"`
	TotalLaps      int         `json:"totalLaps"`     // 0 means no lap limit
	TimeRemaining  float64     `json:"timeRemaining"` // in s, never negative
	SessionTime    float64     `json:"sessionTime"`   // elapsed time in s
	Flag           FlagState   `json:"flagState"`
	NumCars        int         `json:"numCars"`
	NumCarsOnTrack int         `json:"numCarsOnTrack"`
	Active         bool        `json:"isActive"`
}

// Unlimited reports whether the session has no lap limit.
func (s SessionSnapshot) Unlimited() bool {
	return s.TotalLaps == 0
}

// SectorTimes holds up to three sector durations in seconds. A nil slot has
// not been set yet.
type SectorTimes struct {
	Sector1 *float64 `json:"sector1"`
	Sector2 *float64 `json:"sector2"`
	Sector3 *float64 `json:"sector3"`
}

type Penalty struct {
	Kind   PenaltyKind `json:"type"`
	Time   float64     `json:"time"`
	Reason string      `json:"reason"`
}

type DriverStanding struct {
	Position        int          `json:"position"`
	CarNumber       string       `json:"carNumber"`
	DriverName      string       `json:"driverName"`
	TeamName        string       `json:"teamName"`
	CarClass        CarClass     `json:"carClass"`
	CarName         string       `json:"carName"`
	LastLapTime     *float64     `json:"lastLapTime"`
	BestLapTime     *float64     `json:"bestLapTime"`
	CurrentSectors  SectorTimes  `json:"currentSectors"`
	BestSectors     SectorTimes  `json:"bestSectors"`
	GapToLeader     *float64     `json:"gapToLeader"`
	IntervalToAhead *float64     `json:"intervalToAhead"`
	LapsCompleted   int          `json:"lapsCompleted"`
	LapsDown        int          `json:"lapsDown"`
	Fuel            *float64     `json:"fuel"` // percentage
	TyreCompound    TyreCompound `json:"tyreCompound"`
	PitStops        int          `json:"pitStopCount"`
	Penalties       []Penalty    `json:"penalties"`
	Status          DriverStatus `json:"status"`
	IsPlayer        bool         `json:"isPlayer"`
	SlotID          int          `json:"slotId"`
}

// Snapshot is the canonical output of a single poll tick.
type Snapshot struct {
	Session   *SessionSnapshot `json:"session"`
	Standings []DriverStanding `json:"standings"`
}

type State struct {
	Connection  ConnectionStatus `json:"connection"`
	Session     *SessionSnapshot `json:"session"`
	Standings   []DriverStanding `json:"standings"`
	LastUpdated *time.Time       `json:"lastUpdated"`
}

func InitialState() State {
	return State{
		Connection: Disconnected,
		Standings:  []DriverStanding{},
	}
}

// Float returns a pointer to v, for optional fields.
func Float(v float64) *float64 {
	return &v
}
