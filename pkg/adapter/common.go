package adapter

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"racedirector/pkg/model"
)

const (
	unknownTrack = "Unknown Track"
	// a corrupt penalty count must not allocate without bound
	maxPendingPenalties = 64
	pendingReason       = "pending"
)

var (
	carNumberPattern  = regexp.MustCompile(`#(\w+)`)
	carNameDecoration = regexp.MustCompile(`#\w+.*$`)
)

type finishState int

const (
	finishNone finishState = iota
	finishFinished
	finishDNF
	finishDQ
)

// session holds the generation independent session fields extracted by an
// adapter before assembly.
type session struct {
	kind        model.SessionKind
	track       string
	elapsed     float64
	remaining   float64
	totalLaps   int
	flag        model.FlagState
	numVehicles int
}

type vehicle struct {
	position       int
	slotID         int
	carNumber      string
	driverName     string
	teamName       string
	vehicleName    string
	carClass       string
	lastLap        *float64
	bestLap        *float64
	currentSectors model.SectorTimes
	bestSectors    model.SectorTimes
	gapToLeader    *float64
	gapToNext      *float64
	lapsCompleted  int
	fuel           *float64
	pitStops       int
	penalties      []model.Penalty
	finish         finishState
	inGarage       bool
	pitting        bool
	player         bool
}

// assemble builds the canonical snapshot shared by every generation.
func assemble(s session, vehicles []vehicle) model.Snapshot {
	ordered := append([]vehicle(nil), vehicles...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return rank(ordered[i].position) < rank(ordered[j].position)
	})

	classLeaderLaps := map[string]int{}
	for _, v := range ordered {
		key := classKey(v.carClass)
		if _, found := classLeaderLaps[key]; !found {
			classLeaderLaps[key] = v.lapsCompleted
		}
	}

	standings := make([]model.DriverStanding, 0, len(ordered))
	onTrack := 0
	for i, v := range ordered {
		if isOnTrack(v.finish, v.inGarage) {
			onTrack++
		}
		standings = append(standings, standing(i+1, v, classLeaderLaps[classKey(v.carClass)]))
	}

	currentLap := 0
	if len(ordered) > 0 {
		currentLap = max(0, ordered[0].lapsCompleted) + 1
	}

	numCars := s.numVehicles
	if numCars <= 0 {
		numCars = len(ordered)
	}
	track := strings.TrimSpace(s.track)
	if track == "" {
		track = unknownTrack
	}

	return model.Snapshot{
		Session: &model.SessionSnapshot{
			Kind:           s.kind,
			TrackName:      track,
			CurrentLap:     currentLap,
			TotalLaps:      s.totalLaps,
			TimeRemaining:  math.Max(0, s.remaining),
			SessionTime:    math.Max(0, s.elapsed),
			Flag:           s.flag,
			NumCars:        numCars,
			NumCarsOnTrack: onTrack,
			Active:         numCars > 0,
		},
		Standings: standings,
	}
}

func standing(position int, v vehicle, classLeaderLaps int) model.DriverStanding {
	penalties := v.penalties
	if penalties == nil {
		penalties = []model.Penalty{}
	}
	return model.DriverStanding{
		Position:        position,
		CarNumber:       carNumber(v.carNumber, v.vehicleName, v.slotID),
		DriverName:      v.driverName,
		TeamName:        v.teamName,
		CarClass:        carClass(v.carClass),
		CarName:         cleanCarName(v.vehicleName),
		LastLapTime:     v.lastLap,
		BestLapTime:     v.bestLap,
		CurrentSectors:  v.currentSectors,
		BestSectors:     v.bestSectors,
		GapToLeader:     v.gapToLeader,
		IntervalToAhead: v.gapToNext,
		LapsCompleted:   v.lapsCompleted,
		LapsDown:        max(0, classLeaderLaps-v.lapsCompleted),
		Fuel:            v.fuel,
		TyreCompound:    model.TyreUnknown,
		PitStops:        v.pitStops,
		Penalties:       penalties,
		Status:          driverStatus(v.finish, v.inGarage, v.pitting),
		IsPlayer:        v.player,
		SlotID:          v.slotID,
	}
}

// rank orders vehicles without a valid position after every placed one.
func rank(position int) int {
	if position <= 0 {
		return math.MaxInt
	}
	return position
}

func classKey(class string) string {
	return strings.ToUpper(strings.TrimSpace(class))
}

func sessionKindFromName(name string) model.SessionKind {
	upper := strings.ToUpper(strings.TrimSpace(name))
	switch {
	case strings.HasPrefix(upper, "PRACTICE"), strings.HasPrefix(upper, "TEST"):
		return model.Practice
	case strings.HasPrefix(upper, "QUAL"):
		return model.Qualifying
	case strings.HasPrefix(upper, "WARMUP"), strings.HasPrefix(upper, "WARM"):
		return model.Warmup
	case strings.HasPrefix(upper, "RACE"):
		return model.Race
	}
	return model.SessionUnknown
}

func sessionKindFromCode(code int) model.SessionKind {
	switch {
	case code >= 0 && code <= 4:
		return model.Practice
	case code >= 5 && code <= 8:
		return model.Qualifying
	case code == 9:
		return model.Warmup
	case code >= 10 && code <= 13:
		return model.Race
	}
	return model.SessionUnknown
}

var classTable = map[string]model.CarClass{
	"HYPER":    model.Hypercar,
	"HYPERCAR": model.Hypercar,
	"LMH":      model.Hypercar,
	"LMP2":     model.LMP2,
	"LMP3":     model.LMP3,
	"GT3":      model.LMGT3,
	"LMGT3":    model.LMGT3,
	"GTE":      model.GTE,
}

// checked in order when there is no exact match
var classFragments = []struct {
	fragment string
	class    model.CarClass
}{
	{"HYPER", model.Hypercar},
	{"LMH", model.Hypercar},
	{"LMP2", model.LMP2},
	{"LMP3", model.LMP3},
	{"GT3", model.LMGT3},
	{"GTE", model.GTE},
}

func carClass(raw string) model.CarClass {
	upper := classKey(raw)
	if upper == "" {
		return model.ClassUnknown
	}
	if class, found := classTable[upper]; found {
		return class
	}
	for _, f := range classFragments {
		if strings.Contains(upper, f.fragment) {
			return f.class
		}
	}
	return model.ClassUnknown
}

// carNumber prefers the explicit field, then a "#token" in the vehicle name,
// then the slot id.
func carNumber(explicit, vehicleName string, slotID int) string {
	if n := strings.TrimSpace(explicit); n != "" {
		return n
	}
	if m := carNumberPattern.FindStringSubmatch(vehicleName); m != nil {
		return m[1]
	}
	if slotID < 0 {
		return ""
	}
	return strconv.Itoa(slotID)
}

// cleanCarName turns "Aston Martin THOR Team 2025 #007:EC" into
// "Aston Martin THOR Team 2025".
func cleanCarName(vehicleName string) string {
	return strings.TrimSpace(carNameDecoration.ReplaceAllString(vehicleName, ""))
}

// positive treats zero and negative values as "not set yet".
func positive(v float64, ok bool) *float64 {
	if !ok || v <= 0 {
		return nil
	}
	return model.Float(v)
}

// remainingTime prefers a direct reading, then end minus current, then 0.
func remainingTime(direct float64, hasDirect bool, current float64, hasCurrent bool, end float64, hasEnd bool) float64 {
	if hasDirect && direct >= 0 {
		return direct
	}
	if hasCurrent && hasEnd && end > 0 {
		return math.Max(0, end-current)
	}
	return 0
}

// lapLimit maps the generation's "no limit" sentinel and 0 to 0.
func lapLimit(maximum float64, ok bool, sentinel float64) int {
	if !ok || maximum <= 0 || maximum >= sentinel {
		return 0
	}
	return int(maximum)
}

func driverStatus(finish finishState, inGarage, pitting bool) model.DriverStatus {
	switch {
	case finish == finishDQ:
		return model.Disqualified
	case finish == finishDNF:
		return model.Retired
	case finish == finishFinished:
		return model.Finished
	case inGarage:
		return model.Retired
	case pitting:
		return model.Pitting
	}
	return model.Racing
}

func isOnTrack(finish finishState, inGarage bool) bool {
	return finish == finishNone && !inGarage
}

func pendingPenalties(count int) []model.Penalty {
	count = min(max(count, 0), maxPendingPenalties)
	penalties := make([]model.Penalty, count)
	for i := range penalties {
		penalties[i] = model.Penalty{
			Kind:   model.TimePenalty,
			Time:   0,
			Reason: pendingReason,
		}
	}
	return penalties
}

func isYellow(flag string) bool {
	return strings.Contains(strings.ToUpper(flag), "YELLOW")
}

// overrideWithSectors lets a sector yellow win over a global "no flag" reading.
func overrideWithSectors(flag model.FlagState, sectorYellow bool) model.FlagState {
	if sectorYellow && (flag == model.FlagGreen || flag == model.FlagNone) {
		return model.FlagYellow
	}
	return flag
}
