package adapter

import (
	"math"
	"strings"

	"racedirector/pkg/model"
	"racedirector/pkg/raw"
)

// LMU is the string-enum schema served by current Le Mans Ultimate builds.
const LMU = "lmu"

const lmuNoLapLimit = 4294967295

var lmuFlags = map[string]model.FlagState{
	"NONE":       model.FlagGreen,
	"PENDING":    model.FlagYellow,
	"RESUME":     model.FlagYellow,
	"FULLCOURSE": model.FlagFullCourseYellow,
	"SAFETYCAR":  model.FlagSafetyCar,
}

func init() {
	Register(lmuAdapter{})
}

type lmuAdapter struct{}

func (lmuAdapter) Name() string {
	return LMU
}

func (lmuAdapter) Matches(session raw.Object) bool {
	return session.IsString("session")
}

func (lmuAdapter) Normalize(session raw.Object, vehicles []raw.Object) model.Snapshot {
	vs := make([]vehicle, 0, len(vehicles))
	for _, v := range vehicles {
		vs = append(vs, lmuVehicle(v))
	}
	return assemble(lmuSession(session), vs)
}

func lmuSession(s raw.Object) session {
	current, hasCurrent := s.Number("currentEventTime")
	direct, hasDirect := s.Number("timeRemainingInGamePhase")
	end, hasEnd := s.Number("maxTime")
	if !hasEnd || end <= 0 {
		end, hasEnd = s.Number("endEventTime")
	}
	maxLaps, hasMaxLaps := s.Number("maximumLaps")

	return session{
		kind:        sessionKindFromName(s.String("session")),
		track:       s.String("trackName"),
		elapsed:     current,
		remaining:   remainingTime(direct, hasDirect, current, hasCurrent, end, hasEnd),
		totalLaps:   lapLimit(maxLaps, hasMaxLaps, lmuNoLapLimit),
		flag:        lmuFlag(s.String("yellowFlagState"), s.Strings("sectorFlag")),
		numVehicles: s.Int("numberOfVehicles", 0),
	}
}

func lmuFlag(yellowFlagState string, sectorFlags []string) model.FlagState {
	flag, found := lmuFlags[strings.ToUpper(strings.TrimSpace(yellowFlagState))]
	if !found {
		flag = model.FlagNone
	}
	sectorYellow := false
	for _, f := range sectorFlags {
		if isYellow(f) {
			sectorYellow = true
			break
		}
	}
	return overrideWithSectors(flag, sectorYellow)
}

func lmuFinish(status string) finishState {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "FSTAT_DQ", "FSTAT_DISQUALIFIED":
		return finishDQ
	case "FSTAT_DNF":
		return finishDNF
	case "FSTAT_FINISHED":
		return finishFinished
	}
	return finishNone
}

func lmuVehicle(v raw.Object) vehicle {
	return vehicle{
		position:    v.Int("position", 0),
		slotID:      v.Int("slotID", -1),
		carNumber:   v.String("carNumber"),
		driverName:  v.String("driverName"),
		teamName:    v.String("fullTeamName"),
		vehicleName: v.String("vehicleName"),
		carClass:    v.String("carClass"),
		lastLap:     positive(v.Number("lastLapTime")),
		bestLap:     positive(v.Number("bestLapTime")),
		currentSectors: model.SectorTimes{
			Sector1: positive(v.Number("currentSectorTime1")),
			Sector2: positive(v.Number("currentSectorTime2")),
		},
		bestSectors: model.SectorTimes{
			Sector1: positive(v.Number("bestSectorTime1")),
			Sector2: positive(v.Number("bestSectorTime2")),
		},
		gapToLeader:   positive(v.Number("timeBehindLeader")),
		gapToNext:     positive(v.Number("timeBehindNext")),
		lapsCompleted: max(0, v.Int("lapsCompleted", 0)),
		fuel:          fuelPercentage(v.Number("fuelFraction")),
		pitStops:      max(0, v.Int("pitstops", 0)),
		penalties:     pendingPenalties(v.Int("penalties", 0)),
		finish:        lmuFinish(v.String("finishStatus")),
		inGarage:      v.Bool("inGarageStall"),
		pitting:       v.Bool("pitting"),
		player:        v.Bool("player") || v.Bool("hasFocus"),
	}
}

// fuelPercentage converts a 0..1 fraction. A missing or negative reading is
// unknown, not empty.
func fuelPercentage(fraction float64, ok bool) *float64 {
	if !ok || fraction < 0 {
		return nil
	}
	pct := math.Round(math.Min(fraction, 1)*100*1000) / 1000
	return model.Float(pct)
}
