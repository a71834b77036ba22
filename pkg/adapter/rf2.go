package adapter

import (
	"racedirector/pkg/model"
	"racedirector/pkg/raw"
)

// RF2 is the numeric-code schema of the older rFactor 2 based REST service.
const RF2 = "rf2"

const rf2NoLapLimit = 2147483647

// rF2 game phases
const (
	phaseSessionStopped = 7
	phaseSessionOver    = 8
)

var rf2Flags = map[int]model.FlagState{
	0: model.FlagGreen,            // none
	1: model.FlagYellow,           // pending
	2: model.FlagFullCourseYellow, // pits closed
	3: model.FlagFullCourseYellow, // pit lead lap
	4: model.FlagFullCourseYellow, // pits open
	5: model.FlagFullCourseYellow, // last lap
	6: model.FlagYellow,           // resume
	7: model.FlagRed,              // race halt
}

func init() {
	Register(rf2Adapter{})
}

type rf2Adapter struct{}

func (rf2Adapter) Name() string {
	return RF2
}

func (rf2Adapter) Matches(session raw.Object) bool {
	return session.IsNumber("session")
}

func (rf2Adapter) Normalize(session raw.Object, vehicles []raw.Object) model.Snapshot {
	vs := make([]vehicle, 0, len(vehicles))
	for _, v := range vehicles {
		vs = append(vs, rf2Vehicle(v))
	}
	return assemble(rf2Session(session), vs)
}

func rf2Session(s raw.Object) session {
	current, hasCurrent := s.Number("currentEventTime")
	end, hasEnd := s.Number("endEventTime")
	maxLaps, hasMaxLaps := s.Number("maximumLaps")

	var kind model.SessionKind
	if code, ok := s.Number("session"); ok {
		kind = sessionKindFromCode(int(code))
	} else {
		kind = sessionKindFromName(s.String("session"))
	}

	return session{
		kind:        kind,
		track:       s.String("trackName"),
		elapsed:     current,
		remaining:   remainingTime(0, false, current, hasCurrent, end, hasEnd),
		totalLaps:   lapLimit(maxLaps, hasMaxLaps, rf2NoLapLimit),
		flag:        rf2Flag(s),
		numVehicles: s.Int("numberOfVehicles", 0),
	}
}

func rf2Flag(s raw.Object) model.FlagState {
	switch s.Int("gamePhase", 0) {
	case phaseSessionOver:
		return model.FlagChequered
	case phaseSessionStopped:
		return model.FlagRed
	}

	flag, found := rf2Flags[s.Int("yellowFlagState", 0)]
	if !found {
		flag = model.FlagGreen
	}

	sectorYellow := false
	for _, f := range s.Numbers("sectorFlag") {
		if f != 0 {
			sectorYellow = true
		}
	}
	for _, f := range s.Strings("sectorFlag") {
		if isYellow(f) {
			sectorYellow = true
		}
	}
	return overrideWithSectors(flag, sectorYellow)
}

func rf2Finish(v raw.Object) finishState {
	if v.IsString("finishStatus") {
		return lmuFinish(v.String("finishStatus"))
	}
	switch v.Int("finishStatus", 0) {
	case 1:
		return finishFinished
	case 2:
		return finishDNF
	case 3:
		return finishDQ
	}
	return finishNone
}

func rf2Vehicle(v raw.Object) vehicle {
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
		currentSectors: splitCumulative(
			v.Float("currentSectorTime1", 0),
			v.Float("currentSectorTime2", 0),
			0,
		),
		bestSectors: splitCumulative(
			v.Float("bestLapSectorTime1", 0),
			v.Float("bestLapSectorTime2", 0),
			v.Float("bestLapTime", 0),
		),
		gapToLeader:   positive(v.Number("timeBehindLeader")),
		gapToNext:     positive(v.Number("timeBehindNext")),
		lapsCompleted: max(0, v.Int("lapsCompleted", 0)),
		pitStops:      max(0, v.Int("pitstops", 0)),
		penalties:     []model.Penalty{},
		finish:        rf2Finish(v),
		inGarage:      v.Bool("inGarageStall"),
		pitting:       v.Bool("pitting"),
		player:        v.Bool("player") || v.Bool("hasFocus"),
	}
}

// splitCumulative converts rF2 elapsed-at-split readings into per sector
// durations. Sector 3 needs the full lap time.
func splitCumulative(split1, split2, lap float64) model.SectorTimes {
	st := model.SectorTimes{Sector1: positive(split1, true)}
	if split1 > 0 && split2 > 0 {
		st.Sector2 = positive(split2-split1, true)
	}
	if split2 > 0 && lap > 0 {
		st.Sector3 = positive(lap-split2, true)
	}
	return st
}
