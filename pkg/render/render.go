// Package render draws the timing screen printed by the watch command.
package render

import (
	"bytes"
	"fmt"
	"strconv"

	"racedirector/pkg/helper"
	"racedirector/pkg/model"

	"github.com/jedib0t/go-pretty/v6/table"
)

const (
	tableDriver = "PIL"
	noSession   = "no session"
)

var statusShort = map[model.DriverStatus]string{
	model.Racing:       "",
	model.Pitting:      "P",
	model.Retired:      "RET",
	model.Finished:     "F",
	model.Disqualified: "DQ",
}

// Header is the one line session summary.
func Header(st model.State) string {
	s := st.Session
	if s == nil {
		return fmt.Sprintf("[%s] %s", st.Connection, noSession)
	}
	laps := strconv.Itoa(s.CurrentLap)
	if !s.Unlimited() {
		laps = fmt.Sprintf("%d/%d", s.CurrentLap, s.TotalLaps)
	}
	return fmt.Sprintf("[%s] %s %s | %s | lap %s | %s left | %d/%d on track",
		st.Connection, s.TrackName, s.Kind, s.Flag, laps,
		helper.HoursAndMinutes(s.TimeRemaining), s.NumCarsOnTrack, s.NumCars)
}

// Standings renders the timing table. An empty field is "-".
func Standings(standings []model.DriverStanding) string {
	var b bytes.Buffer
	t := table.NewWriter()
	t.SetOutputMirror(&b)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"P", "#", tableDriver, "Class", "Last", "Best", "S1", "S2", "S3", "Gap", "Int", "Laps", "Pit", "Fuel", ""})

	for _, d := range standings {
		driver := helper.DriverCode(d.DriverName)
		if d.IsPlayer {
			driver = "*" + driver
		}
		laps := strconv.Itoa(d.LapsCompleted)
		if d.LapsDown > 0 {
			laps = fmt.Sprintf("%s (-%d)", laps, d.LapsDown)
		}
		status, found := statusShort[d.Status]
		if !found {
			status = "?"
		}
		if n := len(d.Penalties); n > 0 {
			status += fmt.Sprintf(" %dpen", n)
		}
		t.AppendRow(table.Row{
			d.Position,
			d.CarNumber,
			driver,
			d.CarClass,
			helper.LapTime(d.LastLapTime),
			helper.LapTime(d.BestLapTime),
			helper.SectorTime(d.BestSectors.Sector1),
			helper.SectorTime(d.BestSectors.Sector2),
			helper.SectorTime(d.BestSectors.Sector3),
			helper.Gap(d.GapToLeader),
			helper.Gap(d.IntervalToAhead),
			laps,
			d.PitStops,
			helper.Percentage(d.Fuel),
			status,
		})
	}
	t.Render()
	return b.String()
}

// Screen is the header followed by the table.
func Screen(st model.State) string {
	return Header(st) + "\n" + Standings(st.Standings)
}
