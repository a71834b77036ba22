// Package helper formats timing values for the terminal views.
package helper

import (
	"fmt"
	"math"
	"strings"
)

const missing = "-"

// LapTime renders seconds as mm:ss.mmm. nil and non positive values are unknown.
func LapTime(seconds *float64) string {
	if seconds == nil || *seconds <= 0 {
		return missing
	}
	ms := int64(math.Round(*seconds * 1000))
	return fmt.Sprintf("%02d:%02d.%03d", ms/60000, (ms/1000)%60, ms%1000)
}

// Gap renders a right aligned "+1.234s".
func Gap(seconds *float64) string {
	if seconds == nil || *seconds <= 0 {
		return missing
	}
	diff := fmt.Sprintf("+%.3fs", *seconds)
	if n := len(diff); n < 9 {
		diff = strings.Repeat(" ", 9-n) + diff
	}
	return diff
}

// HoursAndMinutes renders a session clock as "05h 58m".
func HoursAndMinutes(seconds float64) string {
	if seconds <= 0 {
		seconds = 0
	}
	hours := int(seconds / 3600)
	minutes := int(seconds-float64(hours*3600)) / 60
	return fmt.Sprintf("%02dh %02dm", hours, minutes)
}

func SectorTime(seconds *float64) string {
	if seconds == nil || *seconds <= 0 {
		return missing
	}
	return fmt.Sprintf("%.3f", *seconds)
}

func Percentage(pct *float64) string {
	if pct == nil {
		return missing
	}
	return fmt.Sprintf("%.0f%%", *pct)
}

// DriverCode returns the three letter code used in timing screens, the first
// letter of the name plus two of the surname: "Kevin Estre" is "KES".
func DriverCode(name string) string {
	words := strings.Fields(name)
	if len(words) == 0 {
		return ""
	}
	first := []rune(words[0])
	code := string(first[0])
	if len(words) > 1 {
		last := []rune(words[len(words)-1])
		code += string(last[:min(2, len(last))])
	} else {
		code += string(first[1:min(3, len(first))])
	}
	return strings.ToUpper(code)
}
