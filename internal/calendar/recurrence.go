package calendar

import (
	"fmt"
	"strings"
	"time"
)

const rruleUntilLayout = "20060102T150405Z"

var weekdayCodes = map[string]bool{
	"SU": true, "MO": true, "TU": true, "WE": true, "TH": true, "FR": true, "SA": true,
}

// WeeklyRecurrence repeats an event on Days until Until (UTC).
type WeeklyRecurrence struct {
	Days  []string
	Until time.Time
}

// NewWeeklyRecurrence parses comma-separated weekday codes (MO,WE) and a
// final date in LocalDateTimeLayout, read as UTC.
func NewWeeklyRecurrence(days, finalDate string) (*WeeklyRecurrence, error) {
	parsed, err := ParseWeekdays(days)
	if err != nil {
		return nil, err
	}
	if finalDate == "" {
		return nil, fmt.Errorf("final repeat date is required for repeating events")
	}
	until, err := time.ParseInLocation(LocalDateTimeLayout, finalDate, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid final repeat date %q, expected YYYY-MM-DDTHH:MM:SS", finalDate)
	}
	return &WeeklyRecurrence{Days: parsed, Until: until}, nil
}

// ParseWeekdays normalizes a list like "mo, We" to [MO WE]. Duplicates are dropped.
func ParseWeekdays(s string) ([]string, error) {
	var days []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		code := strings.ToUpper(strings.TrimSpace(part))
		if code == "" {
			continue
		}
		if !weekdayCodes[code] {
			return nil, fmt.Errorf("invalid weekday %q, expected one of SU,MO,TU,WE,TH,FR,SA", part)
		}
		if seen[code] {
			continue
		}
		seen[code] = true
		days = append(days, code)
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("at least one repeat day is required")
	}
	return days, nil
}

// RRule renders the recurrence as an RFC 5545 rule line.
func (r WeeklyRecurrence) RRule() string {
	return fmt.Sprintf("RRULE:FREQ=WEEKLY;UNTIL=%s;WKST=SU;BYDAY=%s",
		r.Until.UTC().Format(rruleUntilLayout), strings.Join(r.Days, ","))
}
