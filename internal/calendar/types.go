package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"

	calendar "google.golang.org/api/calendar/v3"
)

// ManagedDescription marks calendars and events created by calendar-mcp.
const ManagedDescription = "Generated via calendar-mcp"

// LocalDateTimeLayout is the accepted date-time input format. The zone is
// supplied separately as an IANA name.
const LocalDateTimeLayout = "2006-01-02T15:04:05"

var (
	// ErrNotManaged is returned when patching or deleting a resource that
	// does not carry ManagedDescription.
	ErrNotManaged = errors.New("resource was not generated by calendar-mcp")

	// ErrTimeZoneRequired is returned when an event patch moves start or end
	// without naming a time zone.
	ErrTimeZoneRequired = errors.New("time zone must be specified to update start and end times")
)

// CalendarInfo is a simplified calendar.
type CalendarInfo struct {
	ID          string
	Summary     string
	Description string
	TimeZone    string
	Primary     bool
	AccessRole  string
}

// Managed reports whether the calendar was created by calendar-mcp.
func (c CalendarInfo) Managed() bool {
	return c.Description == ManagedDescription
}

// EventTime is an event boundary. All-day events carry Date instead of DateTime.
type EventTime struct {
	DateTime string
	Date     string
	TimeZone string
}

// String renders the boundary as "<dateTime> <timeZone>", falling back to
// the date of all-day events.
func (t EventTime) String() string {
	v := t.DateTime
	if v == "" {
		v = t.Date
	}
	if t.TimeZone == "" {
		return v
	}
	return strings.TrimSpace(v + " " + t.TimeZone)
}

// IsZero reports whether the boundary is unset.
func (t EventTime) IsZero() bool {
	return t.DateTime == "" && t.Date == ""
}

// EventSummary is a simplified event.
type EventSummary struct {
	ID          string
	Summary     string
	Description string
	Location    string
	Status      string
	HTMLLink    string
	Start       EventTime
	End         EventTime
	Recurrence  []string
}

// Managed reports whether the event was created by calendar-mcp.
func (e EventSummary) Managed() bool {
	return e.Description == ManagedDescription
}

// EventInput describes a new event. Start and End use LocalDateTimeLayout
// and are interpreted in TimeZone.
type EventInput struct {
	Summary    string
	Location   string
	TimeZone   string
	Start      string
	End        string
	Recurrence *WeeklyRecurrence
}

// Validate checks the input before it is sent upstream.
func (in EventInput) Validate() error {
	if strings.TrimSpace(in.Summary) == "" {
		return errors.New("event name is required")
	}
	if in.TimeZone == "" {
		return errors.New("time zone is required")
	}
	loc, err := loadLocation(in.TimeZone)
	if err != nil {
		return err
	}
	start, err := parseLocal("start", in.Start, loc)
	if err != nil {
		return err
	}
	end, err := parseLocal("end", in.End, loc)
	if err != nil {
		return err
	}
	if end.Before(start) {
		return fmt.Errorf("end %s is before start %s", in.End, in.Start)
	}
	return nil
}

func (in EventInput) toAPI() *calendar.Event {
	ev := &calendar.Event{
		Summary:     in.Summary,
		Description: ManagedDescription,
		Location:    in.Location,
		Start:       &calendar.EventDateTime{DateTime: in.Start, TimeZone: in.TimeZone},
		End:         &calendar.EventDateTime{DateTime: in.End, TimeZone: in.TimeZone},
	}
	if in.Recurrence != nil {
		ev.Recurrence = []string{in.Recurrence.RRule()}
	}
	return ev
}

// EventPatch lists the fields to change on an existing event. Empty fields
// are left untouched.
type EventPatch struct {
	Summary    string
	Location   string
	TimeZone   string
	Start      string
	End        string
	Recurrence *WeeklyRecurrence
}

// Empty reports whether the patch changes nothing.
func (p EventPatch) Empty() bool {
	return p.Summary == "" && p.Location == "" && p.TimeZone == "" &&
		p.Start == "" && p.End == "" && p.Recurrence == nil
}

// Validate checks the patch. A new start or end requires TimeZone.
func (p EventPatch) Validate() error {
	if (p.Start != "" || p.End != "") && p.TimeZone == "" {
		return ErrTimeZoneRequired
	}
	if p.TimeZone == "" {
		return nil
	}
	loc, err := loadLocation(p.TimeZone)
	if err != nil {
		return err
	}
	var start, end time.Time
	if p.Start != "" {
		if start, err = parseLocal("start", p.Start, loc); err != nil {
			return err
		}
	}
	if p.End != "" {
		if end, err = parseLocal("end", p.End, loc); err != nil {
			return err
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return fmt.Errorf("end %s is before start %s", p.End, p.Start)
	}
	return nil
}

func (p EventPatch) toAPI() *calendar.Event {
	ev := &calendar.Event{
		Summary:  p.Summary,
		Location: p.Location,
	}
	if p.Start != "" {
		ev.Start = &calendar.EventDateTime{DateTime: p.Start, TimeZone: p.TimeZone}
	}
	if p.End != "" {
		ev.End = &calendar.EventDateTime{DateTime: p.End, TimeZone: p.TimeZone}
	}
	if p.Recurrence != nil {
		ev.Recurrence = []string{p.Recurrence.RRule()}
	}
	return ev
}

func loadLocation(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone %q: %w", name, err)
	}
	return loc, nil
}

func parseLocal(field, value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("%s date-time is required", field)
	}
	t, err := time.ParseInLocation(LocalDateTimeLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s date-time %q, expected YYYY-MM-DDTHH:MM:SS", field, value)
	}
	return t, nil
}

func calendarFromAPI(c *calendar.Calendar) *CalendarInfo {
	return &CalendarInfo{
		ID:          c.Id,
		Summary:     c.Summary,
		Description: c.Description,
		TimeZone:    c.TimeZone,
	}
}

func calendarFromListEntry(e *calendar.CalendarListEntry) CalendarInfo {
	return CalendarInfo{
		ID:          e.Id,
		Summary:     e.Summary,
		Description: e.Description,
		TimeZone:    e.TimeZone,
		Primary:     e.Primary,
		AccessRole:  e.AccessRole,
	}
}

func eventFromAPI(e *calendar.Event) EventSummary {
	out := EventSummary{
		ID:          e.Id,
		Summary:     e.Summary,
		Description: e.Description,
		Location:    e.Location,
		Status:      e.Status,
		HTMLLink:    e.HtmlLink,
		Recurrence:  e.Recurrence,
	}
	if e.Start != nil {
		out.Start = EventTime{DateTime: e.Start.DateTime, Date: e.Start.Date, TimeZone: e.Start.TimeZone}
	}
	if e.End != nil {
		out.End = EventTime{DateTime: e.End.DateTime, Date: e.End.Date, TimeZone: e.End.TimeZone}
	}
	return out
}
