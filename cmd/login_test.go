package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teemow/calendar-mcp/internal/calendar"
)

func TestRenderCalendars(t *testing.T) {
	var out bytes.Buffer
	renderCalendars(&out, []calendar.CalendarInfo{
		{ID: "primary", Summary: "Personal", Primary: true, AccessRole: "owner", TimeZone: "Europe/Berlin"},
		{ID: "trips", Summary: "Trips", Description: calendar.ManagedDescription, AccessRole: "owner"},
	})

	text := out.String()
	assert.Contains(t, text, "Personal (primary)")
	assert.Contains(t, text, "Europe/Berlin")
	assert.Contains(t, text, "trips")
	assert.Contains(t, text, "yes")
	assert.Contains(t, text, "2")
}
