// Package calendartest provides an in-memory Google Calendar v3 API for tests.
package calendartest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	calendar "google.golang.org/api/calendar/v3"
)

// Server is a fake Calendar API. The zero Token accepts any bearer token.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	token     string
	nextID    int
	order     []string
	calendars map[string]*calendar.Calendar
	events    map[string][]*calendar.Event
	requests  []string
	failures  map[string]int
}

// NewServer starts a fake closed when the test ends.
func NewServer(tb testing.TB) *Server {
	tb.Helper()
	s := &Server{
		calendars: make(map[string]*calendar.Calendar),
		events:    make(map[string][]*calendar.Event),
		failures:  make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/me/calendarList", s.listCalendars)
	mux.HandleFunc("POST /calendars", s.insertCalendar)
	mux.HandleFunc("GET /calendars/{cid}", s.getCalendar)
	mux.HandleFunc("PATCH /calendars/{cid}", s.patchCalendar)
	mux.HandleFunc("DELETE /calendars/{cid}", s.deleteCalendar)
	mux.HandleFunc("GET /calendars/{cid}/events", s.listEvents)
	mux.HandleFunc("POST /calendars/{cid}/events", s.insertEvent)
	mux.HandleFunc("GET /calendars/{cid}/events/{eid}", s.getEvent)
	mux.HandleFunc("PATCH /calendars/{cid}/events/{eid}", s.patchEvent)
	mux.HandleFunc("DELETE /calendars/{cid}/events/{eid}", s.deleteEvent)

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		want := s.token
		status := s.failures[r.Method+" "+r.URL.Path]
		s.mu.Unlock()

		if want != "" && r.Header.Get("Authorization") != "Bearer "+want {
			writeError(w, http.StatusUnauthorized, "Invalid Credentials")
			return
		}
		if status != 0 {
			writeError(w, status, http.StatusText(status))
			return
		}
		mux.ServeHTTP(w, r)
	}))
	tb.Cleanup(s.Close)
	return s
}

// Endpoint is the base URL to pass to option.WithEndpoint.
func (s *Server) Endpoint() string {
	return s.URL + "/"
}

// RequireToken rejects requests not bearing token.
func (s *Server) RequireToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Fail makes every request matching "METHOD /path" answer with status.
func (s *Server) Fail(route string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = status
}

// AddCalendar stores cal. An empty ID is assigned.
func (s *Server) AddCalendar(cal *calendar.Calendar) *calendar.Calendar {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addCalendarLocked(cal)
}

func (s *Server) addCalendarLocked(cal *calendar.Calendar) *calendar.Calendar {
	if cal.Id == "" {
		s.nextID++
		cal.Id = fmt.Sprintf("cal%d", s.nextID)
	}
	if _, ok := s.calendars[cal.Id]; !ok {
		s.order = append(s.order, cal.Id)
	}
	s.calendars[cal.Id] = cal
	return cal
}

// AddEvent stores ev in calendarID. An empty ID is assigned.
func (s *Server) AddEvent(calendarID string, ev *calendar.Event) *calendar.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addEventLocked(calendarID, ev)
}

func (s *Server) addEventLocked(calendarID string, ev *calendar.Event) *calendar.Event {
	if ev.Id == "" {
		s.nextID++
		ev.Id = fmt.Sprintf("evt%d", s.nextID)
	}
	s.events[calendarID] = append(s.events[calendarID], ev)
	return ev
}

// Calendar returns the stored calendar.
func (s *Server) Calendar(id string) (*calendar.Calendar, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cal, ok := s.calendars[id]
	return cal, ok
}

// Event returns the stored event.
func (s *Server) Event(calendarID, eventID string) (*calendar.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, _ := s.findEventLocked(calendarID, eventID)
	return ev, ev != nil
}

// Requests returns "METHOD /path" for every request seen.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *Server) findEventLocked(calendarID, eventID string) (*calendar.Event, int) {
	for i, ev := range s.events[calendarID] {
		if ev.Id == eventID {
			return ev, i
		}
	}
	return nil, -1
}

func (s *Server) listCalendars(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := &calendar.CalendarList{Kind: "calendar#calendarList"}
	for _, id := range s.order {
		cal, ok := s.calendars[id]
		if !ok {
			continue
		}
		list.Items = append(list.Items, &calendar.CalendarListEntry{
			Id:          cal.Id,
			Summary:     cal.Summary,
			Description: cal.Description,
			TimeZone:    cal.TimeZone,
			AccessRole:  "owner",
		})
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) insertCalendar(w http.ResponseWriter, r *http.Request) {
	var cal calendar.Calendar
	if !decode(w, r, &cal) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cal.Id = ""
	writeJSON(w, http.StatusOK, s.addCalendarLocked(&cal))
}

func (s *Server) getCalendar(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cal, ok := s.calendars[r.PathValue("cid")]
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, cal)
}

func (s *Server) patchCalendar(w http.ResponseWriter, r *http.Request) {
	var patch calendar.Calendar
	if !decode(w, r, &patch) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cal, ok := s.calendars[r.PathValue("cid")]
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	if patch.Summary != "" {
		cal.Summary = patch.Summary
	}
	if patch.Description != "" {
		cal.Description = patch.Description
	}
	writeJSON(w, http.StatusOK, cal)
}

func (s *Server) deleteCalendar(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := r.PathValue("cid")
	if _, ok := s.calendars[id]; !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	delete(s.calendars, id)
	delete(s.events, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, &calendar.Events{
		Kind:  "calendar#events",
		Items: s.events[r.PathValue("cid")],
	})
}

func (s *Server) insertEvent(w http.ResponseWriter, r *http.Request) {
	var ev calendar.Event
	if !decode(w, r, &ev) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ev.Id = ""
	ev.Status = "confirmed"
	writeJSON(w, http.StatusOK, s.addEventLocked(r.PathValue("cid"), &ev))
}

func (s *Server) getEvent(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, _ := s.findEventLocked(r.PathValue("cid"), r.PathValue("eid"))
	if ev == nil {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) patchEvent(w http.ResponseWriter, r *http.Request) {
	var patch calendar.Event
	if !decode(w, r, &patch) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, _ := s.findEventLocked(r.PathValue("cid"), r.PathValue("eid"))
	if ev == nil {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	if patch.Summary != "" {
		ev.Summary = patch.Summary
	}
	if patch.Location != "" {
		ev.Location = patch.Location
	}
	if patch.Start != nil {
		ev.Start = patch.Start
	}
	if patch.End != nil {
		ev.End = patch.End
	}
	if patch.Recurrence != nil {
		ev.Recurrence = patch.Recurrence
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) deleteEvent(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cid := r.PathValue("cid")
	_, i := s.findEventLocked(cid, r.PathValue("eid"))
	if i < 0 {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	s.events[cid] = append(s.events[cid][:i], s.events[cid][i+1:]...)
	w.WriteHeader(http.StatusNoContent)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": status, "message": message},
	})
}
