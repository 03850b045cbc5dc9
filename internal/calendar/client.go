package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/calendar-mcp/internal/google"
	"github.com/teemow/calendar-mcp/internal/instrumentation"
	"github.com/teemow/calendar-mcp/internal/logging"
)

// DefaultTimeout bounds every Calendar API request.
const DefaultTimeout = 30 * time.Second

// Client wraps the Google Calendar service for one access token.
type Client struct {
	svc     *calendar.Service
	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

type clientOptions struct {
	endpoint   string
	httpClient *http.Client
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*clientOptions)

// WithEndpoint overrides the Calendar API base URL. The URL must end in "/".
func WithEndpoint(endpoint string) Option {
	return func(o *clientOptions) { o.endpoint = endpoint }
}

// WithHTTPClient sets the client whose transport and timeout carry the
// authorized requests.
func WithHTTPClient(client *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = client }
}

// WithMetrics records every API call on m.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(o *clientOptions) { o.metrics = m }
}

// WithLogger sets the logger for API call diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) { o.logger = logger }
}

// NewClient creates a Calendar client authorized by token.
func NewClient(ctx context.Context, token *oauth2.Token, opts ...Option) (*Client, error) {
	if token == nil || token.AccessToken == "" {
		return nil, google.ErrNoToken
	}

	o := clientOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	base := o.httpClient
	if base == nil {
		base = &http.Client{Timeout: DefaultTimeout}
	}
	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(token),
			Base:   base.Transport,
		},
		Timeout: base.Timeout,
	}

	svcOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if o.endpoint != "" {
		svcOpts = append(svcOpts, option.WithEndpoint(o.endpoint))
	}
	svc, err := calendar.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}

	return &Client{
		svc:     svc,
		metrics: o.metrics,
		logger:  logging.WithComponent(logging.OrDefault(o.logger), "calendar"),
	}, nil
}

// NewClientForSession creates a Calendar client with the token the provider
// holds for sessionID.
func NewClientForSession(ctx context.Context, provider google.TokenProvider, sessionID string, opts ...Option) (*Client, error) {
	if provider == nil {
		return nil, fmt.Errorf("token provider cannot be nil")
	}
	token, err := provider.TokenForSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}
	return NewClient(ctx, token, opts...)
}

// observe runs fn inside a client span and records its outcome.
func (c *Client) observe(ctx context.Context, resource, operation string, attrs []attribute.KeyValue, fn func(ctx context.Context) error) error {
	ctx, span := instrumentation.StartCalendarSpan(ctx, resource, operation, attrs...)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	c.metrics.RecordCalendarOperation(ctx, resource, operation, status, duration)

	c.logger.LogAttrs(ctx, slog.LevelDebug, "calendar API call",
		logging.Operation(resource+"."+operation),
		logging.Status(status),
		slog.Duration("duration", duration))
	return err
}

// ListCalendars returns every calendar on the user's calendar list.
func (c *Client) ListCalendars(ctx context.Context) ([]CalendarInfo, error) {
	var calendars []CalendarInfo
	err := c.observe(ctx, instrumentation.ResourceCalendar, instrumentation.OperationList, nil, func(ctx context.Context) error {
		return c.svc.CalendarList.List().Pages(ctx, func(page *calendar.CalendarList) error {
			for _, item := range page.Items {
				calendars = append(calendars, calendarFromListEntry(item))
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}
	return calendars, nil
}

// GetCalendar fetches a calendar's metadata.
func (c *Client) GetCalendar(ctx context.Context, calendarID string) (*CalendarInfo, error) {
	var info *CalendarInfo
	err := c.observe(ctx, instrumentation.ResourceCalendar, instrumentation.OperationGet, instrumentation.CalendarIDAttr(calendarID), func(ctx context.Context) error {
		cal, err := c.svc.Calendars.Get(calendarID).Context(ctx).Do()
		if err != nil {
			return err
		}
		info = calendarFromAPI(cal)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get calendar %s: %w", calendarID, err)
	}
	return info, nil
}

// CreateCalendar creates a secondary calendar marked as managed.
func (c *Client) CreateCalendar(ctx context.Context, name string) (*CalendarInfo, error) {
	if name == "" {
		return nil, fmt.Errorf("calendar name is required")
	}
	var info *CalendarInfo
	err := c.observe(ctx, instrumentation.ResourceCalendar, instrumentation.OperationCreate, nil, func(ctx context.Context) error {
		cal, err := c.svc.Calendars.Insert(&calendar.Calendar{
			Summary:     name,
			Description: ManagedDescription,
		}).Context(ctx).Do()
		if err != nil {
			return err
		}
		info = calendarFromAPI(cal)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar: %w", err)
	}
	return info, nil
}

// managedCalendar fetches a calendar and refuses it unless it is managed.
func (c *Client) managedCalendar(ctx context.Context, calendarID string) error {
	info, err := c.GetCalendar(ctx, calendarID)
	if err != nil {
		return err
	}
	if !info.Managed() {
		return fmt.Errorf("calendar %s: %w", calendarID, ErrNotManaged)
	}
	return nil
}

// PatchCalendar renames a managed calendar.
func (c *Client) PatchCalendar(ctx context.Context, calendarID, newName string) (*CalendarInfo, error) {
	if newName == "" {
		return nil, fmt.Errorf("new calendar name is required")
	}
	if err := c.managedCalendar(ctx, calendarID); err != nil {
		return nil, err
	}

	var info *CalendarInfo
	err := c.observe(ctx, instrumentation.ResourceCalendar, instrumentation.OperationPatch, instrumentation.CalendarIDAttr(calendarID), func(ctx context.Context) error {
		cal, err := c.svc.Calendars.Patch(calendarID, &calendar.Calendar{Summary: newName}).Context(ctx).Do()
		if err != nil {
			return err
		}
		info = calendarFromAPI(cal)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to patch calendar %s: %w", calendarID, err)
	}
	return info, nil
}

// DeleteCalendar deletes a managed calendar.
func (c *Client) DeleteCalendar(ctx context.Context, calendarID string) error {
	if err := c.managedCalendar(ctx, calendarID); err != nil {
		return err
	}
	err := c.observe(ctx, instrumentation.ResourceCalendar, instrumentation.OperationDelete, instrumentation.CalendarIDAttr(calendarID), func(ctx context.Context) error {
		return c.svc.Calendars.Delete(calendarID).Context(ctx).Do()
	})
	if err != nil {
		return fmt.Errorf("failed to delete calendar %s: %w", calendarID, err)
	}
	return nil
}

// ListEvents returns every event of a calendar. Recurring events are
// returned once, with their recurrence rules.
func (c *Client) ListEvents(ctx context.Context, calendarID string) ([]EventSummary, error) {
	var events []EventSummary
	err := c.observe(ctx, instrumentation.ResourceEvent, instrumentation.OperationList, instrumentation.CalendarIDAttr(calendarID), func(ctx context.Context) error {
		return c.svc.Events.List(calendarID).Pages(ctx, func(page *calendar.Events) error {
			for _, item := range page.Items {
				events = append(events, eventFromAPI(item))
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

// GetEvent fetches a single event.
func (c *Client) GetEvent(ctx context.Context, calendarID, eventID string) (*EventSummary, error) {
	var out *EventSummary
	err := c.observe(ctx, instrumentation.ResourceEvent, instrumentation.OperationGet, instrumentation.EventAttrs(calendarID, eventID), func(ctx context.Context) error {
		ev, err := c.svc.Events.Get(calendarID, eventID).Context(ctx).Do()
		if err != nil {
			return err
		}
		s := eventFromAPI(ev)
		out = &s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get event %s: %w", eventID, err)
	}
	return out, nil
}

// InsertEvent creates a managed event.
func (c *Client) InsertEvent(ctx context.Context, calendarID string, in EventInput) (*EventSummary, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var out *EventSummary
	err := c.observe(ctx, instrumentation.ResourceEvent, instrumentation.OperationCreate, instrumentation.CalendarIDAttr(calendarID), func(ctx context.Context) error {
		ev, err := c.svc.Events.Insert(calendarID, in.toAPI()).Context(ctx).Do()
		if err != nil {
			return err
		}
		s := eventFromAPI(ev)
		out = &s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	return out, nil
}

// managedEvent fetches an event and refuses it unless it is managed.
func (c *Client) managedEvent(ctx context.Context, calendarID, eventID string) error {
	ev, err := c.GetEvent(ctx, calendarID, eventID)
	if err != nil {
		return err
	}
	if !ev.Managed() {
		return fmt.Errorf("event %s: %w", eventID, ErrNotManaged)
	}
	return nil
}

// PatchEvent applies p to a managed event.
func (c *Client) PatchEvent(ctx context.Context, calendarID, eventID string, p EventPatch) (*EventSummary, error) {
	if err := c.managedEvent(ctx, calendarID, eventID); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Empty() {
		return nil, fmt.Errorf("nothing to update")
	}

	var out *EventSummary
	err := c.observe(ctx, instrumentation.ResourceEvent, instrumentation.OperationPatch, instrumentation.EventAttrs(calendarID, eventID), func(ctx context.Context) error {
		ev, err := c.svc.Events.Patch(calendarID, eventID, p.toAPI()).Context(ctx).Do()
		if err != nil {
			return err
		}
		s := eventFromAPI(ev)
		out = &s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to patch event %s: %w", eventID, err)
	}
	return out, nil
}

// DeleteEvent deletes a managed event.
func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	if err := c.managedEvent(ctx, calendarID, eventID); err != nil {
		return err
	}
	err := c.observe(ctx, instrumentation.ResourceEvent, instrumentation.OperationDelete, instrumentation.EventAttrs(calendarID, eventID), func(ctx context.Context) error {
		return c.svc.Events.Delete(calendarID, eventID).Context(ctx).Do()
	})
	if err != nil {
		return fmt.Errorf("failed to delete event %s: %w", eventID, err)
	}
	return nil
}

// StatusCode returns the HTTP status of an upstream API error, or 0.
func StatusCode(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
