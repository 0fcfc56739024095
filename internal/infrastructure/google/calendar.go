package google

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/fastygo/taskbot/usecase"
)

const defaultEventDuration = time.Hour

// CalendarScopes are required by the calendar adapter.
var CalendarScopes = []string{calendar.CalendarEventsScope}

// Calendar mirrors tasks as events. Tasks without a time of day become
// all-day events.
type Calendar struct {
	srv        *calendar.Service
	calendarID string
	loc        *time.Location
	duration   time.Duration
}

func NewCalendar(ctx context.Context, calendarID string, loc *time.Location, opts ...option.ClientOption) (*Calendar, error) {
	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create calendar client: %w", err)
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	if loc == nil {
		loc = time.Local
	}
	return &Calendar{srv: srv, calendarID: calendarID, loc: loc, duration: defaultEventDuration}, nil
}

var _ usecase.Calendar = (*Calendar)(nil)

func (c *Calendar) CreateEvent(ctx context.Context, title, date, clock string) (string, error) {
	start, end, err := c.span(date, clock)
	if err != nil {
		return "", err
	}
	event := &calendar.Event{Summary: title, Start: start, End: end}
	created, err := c.srv.Events.Insert(c.calendarID, event).Context(ctx).Do()
	if err != nil {
		return "", mapError(err)
	}
	return created.Id, nil
}

func (c *Calendar) UpdateEvent(ctx context.Context, eventID, date, clock string) (string, error) {
	start, end, err := c.span(date, clock)
	if err != nil {
		return "", err
	}
	patched, err := c.srv.Events.Patch(c.calendarID, eventID, &calendar.Event{Start: start, End: end}).Context(ctx).Do()
	if err != nil {
		return "", mapError(err)
	}
	return patched.Id, nil
}

func (c *Calendar) DeleteEvent(ctx context.Context, eventID string) error {
	return mapError(c.srv.Events.Delete(c.calendarID, eventID).Context(ctx).Do())
}

// span builds the start and end of an event. Switching between timed and
// all-day events nulls the other representation so patches replace it.
func (c *Calendar) span(date, clock string) (*calendar.EventDateTime, *calendar.EventDateTime, error) {
	day, err := time.ParseInLocation("2006-01-02", date, c.loc)
	if err != nil {
		return nil, nil, fmt.Errorf("event date %q: %w", date, err)
	}
	if clock == "" {
		return &calendar.EventDateTime{Date: day.Format("2006-01-02"), NullFields: []string{"DateTime"}},
			&calendar.EventDateTime{Date: day.AddDate(0, 0, 1).Format("2006-01-02"), NullFields: []string{"DateTime"}},
			nil
	}

	at, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, c.loc)
	if err != nil {
		return nil, nil, fmt.Errorf("event time %q: %w", clock, err)
	}
	zone := c.loc.String()
	return &calendar.EventDateTime{DateTime: at.Format(time.RFC3339), TimeZone: zone, NullFields: []string{"Date"}},
		&calendar.EventDateTime{DateTime: at.Add(c.duration).Format(time.RFC3339), TimeZone: zone, NullFields: []string{"Date"}},
		nil
}
