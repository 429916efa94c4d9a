package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/penmaen-hall/server/internal/domain/events"
	"github.com/penmaen-hall/server/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/penmaen-hall/server/internal/storage/postgres"

// EventRepository is the Postgres events.Store.
type EventRepository struct {
	pool *pgxpool.Pool
}

var _ events.Store = (*EventRepository)(nil)

// NewEventRepository returns a store over pool.
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

const eventColumns = `id, title, description, event_date, start_time, end_time, location, event_type, created_at`

// ListByDate returns every event ordered by date, then start time (events
// without a start time last within their day), then creation time.
func (r *EventRepository) ListByDate(ctx context.Context) (_ []events.Event, err error) {
	ctx, span := startSpan(ctx, "events.ListByDate")
	defer func() { endSpan(span, err) }()
	start := time.Now()
	defer func() { metrics.RecordQuery("list_events", start, err) }()

	rows, err := r.pool.Query(ctx, `
SELECT `+eventColumns+`
  FROM events
 ORDER BY event_date ASC, start_time ASC NULLS LAST, created_at ASC, id ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	items := []events.Event{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		items = append(items, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	span.SetAttributes(attribute.Int("events.count", len(items)))
	return items, nil
}

// Insert stores a new event with a freshly minted ULID.
func (r *EventRepository) Insert(ctx context.Context, f events.Fields) (err error) {
	ctx, span := startSpan(ctx, "events.Insert")
	defer func() { endSpan(span, err) }()
	start := time.Now()
	defer func() { metrics.RecordQuery("insert_event", start, err) }()

	id := ulid.Make().String()
	span.SetAttributes(attribute.String("event.id", id))

	_, err = r.pool.Exec(ctx, `
INSERT INTO events (id, title, description, event_date, start_time, end_time, location, event_type)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`,
		id,
		f.Title,
		nullableString(f.Description),
		dateParam(f.Date),
		timeParam(f.StartTime),
		timeParam(f.EndTime),
		nullableString(f.Location),
		nullableString(f.Type),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Update applies the fields set in p. It returns events.ErrNotFound when no
// row has the given id.
func (r *EventRepository) Update(ctx context.Context, id string, p events.Patch) (err error) {
	ctx, span := startSpan(ctx, "events.Update")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("event.id", id))
	start := time.Now()
	defer func() { metrics.RecordQuery("update_event", start, err) }()

	set, args := patchAssignments(p)
	if len(set) == 0 {
		return fmt.Errorf("update event %s: empty patch", id)
	}
	args = append(args, id)

	tag, err := r.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE events SET %s WHERE id = $%d`, strings.Join(set, ", "), len(args)),
		args...,
	)
	if err != nil {
		return fmt.Errorf("update event %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return events.ErrNotFound
	}
	return nil
}

// Delete removes the event. It returns events.ErrNotFound when no row has
// the given id.
func (r *EventRepository) Delete(ctx context.Context, id string) (err error) {
	ctx, span := startSpan(ctx, "events.Delete")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("event.id", id))
	start := time.Now()
	defer func() { metrics.RecordQuery("delete_event", start, err) }()

	tag, err := r.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return events.ErrNotFound
	}
	return nil
}

// patchAssignments builds the SET clauses for p with positional arguments.
func patchAssignments(p events.Patch) ([]string, []any) {
	var (
		set  []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if p.Title != nil {
		add("title", *p.Title)
	}
	if p.Description != nil {
		add("description", nullableString(*p.Description))
	}
	if p.Date != nil {
		add("event_date", dateParam(*p.Date))
	}
	if p.ClearStartTime {
		add("start_time", pgtype.Time{})
	} else if p.StartTime != nil {
		add("start_time", timeParam(p.StartTime))
	}
	if p.ClearEndTime {
		add("end_time", pgtype.Time{})
	} else if p.EndTime != nil {
		add("end_time", timeParam(p.EndTime))
	}
	if p.Location != nil {
		add("location", nullableString(*p.Location))
	}
	if p.Type != nil {
		add("event_type", nullableString(*p.Type))
	}
	return set, args
}

func scanEvent(row pgx.Row) (events.Event, error) {
	var (
		event       events.Event
		description *string
		location    *string
		eventType   *string
		date        pgtype.Date
		startTime   pgtype.Time
		endTime     pgtype.Time
	)
	if err := row.Scan(
		&event.ID,
		&event.Title,
		&description,
		&date,
		&startTime,
		&endTime,
		&location,
		&eventType,
		&event.CreatedAt,
	); err != nil {
		return events.Event{}, err
	}
	event.Description = derefString(description)
	event.Location = derefString(location)
	event.Type = derefString(eventType)
	event.Date = dateFromColumn(date)
	event.StartTime = timeFromColumn(startTime)
	event.EndTime = timeFromColumn(endTime)
	return event, nil
}

func startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.system", "postgresql")),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, events.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
