package postgres

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/penmaen-hall/server/internal/domain/events"
)

// derefString safely dereferences a string pointer, returning empty string if nil
func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

// nullableString stores an empty optional text column as NULL.
func nullableString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func dateParam(d events.Date) pgtype.Date {
	if d.IsZero() {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: d.In(time.UTC), Valid: true}
}

func dateFromColumn(d pgtype.Date) events.Date {
	if !d.Valid {
		return events.Date{}
	}
	return events.DateOf(d.Time)
}

func timeParam(t *events.TimeOfDay) pgtype.Time {
	if t == nil {
		return pgtype.Time{}
	}
	return pgtype.Time{Microseconds: t.SinceMidnight().Microseconds(), Valid: true}
}

func timeFromColumn(t pgtype.Time) *events.TimeOfDay {
	if !t.Valid {
		return nil
	}
	since := time.Duration(t.Microseconds) * time.Microsecond
	return &events.TimeOfDay{
		Hour:   int(since / time.Hour),
		Minute: int(since % time.Hour / time.Minute),
		Second: int(since % time.Minute / time.Second),
	}
}
