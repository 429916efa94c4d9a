package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultLocation is what the event form pre-fills for new events.
	DefaultLocation = "Village Hall"
	// DefaultType is the category the event form pre-selects.
	DefaultType = "Community"
)

// DefaultTypes are the categories offered by the event form. The store
// accepts any short label.
var DefaultTypes = []string{"Community", "Private", "Fundraiser", "Class"}

// Event is a scheduled occurrence at the hall as returned by the store.
type Event struct {
	ID          string     `json:"id"`
	CreatedAt   time.Time  `json:"created_at"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Date        Date       `json:"date"`
	StartTime   *TimeOfDay `json:"start_time,omitempty"`
	EndTime     *TimeOfDay `json:"end_time,omitempty"`
	Location    string     `json:"location,omitempty"`
	Type        string     `json:"type,omitempty"`
}

// Fields returns the writable part of e.
func (e Event) Fields() Fields {
	return Fields{
		Title:       e.Title,
		Description: e.Description,
		Date:        e.Date,
		StartTime:   cloneTime(e.StartTime),
		EndTime:     cloneTime(e.EndTime),
		Location:    e.Location,
		Type:        e.Type,
	}
}

func (e Event) clone() Event {
	e.StartTime = cloneTime(e.StartTime)
	e.EndTime = cloneTime(e.EndTime)
	return e
}

// Fields is the insert payload: every Event field except ID and CreatedAt.
type Fields struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description,omitempty" validate:"max=4000"`
	Date        Date       `json:"date" validate:"required"`
	StartTime   *TimeOfDay `json:"start_time,omitempty"`
	EndTime     *TimeOfDay `json:"end_time,omitempty"`
	Location    string     `json:"location,omitempty" validate:"max=200"`
	Type        string     `json:"type,omitempty" validate:"max=50"`
}

// Normalize trims surrounding whitespace from the text fields.
func (f Fields) Normalize() Fields {
	f.Title = strings.TrimSpace(f.Title)
	f.Description = strings.TrimSpace(f.Description)
	f.Location = strings.TrimSpace(f.Location)
	f.Type = strings.TrimSpace(f.Type)
	return f
}

// WithFormDefaults fills Location and Type the way the event form does for
// a new event. The store never applies these defaults itself.
func (f Fields) WithFormDefaults() Fields {
	if strings.TrimSpace(f.Location) == "" {
		f.Location = DefaultLocation
	}
	if strings.TrimSpace(f.Type) == "" {
		f.Type = DefaultType
	}
	return f
}

// Patch is a partial update. A nil field is left unchanged. Setting an
// optional text field to "" clears it; ClearStartTime and ClearEndTime
// clear the times. In JSON, a null start_time or end_time clears it.
type Patch struct {
	Title          *string    `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description    *string    `json:"description,omitempty" validate:"omitempty,max=4000"`
	Date           *Date      `json:"date,omitempty"`
	StartTime      *TimeOfDay `json:"start_time,omitempty"`
	EndTime        *TimeOfDay `json:"end_time,omitempty"`
	ClearStartTime bool       `json:"-"`
	ClearEndTime   bool       `json:"-"`
	Location       *string    `json:"location,omitempty" validate:"omitempty,max=200"`
	Type           *string    `json:"type,omitempty" validate:"omitempty,max=50"`
}

// PatchFrom builds a patch that sets every field to the values in f.
func PatchFrom(f Fields) Patch {
	p := Patch{
		Title:       &f.Title,
		Description: &f.Description,
		Date:        &f.Date,
		Location:    &f.Location,
		Type:        &f.Type,
	}
	if f.StartTime != nil {
		p.StartTime = cloneTime(f.StartTime)
	} else {
		p.ClearStartTime = true
	}
	if f.EndTime != nil {
		p.EndTime = cloneTime(f.EndTime)
	} else {
		p.ClearEndTime = true
	}
	return p
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Date == nil &&
		p.StartTime == nil && p.EndTime == nil && !p.ClearStartTime && !p.ClearEndTime &&
		p.Location == nil && p.Type == nil
}

// Normalize trims surrounding whitespace from the text fields that are set.
func (p Patch) Normalize() Patch {
	p.Title = trimPtr(p.Title)
	p.Description = trimPtr(p.Description)
	p.Location = trimPtr(p.Location)
	p.Type = trimPtr(p.Type)
	return p
}

// Apply returns e with the patch applied.
func (p Patch) Apply(e Event) Event {
	e = e.clone()
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	if p.ClearStartTime {
		e.StartTime = nil
	} else if p.StartTime != nil {
		e.StartTime = cloneTime(p.StartTime)
	}
	if p.ClearEndTime {
		e.EndTime = nil
	} else if p.EndTime != nil {
		e.EndTime = cloneTime(p.EndTime)
	}
	if p.Location != nil {
		e.Location = *p.Location
	}
	if p.Type != nil {
		e.Type = *p.Type
	}
	return e
}

// MarshalJSON writes cleared times as explicit nulls.
func (p Patch) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	if p.Title != nil {
		out["title"] = *p.Title
	}
	if p.Description != nil {
		out["description"] = *p.Description
	}
	if p.Date != nil {
		out["date"] = *p.Date
	}
	if p.ClearStartTime {
		out["start_time"] = nil
	} else if p.StartTime != nil {
		out["start_time"] = *p.StartTime
	}
	if p.ClearEndTime {
		out["end_time"] = nil
	} else if p.EndTime != nil {
		out["end_time"] = *p.EndTime
	}
	if p.Location != nil {
		out["location"] = *p.Location
	}
	if p.Type != nil {
		out["type"] = *p.Type
	}
	return json.Marshal(out)
}

// UnmarshalJSON distinguishes an absent time (unchanged) from a null time
// (cleared).
func (p *Patch) UnmarshalJSON(data []byte) error {
	type plain Patch
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if value, ok := raw["start_time"]; ok && isNull(value) {
		decoded.StartTime = nil
		decoded.ClearStartTime = true
	}
	if value, ok := raw["end_time"]; ok && isNull(value) {
		decoded.EndTime = nil
		decoded.ClearEndTime = true
	}

	*p = Patch(decoded)
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func trimPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	return &trimmed
}

func cloneTime(t *TimeOfDay) *TimeOfDay {
	if t == nil {
		return nil
	}
	copied := *t
	return &copied
}

// Date is a calendar date with no time zone. The zero Date means "unset".
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(value string) (Date, error) {
	parsed, err := time.Parse(time.DateOnly, strings.TrimSpace(value))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: must be YYYY-MM-DD", value)
	}
	return DateOf(parsed), nil
}

// MustParseDate is ParseDate for literals; it panics on malformed input.
func MustParseDate(value string) Date {
	d, err := ParseDate(value)
	if err != nil {
		panic(err)
	}
	return d
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	year, month, day := t.Date()
	return Date{Year: year, Month: month, Day: day}
}

// IsZero reports whether d is unset.
func (d Date) IsZero() bool {
	return d == Date{}
}

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or
// after other.
func (d Date) Compare(other Date) int {
	return d.In(time.UTC).Compare(other.In(time.UTC))
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(text []byte) error {
	if len(bytes.TrimSpace(text)) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// TimeOfDay is a wall-clock time with no date or zone.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay accepts HH:MM or HH:MM:SS.
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{"15:04", time.TimeOnly} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return TimeOfDay{Hour: parsed.Hour(), Minute: parsed.Minute(), Second: parsed.Second()}, nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("invalid time %q: must be HH:MM", value)
}

// ParseOptionalTime returns nil for an empty value.
func ParseOptionalTime(value string) (*TimeOfDay, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	parsed, err := ParseTimeOfDay(value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// SinceMidnight returns the offset of t from midnight.
func (t TimeOfDay) SinceMidnight() time.Duration {
	return time.Duration(t.Hour)*time.Hour + time.Duration(t.Minute)*time.Minute + time.Duration(t.Second)*time.Second
}

// On returns d at time t in loc.
func (t TimeOfDay) On(d Date, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, t.Hour, t.Minute, t.Second, 0, loc)
}

// Short formats t as HH:MM.
func (t TimeOfDay) Short() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) String() string {
	if t.Second == 0 {
		return t.Short()
	}
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(text []byte) error {
	parsed, err := ParseTimeOfDay(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
