package events

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationError lists invalid fields by JSON name.
type ValidationError struct {
	Fields map[string]string
}

func (e ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s %s", name, e.Fields[name]))
	}
	return "invalid event: " + strings.Join(parts, "; ")
}

// ValidateFields checks an insert payload.
func ValidateFields(f Fields) error {
	return collect(validate.Struct(f))
}

// ValidatePatch checks a partial update.
func ValidatePatch(p Patch) error {
	if p.IsEmpty() {
		return ValidationError{Fields: map[string]string{"patch": "must change at least one field"}}
	}
	err := collect(validate.Struct(p))
	var verr ValidationError
	if err != nil && !errors.As(err, &verr) {
		return err
	}
	if verr.Fields == nil {
		verr.Fields = map[string]string{}
	}
	if p.Title != nil && *p.Title == "" {
		verr.Fields["title"] = "must not be empty"
	}
	if p.Date != nil && p.Date.IsZero() {
		verr.Fields["date"] = "is required"
	}
	if len(verr.Fields) == 0 {
		return nil
	}
	return verr
}

func collect(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate event: %w", err)
	}
	out := ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out.Fields[jsonName(fe.Field())] = describe(fe)
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must not be empty"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return "is invalid"
	}
}

var jsonNames = map[string]string{
	"Title":       "title",
	"Description": "description",
	"Date":        "date",
	"StartTime":   "start_time",
	"EndTime":     "end_time",
	"Location":    "location",
	"Type":        "type",
}

func jsonName(field string) string {
	if name, ok := jsonNames[field]; ok {
		return name
	}
	return strings.ToLower(field)
}
