package events

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
)

func TestRegisterValidationsReportsFailures(t *testing.T) {
	err := registerValidations(validator.New(), map[string]validator.Func{
		"": func(validator.FieldLevel) bool { return true },
	})
	if err == nil {
		t.Fatalf("expected registration of an empty tag to fail")
	}
}

func TestInputValidatorRejectsUnknownEventType(t *testing.T) {
	validate, err := newInputValidator()
	if err != nil {
		t.Fatalf("failed to build validator: %v", err)
	}
	start := time.Date(2026, 10, 2, 18, 0, 0, 0, time.UTC)
	input := Input{
		Title:     "Evening Match",
		EventType: "party",
		Location:  "Central Park",
		StartDate: start,
		EndDate:   start.Add(2 * time.Hour),
	}
	fields := FieldErrors(validate.Struct(input))
	if fields["event_type"] != "Unknown event type" {
		t.Fatalf("expected event_type to be rejected, got %#v", fields)
	}

	input.EventType = TypeMatch
	if err := validate.Struct(input); err != nil {
		t.Fatalf("expected valid input, got %v", err)
	}
}
