package milestone

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"timeline-service/internal/model"
)

const maxStatusTextLen = 512

// OptionalDate distinguishes an absent date from an explicit null
type OptionalDate struct {
	Set   bool
	Value *time.Time
}

func (d *OptionalDate) UnmarshalJSON(data []byte) error {
	d.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		d.Value = nil
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string in %s format", model.DateLayout)
	}
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		return fmt.Errorf("date must be in %s format", model.DateLayout)
	}
	t = model.Day(t)
	d.Value = &t
	return nil
}

// Date builds a set OptionalDate; nil means an explicit null
func Date(t *time.Time) OptionalDate {
	if t == nil {
		return OptionalDate{Set: true}
	}
	d := model.Day(*t)
	return OptionalDate{Set: true, Value: &d}
}

// Patch is a partial edit; nil fields are left untouched
type Patch struct {
	Name           *string
	Description    *string
	Type           *string
	Duration       *int
	CompletionDate OptionalDate
	Status         *string
	Details        map[string]interface{}
	Order          *int
	PlannedText    *string
	ActiveText     *string
	CompletedText  *string
	BlockedText    *string
	Hidden         *bool
}

// Validate checks the patch on its own, without the stored milestone
func (p Patch) Validate() error {
	if p.Duration != nil && *p.Duration < 1 {
		return &ValidationError{Field: "duration", Message: "must be at least 1"}
	}
	if p.Order != nil && *p.Order < 1 {
		return &ValidationError{Field: "order", Message: "must be at least 1"}
	}
	if p.Status != nil && !model.ValidStatus(*p.Status) {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", *p.Status)}
	}

	texts := []struct {
		field string
		value *string
	}{
		{"planned_text", p.PlannedText},
		{"active_text", p.ActiveText},
		{"completed_text", p.CompletedText},
		{"blocked_text", p.BlockedText},
	}
	for _, t := range texts {
		if t.value != nil && utf8.RuneCountInString(*t.value) > maxStatusTextLen {
			return &ValidationError{Field: t.field, Message: fmt.Sprintf("must be at most %d characters", maxStatusTextLen)}
		}
	}
	return nil
}
