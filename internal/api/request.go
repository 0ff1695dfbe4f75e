package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"timeline-service/internal/service/milestone"
)

// computed fields; supplying them is an error
var forbiddenFields = []string{"start_date", "end_date"}

// identity and audit fields are dropped without complaint
var strippedFields = []string{"id", "timeline_id", "created_at", "updated_at", "updated_by", "deleted_at"}

var editableFields = map[string]struct{}{
	"name": {}, "description": {}, "type": {}, "duration": {}, "completion_date": {},
	"status": {}, "details": {}, "order": {}, "hidden": {},
	"planned_text": {}, "active_text": {}, "completed_text": {}, "blocked_text": {},
}

type updateMilestoneRequest struct {
	Name           *string                `json:"name"`
	Description    *string                `json:"description"`
	Type           *string                `json:"type"`
	Duration       *int                   `json:"duration" binding:"omitnil,min=1"`
	CompletionDate milestone.OptionalDate `json:"completion_date"`
	Status         *string                `json:"status" binding:"omitnil,oneof=PLANNED ACTIVE COMPLETED BLOCKED"`
	Details        map[string]interface{} `json:"details"`
	Order          *int                   `json:"order" binding:"omitnil,min=1"`
	PlannedText    *string                `json:"planned_text" binding:"omitnil,max=512"`
	ActiveText     *string                `json:"active_text" binding:"omitnil,max=512"`
	CompletedText  *string                `json:"completed_text" binding:"omitnil,max=512"`
	BlockedText    *string                `json:"blocked_text" binding:"omitnil,max=512"`
	Hidden         *bool                  `json:"hidden"`
}

func (r updateMilestoneRequest) patch() milestone.Patch {
	return milestone.Patch{
		Name:           r.Name,
		Description:    r.Description,
		Type:           r.Type,
		Duration:       r.Duration,
		CompletionDate: r.CompletionDate,
		Status:         r.Status,
		Details:        r.Details,
		Order:          r.Order,
		PlannedText:    r.PlannedText,
		ActiveText:     r.ActiveText,
		CompletedText:  r.CompletedText,
		BlockedText:    r.BlockedText,
		Hidden:         r.Hidden,
	}
}

// decodeUpdateRequest turns a PATCH body into a milestone.Patch
func decodeUpdateRequest(body []byte) (milestone.Patch, error) {
	if !json.Valid(body) {
		return milestone.Patch{}, errMalformedBody
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return milestone.Patch{}, &milestone.ValidationError{Message: "request body must be a JSON object"}
	}

	for _, key := range forbiddenFields {
		if _, ok := fields[key]; ok {
			return milestone.Patch{}, &milestone.ValidationError{Field: key, Message: "is computed and cannot be set"}
		}
	}
	for _, key := range strippedFields {
		delete(fields, key)
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, ok := editableFields[key]; !ok {
			return milestone.Patch{}, &milestone.ValidationError{Field: key, Message: "unknown field"}
		}
	}

	cleaned, err := json.Marshal(fields)
	if err != nil {
		return milestone.Patch{}, err
	}

	var req updateMilestoneRequest
	if err := json.NewDecoder(bytes.NewReader(cleaned)).Decode(&req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return milestone.Patch{}, &milestone.ValidationError{Field: typeErr.Field, Message: "has the wrong type"}
		}
		return milestone.Patch{}, &milestone.ValidationError{Message: err.Error()}
	}
	if err := binding.Validator.ValidateStruct(&req); err != nil {
		return milestone.Patch{}, bindingError(err)
	}

	return req.patch(), nil
}

// bindingError reports the first failed rule under the field's JSON name
func bindingError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &milestone.ValidationError{Message: err.Error()}
	}

	fe := fieldErrs[0]
	field := fe.Field()
	if sf, ok := reflect.TypeOf(updateMilestoneRequest{}).FieldByName(fe.StructField()); ok {
		field = strings.Split(sf.Tag.Get("json"), ",")[0]
	}

	msg := fmt.Sprintf("failed %s validation", fe.Tag())
	switch fe.Tag() {
	case "min":
		msg = "must be at least " + fe.Param()
	case "max":
		msg = "must be at most " + fe.Param() + " characters"
	case "oneof":
		msg = "must be one of " + fe.Param()
	}
	return &milestone.ValidationError{Field: field, Message: msg}
}
