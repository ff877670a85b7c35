// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"strings"
	"time"

	"kardex/internal/core/apperror"
	"kardex/internal/core/id"
)

// DateLayout is the calendar-date format accepted and returned by the API.
const DateLayout = "2006-01-02"

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"totalCount"`
}

// NewListResponse wraps items; a nil slice is returned as [].
func NewListResponse[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, TotalCount: len(items)}
}

// ParseDate accepts a calendar date (2006-01-02) or an RFC 3339 timestamp.
// Calendar dates are taken as midnight UTC.
func ParseDate(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(DateLayout, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, apperror.NewValidation("invalid date").
			WithDetail("field", field).
			WithDetail("value", value)
	}
	return t, nil
}

// ParseOptionalDate is ParseDate that maps "" to the zero time.
func ParseOptionalDate(field, value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, nil
	}
	return ParseDate(field, value)
}

// ParseID parses a uuid path or query value.
func ParseID(field, value string) (id.ID, error) {
	parsed, err := id.Parse(value)
	if err != nil || id.IsNil(parsed) {
		return id.Nil(), apperror.NewValidation("invalid id").
			WithDetail("field", field).
			WithDetail("value", value)
	}
	return parsed, nil
}

// ParseIDs parses repeated or comma-separated uuid query values.
func ParseIDs(field string, values []string) ([]id.ID, error) {
	var ids []id.ID
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}
			parsed, err := ParseID(field, part)
			if err != nil {
				return nil, err
			}
			ids = append(ids, parsed)
		}
	}
	return ids, nil
}
