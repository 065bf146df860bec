package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TitleUnauthorized is the error title the service reports for an expired session.
const TitleUnauthorized = "Unauthorized user"

// Envelope is the common wrapper of every backoffice API response.
type Envelope struct {
	Meta   EnvelopeMeta    `json:"meta"`
	Errors []EnvelopeError `json:"errors"`
	Data   json.RawMessage `json:"data"`
}

// EnvelopeMeta identifies the API operation a response belongs to.
type EnvelopeMeta struct {
	Method string `json:"method"`
}

// EnvelopeError is a single error reported by the service.
type EnvelopeError struct {
	Title string `json:"title"`
}

// APIError is returned when the service answered an operation with errors.
type APIError struct {
	Method string
	Title  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error for %s: %s", e.Method, e.Title)
}

// Err returns nil when the envelope reports no errors, otherwise an *APIError for the first one.
func (e *Envelope) Err() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return &APIError{Method: e.Meta.Method, Title: e.Errors[0].Title}
}

// Unauthorized reports whether the first reported error is the expired-session error.
func (e *Envelope) Unauthorized() bool {
	return len(e.Errors) > 0 && e.Errors[0].Title == TitleUnauthorized
}

// DecodeBatch decodes the data of a "find records" response.
func (e *Envelope) DecodeBatch() (*Batch, error) {
	var batch Batch
	if err := json.Unmarshal(e.Data, &batch); err != nil {
		return nil, fmt.Errorf("failed to decode batch: %w", err)
	}
	if err := validate.Struct(&batch); err != nil {
		return nil, fmt.Errorf("invalid batch: %w", err)
	}
	return &batch, nil
}

type detailData struct {
	Order struct {
		ID       *RecordID `json:"id"`
		Received string    `json:"receivd"`
		Subjects string    `json:"subjects"`
		Aim      string    `json:"aim"`
		Name     string    `json:"name"`
	} `json:"order"`
}

// ErrRecordMismatch is returned when a detail response names a different record.
var ErrRecordMismatch = errors.New("detail belongs to another record")

// DecodeDetail decodes the data of a "get record detail" response for the given record.
// Service timestamps are interpreted in loc. A response that carries an order id other
// than id is rejected with ErrRecordMismatch.
func (e *Envelope) DecodeDetail(id RecordID, loc *time.Location) (*RecordDetail, error) {
	var data detailData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode detail for %s: %w", id, err)
	}
	if got := data.Order.ID; got != nil && *got != id {
		return nil, fmt.Errorf("%w: want %s, got %s", ErrRecordMismatch, id, *got)
	}

	receivedAt, err := ParseReceivedAt(data.Order.Received, loc)
	if err != nil {
		return nil, err
	}

	detail := &RecordDetail{
		ID:          id,
		ReceivedAt:  receivedAt,
		Subject:     data.Order.Subjects,
		Aim:         data.Order.Aim,
		DisplayName: data.Order.Name,
	}
	if err := detail.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detail for %s: %w", id, err)
	}
	return detail, nil
}

// DecodeEnvelope parses a raw response body.
func DecodeEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return &env, nil
}
