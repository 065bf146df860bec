// Package types provides type definitions for the records exchanged with the remote service.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ReceivedAtLayout is the layout of the service-assigned creation time.
const ReceivedAtLayout = "2006-01-02 15:04:05"

var validate = validator.New()

// RecordID is the stable identifier the remote service assigns to a record.
// The service sends it either as a JSON string or as a number.
type RecordID string

// UnmarshalJSON accepts both string and numeric identifiers.
func (id *RecordID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = RecordID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("record id must be a string or number: %w", err)
	}
	*id = RecordID(n.String())
	return nil
}

func (id RecordID) String() string {
	return string(id)
}

// RecordKind is the category of a discovered record.
type RecordKind string

const (
	// KindNormal is an ordinary record.
	KindNormal RecordKind = ""
	// KindAdvert marks advertising slots interleaved with the results; never eligible.
	KindAdvert RecordKind = "adFox"
)

// AlwaysExcluded reports whether records of this kind are never processed.
func (k RecordKind) AlwaysExcluded() bool {
	return k == KindAdvert
}

// Record is one entry of a discovery batch.
type Record struct {
	ID   RecordID   `json:"id" validate:"required"`
	Kind RecordKind `json:"type,omitempty"`
}

// Validate validates the Record using the validator.
func (r *Record) Validate() error {
	return validate.Struct(r)
}

// Batch is the decoded result of a single "find records" operation, in service order.
type Batch struct {
	Records []Record `json:"orders" validate:"dive"`
}

// RecordDetail holds the fields fetched from a record's detail view.
type RecordDetail struct {
	ID          RecordID  `json:"id" validate:"required"`
	ReceivedAt  time.Time `json:"received_at" validate:"required"`
	Subject     string    `json:"subjects"`
	Aim         string    `json:"aim"`
	DisplayName string    `json:"name"`
}

// Validate validates the RecordDetail using the validator.
func (d *RecordDetail) Validate() error {
	return validate.Struct(d)
}

// Text joins the subject and aim fields the way the classifier sees them.
func (d *RecordDetail) Text() string {
	return strings.Join([]string{d.Subject, d.Aim}, "\n")
}

// ParseReceivedAt parses a service timestamp given in the service's local time zone.
func ParseReceivedAt(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(ReceivedAtLayout, strings.TrimSpace(value), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse received time %q: %w", value, err)
	}
	return t, nil
}
