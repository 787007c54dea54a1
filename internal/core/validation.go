package core

// validation.go checks entry input before it reaches the store.
//
// The checks cover field presence, the clinical ranges of the two
// measurements and how far ahead an examination may be dated. Uniqueness of
// (PIZ, examination date) is enforced by the store.

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// MaxPIZLength matches the width of the piz column.
const MaxPIZLength = 128

// Accepted measurement ranges, inclusive.
const (
	MaxLSMKPa = 120.0
	MaxCAPDbm = 500.0
)

// MaxFutureDays is how many days past today an examination may be dated.
const MaxFutureDays = 30

// ValidationError represents a single validation error for a field.
type ValidationError struct {
	Field   string // Field name as used in the JSON body
	Value   string // The invalid value
	Message string // Human-readable error message
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ValidationResult contains the result of validating an entry.
type ValidationResult struct {
	Valid  bool              // True if all validations passed
	Errors []ValidationError // List of validation errors (empty if Valid)
}

// Err returns nil for a valid result, otherwise an error wrapping
// ErrInvalidEntry that lists every failure.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("%w: %s", ErrInvalidEntry, strings.Join(msgs, "; "))
}

// ValidateEntry checks every field of in and reports all problems at once.
// now anchors the future-date limit.
func ValidateEntry(in EntryInput, now time.Time) ValidationResult {
	result := ValidationResult{Valid: true}
	fail := func(field, value, msg string) {
		result.Valid = false
		result.Errors = append(result.Errors, ValidationError{Field: field, Value: value, Message: msg})
	}

	piz := strings.TrimSpace(in.PIZ)
	switch {
	case piz == "":
		fail("piz", in.PIZ, "required field is empty")
	case len(piz) > MaxPIZLength:
		fail("piz", in.PIZ, fmt.Sprintf("must be at most %d characters", MaxPIZLength))
	}

	if in.ExaminationDate.IsZero() {
		fail("examinationDate", "", "required field is empty")
	} else {
		y, m, d := in.ExaminationDate.Date()
		ny, nm, nd := now.UTC().Date()
		latest := dateOnly(ny, int(nm), nd).AddDate(0, 0, MaxFutureDays)
		if dateOnly(y, int(m), d).After(latest) {
			fail("examinationDate", in.ExaminationDate.Format(DateLayout),
				fmt.Sprintf("cannot be more than %d days in the future", MaxFutureDays))
		}
	}

	checkMeasurement := func(field string, v, max float64) {
		if math.IsNaN(v) || v < 0 || v > max {
			fail(field, fmt.Sprint(v), fmt.Sprintf("must be between 0 and %g", max))
		}
	}
	checkMeasurement("fibroscanLsmKpa", in.FibroscanLSMKPa, MaxLSMKPa)
	checkMeasurement("fibroscanCapDbm", in.FibroscanCAPDbm, MaxCAPDbm)

	return result
}

// normalize trims the PIZ and truncates the examination date to a UTC day.
func (in EntryInput) normalize() EntryInput {
	in.PIZ = strings.TrimSpace(in.PIZ)
	y, m, d := in.ExaminationDate.Date()
	in.ExaminationDate = dateOnly(y, int(m), d)
	return in
}
