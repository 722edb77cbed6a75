package attendance

import (
	"errors"
	"strings"
)

// Reason is a machine-readable rejection code.
type Reason string

const (
	ReasonMissingFields       Reason = "missing_fields"
	ReasonInvalidInput        Reason = "invalid_input"
	ReasonInvalidSecretKey    Reason = "invalid_secret_key"
	ReasonSheetInactive       Reason = "sheet_inactive"
	ReasonLocationRequired    Reason = "location_required"
	ReasonDuplicateSubmission Reason = "duplicate_submission"
)

var messages = map[Reason]string{
	ReasonMissingFields:       "Please fill in your first name, last name, student ID and the secret key.",
	ReasonInvalidInput:        "The submitted location could not be read. Please try again.",
	ReasonInvalidSecretKey:    "Invalid secret key. Please check the key provided by your professor.",
	ReasonSheetInactive:       "This attendance sheet is no longer accepting sign-ins.",
	ReasonLocationRequired:    "Location required. You must physically go see the professor to verify sign in.",
	ReasonDuplicateSubmission: "You have already submitted your attendance for this class.",
}

// Message is the user-facing text for r.
func (r Reason) Message() string {
	if m, ok := messages[r]; ok {
		return m
	}
	return string(r)
}

// Rejection is a terminal, user-visible refusal to admit a submission.
type Rejection struct {
	Reason Reason
	// Fields lists the offending inputs for missing_fields and invalid_input.
	Fields []string
}

func (r *Rejection) Error() string {
	if len(r.Fields) == 0 {
		return "rejected: " + string(r.Reason)
	}
	return "rejected: " + string(r.Reason) + " (" + strings.Join(r.Fields, ", ") + ")"
}

// Is matches any rejection with the same reason, so callers can write
// errors.Is(err, ErrDuplicateSubmission).
func (r *Rejection) Is(target error) bool {
	var t *Rejection
	if !errors.As(target, &t) {
		return false
	}
	return t.Reason == r.Reason
}

func reject(reason Reason, fields ...string) *Rejection {
	return &Rejection{Reason: reason, Fields: fields}
}

var (
	ErrMissingFields       = reject(ReasonMissingFields)
	ErrInvalidInput        = reject(ReasonInvalidInput)
	ErrInvalidSecretKey    = reject(ReasonInvalidSecretKey)
	ErrSheetInactive       = reject(ReasonSheetInactive)
	ErrLocationRequired    = reject(ReasonLocationRequired)
	ErrDuplicateSubmission = reject(ReasonDuplicateSubmission)
)

// ErrSheetNotFound is returned for unknown sheets and sheets owned by someone else.
var ErrSheetNotFound = errors.New("sheet not found")

// AsRejection unwraps err into a *Rejection.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
