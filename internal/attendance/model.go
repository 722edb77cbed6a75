package attendance

import (
	"math"
	"time"

	"geoattend/internal/geo"
)

// Status is the derived verification status of a record. It is never stored.
type Status string

const (
	StatusVerified          Status = "verified"
	StatusOutOfBounds       Status = "out_of_bounds"
	StatusLocationNotShared Status = "location_not_shared"
)

// Label is the text shown next to a record in the instructor log.
func (s Status) Label() string {
	switch s {
	case StatusVerified:
		return "Verified"
	case StatusOutOfBounds:
		return "Out of bounds"
	case StatusLocationNotShared:
		return "Location not shared"
	}
	return string(s)
}

// Geofence is a center coordinate plus the maximum allowed distance from it.
type Geofence struct {
	Center          geo.Coordinate `json:"center"`
	MaxRadiusMeters float64        `json:"max_radius_meters"`
}

// Valid reports whether the fence has a usable center and a non-negative finite radius.
func (g Geofence) Valid() bool {
	return g.Center.Valid() && validRadius(g.MaxRadiusMeters)
}

func validRadius(r float64) bool {
	return !math.IsNaN(r) && !math.IsInf(r, 0) && r >= 0
}

// Sheet is an instructor-defined attendance session.
type Sheet struct {
	ID              string          `json:"id"`
	ReportID        string          `json:"report_id"`
	ClassName       string          `json:"class_name"`
	DateCreated     string          `json:"date_created"`
	SecretKey       string          `json:"secret_key"`
	IsActive        bool            `json:"is_active"`
	Center          *geo.Coordinate `json:"center,omitempty"`
	MaxRadiusMeters *float64        `json:"max_radius_meters,omitempty"`
	OwnerID         string          `json:"owner_id"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Geofence returns the sheet's fence. A center without a radius, or the
// reverse, counts as no fence at all.
func (s Sheet) Geofence() *Geofence {
	if s.Center == nil || s.MaxRadiusMeters == nil {
		return nil
	}
	return &Geofence{Center: *s.Center, MaxRadiusMeters: *s.MaxRadiusMeters}
}

// Identity is what a student types into the sign-in form.
type Identity struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	StudentID string `json:"student_id"`
}

// Name joins first and last name.
func (i Identity) Name() string {
	switch {
	case i.FirstName == "":
		return i.LastName
	case i.LastName == "":
		return i.FirstName
	}
	return i.FirstName + " " + i.LastName
}

// SubmissionAttempt is one press of the sign-in button.
type SubmissionAttempt struct {
	Identity
	SecretKey      string
	Location       *geo.Coordinate
	LocationDenied bool
	// Fingerprint identifies the device for the instructor's benefit only.
	Fingerprint string
}

// Record is an accepted submission.
type Record struct {
	ID      string `json:"id"`
	SheetID string `json:"sheet_id"`
	Identity
	SignedInAt     time.Time       `json:"signed_in_at"`
	Location       *geo.Coordinate `json:"location,omitempty"`
	LocationDenied bool            `json:"location_denied"`
	Fingerprint    string          `json:"fingerprint,omitempty"`
}

// Key identifies the (sheet, student) pair a record occupies.
func (r Record) Key() Key { return Key{SheetID: r.SheetID, StudentID: r.StudentID} }

// Denial marks a student who refused to share their location.
type Denial struct {
	SheetID string `json:"sheet_id"`
	Identity
	Fingerprint string    `json:"fingerprint,omitempty"`
	DeniedAt    time.Time `json:"denied_at"`
}

// FingerprintFlag notes a device fingerprint used by more than one student on a sheet.
type FingerprintFlag struct {
	SheetID     string    `json:"sheet_id"`
	Fingerprint string    `json:"fingerprint"`
	StudentIDs  []string  `json:"student_ids"`
	FlaggedAt   time.Time `json:"flagged_at"`
}

// Key is a (sheet, student) pair.
type Key struct {
	SheetID   string
	StudentID string
}

// KeySet is the set of pairs already admitted.
type KeySet map[Key]struct{}

// NewKeySet builds a set from records.
func NewKeySet(records ...Record) KeySet {
	ks := make(KeySet, len(records))
	for _, r := range records {
		ks.Add(r.Key())
	}
	return ks
}

// Add inserts k.
func (ks KeySet) Add(k Key) { ks[k] = struct{}{} }

// Has reports whether k is present. A nil set is empty.
func (ks KeySet) Has(k Key) bool {
	_, ok := ks[k]
	return ok
}
