package attendance

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoattend/internal/geo"
)

func openSheet() Sheet {
	return Sheet{
		ID:              "sheet-1",
		ClassName:       "CS 101",
		SecretKey:       "ABC123",
		IsActive:        true,
		Center:          ptr(campus),
		MaxRadiusMeters: ptr(50.0),
	}
}

func attemptAt(loc *geo.Coordinate) SubmissionAttempt {
	return SubmissionAttempt{
		Identity:  Identity{FirstName: "A", LastName: "B", StudentID: "S1"},
		SecretKey: "ABC123",
		Location:  loc,
	}
}

func reasonOf(t *testing.T, err error) Reason {
	t.Helper()
	r, ok := AsRejection(err)
	require.True(t, ok, "expected a rejection, got %v", err)
	return r.Reason
}

func TestAdmitMissingFields(t *testing.T) {
	a := attemptAt(ptr(campus))
	a.FirstName = "  "
	a.StudentID = ""
	a.SecretKey = ""

	_, err := Admit(a, openSheet(), nil)
	require.ErrorIs(t, err, ErrMissingFields)
	r, _ := AsRejection(err)
	assert.Equal(t, []string{"first_name", "student_id", "secret_key"}, r.Fields)
}

func TestAdmitSecretKeyIsExactAndCaseSensitive(t *testing.T) {
	for _, key := range []string{"abc123", "ABC124", "ABC12", "ABC1234"} {
		a := attemptAt(ptr(campus))
		a.SecretKey = key
		_, err := Admit(a, openSheet(), nil)
		assert.ErrorIs(t, err, ErrInvalidSecretKey, key)
	}

	a := attemptAt(ptr(campus))
	a.SecretKey = " ABC123 "
	_, err := Admit(a, openSheet(), nil)
	assert.NoError(t, err)
}

func TestAdmitCheckOrder(t *testing.T) {
	sh := openSheet()
	sh.IsActive = false
	existing := NewKeySet(Record{SheetID: sh.ID, Identity: Identity{StudentID: "S1"}})

	// Wrong key on a closed sheet reports the key.
	a := attemptAt(nil)
	a.SecretKey = "nope"
	a.LocationDenied = true
	_, err := Admit(a, sh, existing)
	assert.Equal(t, ReasonInvalidSecretKey, reasonOf(t, err))

	// Right key on a closed sheet reports the sheet.
	a.SecretKey = "ABC123"
	_, err = Admit(a, sh, existing)
	assert.Equal(t, ReasonSheetInactive, reasonOf(t, err))

	// Open sheet, denied location beats duplicate.
	sh.IsActive = true
	_, err = Admit(a, sh, existing)
	assert.Equal(t, ReasonLocationRequired, reasonOf(t, err))

	a.LocationDenied = false
	_, err = Admit(a, sh, existing)
	assert.Equal(t, ReasonDuplicateSubmission, reasonOf(t, err))
}

func TestAdmitInvalidInput(t *testing.T) {
	bad := []geo.Coordinate{
		{Lat: math.NaN(), Lng: 0},
		{Lat: 91, Lng: 0},
		{Lat: 0, Lng: math.Inf(1)},
	}
	for _, c := range bad {
		_, err := Admit(attemptAt(ptr(c)), openSheet(), nil)
		require.ErrorIs(t, err, ErrInvalidInput)
		r, _ := AsRejection(err)
		assert.Equal(t, []string{"location"}, r.Fields)
	}

	sh := openSheet()
	sh.MaxRadiusMeters = ptr(-5.0)
	_, err := Admit(attemptAt(ptr(campus)), sh, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAdmitDuplicateRegardlessOfFields(t *testing.T) {
	sh := openSheet()
	existing := NewKeySet(Record{SheetID: sh.ID, Identity: Identity{StudentID: "S1"}})

	a := SubmissionAttempt{
		Identity:  Identity{FirstName: "Someone", LastName: "Else", StudentID: " S1 "},
		SecretKey: "ABC123",
		Location:  ptr(geo.Coordinate{Lat: 10, Lng: 10}),
	}
	_, err := Admit(a, sh, existing)
	assert.ErrorIs(t, err, ErrDuplicateSubmission)

	// Same student on a different sheet is fine.
	other := sh
	other.ID = "sheet-2"
	_, err = Admit(a, other, existing)
	assert.NoError(t, err)
}

func TestAdmitBuildsRecord(t *testing.T) {
	a := attemptAt(ptr(north(campus, 500)))
	a.FirstName = "  Ada "
	a.Fingerprint = "fp-1"

	adm, err := Admit(a, openSheet(), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusOutOfBounds, adm.Status)
	assert.Equal(t, "sheet-1", adm.Record.SheetID)
	assert.Equal(t, "Ada", adm.Record.FirstName)
	assert.Equal(t, "fp-1", adm.Record.Fingerprint)
	assert.Empty(t, adm.Record.ID)
	assert.True(t, adm.Record.SignedInAt.IsZero())
}

func TestAdmitWithoutLocationOnFencedSheet(t *testing.T) {
	adm, err := Admit(attemptAt(nil), openSheet(), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusLocationNotShared, adm.Status)
}

func TestDenialFor(t *testing.T) {
	a := attemptAt(nil)
	a.LastName = " B "
	a.LocationDenied = true
	a.Fingerprint = "fp"
	d := DenialFor(a, openSheet())
	assert.Equal(t, "sheet-1", d.SheetID)
	assert.Equal(t, "B", d.LastName)
	assert.Equal(t, "fp", d.Fingerprint)
}

func TestRejectionIs(t *testing.T) {
	err := &Rejection{Reason: ReasonMissingFields, Fields: []string{"last_name"}}
	assert.ErrorIs(t, err, ErrMissingFields)
	assert.NotErrorIs(t, err, ErrInvalidInput)
	assert.False(t, errors.Is(errors.New("x"), ErrMissingFields))
	assert.Contains(t, err.Error(), "last_name")
	assert.NotEmpty(t, ReasonLocationRequired.Message())
}
