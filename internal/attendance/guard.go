package attendance

import "strings"

// Admission is a submission that passed every check.
type Admission struct {
	Record Record `json:"record"`
	Status Status `json:"status"`
}

// Admit runs the submission checks in order and stops at the first failure:
// required fields, input shape, secret key, sheet active, location denied,
// duplicate. The returned error is always a *Rejection.
//
// Admit has no side effects. The caller stores the admitted record, or a
// Denial when the rejection is ErrLocationRequired. The record comes back
// without ID or SignedInAt; the store assigns those.
func Admit(attempt SubmissionAttempt, sheet Sheet, existing KeySet) (Admission, error) {
	id := Identity{
		FirstName: strings.TrimSpace(attempt.FirstName),
		LastName:  strings.TrimSpace(attempt.LastName),
		StudentID: strings.TrimSpace(attempt.StudentID),
	}
	key := strings.TrimSpace(attempt.SecretKey)

	if missing := missingFields(id, key); len(missing) > 0 {
		return Admission{}, reject(ReasonMissingFields, missing...)
	}
	if attempt.Location != nil && !attempt.Location.Valid() {
		return Admission{}, reject(ReasonInvalidInput, "location")
	}
	fence := sheet.Geofence()
	if fence != nil && !fence.Valid() {
		return Admission{}, reject(ReasonInvalidInput, "geofence")
	}
	if key != sheet.SecretKey {
		return Admission{}, ErrInvalidSecretKey
	}
	if !sheet.IsActive {
		return Admission{}, ErrSheetInactive
	}
	if attempt.LocationDenied {
		return Admission{}, ErrLocationRequired
	}
	if existing.Has(Key{SheetID: sheet.ID, StudentID: id.StudentID}) {
		return Admission{}, ErrDuplicateSubmission
	}

	rec := Record{
		SheetID:        sheet.ID,
		Identity:       id,
		Location:       attempt.Location,
		LocationDenied: attempt.LocationDenied,
		Fingerprint:    attempt.Fingerprint,
	}
	return Admission{Record: rec, Status: Classify(rec.Location, rec.LocationDenied, fence)}, nil
}

// DenialFor builds the marker stored when attempt is refused for withholding its location.
func DenialFor(attempt SubmissionAttempt, sheet Sheet) Denial {
	return Denial{
		SheetID: sheet.ID,
		Identity: Identity{
			FirstName: strings.TrimSpace(attempt.FirstName),
			LastName:  strings.TrimSpace(attempt.LastName),
			StudentID: strings.TrimSpace(attempt.StudentID),
		},
		Fingerprint: attempt.Fingerprint,
	}
}

func missingFields(id Identity, key string) []string {
	var missing []string
	if id.FirstName == "" {
		missing = append(missing, "first_name")
	}
	if id.LastName == "" {
		missing = append(missing, "last_name")
	}
	if id.StudentID == "" {
		missing = append(missing, "student_id")
	}
	if key == "" {
		missing = append(missing, "secret_key")
	}
	return missing
}
