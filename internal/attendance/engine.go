package attendance

import "geoattend/internal/geo"

// Summary is the verified/unverified tally shown above a sheet's log.
type Summary struct {
	Total      int `json:"total"`
	Verified   int `json:"verified_count"`
	Unverified int `json:"unverified_count"`
}

// Entry is one row of the instructor log.
type Entry struct {
	Record
	Status Status `json:"status"`
	// DistanceMeters is set when both the record and the sheet carry coordinates.
	DistanceMeters *float64 `json:"distance_meters,omitempty"`
}

// EvaluateSubmission is the single decision made for a student's sign-in.
// existing must be loaded fresh for each call.
func EvaluateSubmission(attempt SubmissionAttempt, sheet Sheet, existing KeySet) (Admission, error) {
	return Admit(attempt, sheet, existing)
}

// Summarize tallies records against the sheet's current fence. Statuses are
// recomputed, so editing a fence reclassifies history.
func Summarize(records []Record, sheet Sheet) Summary {
	fence := sheet.Geofence()
	sum := Summary{Total: len(records)}
	for _, r := range records {
		if Classify(r.Location, r.LocationDenied, fence) == StatusVerified {
			sum.Verified++
		}
	}
	sum.Unverified = sum.Total - sum.Verified
	return sum
}

// Review classifies every record for display.
func Review(records []Record, sheet Sheet) []Entry {
	fence := sheet.Geofence()
	entries := make([]Entry, 0, len(records))
	for _, r := range records {
		e := Entry{Record: r, Status: Classify(r.Location, r.LocationDenied, fence)}
		if fence != nil && r.Location != nil {
			d := geo.DistanceMeters(*r.Location, fence.Center)
			e.DistanceMeters = &d
		}
		entries = append(entries, e)
	}
	return entries
}
