package attendance

import (
	"math"

	"geoattend/internal/geo"
)

// boundaryTolerance is the relative slack allowed at the fence edge, so a point
// computed to sit exactly on the radius is inside whatever its bearing.
const boundaryTolerance = 1e-6

// Classify decides how a submission's location relates to a sheet's fence.
//
// A denied location is never verified. A sheet without a fence verifies
// everything, including submissions that captured no location. A fenced sheet
// needs a location inside the radius; the boundary itself counts as inside.
func Classify(location *geo.Coordinate, locationDenied bool, fence *Geofence) Status {
	if locationDenied {
		return StatusLocationNotShared
	}
	if fence == nil {
		return StatusVerified
	}
	if location == nil {
		return StatusLocationNotShared
	}
	d, r := geo.DistanceMeters(*location, fence.Center), fence.MaxRadiusMeters
	if d <= r || d-r <= boundaryTolerance*math.Max(r, 1) {
		return StatusVerified
	}
	return StatusOutOfBounds
}

