// Package tracking extrapolates aircraft positions between feed updates.
package tracking

import (
	"math"
	"time"

	"github.com/unklstewy/flightboard/pkg/adsb"
	"github.com/unklstewy/flightboard/pkg/coordinates"
)

// MaxExtrapolation caps how far ahead a position is projected. Beyond it
// speed and track are too unreliable and the reported position is used.
const MaxExtrapolation = 60 * time.Second

// PredictedPosition is an aircraft's estimated position at a given time.
type PredictedPosition struct {
	// Position is the predicted geographic location
	Position coordinates.Geographic

	// AltitudeFt is the predicted altitude in feet MSL
	AltitudeFt float64

	// PredictionTime is when this prediction is valid
	PredictionTime time.Time

	// Confidence is a measure of prediction reliability (0-1).
	// 1.0 at 0s falling linearly to 0.0 at MaxExtrapolation.
	Confidence float64
}

// PredictPosition estimates where an aircraft is at t, assuming it holds
// its ground speed, track and vertical rate. Aircraft without a LastSeen
// time, or predictions outside (0, MaxExtrapolation], return the reported
// position unchanged.
func PredictPosition(aircraft adsb.Aircraft, t time.Time) PredictedPosition {
	reported := PredictedPosition{
		Position:       aircraft.Position(),
		AltitudeFt:     aircraft.Altitude,
		PredictionTime: t,
		Confidence:     1.0,
	}
	if aircraft.LastSeen.IsZero() || aircraft.GroundSpeed <= 0 {
		return reported
	}

	deltaT := t.Sub(aircraft.LastSeen).Seconds()
	if deltaT <= 0 {
		return reported
	}
	if deltaT > MaxExtrapolation.Seconds() {
		reported.Confidence = 0
		return reported
	}

	lat, lon := predictHorizontalPosition(
		aircraft.Latitude,
		aircraft.Longitude,
		aircraft.GroundSpeed,
		aircraft.Track,
		deltaT,
	)

	// VerticalRate is in feet per minute
	alt := aircraft.Altitude + aircraft.VerticalRate*(deltaT/60.0)
	confidence := 1.0 - deltaT/MaxExtrapolation.Seconds()
	if alt < 0 {
		alt = 0
		confidence *= 0.5
	}

	return PredictedPosition{
		Position:       coordinates.Geographic{Latitude: lat, Longitude: lon},
		AltitudeFt:     alt,
		PredictionTime: t,
		Confidence:     confidence,
	}
}

// Extrapolate returns a copy of aircraft moved to its predicted position at
// t, with LastSeen left untouched.
func Extrapolate(aircraft adsb.Aircraft, t time.Time) adsb.Aircraft {
	p := PredictPosition(aircraft, t)
	aircraft.Latitude = p.Position.Latitude
	aircraft.Longitude = p.Position.Longitude
	aircraft.Altitude = p.AltitudeFt
	return aircraft
}

// predictHorizontalPosition moves a point along a great circle using the
// forward azimuth formula.
func predictHorizontalPosition(lat, lon, speedKnots, trackDeg, deltaT float64) (float64, float64) {
	latRad := lat * coordinates.DegreesToRadians
	lonRad := lon * coordinates.DegreesToRadians
	trackRad := trackDeg * coordinates.DegreesToRadians

	// 1 knot = 1 nautical mile per hour
	distanceKm := speedKnots * coordinates.KmPerNauticalMile * (deltaT / 3600.0)
	angularDistance := distanceKm / coordinates.EarthRadiusKm

	// lat2 = asin(sin(lat1)*cos(d) + cos(lat1)*sin(d)*cos(track))
	newLatRad := math.Asin(
		math.Sin(latRad)*math.Cos(angularDistance) +
			math.Cos(latRad)*math.Sin(angularDistance)*math.Cos(trackRad),
	)

	// lon2 = lon1 + atan2(sin(track)*sin(d)*cos(lat1), cos(d)-sin(lat1)*sin(lat2))
	newLonRad := lonRad + math.Atan2(
		math.Sin(trackRad)*math.Sin(angularDistance)*math.Cos(latRad),
		math.Cos(angularDistance)-math.Sin(latRad)*math.Sin(newLatRad),
	)

	newLat := newLatRad * coordinates.RadiansToDegrees
	newLon := newLonRad * coordinates.RadiansToDegrees

	// Normalize longitude to [-180, 180]
	if newLon > 180.0 {
		newLon -= 360.0
	} else if newLon < -180.0 {
		newLon += 360.0
	}

	return newLat, newLon
}
