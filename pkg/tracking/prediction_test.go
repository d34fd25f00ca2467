package tracking

import (
	"math"
	"testing"
	"time"

	"github.com/unklstewy/flightboard/pkg/adsb"
	"github.com/unklstewy/flightboard/pkg/coordinates"
)

// TestPredictPosition tests basic position prediction.
func TestPredictPosition(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("Zero delta time returns current position", func(t *testing.T) {
		aircraft := adsb.Aircraft{
			Latitude:    35.0,
			Longitude:   -80.0,
			Altitude:    10000.0,
			GroundSpeed: 250.0,
			Track:       90.0,
			LastSeen:    now,
		}

		pred := PredictPosition(aircraft, now)

		if pred.Position.Latitude != 35.0 || pred.Position.Longitude != -80.0 {
			t.Errorf("Expected reported position, got %+v", pred.Position)
		}
		if pred.Confidence != 1.0 {
			t.Errorf("Expected confidence 1.0, got %f", pred.Confidence)
		}
	})

	t.Run("Unknown LastSeen returns current position", func(t *testing.T) {
		aircraft := adsb.Aircraft{Latitude: 35.0, Longitude: -80.0, GroundSpeed: 250.0}
		pred := PredictPosition(aircraft, now)
		if pred.Position.Latitude != 35.0 || pred.Confidence != 1.0 {
			t.Errorf("Expected reported position, got %+v", pred)
		}
	})

	t.Run("Eastbound moves east", func(t *testing.T) {
		aircraft := adsb.Aircraft{
			Latitude:    0.0,
			Longitude:   0.0,
			GroundSpeed: 360.0, // 6 NM per minute
			Track:       90.0,
			LastSeen:    now,
		}

		pred := PredictPosition(aircraft, now.Add(30*time.Second))

		// 3 NM east at the equator
		wantLon := 3 * coordinates.KmPerNauticalMile / (coordinates.EarthRadiusKm * coordinates.DegreesToRadians)
		if math.Abs(pred.Position.Longitude-wantLon) > 0.001 {
			t.Errorf("Expected lon ~%f, got %f", wantLon, pred.Position.Longitude)
		}
		if math.Abs(pred.Position.Latitude) > 1e-9 {
			t.Errorf("Expected latitude unchanged, got %f", pred.Position.Latitude)
		}

		// Confidence should be 0.5 at 30s (1.0 - 30/60)
		if math.Abs(pred.Confidence-0.5) > 0.01 {
			t.Errorf("Expected confidence ~0.5 at 30s, got %f", pred.Confidence)
		}
	})

	t.Run("Beyond the horizon returns reported position", func(t *testing.T) {
		aircraft := adsb.Aircraft{Latitude: 35.0, Longitude: -80.0, GroundSpeed: 250.0, LastSeen: now}
		pred := PredictPosition(aircraft, now.Add(5*time.Minute))
		if pred.Position.Latitude != 35.0 || pred.Confidence != 0 {
			t.Errorf("Expected reported position with zero confidence, got %+v", pred)
		}
	})

	t.Run("Altitude prediction with climb", func(t *testing.T) {
		aircraft := adsb.Aircraft{
			Latitude:     35.0,
			Longitude:    -80.0,
			Altitude:     10000.0,
			GroundSpeed:  250.0,
			VerticalRate: 1000.0, // 1000 fpm climb
			LastSeen:     now,
		}

		pred := PredictPosition(aircraft, now.Add(30*time.Second))
		if math.Abs(pred.AltitudeFt-10500.0) > 1.0 {
			t.Errorf("Expected altitude ~10500, got %f", pred.AltitudeFt)
		}
	})

	t.Run("Altitude doesn't go below ground", func(t *testing.T) {
		aircraft := adsb.Aircraft{
			Latitude:     35.0,
			Longitude:    -80.0,
			Altitude:     200.0,
			GroundSpeed:  120.0,
			VerticalRate: -1000.0,
			LastSeen:     now,
		}

		pred := PredictPosition(aircraft, now.Add(30*time.Second))
		if pred.AltitudeFt != 0 {
			t.Errorf("Expected altitude clamped to 0, got %f", pred.AltitudeFt)
		}
		if pred.Confidence > 0.26 {
			t.Errorf("Expected halved confidence, got %f", pred.Confidence)
		}
	})
}

func TestPredictHorizontalPosition(t *testing.T) {
	tests := []struct {
		name          string
		lat, lon      float64
		speed, track  float64
		deltaT        float64
		wantLatChange float64 // sign only
		wantLonChange float64 // sign only
	}{
		{"North", 35, -80, 300, 0, 10, 1, 0},
		{"South", 35, -80, 300, 180, 10, -1, 0},
		{"East", 35, -80, 300, 90, 10, 0, 1},
		{"West", 35, -80, 300, 270, 10, 0, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lat, lon := predictHorizontalPosition(tt.lat, tt.lon, tt.speed, tt.track, tt.deltaT)
			if tt.wantLatChange != 0 && math.Signbit(lat-tt.lat) != math.Signbit(tt.wantLatChange) {
				t.Errorf("Latitude moved the wrong way: %f -> %f", tt.lat, lat)
			}
			if tt.wantLonChange != 0 && math.Signbit(lon-tt.lon) != math.Signbit(tt.wantLonChange) {
				t.Errorf("Longitude moved the wrong way: %f -> %f", tt.lon, lon)
			}
		})
	}

	t.Run("Longitude wraps at the antimeridian", func(t *testing.T) {
		_, lon := predictHorizontalPosition(0, 179.99, 600, 90, 60)
		if lon > 180 || lon < -180 {
			t.Errorf("Expected normalized longitude, got %f", lon)
		}
		if lon > 0 {
			t.Errorf("Expected wrap to negative longitude, got %f", lon)
		}
	})
}

func TestExtrapolate(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	aircraft := adsb.Aircraft{
		Callsign:    "DLH123",
		Latitude:    50.0,
		Longitude:   8.5,
		Altitude:    12000,
		GroundSpeed: 300,
		Track:       0,
		LastSeen:    now,
	}

	moved := Extrapolate(aircraft, now.Add(12*time.Second))
	if moved.Latitude <= aircraft.Latitude {
		t.Errorf("Expected northward movement, got %f", moved.Latitude)
	}
	if moved.Callsign != "DLH123" || !moved.LastSeen.Equal(now) {
		t.Errorf("Expected other fields preserved, got %+v", moved)
	}
}
