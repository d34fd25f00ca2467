package coordinates

import (
	"math"
	"testing"
)

// TestDistanceKm tests the haversine distance against known values.
func TestDistanceKm(t *testing.T) {
	tests := []struct {
		name      string
		from      Geographic
		to        Geographic
		want      float64
		tolerance float64
	}{
		{
			name:      "One degree of longitude at the equator",
			from:      Geographic{Latitude: 0, Longitude: 0},
			to:        Geographic{Latitude: 0, Longitude: 1},
			want:      111.19,
			tolerance: 0.01,
		},
		{
			name:      "One degree of latitude",
			from:      Geographic{Latitude: 10, Longitude: 20},
			to:        Geographic{Latitude: 11, Longitude: 20},
			want:      111.19,
			tolerance: 0.01,
		},
		{
			name:      "Same point",
			from:      Geographic{Latitude: 48.1372, Longitude: 11.5756},
			to:        Geographic{Latitude: 48.1372, Longitude: 11.5756},
			want:      0,
			tolerance: 0,
		},
		{
			name:      "Frankfurt to Milan Linate",
			from:      Geographic{Latitude: 50.0333, Longitude: 8.5706},
			to:        Geographic{Latitude: 45.4451, Longitude: 9.2767},
			want:      512,
			tolerance: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceKm(tt.from, tt.to)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("DistanceKm() = %.4f, want %.4f ± %.4f", got, tt.want, tt.tolerance)
			}
		})
	}
}

// TestDistanceSymmetric verifies distance does not depend on argument order.
func TestDistanceSymmetric(t *testing.T) {
	a := Geographic{Latitude: 40.6413, Longitude: -73.7781}
	b := Geographic{Latitude: 51.4700, Longitude: -0.4543}

	if d1, d2 := DistanceKm(a, b), DistanceKm(b, a); math.Abs(d1-d2) > 1e-9 {
		t.Errorf("Expected symmetric distance, got %f and %f", d1, d2)
	}
}

// TestDistanceNauticalMiles checks the km to NM conversion.
func TestDistanceNauticalMiles(t *testing.T) {
	from := Geographic{Latitude: 0, Longitude: 0}
	to := Geographic{Latitude: 1, Longitude: 0}

	got := DistanceNauticalMiles(from, to)
	if math.Abs(got-60.04) > 0.05 {
		t.Errorf("Expected ~60 NM per degree of latitude, got %f", got)
	}
}

// TestBoundingBoxAround tests bounding box construction.
func TestBoundingBoxAround(t *testing.T) {
	t.Run("Equator", func(t *testing.T) {
		box := BoundingBoxAround(Geographic{Latitude: 0, Longitude: 0}, 111)

		if math.Abs(box.LatMin+1) > 1e-9 || math.Abs(box.LatMax-1) > 1e-9 {
			t.Errorf("Expected latitude span ±1°, got %+v", box)
		}
		if math.Abs(box.LonMin+1) > 1e-9 || math.Abs(box.LonMax-1) > 1e-9 {
			t.Errorf("Expected longitude span ±1°, got %+v", box)
		}
	})

	t.Run("Longitude widens with latitude", func(t *testing.T) {
		box := BoundingBoxAround(Geographic{Latitude: 60, Longitude: 10}, 111)

		// cos(60°) = 0.5, so the longitude delta doubles
		if math.Abs((box.LonMax-10)-2) > 1e-9 {
			t.Errorf("Expected longitude delta 2°, got %f", box.LonMax-10)
		}
		if math.Abs((box.LatMax-60)-1) > 1e-9 {
			t.Errorf("Expected latitude delta 1°, got %f", box.LatMax-60)
		}
	})

	t.Run("Zero radius", func(t *testing.T) {
		center := Geographic{Latitude: 47.3769, Longitude: 8.5417}
		box := BoundingBoxAround(center, 0)

		if box.LatMin != box.LatMax || box.LonMin != box.LonMax {
			t.Errorf("Expected zero-area box, got %+v", box)
		}
		if !box.Contains(center) {
			t.Error("Zero-area box should still contain its center")
		}
	})

	t.Run("Contains", func(t *testing.T) {
		box := BoundingBoxAround(Geographic{Latitude: 50, Longitude: 8}, 50)

		if !box.Contains(Geographic{Latitude: 50.2, Longitude: 8.2}) {
			t.Error("Expected nearby point inside box")
		}
		if box.Contains(Geographic{Latitude: 52, Longitude: 8}) {
			t.Error("Expected distant point outside box")
		}
	})
}

// TestBearing tests cardinal bearings.
func TestBearing(t *testing.T) {
	origin := Geographic{Latitude: 0, Longitude: 0}

	tests := []struct {
		name string
		to   Geographic
		want float64
	}{
		{"North", Geographic{Latitude: 1, Longitude: 0}, 0},
		{"East", Geographic{Latitude: 0, Longitude: 1}, 90},
		{"South", Geographic{Latitude: -1, Longitude: 0}, 180},
		{"West", Geographic{Latitude: 0, Longitude: -1}, 270},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Bearing(origin, tt.to)
			if math.Abs(got-tt.want) > 0.01 {
				t.Errorf("Bearing() = %f, want %f", got, tt.want)
			}
		})
	}
}

// TestNormalizeAzimuth tests azimuth normalization.
func TestNormalizeAzimuth(t *testing.T) {
	tests := []struct {
		input float64
		want  float64
	}{
		{0, 0},
		{360, 0},
		{450, 90},
		{-90, 270},
		{-450, 270},
	}

	for _, tt := range tests {
		if got := NormalizeAzimuth(tt.input); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("NormalizeAzimuth(%f) = %f, want %f", tt.input, got, tt.want)
		}
	}
}
