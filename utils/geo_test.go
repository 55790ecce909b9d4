package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineKm(t *testing.T) {
	tests := []struct {
		name     string
		lng1     float64
		lat1     float64
		lng2     float64
		lat2     float64
		expected float64
		delta    float64
	}{
		{"same point", 77.5946, 12.9716, 77.5946, 12.9716, 0, 0.0001},
		{"one degree of latitude", 0, 0, 0, 1, 111.19, 0.1},
		{"bangalore to mysore", 77.5946, 12.9716, 76.6394, 12.2958, 127.9, 1.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineKm(tt.lng1, tt.lat1, tt.lng2, tt.lat2)
			assert.InDelta(t, tt.expected, got, tt.delta)
		})
	}
}

func TestEstimateMinutes(t *testing.T) {
	assert.Equal(t, 0, EstimateMinutes(0))
	assert.Equal(t, 1, EstimateMinutes(0.01))
	assert.Equal(t, 60, EstimateMinutes(AverageSpeedKmh))
	assert.Equal(t, 24, EstimateMinutes(10))
}

func TestRoundTo(t *testing.T) {
	assert.Equal(t, 12.35, RoundTo(12.3456, 2))
	assert.Equal(t, 12.0, RoundTo(12.0001, 1))
}
