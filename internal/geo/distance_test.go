package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want, delta            float64
	}{
		{"same point", 55.7558, 37.6173, 55.7558, 37.6173, 0, 1e-6},
		{"one degree of latitude", 0, 0, 1, 0, 111195, 10},
		{"moscow to saint petersburg", 55.7558, 37.6173, 59.9343, 30.3351, 634000, 3000},
		{"antipodes", 0, 0, 0, 180, 20015087, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			assert.InDelta(t, tt.want, got, tt.delta)
			assert.InDelta(t, got, Distance(tt.lat2, tt.lon2, tt.lat1, tt.lon1), 1e-6)
		})
	}
}
