package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name        string
		oldPrice    float64
		newPrice    float64
		significant bool
		delta       float64
	}{
		{name: "identical", oldPrice: 100.00, newPrice: 100.00, significant: false},
		{name: "within epsilon", oldPrice: 100.00, newPrice: 100.005, significant: false},
		{name: "small increase", oldPrice: 100.00, newPrice: 100.02, significant: true, delta: 0.02},
		{name: "large decrease", oldPrice: 100.00, newPrice: 90.00, significant: true, delta: -10.00},
		{name: "exactly epsilon", oldPrice: 50.00, newPrice: 50.01, significant: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			change, ok := Detect(tt.oldPrice, tt.newPrice)
			assert.Equal(t, tt.significant, ok)
			if tt.significant {
				assert.Equal(t, tt.oldPrice, change.Old)
				assert.Equal(t, tt.newPrice, change.New)
				assert.InDelta(t, tt.delta, change.Delta, 1e-9)
			}
		})
	}
}
