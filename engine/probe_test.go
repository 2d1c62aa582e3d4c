package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThreadCountBounds(t *testing.T) {
	n := threadCount()
	assert.GreaterOrEqual(t, n, 2)
	assert.LessOrEqual(t, n, 8)
}

func TestClassifyTier(t *testing.T) {
	const gb = 1 << 30
	tests := []struct {
		bytes int64
		want  Tier
	}{
		{int64(0.5 * gb), TierMobile},
		{int64(1.5 * gb), TierIntegrated},
		{int64(3 * gb), TierDiscrete},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, classifyTier(tt.bytes), "classifyTier(%d)", tt.bytes)
	}
}
