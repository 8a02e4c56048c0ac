package feepolicy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_ReconcilesExactly(t *testing.T) {
	fees := []int64{0, 1, 2, 3, 99, 100, 101, 4999, 5000, 15000, 50000, 123457, 999999999}
	for _, fee := range fees {
		platform, reviewer := Split(fee)
		assert.Equal(t, fee, platform+reviewer, "fee=%d", fee)
		assert.GreaterOrEqual(t, platform, int64(0))
		assert.GreaterOrEqual(t, reviewer, int64(0))
	}
}

func TestSplit_Level1Schedule(t *testing.T) {
	platform, reviewer := Split(5000)
	assert.Equal(t, int64(1500), platform)
	assert.Equal(t, int64(3500), reviewer)
}

func TestFeeForLevel(t *testing.T) {
	cases := []struct {
		level int
		fee   int64
	}{
		{0, 0},
		{1, 5000},
		{2, 15000},
		{3, 50000},
	}
	for _, tc := range cases {
		fee, ok := FeeForLevel(tc.level)
		require.True(t, ok, "level %d", tc.level)
		assert.Equal(t, tc.fee, fee)
	}

	_, ok := FeeForLevel(4)
	assert.False(t, ok)
	_, ok = FeeForLevel(-1)
	assert.False(t, ok)
}

func TestExpertFees_SumToFee(t *testing.T) {
	for _, fee := range []int64{0, 1, 2, 3, 50000, 50001, 50002, 50003} {
		fees := ExpertFees(fee)
		var sum int64
		for _, f := range fees {
			sum += f
		}
		assert.Equal(t, fee, sum, "fee=%d", fee)
	}
}

func TestLevelEnabled(t *testing.T) {
	assert.True(t, LevelEnabled(0))
	assert.True(t, LevelEnabled(1))
	assert.False(t, LevelEnabled(2))
	assert.True(t, LevelEnabled(3))
}
