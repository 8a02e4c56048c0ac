package feepolicy

import "math"

// Platform keeps 30% of every verification fee; the reviewing party gets
// the remainder. The reviewer share is derived by subtraction so the two
// shares always reconcile to the fee exactly.
const platformRate = 0.30

// Verification fee schedule in minor currency units, by level. Levels 2 and
// 3 exist in the schedule even while the surface layer reports them as not
// yet enabled.
var feeSchedule = map[int]int64{
	0: 0,
	1: 5000,
	2: 15000,
	3: 50000,
}

const (
	MinLevel = 0
	MaxLevel = 3
)

// ExpertSpecialtyCount is the size of the Level-3 expert panel.
const ExpertSpecialtyCount = 4

// Split divides a fee between platform and reviewer.
func Split(fee int64) (platformShare, reviewerShare int64) {
	if fee <= 0 {
		return 0, 0
	}
	platformShare = int64(math.Round(float64(fee) * platformRate))
	reviewerShare = fee - platformShare
	return platformShare, reviewerShare
}

// FeeForLevel returns the scheduled fee for a verification level, or ok=false
// for levels outside the schedule.
func FeeForLevel(level int) (fee int64, ok bool) {
	fee, ok = feeSchedule[level]
	return fee, ok
}

// LevelEnabled reports whether requests at the given level are accepted.
func LevelEnabled(level int) bool {
	return level == 0 || level == 1 || level == 3
}

// ExpertFees splits a Level-3 fee evenly across the four panel specialties.
// Any division remainder lands on the first specialty so the four fees sum
// back to the full fee.
func ExpertFees(fee int64) [ExpertSpecialtyCount]int64 {
	var fees [ExpertSpecialtyCount]int64
	if fee <= 0 {
		return fees
	}
	each := fee / ExpertSpecialtyCount
	remainder := fee - each*ExpertSpecialtyCount
	for i := range fees {
		fees[i] = each
	}
	fees[0] += remainder
	return fees
}
