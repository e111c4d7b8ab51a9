// internal/dice/dice.go
package dice

import "math/rand"

// Count is the fixed number of dice in play. Every session holds exactly
// this many dice at all times.
const Count = 5

// Die is a single die: a face value in [1,6] and a lock flag. Locked dice
// keep their value across rolls until explicitly unlocked.
type Die struct {
	Value  int  `json:"value"`
	Locked bool `json:"locked"`
}

// New returns a fresh set of unlocked dice, each independently uniform in
// [1,6], drawn from the given source. Callers inject the source so tests
// can be deterministic.
func New(r *rand.Rand) [Count]Die {
	var d [Count]Die
	for i := range d {
		d[i] = Die{Value: r.Intn(6) + 1}
	}
	return d
}

// RollUnlocked re-rolls every unlocked die in place and leaves locked dice
// untouched.
func RollUnlocked(r *rand.Rand, d *[Count]Die) {
	for i := range d {
		if !d[i].Locked {
			d[i].Value = r.Intn(6) + 1
		}
	}
}

// Values extracts the five face values, e.g. for the scoring engine.
func Values(d [Count]Die) [Count]int {
	var v [Count]int
	for i := range d {
		v[i] = d[i].Value
	}
	return v
}
