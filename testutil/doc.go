// Package testutil provides testing utilities for walset.
//
// This package is intended for use in tests only. It generates seeded,
// reproducible WAL lifecycles together with the state they must produce.
//
// # Random Histories
//
//	rng := testutil.NewRNG(seed)
//	h := rng.History(500)
//	for _, step := range h.Steps {
//	    require.NoError(t, step.Apply(set))
//	}
//	assert.Equal(t, h.Entries(), set.Wals())
//
// # Invalid Transitions
//
//	step, ok := rng.InvalidStep(h)
//	err := step.Apply(set) // corruption, set unchanged
package testutil
