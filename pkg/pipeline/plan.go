// Package pipeline drives the external multi-step processor for one
// sandbox at a time and runs many such units under a bounded worker
// pool.
//
// The step sequence is partitioned into two regimes. Phase 1 steps are
// cheap to restart, so each is invoked and verified individually with
// its own retry budget. Phase 2 is one long contiguous invocation that
// is expensive to restart from scratch, so it runs as a single call
// with a deliberately small retry budget.
package pipeline

// StepPlan is the ordered external step sequence. The partition into
// phases is fixed domain knowledge about the processor, not derived
// from input.
type StepPlan struct {
	// Phase1 steps run one at a time, each retried independently.
	Phase1 []string

	// Phase2Start..Phase2End run as one contiguous invocation.
	Phase2Start string
	Phase2End   string
}

// DefaultPlan returns the Sentinel-1 TOPS interferometry step plan.
func DefaultPlan() StepPlan {
	return StepPlan{
		Phase1: []string{
			"startup",
			"preprocess",
			"computeBaselines",
			"verifyDEM",
			"topo",
			"subsetoverlaps",
			"coarseoffsets",
			"coarseresamp",
			"overlapifg",
			"prepesd",
			"esd",
			"rangecoreg",
			"fineoffsets",
		},
		Phase2Start: "fineresamp",
		Phase2End:   "geocode",
	}
}

// Phase2Label names the contiguous Phase 2 range in logs and failure
// messages.
func (p StepPlan) Phase2Label() string {
	return p.Phase2Start + ".." + p.Phase2End
}
