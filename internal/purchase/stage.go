package purchase

// Stage is a step of a purchase attempt. Stages only move forward.
type Stage int

const (
	Idle Stage = iota
	ChainAligning
	LimitChecking
	SemanticsResolving
	GasEstimating
	Submitting
	Confirming
	Succeeded
	RevertedPostMortem
	Failed
)

var stageNames = [...]string{
	Idle:               "idle",
	ChainAligning:      "chain-aligning",
	LimitChecking:      "limit-checking",
	SemanticsResolving: "semantics-resolving",
	GasEstimating:      "gas-estimating",
	Submitting:         "submitting",
	Confirming:         "confirming",
	Succeeded:          "succeeded",
	RevertedPostMortem: "reverted",
	Failed:             "failed",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "unknown"
}

// Terminal reports whether s ends an attempt.
func (s Stage) Terminal() bool {
	return s == Succeeded || s == RevertedPostMortem || s == Failed
}
