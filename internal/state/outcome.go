package state

// Outcome classifies how a handler disposed of an event.
type Outcome int

const (
	// OutcomeApplied: the event mutated state and was persisted.
	OutcomeApplied Outcome = iota
	// OutcomeSkipped: a referenced entity was absent; nothing was written.
	// Skips are counted per reason because a dropped Mint/Burn/Swap diverges
	// the reconstruction from true on-chain state permanently.
	OutcomeSkipped
	// OutcomeRejected: the event itself is invalid (unknown fee tier,
	// unresolvable token metadata, malformed payload) and was abandoned with
	// an error for the caller.
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// SkipReason names the absent referent behind an OutcomeSkipped.
type SkipReason string

const (
	SkipMissingPool   SkipReason = "missing_pool"
	SkipMissingToken  SkipReason = "missing_token"
	SkipMissingTick   SkipReason = "missing_tick"
	SkipMissingBundle SkipReason = "missing_bundle"
)

// Stats is a point-in-time copy of the engine's event accounting.
type Stats struct {
	Applied  uint64
	Rejected uint64
	Skipped  map[SkipReason]uint64
}

// TotalSkipped sums skips across all reasons.
func (s Stats) TotalSkipped() uint64 {
	var total uint64
	for _, n := range s.Skipped {
		total += n
	}
	return total
}
