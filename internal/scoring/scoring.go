// Package scoring translates report outcomes into eco/civic score deltas
// for the owner's profile.
package scoring

// Outcome is a terminal report disposition that affects scores.
type Outcome string

const (
	OutcomeResolved Outcome = "resolved"
	OutcomeInvalid  Outcome = "invalid"
)

type deltaRow struct {
	eco   int
	civic int
}

// scoreMatrix keys resolved outcomes by severity; invalid reports take a
// flat penalty regardless of severity.
var scoreMatrix = map[string]deltaRow{
	"low":    {eco: 10, civic: 10},
	"medium": {eco: 30, civic: 30},
	"high":   {eco: 50, civic: 50},
}

var invalidPenalty = deltaRow{eco: -40, civic: -40}

// Delta returns the (eco, civic) score adjustment for an outcome and
// severity. A resolved report with a missing or unrecognized severity is
// scored as "low".
func Delta(outcome Outcome, severity string) (eco, civic int) {
	switch outcome {
	case OutcomeResolved:
		row, ok := scoreMatrix[severity]
		if !ok {
			row = scoreMatrix["low"]
		}
		return row.eco, row.civic
	case OutcomeInvalid:
		return invalidPenalty.eco, invalidPenalty.civic
	default:
		return 0, 0
	}
}

// Clamp floors a score at zero after a delta is applied.
func Clamp(score int) int {
	if score < 0 {
		return 0
	}
	return score
}
