package harvest

import (
	"time"

	"github.com/Sternrassler/bongard-harvester/pkg/problem"
)

// Summary reports what a run did.
type Summary struct {
	RunID string
	Start problem.ID
	End   problem.ID

	// Dispatched counts problems handed to a worker.
	Dispatched int

	// Completed counts problems with an index row written by this run.
	Completed int

	// Partial counts completed problems with at least one failed image.
	Partial int

	// AlreadyIndexed counts IDs skipped because the index already had them.
	AlreadyIndexed int

	// Skipped counts failed problems by kind.
	Skipped map[problem.Kind]int

	// Cancelled is true when the run stopped before dispatching every ID.
	Cancelled bool

	Duration time.Duration
}

func newSummary(runID string, start, end problem.ID) Summary {
	return Summary{
		RunID:   runID,
		Start:   start,
		End:     end,
		Skipped: make(map[problem.Kind]int),
	}
}

// SkippedTotal returns the number of failed problems.
func (s Summary) SkippedTotal() int {
	n := 0
	for _, c := range s.Skipped {
		n += c
	}
	return n
}
