package history

import (
	"errors"
	"fmt"

	"inspection-platform/internal/workflow"
)

var ErrBrokenChain = errors.New("history: broken status chain")

// Replay walks records in order and returns the status chain they describe,
// starting with the creation status. It fails on a seq gap, a record whose
// previous status does not match the prior new status, or an unknown status.
func Replay(records []Record) ([]workflow.Status, error) {
	if len(records) == 0 {
		return nil, nil
	}
	chain := make([]workflow.Status, 0, len(records))
	var prev workflow.Status
	for i, r := range records {
		if r.Seq != int64(i+1) {
			return chain, fmt.Errorf("%w: record %s has seq %d, want %d", ErrBrokenChain, r.ID, r.Seq, i+1)
		}
		if !r.NewStatus.Valid() {
			return chain, fmt.Errorf("%w: record %s has unknown status %q", ErrBrokenChain, r.ID, r.NewStatus)
		}
		if r.PreviousStatus != prev {
			return chain, fmt.Errorf("%w: seq %d starts from %q, previous record ended at %q", ErrBrokenChain, r.Seq, r.PreviousStatus, prev)
		}
		chain = append(chain, r.NewStatus)
		prev = r.NewStatus
	}
	return chain, nil
}

// Report is the outcome of verifying a ledger against the stored case status.
type Report struct {
	Records  int               `json:"records"`
	Final    workflow.Status   `json:"final"`
	Expected workflow.Status   `json:"expected"`
	Chain    []workflow.Status `json:"chain"`
	OK       bool              `json:"ok"`
	Problem  string            `json:"problem,omitempty"`
}

// Verify replays records and checks the chain ends at current.
func Verify(records []Record, current workflow.Status) Report {
	rep := Report{Records: len(records), Expected: current}
	chain, err := Replay(records)
	rep.Chain = chain
	if len(chain) > 0 {
		rep.Final = chain[len(chain)-1]
	}
	switch {
	case err != nil:
		rep.Problem = err.Error()
	case len(records) == 0:
		rep.Problem = "no history recorded"
	case rep.Final != current:
		rep.Problem = fmt.Sprintf("ledger ends at %s but case is %s", rep.Final, current)
	default:
		rep.OK = true
	}
	return rep
}
