package models

import (
	"sort"
	"time"
)

// Outcome summarises a multi-leader operation.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomePartial Outcome = "PARTIAL"
	OutcomeFailed  Outcome = "FAILED"
)

// PropagationReport lists which leaders applied an operation batch.
type PropagationReport struct {
	Succeeded []string          `json:"succeeded"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// NewPropagationReport returns an empty report.
func NewPropagationReport() PropagationReport {
	return PropagationReport{Succeeded: []string{}, Failed: map[string]string{}}
}

// Outcome reports full success, partial success or total failure.
func (r PropagationReport) Outcome() Outcome {
	switch {
	case len(r.Failed) == 0:
		return OutcomeSuccess
	case len(r.Succeeded) == 0:
		return OutcomeFailed
	default:
		return OutcomePartial
	}
}

// Lagging returns the failed leader ids in sorted order.
func (r PropagationReport) Lagging() []string {
	ids := make([]string, 0, len(r.Failed))
	for id := range r.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MergeDirection tells whether rows flowed into or out of the local leader.
type MergeDirection string

const (
	DirectionPull MergeDirection = "pull"
	DirectionPush MergeDirection = "push"
)

// TableMerge is the outcome of one LWW merge of a table in one direction.
type TableMerge struct {
	Table     string         `json:"table"`
	Direction MergeDirection `json:"direction"`
	Imported  int            `json:"imported"`
	Skipped   int            `json:"skipped"`
	Error     string         `json:"error,omitempty"`
}

// RemoteHeal collects the merges performed against one remote leader.
type RemoteHeal struct {
	Leader      string       `json:"leader"`
	Unreachable bool         `json:"unreachable"`
	Error       string       `json:"error,omitempty"`
	Merges      []TableMerge `json:"merges,omitempty"`
}

// Imported sums the rows written by all merges against the remote.
func (r RemoteHeal) Imported() int {
	total := 0
	for _, m := range r.Merges {
		total += m.Imported
	}
	return total
}

// Failed reports whether any merge against the remote failed.
func (r RemoteHeal) Failed() bool {
	if r.Error != "" {
		return true
	}
	for _, m := range r.Merges {
		if m.Error != "" {
			return true
		}
	}
	return false
}

// HealReport is the result of a full heal pass.
type HealReport struct {
	Local      string       `json:"local"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Remotes    []RemoteHeal `json:"remotes"`
}

// Imported sums the rows written during the whole pass.
func (r HealReport) Imported() int {
	total := 0
	for _, remote := range r.Remotes {
		total += remote.Imported()
	}
	return total
}

// Outcome classifies the pass like a propagation.
func (r HealReport) Outcome() Outcome {
	ok, bad := 0, 0
	for _, remote := range r.Remotes {
		if remote.Unreachable || remote.Failed() {
			bad++
			continue
		}
		ok++
	}
	switch {
	case bad == 0:
		return OutcomeSuccess
	case ok == 0:
		return OutcomeFailed
	default:
		return OutcomePartial
	}
}

// LeaderStatus reports connectivity of one leader.
type LeaderStatus struct {
	Leader    string        `json:"leader"`
	Reachable bool          `json:"reachable"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
}
