package domain

import (
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultSyncLogLimit = 50
	MaxSyncLogLimit     = 200
)

// SyncLogEntry records one pull or push attempt. It is written once and never updated.
type SyncLogEntry struct {
	ID            string        `json:"id"`
	BranchID      string        `json:"branchId"`
	Direction     SyncDirection `json:"direction"`
	Status        SyncStatus    `json:"status"`
	RecordsPulled int           `json:"recordsPulled"`
	RecordsPushed int           `json:"recordsPushed"`
	ErrorMessage  *string       `json:"errorMessage"`
	StartedAt     time.Time     `json:"startedAt"`
	FinishedAt    time.Time     `json:"finishedAt"`
}

// Fail marks the entry failed with the given message.
func (e *SyncLogEntry) Fail(message string) {
	e.Status = SyncStatusFailed
	e.ErrorMessage = &message
}

// SyncOutcomeCount is one (direction, status) bucket of the ledger.
type SyncOutcomeCount struct {
	Direction SyncDirection
	Status    SyncStatus
	Count     int
}

type DirectionSummary struct {
	Total       int     `json:"total"`
	Success     int     `json:"success"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"successRate"`
}

type SyncSummary struct {
	Push DirectionSummary `json:"push"`
	Pull DirectionSummary `json:"pull"`
}

// Summarize folds ledger buckets into per-direction totals.
func Summarize(counts []SyncOutcomeCount) SyncSummary {
	var s SyncSummary
	for _, c := range counts {
		var d *DirectionSummary
		switch c.Direction {
		case SyncDirectionPush:
			d = &s.Push
		case SyncDirectionPull:
			d = &s.Pull
		default:
			continue
		}
		d.Total += c.Count
		switch c.Status {
		case SyncStatusSuccess:
			d.Success += c.Count
		case SyncStatusFailed:
			d.Failed += c.Count
		}
	}
	s.Push.SuccessRate = successRate(s.Push)
	s.Pull.SuccessRate = successRate(s.Pull)
	return s
}

func successRate(d DirectionSummary) float64 {
	if d.Total == 0 {
		return 0
	}
	return math.Round(float64(d.Success)/float64(d.Total)*100*100) / 100
}

// ParseLimit reads a limit from a query string, defaulting to 50 and
// clamping to [1, 200].
func ParseLimit(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return DefaultSyncLogLimit
	}
	return ClampLimit(n)
}

func ClampLimit(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxSyncLogLimit {
		return MaxSyncLogLimit
	}
	return n
}
