// Package trends defines core types shared across the pipeline subsystems.
package trends

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-day format used for row keys and provider queries.
const DateLayout = "2006-01-02"

// FetchKey identifies one request against the search-interest source.
type FetchKey struct {
	Keyword string `json:"keyword"`
	Market  string `json:"market"`
}

func (k FetchKey) String() string {
	return fmt.Sprintf("%s/%s", k.Keyword, k.Market)
}

// DateRange is a closed interval of calendar days, UTC midnights.
type DateRange struct {
	From time.Time
	To   time.Time
}

// RawPoint is one provider date bucket, decoded but not yet validated.
// Value is a pointer so a missing score is distinguishable from zero.
type RawPoint struct {
	Date    string   `json:"date"`
	Value   *float64 `json:"value"`
	Partial bool     `json:"partial,omitempty"`
}

// RawObservation is the provider payload for one FetchKey over a date range.
type RawObservation struct {
	Keyword string     `json:"keyword"`
	Geo     string     `json:"geo"`
	Points  []RawPoint `json:"points"`
}

// Row is one normalized observation: interest score for a keyword in a
// market on a calendar day. Date is always a UTC midnight.
type Row struct {
	Market  string    `json:"market"`
	Keyword string    `json:"keyword"`
	Date    time.Time `json:"date"`
	Score   float64   `json:"interest_score"`
}

// RowKey is the identity of a Row. (market, keyword, date) is unique in the
// merged set and in the target table.
type RowKey struct {
	Market  string
	Keyword string
	Date    string
}

// Key returns the row's identity with the date reduced to a calendar day.
func (r Row) Key() RowKey {
	return RowKey{Market: r.Market, Keyword: r.Keyword, Date: r.Date.UTC().Format(DateLayout)}
}

// RunStatus is the terminal classification of one pipeline run.
type RunStatus string

// Run status values reported to callers and logs.
const (
	RunStatusSuccess        RunStatus = "success"
	RunStatusPartialFailure RunStatus = "partial_failure"
	RunStatusFailed         RunStatus = "failure"
)

// RunOutcome summarizes one pipeline run. It is returned to the caller and
// published, never persisted.
type RunOutcome struct {
	RunID                  string     `json:"run_id"`
	Status                 RunStatus  `json:"status"`
	StartedAt              time.Time  `json:"started_at"`
	FinishedAt             time.Time  `json:"finished_at"`
	RowsFetched            int        `json:"rows_fetched"`
	RowsFilteredIncomplete int        `json:"rows_filtered_incomplete"`
	RowsDeduplicated       int        `json:"rows_deduplicated"`
	RowsLoaded             int        `json:"rows_loaded"`
	FailedPairs            []FetchKey `json:"failed_pairs"`
	Message                string     `json:"message"`
}
