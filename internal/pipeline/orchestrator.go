// Package pipeline sequences the fetch-merge-filter-dedupe-load run.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trendsync/internal/metrics"
	"trendsync/internal/trends"
)

// Stage names for run logging. A run moves through them in order; per-pair
// failures during fetching never block progression.
const (
	stageFetching  = "fetching"
	stageMerging   = "merging"
	stageFiltering = "filtering"
	stageDeduping  = "deduping"
	stageLoading   = "loading"
)

// Fetcher retrieves one raw observation per keyword/market pair.
type Fetcher interface {
	Fetch(ctx context.Context, key trends.FetchKey, window trends.DateRange) (trends.RawObservation, error)
}

// Normalizer converts raw observations into normalized rows.
type Normalizer interface {
	Normalize(key trends.FetchKey, raw trends.RawObservation) ([]trends.Row, error)
}

// Config fixes the key space and windows for every run of this orchestrator.
type Config struct {
	Keywords        []string
	Markets         []string
	FetchWindowDays int
	ExclusionDays   int
	OutcomeTopic    string
	ArchivePrefix   string
}

// Orchestrator owns one run at a time: it derives the FetchKey cross-product
// from configuration, drives the stages, and aggregates per-pair failures
// into the run outcome.
type Orchestrator struct {
	fetcher    Fetcher
	normalizer Normalizer
	store      trends.Store
	archiver   trends.Archiver
	publisher  trends.Publisher
	clock      trends.Clock
	cfg        Config
	logger     *zap.Logger
}

// New constructs an Orchestrator. Archiver and publisher are optional;
// store, fetcher, normalizer and clock are not.
func New(
	fetcher Fetcher,
	normalizer Normalizer,
	store trends.Store,
	archiver trends.Archiver,
	publisher trends.Publisher,
	clock trends.Clock,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		fetcher:    fetcher,
		normalizer: normalizer,
		store:      store,
		archiver:   archiver,
		publisher:  publisher,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run executes one full pipeline pass and returns its outcome. The returned
// error is non-nil only for fatal failures (cancellation mid-fetch, dedup
// snapshot read, store write); per-pair failures degrade the status to
// partial_failure instead.
func (o *Orchestrator) Run(ctx context.Context) (trends.RunOutcome, error) {
	started := o.clock.Now()
	outcome := trends.RunOutcome{
		RunID:       uuid.NewString(),
		Status:      trends.RunStatusSuccess,
		StartedAt:   started,
		FailedPairs: []trends.FetchKey{},
	}
	logger := o.logger.With(zap.String("run_id", outcome.RunID))

	asOf := startOfDay(started)
	window := trends.DateRange{From: asOf.AddDate(0, 0, -o.cfg.FetchWindowDays), To: asOf}
	logger.Info("run started",
		zap.Time("as_of", asOf),
		zap.Time("window_from", window.From),
		zap.Int("pairs", len(o.cfg.Keywords)*len(o.cfg.Markets)),
	)

	batches, err := o.fetchAll(ctx, logger, window, &outcome)
	if err != nil {
		return o.finish(ctx, logger, outcome, trends.RunStatusFailed, "run canceled during fetch"), err
	}

	logger.Debug("stage complete", zap.String("stage", stageMerging))
	merged := Merge(batches)

	kept := FilterComplete(merged, asOf, o.cfg.ExclusionDays)
	outcome.RowsFilteredIncomplete = len(merged) - len(kept)
	logger.Debug("stage complete", zap.String("stage", stageFiltering),
		zap.Int("rows_kept", len(kept)), zap.Int("rows_dropped", outcome.RowsFilteredIncomplete))

	delta := kept
	if len(kept) > 0 {
		from, to := dateBounds(kept)
		existing, err := o.store.ExistingKeys(ctx, from, to)
		if err != nil {
			// Cannot determine novelty without the snapshot; loading blind
			// would risk duplicates.
			return o.finish(ctx, logger, outcome, trends.RunStatusFailed, "existing-key snapshot failed"),
				fmt.Errorf("existing-key snapshot: %w", err)
		}
		delta = Dedupe(kept, existing)
	}
	outcome.RowsDeduplicated = len(kept) - len(delta)
	logger.Debug("stage complete", zap.String("stage", stageDeduping),
		zap.Int("delta_rows", len(delta)))

	if len(delta) == 0 {
		outcome.Message = "no new data"
	} else {
		loaded, err := o.store.AppendRows(ctx, delta)
		if err != nil {
			// Fatal and not retried: a blind retry against an append-only
			// store duplicates rows if the first attempt partially landed.
			return o.finish(ctx, logger, outcome, trends.RunStatusFailed, "store write failed"),
				fmt.Errorf("%s: append rows: %w", stageLoading, err)
		}
		outcome.RowsLoaded = loaded
		outcome.Message = fmt.Sprintf("loaded %d rows", loaded)
		metrics.AddRowsLoaded(loaded)
	}

	status := trends.RunStatusSuccess
	if len(outcome.FailedPairs) > 0 {
		status = trends.RunStatusPartialFailure
		outcome.Message = fmt.Sprintf("%s (%d pairs failed)", outcome.Message, len(outcome.FailedPairs))
	}
	return o.finish(ctx, logger, outcome, status, outcome.Message), nil
}

// fetchAll iterates the cross-product keyword-major, market-minor, both sets
// sorted, so logs and backoff timing are stable run to run. A non-nil error
// means the run context ended; pair failures are recorded, not returned.
func (o *Orchestrator) fetchAll(
	ctx context.Context,
	logger *zap.Logger,
	window trends.DateRange,
	outcome *trends.RunOutcome,
) ([][]trends.Row, error) {
	keys := o.fetchKeys()
	batches := make([][]trends.Row, 0, len(keys))

	for _, key := range keys {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", stageFetching, ctx.Err())
		}

		raw, err := o.fetcher.Fetch(ctx, key, window)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%s: %w", stageFetching, ctx.Err())
			}
			logger.Warn("pair fetch failed",
				zap.String("keyword", key.Keyword),
				zap.String("market", key.Market),
				zap.Error(err),
			)
			metrics.ObservePairFailure("fetch")
			outcome.FailedPairs = append(outcome.FailedPairs, key)
			continue
		}

		o.archiveRaw(ctx, logger, outcome.RunID, key, raw)

		rows, err := o.normalizer.Normalize(key, raw)
		if err != nil {
			logger.Warn("pair normalize failed",
				zap.String("keyword", key.Keyword),
				zap.String("market", key.Market),
				zap.Error(err),
			)
			metrics.ObservePairFailure("normalize")
			outcome.FailedPairs = append(outcome.FailedPairs, key)
			continue
		}

		outcome.RowsFetched += len(rows)
		batches = append(batches, rows)
	}
	return batches, nil
}

// fetchKeys derives the deterministic FetchKey sequence for one run.
func (o *Orchestrator) fetchKeys() []trends.FetchKey {
	keywords := append([]string(nil), o.cfg.Keywords...)
	markets := append([]string(nil), o.cfg.Markets...)
	sort.Strings(keywords)
	sort.Strings(markets)

	keys := make([]trends.FetchKey, 0, len(keywords)*len(markets))
	for _, kw := range keywords {
		for _, m := range markets {
			keys = append(keys, trends.FetchKey{Keyword: kw, Market: m})
		}
	}
	return keys
}

// archiveRaw stores the raw payload for audit/replay. Best effort: a failed
// archive never fails the pair.
func (o *Orchestrator) archiveRaw(ctx context.Context, logger *zap.Logger, runID string, key trends.FetchKey, raw trends.RawObservation) {
	if o.archiver == nil {
		return
	}
	data, err := json.Marshal(raw)
	if err != nil {
		logger.Warn("marshal raw payload failed", zap.String("pair", key.String()), zap.Error(err))
		return
	}
	path := fmt.Sprintf("%s/%s/%s-%s.json", o.cfg.ArchivePrefix, runID, key.Keyword, key.Market)
	if _, err := o.archiver.PutObject(ctx, path, "application/json", data); err != nil {
		logger.Warn("archive raw payload failed", zap.String("path", path), zap.Error(err))
	}
}

// finish stamps the outcome, emits metrics and logs, and publishes it.
func (o *Orchestrator) finish(ctx context.Context, logger *zap.Logger, outcome trends.RunOutcome, status trends.RunStatus, message string) trends.RunOutcome {
	outcome.Status = status
	outcome.Message = message
	outcome.FinishedAt = o.clock.Now()
	metrics.ObserveRun(string(status), outcome.FinishedAt.Sub(outcome.StartedAt))

	logger.Info("run finished",
		zap.String("status", string(status)),
		zap.Int("rows_fetched", outcome.RowsFetched),
		zap.Int("rows_filtered_incomplete", outcome.RowsFilteredIncomplete),
		zap.Int("rows_deduplicated", outcome.RowsDeduplicated),
		zap.Int("rows_loaded", outcome.RowsLoaded),
		zap.Int("failed_pairs", len(outcome.FailedPairs)),
		zap.String("message", message),
	)

	o.publishOutcome(ctx, logger, outcome)
	return outcome
}

// publishOutcome notifies downstream consumers. Best effort.
func (o *Orchestrator) publishOutcome(ctx context.Context, logger *zap.Logger, outcome trends.RunOutcome) {
	if o.publisher == nil || o.cfg.OutcomeTopic == "" {
		return
	}
	if _, err := o.publisher.Publish(ctx, o.cfg.OutcomeTopic, outcome); err != nil {
		logger.Warn("publish run outcome failed", zap.Error(err))
	}
}

// dateBounds returns the min and max dates present in rows, bounding the
// existing-key snapshot query.
func dateBounds(rows []trends.Row) (time.Time, time.Time) {
	minD, maxD := rows[0].Date, rows[0].Date
	for _, row := range rows[1:] {
		if row.Date.Before(minD) {
			minD = row.Date
		}
		if row.Date.After(maxD) {
			maxD = row.Date
		}
	}
	return minD, maxD
}
