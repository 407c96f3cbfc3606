package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"travel-intel/internal/config"
	"travel-intel/internal/entity"
	"travel-intel/internal/pkg/logger"
	"travel-intel/internal/repository/contract"
	"travel-intel/pkg/cache"
	"travel-intel/pkg/events"
	"travel-intel/pkg/evidence"
	"travel-intel/pkg/hasher"
	"travel-intel/pkg/lock"
	"travel-intel/pkg/merge"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	consolidationStage = "consolidation"
	moduleConsolidate  = "CONSOLIDATION"

	OutcomeCreated   = "created"
	OutcomeUnchanged = "unchanged"
	OutcomeEmpty     = "empty"
	OutcomeCached    = "cached"
	OutcomeFailed    = "failed"
)

var tracer = otel.Tracer("travel-intel/service")

// SkippedSession is a discovered session left out of a run.
type SkippedSession struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// RejectedRecord is a record excluded because its payload could not be hashed.
type RejectedRecord struct {
	EntityID  string `json:"entity_id"`
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// ConsolidationResult is what one run returns. Diff is nil when the dataset
// did not change.
type ConsolidationResult struct {
	Dataset  *entity.ConsolidatedDataset `json:"dataset"`
	Manifest entity.Manifest             `json:"manifest"`
	Diff     *entity.Diff                `json:"diff,omitempty"`
	Skipped  []SkippedSession            `json:"skipped_sessions,omitempty"`
	Rejected []RejectedRecord            `json:"rejected_records,omitempty"`
	Outcome  string                      `json:"outcome"`
}

// RegenerationAdvice tells a producer stage whether its destination needs a fresh run.
type RegenerationAdvice struct {
	Regenerate bool   `json:"regenerate"`
	Reason     string `json:"reason"`
}

// ConsolidationRecorder receives run outcomes, e.g. for Prometheus.
type ConsolidationRecorder interface {
	ObserveConsolidation(destinationID, outcome string, elapsed time.Duration)
	SessionsSkipped(destinationID string, n int)
	RecordsRejected(destinationID string, n int)
	DatasetVersion(destinationID string, version int64)
}

type IConsolidationService interface {
	Consolidate(ctx context.Context, destinationID string) (*ConsolidationResult, error)
	Stats(ctx context.Context, destinationID string) (*entity.ConsolidationStats, error)
	History(ctx context.Context, destinationID string, limit int) ([]*entity.Diff, error)
	ShouldRegenerate(ctx context.Context, destinationID string) (*RegenerationAdvice, error)
}

// ConsolidationDeps are the collaborators of the consolidation engine.
// Cache, Publisher and Recorder are optional.
type ConsolidationDeps struct {
	Index     contract.SessionIndex
	Loader    contract.SessionLoader
	Datasets  contract.DatasetRepository
	Locker    lock.Locker
	Cache     cache.Cache
	Publisher events.Publisher
	Recorder  ConsolidationRecorder
	Logger    logger.ILogger
	Clock     func() time.Time
}

type consolidationService struct {
	deps   ConsolidationDeps
	cfg    config.ConsolidationConfig
	hasher *hasher.Hasher
	now    func() time.Time
}

func NewConsolidationService(deps ConsolidationDeps, cfg config.ConsolidationConfig) IConsolidationService {
	if deps.Logger == nil {
		deps.Logger = logger.NewNopLogger()
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewMemoryLocker()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	var opts []hasher.Option
	if len(cfg.VolatileKeys) > 0 {
		opts = append(opts, hasher.WithVolatileKeys(cfg.VolatileKeys...))
	}
	if cfg.MergeWorkers <= 0 {
		cfg.MergeWorkers = 1
	}
	return &consolidationService{
		deps:   deps,
		cfg:    cfg,
		hasher: hasher.New(opts...),
		now:    func() time.Time { return now().UTC() },
	}
}

func (s *consolidationService) strategyFor(destinationID string) (merge.Strategy, error) {
	name := s.cfg.DefaultStrategy
	if override, ok := s.cfg.StrategyOverrides[destinationID]; ok {
		name = override
	}
	return merge.ParseStrategy(name)
}

// Consolidate merges every discoverable session of a destination into one
// dataset. It holds the destination lock for the whole run.
func (s *consolidationService) Consolidate(ctx context.Context, destinationID string) (result *ConsolidationResult, err error) {
	destinationID = strings.TrimSpace(destinationID)
	if destinationID == "" {
		return nil, errors.New("consolidate: destination id is required")
	}

	ctx, span := tracer.Start(ctx, "ConsolidationService.Consolidate",
		trace.WithAttributes(attribute.String("destination.id", destinationID)),
	)
	start := time.Now()
	defer func() {
		outcome := OutcomeFailed
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			outcome = result.Outcome
			span.SetAttributes(
				attribute.String("consolidation.outcome", outcome),
				attribute.Int64("dataset.version", result.Dataset.VersionSequence),
			)
		}
		if s.deps.Recorder != nil {
			s.deps.Recorder.ObserveConsolidation(destinationID, outcome, time.Since(start))
		}
		span.End()
	}()

	unlock, err := s.deps.Locker.TryLock(ctx, "consolidate:"+destinationID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if uerr := unlock(context.WithoutCancel(ctx)); uerr != nil {
			s.deps.Logger.Warn(moduleConsolidate, "Failed to release consolidation lock", map[string]interface{}{
				"destination_id": destinationID,
				"error":          uerr.Error(),
			})
		}
	}()

	strategy, err := s.strategyFor(destinationID)
	if err != nil {
		return nil, err
	}

	ids, err := s.deps.Index.ListSessions(ctx, destinationID)
	if err != nil {
		return nil, fmt.Errorf("list sessions for %s: %w", destinationID, err)
	}
	previous, err := s.deps.Datasets.Latest(ctx, destinationID)
	if err != nil {
		return nil, fmt.Errorf("load latest dataset for %s: %w", destinationID, err)
	}

	if len(ids) == 0 {
		return s.emptyResult(destinationID, previous, nil), nil
	}

	considered := ids
	if window := s.cfg.MaxSessionsToConsider; window > 0 && len(ids) > window {
		considered = ids[len(ids)-window:]
		s.deps.Logger.Info(moduleConsolidate, "Ignoring older sessions beyond the consideration window", map[string]interface{}{
			"destination_id": destinationID,
			"discovered":     len(ids),
			"considered":     window,
			"oldest_kept":    considered[0],
		})
	}

	previousHash := ""
	if previous != nil {
		previousHash = previous.DatasetHash
	}
	memoKey, err := cache.Key(destinationID, consolidationStage, s.inputHash(considered, strategy, previousHash))
	if err != nil {
		return nil, err
	}
	if hit := s.lookupMemo(ctx, memoKey, previous); hit != nil {
		return hit, nil
	}

	stores, skipped, err := s.loadSessions(ctx, destinationID, considered)
	if err != nil {
		return nil, err
	}
	if len(skipped) > 0 && s.deps.Recorder != nil {
		s.deps.Recorder.SessionsSkipped(destinationID, len(skipped))
	}
	if len(stores) == 0 {
		return s.emptyResult(destinationID, previous, skipped), nil
	}

	candidates, rejected := s.collectCandidates(destinationID, stores, previous)
	if len(rejected) > 0 && s.deps.Recorder != nil {
		s.deps.Recorder.RecordsRejected(destinationID, len(rejected))
	}

	winners, err := s.mergeAll(ctx, strategy, candidates)
	if err != nil {
		return nil, err
	}

	records := make(map[string]entity.Record, len(winners))
	lowQuality := 0
	for _, w := range winners {
		records[w.EntityID] = w
		if w.QualityScore < s.cfg.MinQualityForPreservation {
			lowQuality++
			s.deps.Logger.Warn(moduleConsolidate, "Preserving winner below quality threshold", map[string]interface{}{
				"destination_id": destinationID,
				"entity_id":      w.EntityID,
				"quality_score":  w.QualityScore,
				"threshold":      s.cfg.MinQualityForPreservation,
			})
		}
	}
	datasetHash := DatasetHash(records)

	if previous != nil && previous.DatasetHash == datasetHash {
		s.deps.Logger.Info(moduleConsolidate, "Dataset unchanged", map[string]interface{}{
			"destination_id": destinationID,
			"version":        previous.VersionSequence,
			"dataset_hash":   datasetHash,
		})
		if len(skipped) == 0 {
			s.storeMemo(ctx, memoKey, previous)
		}
		return &ConsolidationResult{
			Dataset:  previous,
			Manifest: previous.Manifest(true),
			Skipped:  skipped,
			Rejected: rejected,
			Outcome:  OutcomeUnchanged,
		}, nil
	}

	dataset := &entity.ConsolidatedDataset{
		DestinationID:       destinationID,
		Records:             records,
		DatasetHash:         datasetHash,
		DerivedFromSessions: derivedFrom(stores, records),
		VersionSequence:     1,
		ProducedAt:          s.now(),
		Strategy:            string(strategy),
		LowQualityRecords:   lowQuality,
		SkippedSessions:     skippedIDs(skipped),
		RejectedEntities:    rejectedIDs(rejected),
	}
	if previous != nil {
		dataset.VersionSequence = previous.VersionSequence + 1
	}
	diff := BuildDiff(previous, dataset)

	if err := s.deps.Datasets.Save(ctx, dataset, diff); err != nil {
		return nil, fmt.Errorf("save dataset %s v%d: %w", destinationID, dataset.VersionSequence, err)
	}
	s.deps.Logger.Info(moduleConsolidate, "Dataset version created", map[string]interface{}{
		"destination_id": destinationID,
		"version":        dataset.VersionSequence,
		"records":        len(records),
		"sessions":       len(dataset.DerivedFromSessions),
		"added":          len(diff.Added),
		"changed":        len(diff.Changed),
		"removed":        len(diff.Removed),
	})

	if s.deps.Recorder != nil {
		s.deps.Recorder.DatasetVersion(destinationID, dataset.VersionSequence)
	}
	s.prune(ctx, destinationID)
	s.publish(ctx, dataset, diff)
	if len(skipped) == 0 {
		s.storeMemo(ctx, memoKey, dataset)
	}

	return &ConsolidationResult{
		Dataset:  dataset,
		Manifest: dataset.Manifest(true),
		Diff:     diff,
		Skipped:  skipped,
		Rejected: rejected,
		Outcome:  OutcomeCreated,
	}, nil
}

// emptyResult answers a run with nothing to merge. Without a stored dataset
// that is the "no data yet" state: version 0, nothing persisted. Otherwise the
// stored dataset stays authoritative and is returned unchanged, with this
// run's skipped sessions on the manifest.
func (s *consolidationService) emptyResult(destinationID string, previous *entity.ConsolidatedDataset, skipped []SkippedSession) *ConsolidationResult {
	details := map[string]interface{}{"destination_id": destinationID, "skipped": len(skipped)}
	if previous != nil {
		details["stored_version"] = previous.VersionSequence
		s.deps.Logger.Warn(moduleConsolidate, "No loadable sessions; keeping the stored dataset", details)

		manifest := previous.Manifest(true)
		if len(skipped) > 0 {
			manifest.SkippedSessions = skippedIDs(skipped)
		}
		return &ConsolidationResult{
			Dataset:  previous,
			Manifest: manifest,
			Skipped:  skipped,
			Outcome:  OutcomeUnchanged,
		}
	}

	s.deps.Logger.Info(moduleConsolidate, "No sessions for destination", details)
	dataset := entity.EmptyDataset(destinationID)
	dataset.DatasetHash = DatasetHash(dataset.Records)
	dataset.ProducedAt = s.now()
	dataset.SkippedSessions = skippedIDs(skipped)
	return &ConsolidationResult{
		Dataset:  dataset,
		Manifest: dataset.Manifest(true),
		Skipped:  skipped,
		Outcome:  OutcomeEmpty,
	}
}

// inputHash covers everything that can change the outcome of a run given the
// previous dataset. Sessions are immutable, so their ids stand for their content.
func (s *consolidationService) inputHash(sessionIDs []string, strategy merge.Strategy, previousHash string) string {
	parts := make([]string, 0, len(sessionIDs)+8)
	parts = append(parts, "sessions")
	parts = append(parts, sessionIDs...)
	parts = append(parts,
		"strategy", string(strategy),
		"previous", previousHash,
		"max_per_domain", strconv.Itoa(s.cfg.MaxEvidencePerDomain),
		"volatile", strings.Join(s.cfg.VolatileKeys, ","),
	)
	return hasher.Sum(parts...)
}

type consolidationMemo struct {
	DatasetHash     string `json:"dataset_hash"`
	VersionSequence int64  `json:"version_sequence"`
}

// lookupMemo short-circuits a run whose inputs were already consolidated into
// the dataset that is still the latest one.
func (s *consolidationService) lookupMemo(ctx context.Context, key string, previous *entity.ConsolidatedDataset) *ConsolidationResult {
	if s.deps.Cache == nil || previous == nil {
		return nil
	}
	raw, ok, err := s.deps.Cache.Get(ctx, key)
	if err != nil || !ok {
		return nil
	}
	var memo consolidationMemo
	if err := json.Unmarshal(raw, &memo); err != nil {
		return nil
	}
	if memo.DatasetHash != previous.DatasetHash || memo.VersionSequence != previous.VersionSequence {
		return nil
	}
	s.deps.Logger.Debug(moduleConsolidate, "Consolidation served from cache", map[string]interface{}{
		"destination_id": previous.DestinationID,
		"version":        previous.VersionSequence,
	})
	return &ConsolidationResult{
		Dataset:  previous,
		Manifest: previous.Manifest(true),
		Outcome:  OutcomeCached,
	}
}

func (s *consolidationService) storeMemo(ctx context.Context, key string, dataset *entity.ConsolidatedDataset) {
	if s.deps.Cache == nil {
		return
	}
	raw, err := json.Marshal(consolidationMemo{DatasetHash: dataset.DatasetHash, VersionSequence: dataset.VersionSequence})
	if err != nil {
		return
	}
	if err := s.deps.Cache.Put(ctx, key, raw, 0); err != nil {
		s.deps.Logger.Warn(moduleConsolidate, "Failed to cache consolidation result", map[string]interface{}{
			"destination_id": dataset.DestinationID,
			"error":          err.Error(),
		})
	}
}

// loadSessions reads the considered sessions in order. A session that cannot
// be read as a whole is skipped; storage failures abort the run.
func (s *consolidationService) loadSessions(ctx context.Context, destinationID string, ids []string) ([]*entity.RecordStore, []SkippedSession, error) {
	var stores []*entity.RecordStore
	var skipped []SkippedSession
	for _, id := range ids {
		store, err := s.deps.Loader.Load(ctx, destinationID, id)
		if err != nil {
			var loadErr *contract.SessionLoadError
			if errors.As(err, &loadErr) {
				s.deps.Logger.Warn(moduleConsolidate, "Skipping unreadable session", map[string]interface{}{
					"destination_id": destinationID,
					"session_id":     id,
					"error":          err.Error(),
				})
				skipped = append(skipped, SkippedSession{SessionID: id, Reason: err.Error()})
				continue
			}
			return nil, nil, fmt.Errorf("load session %s: %w", id, err)
		}
		stores = append(stores, store)
	}
	return stores, skipped, nil
}

// collectCandidates hashes every record and groups them by entity. The
// previous winner of an entity that still appears in a loaded session joins
// its candidates, so a run over a narrower session window cannot replace it
// with a lower-quality record.
func (s *consolidationService) collectCandidates(destinationID string, stores []*entity.RecordStore, previous *entity.ConsolidatedDataset) (map[string][]entity.Record, []RejectedRecord) {
	candidates := map[string][]entity.Record{}
	var rejected []RejectedRecord

	for _, store := range stores {
		for _, rec := range store.All() {
			hash, err := s.hasher.HashRecord(string(rec.Kind), rec.Payload)
			if err != nil {
				s.deps.Logger.Warn(moduleConsolidate, "Rejecting record that cannot be hashed", map[string]interface{}{
					"destination_id": destinationID,
					"session_id":     store.SessionID(),
					"entity_id":      rec.EntityID,
					"error":          err.Error(),
				})
				rejected = append(rejected, RejectedRecord{EntityID: rec.EntityID, SessionID: store.SessionID(), Reason: err.Error()})
				continue
			}
			rec.ContentHash = hash
			candidates[rec.EntityID] = append(candidates[rec.EntityID], rec)
		}
	}

	if previous != nil {
		for id, rec := range previous.Records {
			if _, ok := candidates[id]; !ok {
				continue
			}
			hash, err := s.hasher.HashRecord(string(rec.Kind), rec.Payload)
			if err != nil {
				continue
			}
			rec.ContentHash = hash
			candidates[id] = append(candidates[id], rec)
		}
	}
	return candidates, rejected
}

// mergeAll runs one merge per entity on a bounded worker pool. Winners come
// back ordered by entity id.
func (s *consolidationService) mergeAll(ctx context.Context, strategy merge.Strategy, candidates map[string][]entity.Record) ([]entity.Record, error) {
	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	policy := merge.NewPolicy(strategy, evidence.NewDeduplicator(s.cfg.MaxEvidencePerDomain))
	winners := make([]entity.Record, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MergeWorkers)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			winner, _, err := policy.Merge(candidates[id])
			if err != nil {
				return fmt.Errorf("merge %s: %w", id, err)
			}
			winners[i] = winner
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return winners, nil
}

func (s *consolidationService) prune(ctx context.Context, destinationID string) {
	if s.cfg.MaxVersionsPerDestination <= 0 {
		return
	}
	removed, err := s.deps.Datasets.Prune(ctx, destinationID, s.cfg.MaxVersionsPerDestination)
	if err != nil {
		s.deps.Logger.Warn(moduleConsolidate, "Failed to prune old dataset versions", map[string]interface{}{
			"destination_id": destinationID,
			"error":          err.Error(),
		})
		return
	}
	if removed > 0 {
		s.deps.Logger.Debug(moduleConsolidate, "Pruned old dataset versions", map[string]interface{}{
			"destination_id": destinationID,
			"removed":        removed,
		})
	}
}

func (s *consolidationService) publish(ctx context.Context, dataset *entity.ConsolidatedDataset, diff *entity.Diff) {
	if s.deps.Publisher == nil {
		return
	}
	evt := events.NewDatasetConsolidated(events.DatasetConsolidated{
		DestinationID:   dataset.DestinationID,
		VersionSequence: dataset.VersionSequence,
		DatasetHash:     dataset.DatasetHash,
		Added:           len(diff.Added),
		Changed:         len(diff.Changed),
		Removed:         len(diff.Removed),
	}, dataset.ProducedAt)
	if err := s.deps.Publisher.Publish(ctx, evt); err != nil {
		s.deps.Logger.Warn(moduleConsolidate, "Failed to publish dataset consolidated event", map[string]interface{}{
			"destination_id": dataset.DestinationID,
			"error":          err.Error(),
		})
	}
}

// Stats summarises every discoverable session of a destination, ignoring the
// consideration window.
func (s *consolidationService) Stats(ctx context.Context, destinationID string) (*entity.ConsolidationStats, error) {
	ids, err := s.deps.Index.ListSessions(ctx, destinationID)
	if err != nil {
		return nil, err
	}
	stores, _, err := s.loadSessions(ctx, destinationID, ids)
	if err != nil {
		return nil, err
	}

	stats := &entity.ConsolidationStats{
		DestinationID:  destinationID,
		TotalSessions:  len(ids),
		LoadedSessions: len(stores),
		KindAvailable:  map[entity.EntityKind]int{},
		QualityRanges:  map[entity.EntityKind]entity.QualityRange{},
	}
	sums := map[entity.EntityKind]float64{}
	for _, store := range stores {
		for _, rec := range store.All() {
			stats.KindAvailable[rec.Kind]++
			if !rec.ProducedAt.IsZero() {
				t := rec.ProducedAt
				if stats.OldestRecord == nil || t.Before(*stats.OldestRecord) {
					stats.OldestRecord = &t
				}
				if stats.NewestRecord == nil || t.After(*stats.NewestRecord) {
					stats.NewestRecord = &t
				}
			}
			qr, seen := stats.QualityRanges[rec.Kind]
			if !seen || rec.QualityScore < qr.Min {
				qr.Min = rec.QualityScore
			}
			if !seen || rec.QualityScore > qr.Max {
				qr.Max = rec.QualityScore
			}
			qr.Count++
			sums[rec.Kind] += rec.QualityScore
			stats.QualityRanges[rec.Kind] = qr
		}
	}
	for kind, qr := range stats.QualityRanges {
		qr.Avg = sums[kind] / float64(qr.Count)
		stats.QualityRanges[kind] = qr
	}
	return stats, nil
}

func (s *consolidationService) History(ctx context.Context, destinationID string, limit int) ([]*entity.Diff, error) {
	return s.deps.Datasets.History(ctx, destinationID, limit)
}

// ShouldRegenerate advises a producer stage: regenerate when nothing was
// consolidated yet, when the latest dataset is older than RegenerateAfter, or
// when its average quality is below the preservation threshold.
func (s *consolidationService) ShouldRegenerate(ctx context.Context, destinationID string) (*RegenerationAdvice, error) {
	latest, err := s.deps.Datasets.Latest(ctx, destinationID)
	if err != nil {
		return nil, err
	}
	if latest == nil || len(latest.Records) == 0 {
		return &RegenerationAdvice{Regenerate: true, Reason: "no consolidated dataset"}, nil
	}
	if s.cfg.RegenerateAfter > 0 {
		if age := s.now().Sub(latest.ProducedAt); age > s.cfg.RegenerateAfter {
			return &RegenerationAdvice{Regenerate: true, Reason: fmt.Sprintf("dataset is %s old", age.Round(time.Minute))}, nil
		}
	}
	var sum float64
	for _, rec := range latest.Records {
		sum += rec.QualityScore
	}
	if avg := sum / float64(len(latest.Records)); avg < s.cfg.MinQualityForPreservation {
		return &RegenerationAdvice{Regenerate: true, Reason: fmt.Sprintf("average quality %.2f below %.2f", avg, s.cfg.MinQualityForPreservation)}, nil
	}
	return &RegenerationAdvice{Regenerate: false, Reason: "dataset is fresh"}, nil
}

// DatasetHash digests the winners' entity ids, content hashes and evidence
// keys in entity id order.
func DatasetHash(records map[string]entity.Record) string {
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	parts := make([]string, 0, len(ids)*2)
	for _, id := range ids {
		rec := records[id]
		parts = append(parts, id+"="+rec.ContentHash, strings.Join(evidence.Keys(rec.Evidence), ","))
	}
	return hasher.Sum(parts...)
}

// BuildDiff compares two dataset versions. previous may be nil.
func BuildDiff(previous, next *entity.ConsolidatedDataset) *entity.Diff {
	diff := &entity.Diff{
		DestinationID:   next.DestinationID,
		ToVersion:       next.VersionSequence,
		ToHash:          next.DatasetHash,
		Added:           []entity.DiffEntry{},
		Changed:         []entity.DiffEntry{},
		Removed:         []entity.DiffEntry{},
		EvidenceChanged: []entity.DiffEntry{},
		CreatedAt:       next.ProducedAt,
	}
	old := map[string]entity.Record{}
	if previous != nil {
		diff.FromVersion = previous.VersionSequence
		diff.FromHash = previous.DatasetHash
		old = previous.Records
	}

	for _, id := range next.EntityIDs() {
		cur := next.Records[id]
		prev, existed := old[id]
		entry := entity.DiffEntry{
			EntityID:        id,
			Kind:            cur.Kind,
			NewContentHash:  cur.ContentHash,
			NewSessionID:    cur.SourceSessionID,
			NewEvidenceSize: len(cur.Evidence),
		}
		switch {
		case !existed:
			diff.Added = append(diff.Added, entry)
		case prev.ContentHash != cur.ContentHash:
			fillOld(&entry, prev)
			diff.Changed = append(diff.Changed, entry)
		case !equalStrings(evidence.Keys(prev.Evidence), evidence.Keys(cur.Evidence)):
			fillOld(&entry, prev)
			diff.EvidenceChanged = append(diff.EvidenceChanged, entry)
		}
	}

	removed := make([]string, 0)
	for id := range old {
		if _, ok := next.Records[id]; !ok {
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	for _, id := range removed {
		prev := old[id]
		entry := entity.DiffEntry{EntityID: id, Kind: prev.Kind}
		fillOld(&entry, prev)
		diff.Removed = append(diff.Removed, entry)
	}
	return diff
}

func fillOld(entry *entity.DiffEntry, prev entity.Record) {
	entry.OldContentHash = prev.ContentHash
	entry.OldSessionID = prev.SourceSessionID
	entry.OldEvidenceSize = len(prev.Evidence)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// derivedFrom lists the loaded sessions plus any session a seeded winner still comes from.
func derivedFrom(stores []*entity.RecordStore, records map[string]entity.Record) []string {
	seen := map[string]struct{}{}
	for _, store := range stores {
		seen[store.SessionID()] = struct{}{}
	}
	for _, rec := range records {
		if rec.SourceSessionID != "" {
			seen[rec.SourceSessionID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func skippedIDs(skipped []SkippedSession) []string {
	if len(skipped) == 0 {
		return nil
	}
	out := make([]string, len(skipped))
	for i, s := range skipped {
		out[i] = s.SessionID
	}
	return out
}

func rejectedIDs(rejected []RejectedRecord) []string {
	if len(rejected) == 0 {
		return nil
	}
	seen := map[string]struct{}{}
	out := make([]string, 0, len(rejected))
	for _, r := range rejected {
		if _, ok := seen[r.EntityID]; ok {
			continue
		}
		seen[r.EntityID] = struct{}{}
		out = append(out, r.EntityID)
	}
	sort.Strings(out)
	return out
}
