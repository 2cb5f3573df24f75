package priceimport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/priceimport/internal/domain/extraction"
	"github.com/erp/priceimport/internal/domain/pricing"
	"github.com/erp/priceimport/internal/domain/shared"
	"github.com/erp/priceimport/internal/infrastructure/logger"
	"github.com/erp/priceimport/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultLockTTL bounds how long a crashed run can block a product
const DefaultLockTTL = 15 * time.Minute

// MatrixProvider names the matrix scraper in extraction records
const MatrixProvider = "matrix"

// Pipeline stage names used in metrics
const (
	stageExtract   = "extract"
	stageBuild     = "build"
	stageTransform = "transform"
	stageInfer     = "infer"
	stageMap       = "map"
	stageReconcile = "reconcile"
)

// RunOptions controls one run
type RunOptions struct {
	// DryRun stops after the snapshot, before any catalog write
	DryRun bool
	// RunID tags logs and snapshots; a random one is used when empty
	RunID string
}

// Service runs imports end to end. Runs are sequential; one Service may be
// reused for several plans.
type Service struct {
	extractor  Extractor
	matrix     extraction.MatrixScraper
	reconciler *Reconciler
	locker     ProductLocker
	lockTTL    time.Duration
	snapshots  SnapshotWriter
	metrics    *telemetry.ImportMetrics
	maxSkipped int
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithMatrixScraper enables matrix-mode plans
func WithMatrixScraper(m extraction.MatrixScraper) Option {
	return func(s *Service) {
		s.matrix = m
	}
}

// WithLocker serializes runs per product. ttl <= 0 uses DefaultLockTTL.
func WithLocker(l ProductLocker, ttl time.Duration) Option {
	return func(s *Service) {
		s.locker = l
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithSnapshots writes a snapshot of every run
func WithSnapshots(w SnapshotWriter) Option {
	return func(s *Service) {
		s.snapshots = w
	}
}

// WithMetrics records run metrics
func WithMetrics(m *telemetry.ImportMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithMaxSkippedErrors caps the skipped rows kept in reports and snapshots
func WithMaxSkippedErrors(n int) Option {
	return func(s *Service) {
		s.maxSkipped = n
	}
}

// NewService creates a Service
func NewService(extractor Extractor, reconciler *Reconciler, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		extractor:  extractor,
		reconciler: reconciler,
		lockTTL:    DefaultLockTTL,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LockKey is the lock held while a product's rows are rewritten
func LockKey(plan *Plan) string {
	return fmt.Sprintf("priceimport:%s:%s", plan.TenantID, plan.Product.Slug)
}

// source is the item list of one material
type source struct {
	label string
	items []string
}

// Run extracts, parses, transforms, infers, maps and, unless DryRun is
// set, reconciles one plan. The report is returned even on failure and
// holds whatever the run got through.
func (s *Service) Run(ctx context.Context, plan *Plan, opts RunOptions) (*Report, error) {
	start := s.now()
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	ctx, log := logger.WithRun(ctx, s.logger, opts.RunID, plan.TenantID.String(), plan.Product.Slug)
	ctx, span := telemetry.StartServiceSpan(ctx, "priceimport", "run",
		telemetry.WithAttribute(telemetry.SpanAttrProductSlug, plan.Product.Slug),
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, plan.TenantID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrDryRun, opts.DryRun),
	)
	defer span.End()
	log = logger.WithTraceContext(ctx, log)

	report := &Report{
		RunID:  opts.RunID,
		Slug:   plan.Product.Slug,
		Mode:   plan.Mode,
		DryRun: opts.DryRun,
	}
	log.Info("import started", zap.String("mode", string(plan.Mode)), zap.Bool("dry_run", opts.DryRun))

	err := s.run(ctx, log, plan, opts, report)
	report.Duration = s.now().Sub(start)

	outcome := telemetry.OutcomeSuccess
	switch {
	case err != nil:
		outcome = telemetry.OutcomeFailure
		telemetry.RecordError(span, err)
		log.Error("import failed", zap.Error(err), zap.Duration("duration", report.Duration))
	case opts.DryRun:
		outcome = telemetry.OutcomeDryRun
		telemetry.SetOK(span)
		log.Info("dry run finished", zap.Int("rows", report.MappedRows), zap.Duration("duration", report.Duration))
	default:
		telemetry.SetOK(span)
		log.Info("import finished", zap.Int("rows", report.MappedRows), zap.Duration("duration", report.Duration))
	}
	s.metrics.RecordRun(ctx, outcome, report.Duration)
	return report, err
}

func (s *Service) run(ctx context.Context, log *zap.Logger, plan *Plan, opts RunOptions, report *Report) error {
	skipped := pricing.NewErrorCollection(s.maxSkipped)
	snap := &Snapshot{
		RunID:      opts.RunID,
		TenantID:   plan.TenantID.String(),
		Slug:       plan.Product.Slug,
		CreatedAt:  s.now().UTC(),
		Mode:       plan.Mode,
		Descriptor: plan.Source,
	}

	started := s.now()
	sources, err := s.extract(ctx, log, plan, snap, report)
	if err != nil {
		return err
	}
	s.recordStage(ctx, stageExtract, len(sources), started)

	started = s.now()
	var rows []pricing.SourceRow
	for _, src := range sources {
		built := pricing.BuildSourceRows(src.items, src.label, plan.RowOptions)
		rows = append(rows, built.Rows...)
		skipped.Merge(built.Skipped)
	}
	report.ParsedRows = len(rows)
	s.recordStage(ctx, stageBuild, len(rows), started)

	started = s.now()
	transformed := plan.Transformer.TransformRows(rows)
	s.recordStage(ctx, stageTransform, len(transformed), started)

	started = s.now()
	transformed = pricing.FillMissingQuantities(transformed, plan.Quantities)
	transformed = pricing.DedupeRows(transformed)
	for _, r := range transformed {
		if r.IsInferred() {
			report.InferredRows++
		}
	}
	s.recordStage(ctx, stageInfer, len(transformed), started)

	started = s.now()
	mapped := MapRows(plan, transformed, skipped)
	report.MappedRows = len(mapped)
	report.SkippedRows = skipped.TotalCount()
	report.SkippedByCode = skipped.ErrorSummary()
	s.recordStage(ctx, stageMap, len(mapped), started)

	for _, e := range skipped.Errors() {
		log.Debug("row skipped",
			zap.Int("index", e.SourceIndex),
			zap.String("material", e.Material),
			zap.String("code", e.Code),
			zap.String("text", e.Text),
		)
	}
	if skipped.HasErrors() {
		log.Warn("rows skipped", zap.Int("count", skipped.TotalCount()), zap.Any("by_code", report.SkippedByCode))
	}

	snap.Skipped = skipped.Errors()
	snap.Transformed = transformed
	snap.Mapped = mapped
	s.writeSnapshot(ctx, log, snap, report)

	if len(mapped) == 0 {
		return fmt.Errorf("%w: %d item(s) skipped", pricing.ErrNoRowsParsed, skipped.TotalCount())
	}
	if opts.DryRun {
		return nil
	}
	if s.reconciler == nil {
		return fmt.Errorf("%w: no catalog reconciler for a writing run", shared.ErrInvalidConfiguration)
	}

	if s.locker != nil {
		key := LockKey(plan)
		token, err := s.locker.TryLock(ctx, key, s.lockTTL)
		if err != nil {
			return fmt.Errorf("lock %s: %w", key, err)
		}
		defer func() {
			if err := s.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
				log.Warn("failed to release import lock", zap.String("key", key), zap.Error(err))
			}
		}()
	}

	started = s.now()
	result, err := s.reconciler.Reconcile(ctx, ReconcileInput{Plan: plan, Rows: mapped})
	report.Reconcile = result
	if err != nil {
		return err
	}
	s.recordStage(ctx, stageReconcile, result.PriceRows, started)
	return nil
}

// extract reads the items of every material. Chain-mode sources sharing a
// URL and selector are fetched once.
func (s *Service) extract(ctx context.Context, log *zap.Logger, plan *Plan, snap *Snapshot, report *Report) ([]source, error) {
	switch plan.Mode {
	case SourceModeMatrix:
		return s.extractMatrix(ctx, log, plan, snap, report)
	case SourceModeChain:
	default:
		return nil, fmt.Errorf("%w: unknown source mode %q", shared.ErrInvalidConfiguration, plan.Mode)
	}

	fetched := make(map[string]*extraction.Result)
	out := make([]source, 0, len(plan.Materials))
	for _, m := range plan.Materials {
		key := m.URL + " " + m.Selector.String()
		res, ok := fetched[key]
		if !ok {
			var err error
			res, err = s.extractor.Extract(ctx, m.URL, m.Selector)
			s.recordAttempts(ctx, res, err)
			if err != nil {
				return nil, fmt.Errorf("extract %s: %w", m.Value.Name, err)
			}
			fetched[key] = res
		}

		log.Info("items extracted",
			zap.String("material", m.Value.Name),
			zap.String("provider", res.Provider),
			zap.Int("items", len(res.Items)),
		)
		snap.Extractions = append(snap.Extractions, ExtractionRecord{
			Material:       m.SourceLabel,
			URL:            m.URL,
			Selector:       m.Selector.String(),
			Provider:       res.Provider,
			FallbackErrors: res.FallbackMessages(),
			Items:          res.Items,
		})
		report.Sources = append(report.Sources, SourceReport{
			Material:  m.Value.Name,
			Provider:  res.Provider,
			Items:     len(res.Items),
			Fallbacks: len(res.FallbackErrors),
		})
		out = append(out, source{label: m.SourceLabel, items: res.Items})
	}
	return out, nil
}

func (s *Service) extractMatrix(ctx context.Context, log *zap.Logger, plan *Plan, snap *Snapshot, report *Report) ([]source, error) {
	if s.matrix == nil {
		return nil, fmt.Errorf("%w: matrix mode needs a matrix scraper", shared.ErrInvalidConfiguration)
	}
	res, err := s.matrix.Scrape(ctx, extraction.MatrixRequest{
		URL:            plan.Matrix.URL,
		MaterialSelect: plan.Matrix.MaterialSelect,
		QuantitySelect: plan.Matrix.QuantitySelect,
		Materials:      plan.SourceLabels(),
	})
	s.metrics.RecordExtraction(ctx, MatrixProvider, err)
	if err != nil {
		return nil, fmt.Errorf("scrape matrix %s: %w", plan.Matrix.URL, err)
	}

	if len(res.Missing) > 0 {
		log.Warn("materials not offered by the page", zap.Strings("materials", res.Missing))
	}
	report.MissingMaterials = res.Missing
	snap.Missing = res.Missing

	out := make([]source, 0, len(res.Materials))
	for _, m := range res.Materials {
		log.Info("options read", zap.String("material", m.Label), zap.Int("items", len(m.Items)))
		snap.Extractions = append(snap.Extractions, ExtractionRecord{
			Material: m.Label,
			URL:      plan.Matrix.URL,
			Selector: plan.Matrix.QuantitySelect,
			Provider: MatrixProvider,
			Items:    m.Items,
		})
		report.Sources = append(report.Sources, SourceReport{
			Material: m.Label,
			Provider: MatrixProvider,
			Items:    len(m.Items),
		})
		out = append(out, source{label: m.Label, items: m.Items})
	}
	return out, nil
}

func (s *Service) recordAttempts(ctx context.Context, res *extraction.Result, err error) {
	var failures []*extraction.ProviderError
	if res != nil {
		failures = res.FallbackErrors
	}
	var exhausted *extraction.ExtractionError
	if errors.As(err, &exhausted) {
		failures = exhausted.Attempts
	}
	for _, f := range failures {
		s.metrics.RecordExtraction(ctx, f.Provider, f)
	}
	if res != nil {
		s.metrics.RecordExtraction(ctx, res.Provider, nil)
	}
}

// writeSnapshot stores the run's artifacts. A failure is logged and does
// not stop the run.
func (s *Service) writeSnapshot(ctx context.Context, log *zap.Logger, snap *Snapshot, report *Report) {
	if s.snapshots == nil {
		return
	}
	artifacts, err := s.snapshots.Write(ctx, snap)
	if err != nil {
		log.Warn("failed to write snapshot", zap.Error(err))
	}
	report.Artifacts = append(report.Artifacts, artifacts...)
}

func (s *Service) recordStage(ctx context.Context, stage string, rows int, started time.Time) {
	s.metrics.RecordStage(ctx, stage, rows, s.now().Sub(started))
}
