package priceimport

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/priceimport/internal/domain/catalog"
	"github.com/erp/priceimport/internal/domain/shared"
	"github.com/erp/priceimport/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Stage is one step of the reconciliation state machine
type Stage string

const (
	StageLoadExistingGroups    Stage = "load_existing_groups"
	StageEnsureProduct         Stage = "ensure_product"
	StageEnsureGroups          Stage = "ensure_groups"
	StageEnsureValues          Stage = "ensure_values"
	StageBuildPricingStructure Stage = "build_pricing_structure"
	StageReplacePriceRows      Stage = "replace_price_rows"
	StageDone                  Stage = "done"
)

// ReconcileError is a backend failure in one stage. It aborts the run.
type ReconcileError struct {
	Stage Stage
	Err   error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("reconcile %s: %v", e.Stage, e.Err)
}

func (e *ReconcileError) Unwrap() error {
	return e.Err
}

// ReconcileInput is what one reconciliation writes
type ReconcileInput struct {
	Plan *Plan
	Rows []MappedRow
}

// ReconcileResult reports what a reconciliation changed
type ReconcileResult struct {
	ProductID        uuid.UUID                 `json:"product_id"`
	ProductCreated   bool                      `json:"product_created"`
	GroupsCreated    int                       `json:"groups_created"`
	ValuesCreated    int                       `json:"values_created"`
	ValuesPatched    int                       `json:"values_patched"`
	PricingStructure *catalog.PricingStructure `json:"pricing_structure"`
	PriceRows        int                       `json:"price_rows"`
	Replace          catalog.ReplaceResult     `json:"replace"`
	Stage            Stage                     `json:"stage"`
}

// Reconciler writes mapped rows into the catalog idempotently: products,
// groups and values are ensured by natural key, price rows are replaced.
type Reconciler struct {
	products   catalog.ProductRepository
	attributes catalog.AttributeRepository
	prices     catalog.PriceRowRepository
	logger     *zap.Logger
}

// NewReconciler creates a Reconciler
func NewReconciler(
	products catalog.ProductRepository,
	attributes catalog.AttributeRepository,
	prices catalog.PriceRowRepository,
	logger *zap.Logger,
) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		products:   products,
		attributes: attributes,
		prices:     prices,
		logger:     logger,
	}
}

// reconcileRun is the state of one Reconcile call
type reconcileRun struct {
	plan     *Plan
	rows     []MappedRow
	product  *catalog.Product
	index    *CatalogIndex
	groups   map[string]*catalog.AttributeGroup
	valueIDs map[string]uuid.UUID
	result   *ReconcileResult
}

// Reconcile runs LoadExistingGroups, EnsureProduct, EnsureGroups,
// EnsureValues, BuildPricingStructure and ReplacePriceRows in order. The
// first failing stage is returned as a *ReconcileError.
func (r *Reconciler) Reconcile(ctx context.Context, in ReconcileInput) (*ReconcileResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "priceimport", "reconcile",
		telemetry.WithAttribute(telemetry.SpanAttrProductSlug, in.Plan.Product.Slug),
		telemetry.WithAttribute(telemetry.SpanAttrRowCount, len(in.Rows)),
	)
	defer span.End()

	run := &reconcileRun{
		plan:     in.Plan,
		rows:     in.Rows,
		groups:   make(map[string]*catalog.AttributeGroup),
		valueIDs: make(map[string]uuid.UUID),
		result:   &ReconcileResult{},
	}

	steps := []struct {
		stage Stage
		fn    func(context.Context, *reconcileRun) error
	}{
		{StageLoadExistingGroups, r.loadExistingGroups},
		{StageEnsureProduct, r.ensureProductStage},
		{StageEnsureGroups, r.ensureGroupsStage},
		{StageEnsureValues, r.ensureValuesStage},
		{StageBuildPricingStructure, r.buildPricingStructure},
		{StageReplacePriceRows, r.replacePriceRows},
	}
	for _, step := range steps {
		run.result.Stage = step.stage
		telemetry.AddEvent(span, "stage", telemetry.SpanAttrStage, string(step.stage))
		if err := step.fn(ctx, run); err != nil {
			rerr := &ReconcileError{Stage: step.stage, Err: err}
			telemetry.RecordError(span, rerr)
			r.logger.Error("reconciliation failed",
				zap.String("stage", string(step.stage)),
				zap.Error(err),
			)
			return run.result, rerr
		}
	}
	run.result.Stage = StageDone
	telemetry.SetOK(span)

	r.logger.Info("reconciliation done",
		zap.String("product_id", run.result.ProductID.String()),
		zap.Bool("product_created", run.result.ProductCreated),
		zap.Int("groups_created", run.result.GroupsCreated),
		zap.Int("values_created", run.result.ValuesCreated),
		zap.Int("values_patched", run.result.ValuesPatched),
		zap.Int64("rows_deleted", run.result.Replace.Deleted),
		zap.Int("rows_inserted", run.result.Replace.Inserted),
	)
	return run.result, nil
}

// loadExistingGroups finds the product and indexes its groups. A product
// that does not exist yet has none.
func (r *Reconciler) loadExistingGroups(ctx context.Context, run *reconcileRun) error {
	product, err := r.products.FindBySlug(ctx, run.plan.TenantID, run.plan.Product.Slug)
	if errors.Is(err, shared.ErrNotFound) {
		run.index = NewCatalogIndex(nil)
		return nil
	}
	if err != nil {
		return err
	}
	run.product = product

	groups, err := r.attributes.FindGroupsByProduct(ctx, run.plan.TenantID, product.ID)
	if err != nil {
		return err
	}
	run.index = NewCatalogIndex(groups)
	return nil
}

func (r *Reconciler) ensureProductStage(ctx context.Context, run *reconcileRun) error {
	if run.product != nil {
		run.result.ProductID = run.product.ID
		return nil
	}
	product, created, err := r.EnsureProduct(ctx, run.plan.TenantID, run.plan.Product)
	if err != nil {
		return err
	}
	run.product = product
	run.result.ProductID = product.ID
	run.result.ProductCreated = created
	return nil
}

// EnsureProduct returns the product with the spec's slug, creating it when
// absent. An existing product's fields are left as they are.
func (r *Reconciler) EnsureProduct(ctx context.Context, tenantID uuid.UUID, spec ProductSpec) (*catalog.Product, bool, error) {
	existing, err := r.products.FindBySlug(ctx, tenantID, spec.Slug)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, false, err
	}

	product, err := catalog.NewProduct(tenantID, spec.Name, spec.Slug, spec.Category)
	if err != nil {
		return nil, false, err
	}
	product.Description = spec.Description
	product.SetTechnicalSpecs(spec.TechnicalSpecs)
	if err := r.products.Create(ctx, product); err != nil {
		return nil, false, err
	}
	r.logger.Info("product created", zap.String("product_id", product.ID.String()), zap.String("slug", product.Slug))
	return product, true, nil
}

func (r *Reconciler) ensureGroupsStage(ctx context.Context, run *reconcileRun) error {
	for i, spec := range run.plan.Groups() {
		g, created, err := r.EnsureGroup(ctx, run.index, run.plan.TenantID, run.product.ID, spec, i)
		if err != nil {
			return fmt.Errorf("group %q: %w", spec.Name, err)
		}
		if created {
			run.result.GroupsCreated++
		}
		run.groups[groupKey(spec)] = g
	}
	return nil
}

// EnsureGroup finds a group by kind and case-insensitive name in ix or
// creates it at sortOrder. The stored name and order of an existing group
// win over spec.
func (r *Reconciler) EnsureGroup(ctx context.Context, ix *CatalogIndex, tenantID, productID uuid.UUID, spec GroupSpec, sortOrder int) (*catalog.AttributeGroup, bool, error) {
	if g, ok := ix.Group(spec.Kind, spec.Name); ok {
		return g, false, nil
	}
	g, err := catalog.NewAttributeGroup(tenantID, productID, spec.Name, spec.Kind, sortOrder)
	if err != nil {
		return nil, false, err
	}
	if err := r.attributes.CreateGroup(ctx, g); err != nil {
		return nil, false, err
	}
	ix.Add(g)
	r.logger.Debug("attribute group created", zap.String("group", g.Name), zap.String("kind", string(g.Kind)))
	return g, true, nil
}

func (r *Reconciler) ensureValuesStage(ctx context.Context, run *reconcileRun) error {
	plan := run.plan
	ensure := func(spec GroupSpec, value catalog.ValueSpec) error {
		g := run.groups[groupKey(spec)]
		v, created, patched, err := r.EnsureValue(ctx, run.index, g, value)
		if err != nil {
			return fmt.Errorf("value %q in %q: %w", value.Name, spec.Name, err)
		}
		if created {
			run.result.ValuesCreated++
		}
		if patched {
			run.result.ValuesPatched++
		}
		run.valueIDs[valueKey(spec, value.Name)] = v.ID
		return nil
	}

	formatGroup := GroupSpec{Name: plan.FormatGroup, Kind: catalog.GroupKindFormat}
	if err := ensure(formatGroup, plan.Format); err != nil {
		return err
	}

	materialGroup := GroupSpec{Name: plan.MaterialGroup, Kind: catalog.GroupKindMaterial}
	priced := make(map[string]bool)
	for _, row := range run.rows {
		priced[catalog.NameKey(row.Material)] = true
	}
	for _, m := range plan.Materials {
		if !priced[catalog.NameKey(m.Value.Name)] {
			r.logger.Warn("material has no price rows, value not ensured", zap.String("material", m.Value.Name))
			continue
		}
		if err := ensure(materialGroup, m.Value); err != nil {
			return err
		}
	}

	for _, mod := range plan.Modifiers {
		if err := ensure(mod.Group, mod.Value); err != nil {
			return err
		}
	}
	return nil
}

// EnsureValue finds a value of g by case-insensitive name. A found value is
// patched with the fields of spec that differ; a missing one is inserted at
// the group's next sort position.
func (r *Reconciler) EnsureValue(ctx context.Context, ix *CatalogIndex, g *catalog.AttributeGroup, spec catalog.ValueSpec) (v *catalog.AttributeValue, created, patched bool, err error) {
	if existing, ok := ix.Value(g, spec.Name); ok {
		patch := existing.Diff(spec)
		if patch.IsEmpty() {
			return existing, false, false, nil
		}
		if err := r.attributes.PatchValue(ctx, existing.ID, patch); err != nil {
			return nil, false, false, err
		}
		existing.Apply(patch)
		return existing, false, true, nil
	}

	value, err := catalog.NewAttributeValue(g.ID, spec, g.NextSortOrder())
	if err != nil {
		return nil, false, false, err
	}
	if err := r.attributes.CreateValue(ctx, value); err != nil {
		return nil, false, false, err
	}
	return ix.AddValue(g, value), true, false, nil
}

func (r *Reconciler) buildPricingStructure(ctx context.Context, run *reconcileRun) error {
	var vertical *catalog.AttributeGroup
	layout := make([]*catalog.AttributeGroup, 0, len(run.groups))
	for _, spec := range run.plan.Groups() {
		g := run.groups[groupKey(spec)]
		if spec.Kind == run.plan.VerticalAxis && vertical == nil {
			vertical = g
			continue
		}
		layout = append(layout, g)
	}
	if vertical == nil {
		return fmt.Errorf("no %s group for the vertical axis", run.plan.VerticalAxis)
	}

	ps := catalog.NewPricingStructure(vertical, layout)
	if err := r.products.UpdatePricingStructure(ctx, run.plan.TenantID, run.product.ID, ps); err != nil {
		return err
	}
	run.product.SetPricingStructure(ps)
	run.result.PricingStructure = ps
	return nil
}

func (r *Reconciler) replacePriceRows(ctx context.Context, run *reconcileRun) error {
	rows, err := r.priceRows(run)
	if err != nil {
		return err
	}

	scope := catalog.ReplaceScope{TenantID: run.plan.TenantID, ProductID: run.product.ID}
	if run.plan.ScopeByFormat {
		formatID := run.valueIDs[valueKey(GroupSpec{Name: run.plan.FormatGroup, Kind: catalog.GroupKindFormat}, run.plan.Format.Name)]
		scope.FormatValueID = &formatID
	}

	res, err := r.prices.ReplaceForProduct(ctx, scope, rows, run.plan.BatchSize)
	if err != nil {
		return err
	}
	run.result.Replace = res
	run.result.PriceRows = len(rows)
	return nil
}

// priceRows turns mapped rows into price rows keyed by variant. Later rows
// win over earlier ones with the same key.
func (r *Reconciler) priceRows(run *reconcileRun) ([]catalog.PriceRow, error) {
	plan := run.plan
	formatSpec := GroupSpec{Name: plan.FormatGroup, Kind: catalog.GroupKindFormat}
	materialSpec := GroupSpec{Name: plan.MaterialGroup, Kind: catalog.GroupKindMaterial}

	out := make([]catalog.PriceRow, 0, len(run.rows))
	position := make(map[catalog.PriceRowKey]int, len(run.rows))
	for _, row := range run.rows {
		formatID, ok := run.valueIDs[valueKey(formatSpec, row.Format)]
		if !ok {
			return nil, fmt.Errorf("format %q was not ensured", row.Format)
		}
		materialID, ok := run.valueIDs[valueKey(materialSpec, row.Material)]
		if !ok {
			return nil, fmt.Errorf("material %q was not ensured", row.Material)
		}

		variantIDs := make([]uuid.UUID, 0, len(row.Modifiers)+1)
		for _, m := range row.Modifiers {
			id, ok := run.valueIDs[valueKey(m.Group, m.Value)]
			if !ok {
				return nil, fmt.Errorf("modifier %q in %q was not ensured", m.Value, m.Group.Name)
			}
			variantIDs = append(variantIDs, id)
		}
		vertical := materialID
		if plan.VerticalAxis == catalog.GroupKindFormat {
			vertical = formatID
			variantIDs = append(variantIDs, materialID)
		} else {
			variantIDs = append(variantIDs, formatID)
		}

		pr := catalog.PriceRow{
			ID:           uuid.New(),
			TenantID:     plan.TenantID,
			ProductID:    run.product.ID,
			VariantName:  catalog.VariantKey(variantIDs),
			VariantValue: vertical.String(),
			Quantity:     row.Quantity,
			Price:        decimal.NewFromInt(row.FinalAmount),
			ExtraData:    extraData(row),
		}
		if i, dup := position[pr.Key()]; dup {
			out[i] = pr
			continue
		}
		position[pr.Key()] = len(out)
		out = append(out, pr)
	}
	return out, nil
}

// extraData keeps the provenance of a price row for audits
func extraData(row MappedRow) map[string]any {
	extra := map[string]any{
		"source_index":    row.SourceIndex,
		"source_text":     row.SourceText,
		"source_material": row.MaterialLabel,
		"unit_price":      row.UnitPrice.String(),
		"base_amount":     row.BaseAmount.String(),
		"tier_multiplier": row.TierMultiplier.String(),
	}
	if row.InferredFromQuantity != nil {
		extra["inferred_from_quantity"] = *row.InferredFromQuantity
	}
	if row.QuantitySynthetic {
		extra["quantity_synthetic"] = true
	}
	return extra
}

func valueKey(group GroupSpec, name string) string {
	return groupKey(group) + "/" + catalog.NameKey(name)
}
