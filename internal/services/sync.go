package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	redisclient "github.com/civicworks/assetgraph-backend/internal/clients/redis"
	"github.com/civicworks/assetgraph-backend/internal/graph"
	"github.com/civicworks/assetgraph-backend/internal/platform/logger"
	"github.com/civicworks/assetgraph-backend/internal/repos"
	"github.com/civicworks/assetgraph-backend/internal/types"
)

const defaultBatchSize = 50

type SyncService interface {
	SyncAssets(ctx context.Context, opts types.SyncOptions) (*types.SyncResult, error)
	CleanupOrphans(ctx context.Context, organisationID string) (*types.SyncResult, error)
}

type syncService struct {
	assets  repos.AssetRepo
	graph   graph.Store
	bus     redisclient.ChangeBus
	log     *logger.Logger
	workers int

	// Anchor creation is the one sync operation needing mutual exclusion:
	// two assets discovering the same missing ServiceFunction or Location
	// concurrently must collapse into one create.
	anchors singleflight.Group
}

func NewSyncService(assets repos.AssetRepo, store graph.Store, bus redisclient.ChangeBus, baseLog *logger.Logger, workers int) SyncService {
	if workers <= 0 {
		workers = 4
	}
	return &syncService{
		assets:  assets,
		graph:   store,
		bus:     bus,
		log:     baseLog.With("service", "SyncService"),
		workers: workers,
	}
}

// syncRun carries per-run state: the anchor cache keeps repeat lookups off
// the store once a run has resolved an anchor.
type syncRun struct {
	mu          sync.Mutex
	result      *types.SyncResult
	anchorCache sync.Map // "label|name|org" -> vertex id
}

func (r *syncRun) recordError(assetID, cause string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result.Errors = append(r.result.Errors, fmt.Sprintf("%s: %s", assetID, cause))
}

func (r *syncRun) recordWarning(w string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result.Warnings = append(r.result.Warnings, w)
}

func (r *syncRun) recordProcessed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result.RecordsProcessed++
}

func (s *syncService) SyncAssets(ctx context.Context, opts types.SyncOptions) (*types.SyncResult, error) {
	start := time.Now()
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	run := &syncRun{result: &types.SyncResult{Success: true}}
	s.log.Info("Starting asset sync", "batch_size", batchSize, "dry_run", opts.DryRun, "force_update", opts.ForceUpdate)

	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			// Stop issuing writes; committed work stays committed.
			run.result.Success = false
			run.recordWarning("sync cancelled before completion")
			break
		}

		page, err := s.assets.Find(ctx, nil, types.AssetFilter{}, types.Pagination{Offset: offset, Limit: batchSize})
		if err != nil {
			// A failed page read is structural: the loop cannot progress.
			run.result.Success = false
			run.result.Duration = time.Since(start)
			s.log.Error("Asset page read failed", "offset", offset, "error", err)
			return run.result, fmt.Errorf("sync assets: page at offset %d: %w", offset, err)
		}
		if len(page) == 0 {
			break
		}

		g := new(errgroup.Group)
		g.SetLimit(s.workers)
		for _, a := range page {
			if ctx.Err() != nil {
				break
			}
			model := types.AssetModelFromAsset(a)
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				action, err := s.syncOne(ctx, run, model, opts)
				if err != nil {
					run.recordError(model.ID, err.Error())
					return nil
				}
				if opts.DryRun {
					run.recordWarning(fmt.Sprintf("dry run: would have %s %s", action, model.ID))
				}
				run.recordProcessed()
				return nil
			})
		}
		_ = g.Wait()

		if len(page) < batchSize {
			break
		}
		offset += batchSize
	}

	run.result.Duration = time.Since(start)
	s.log.Info("Asset sync finished",
		"processed", run.result.RecordsProcessed,
		"errors", len(run.result.Errors),
		"duration", run.result.Duration)

	if s.bus != nil && !opts.DryRun && run.result.Success {
		if err := s.bus.Publish(ctx, redisclient.ChangeEvent{
			Type:             redisclient.EventSyncCompleted,
			RecordsProcessed: run.result.RecordsProcessed,
		}); err != nil {
			s.log.Warn("Failed to publish sync event", "error", err)
		}
	}
	return run.result, nil
}

// syncOne projects one asset into the graph. Returns the action taken
// ("created" or "updated") for dry-run reporting.
func (s *syncService) syncOne(ctx context.Context, run *syncRun, model *types.AssetModel, opts types.SyncOptions) (string, error) {
	existing, err := s.graph.GetVertex(ctx, model.ID)
	if err != nil {
		return "", fmt.Errorf("get vertex: %w", err)
	}

	action := "created"
	if existing != nil && !opts.ForceUpdate {
		action = "updated"
	}
	if opts.DryRun {
		// Same reads as a live run, every write suppressed, so a dry run
		// surfaces the same store failures the real one would hit.
		return action, s.dryRunReads(ctx, model)
	}

	if existing != nil && opts.ForceUpdate {
		// Stale vertex is rebuilt from scratch; edges cascade away with it.
		if err := s.graph.DeleteVertex(ctx, model.ID); err != nil {
			return "", fmt.Errorf("delete stale vertex: %w", err)
		}
	}

	if _, err := s.graph.AddVertex(ctx, types.LabelAsset, assetVertexProps(model)); err != nil {
		return "", fmt.Errorf("upsert vertex: %w", err)
	}

	if err := s.linkServiceFunction(ctx, run, model); err != nil {
		return "", err
	}
	if err := s.linkLocationChain(ctx, run, model); err != nil {
		return "", err
	}
	if err := s.linkOrgUnit(ctx, run, model); err != nil {
		return "", err
	}
	if err := s.ensureFundingAnchor(ctx, run, model); err != nil {
		return "", err
	}
	return action, nil
}

// dryRunReads resolves the anchors a live run would touch for this asset,
// without creating anything that is missing.
func (s *syncService) dryRunReads(ctx context.Context, model *types.AssetModel) error {
	purpose, _ := MapPurpose(model)
	type lookup struct{ label, name string }
	lookups := []lookup{
		{types.LabelServiceFunction, purpose},
		{types.LabelFundingCategory, MapFundingCategory(model)},
	}
	if model.OrganisationID != "" {
		lookups = append(lookups, lookup{types.LabelOrgUnit, model.OrganisationID})
	}
	for _, v := range []string{model.State, model.Suburb, model.Address} {
		if v = strings.TrimSpace(v); v != "" {
			lookups = append(lookups, lookup{types.LabelLocation, v})
		}
	}
	for _, l := range lookups {
		if _, err := s.graph.GetVerticesByLabel(ctx, l.label, map[string]any{
			"name":            l.name,
			"organisation_id": model.OrganisationID,
		}); err != nil {
			return fmt.Errorf("resolve %s %q: %w", l.label, l.name, err)
		}
	}
	if _, err := s.graph.GetEdges(ctx, graph.EdgeQuery{FromID: model.ID}); err != nil {
		return fmt.Errorf("resolve edges: %w", err)
	}
	return nil
}

// assetVertexProps recomputes every derived field from current relational
// state; nothing on the vertex is trusted to be fresh.
func assetVertexProps(model *types.AssetModel) map[string]any {
	purpose, category := MapPurpose(model)
	return map[string]any{
		"id":               model.ID,
		"name":             model.Name,
		"asset_type":       model.AssetType,
		"organisation_id":  model.OrganisationID,
		"current_value":    model.CurrentValue,
		"criticality":      int64(model.Criticality),
		"condition":        model.Condition,
		"service_purpose":  purpose,
		"purpose_category": category,
		"state":            model.State,
		"suburb":           model.Suburb,
		"address":          model.Address,
		"synced_at":        time.Now().UTC().Format(time.RFC3339Nano),
	}
}

func (s *syncService) linkServiceFunction(ctx context.Context, run *syncRun, model *types.AssetModel) error {
	purpose, category := MapPurpose(model)
	fnID, err := s.ensureAnchor(ctx, run, types.LabelServiceFunction, purpose, model.OrganisationID, map[string]any{
		"category": category,
	})
	if err != nil {
		return fmt.Errorf("ensure service function %q: %w", purpose, err)
	}
	return s.relink(ctx, model.ID, types.EdgeServesPurpose, fnID)
}

// linkLocationChain builds Region -> Area -> Site from the address fields
// and relinks the asset at the deepest present level. Parents are resolved
// by name within the same pass, so per-asset calls are order independent.
func (s *syncService) linkLocationChain(ctx context.Context, run *syncRun, model *types.AssetModel) error {
	type link struct {
		name  string
		level string
	}
	var chain []link
	if v := strings.TrimSpace(model.State); v != "" {
		chain = append(chain, link{name: v, level: "region"})
	}
	if v := strings.TrimSpace(model.Suburb); v != "" {
		chain = append(chain, link{name: v, level: "area"})
	}
	if v := strings.TrimSpace(model.Address); v != "" {
		chain = append(chain, link{name: v, level: "site"})
	}
	if len(chain) == 0 {
		return nil
	}

	parentID := ""
	leafID := ""
	for _, l := range chain {
		props := map[string]any{"level": l.level}
		id, err := s.ensureAnchor(ctx, run, types.LabelLocation, l.name, model.OrganisationID, props)
		if err != nil {
			return fmt.Errorf("ensure location %q: %w", l.name, err)
		}
		if parentID != "" {
			if err := s.ensureEdge(ctx, types.EdgeContains, parentID, id); err != nil {
				return fmt.Errorf("contain %q: %w", l.name, err)
			}
		}
		parentID = id
		leafID = id
	}
	return s.relink(ctx, model.ID, types.EdgeLocatedAt, leafID)
}

func (s *syncService) linkOrgUnit(ctx context.Context, run *syncRun, model *types.AssetModel) error {
	if model.OrganisationID == "" {
		return nil
	}
	orgID, err := s.ensureAnchor(ctx, run, types.LabelOrgUnit, model.OrganisationID, model.OrganisationID, nil)
	if err != nil {
		return fmt.Errorf("ensure org unit: %w", err)
	}
	return s.relink(ctx, model.ID, types.EdgeOwnedBy, orgID)
}

// The funding anchor exists for external graph queries only; funding
// membership itself is resolved from tags at hierarchy build time.
func (s *syncService) ensureFundingAnchor(ctx context.Context, run *syncRun, model *types.AssetModel) error {
	cat := MapFundingCategory(model)
	if _, err := s.ensureAnchor(ctx, run, types.LabelFundingCategory, cat, model.OrganisationID, nil); err != nil {
		return fmt.Errorf("ensure funding category %q: %w", cat, err)
	}
	return nil
}

// ensureAnchor looks an anchor vertex up by (label, name, organisation) and
// creates it exactly once when absent. The dedup rule that keeps many assets
// from spawning duplicate ServiceFunction/Location vertices.
func (s *syncService) ensureAnchor(ctx context.Context, run *syncRun, label, name, organisationID string, extra map[string]any) (string, error) {
	key := label + "|" + name + "|" + organisationID
	if cached, ok := run.anchorCache.Load(key); ok {
		return cached.(string), nil
	}

	id, err, _ := s.anchors.Do(key, func() (any, error) {
		existing, err := s.graph.GetVerticesByLabel(ctx, label, map[string]any{
			"name":            name,
			"organisation_id": organisationID,
		})
		if err != nil {
			return "", err
		}
		if len(existing) > 0 {
			return existing[0].ID, nil
		}
		props := map[string]any{
			"name":            name,
			"organisation_id": organisationID,
		}
		for k, v := range extra {
			props[k] = v
		}
		return s.graph.AddVertex(ctx, label, props)
	})
	if err != nil {
		return "", err
	}
	run.anchorCache.Store(key, id.(string))
	return id.(string), nil
}

// relink drops the asset's existing edges of one label and points a fresh
// edge at the target, keeping the projection single-valued per label.
func (s *syncService) relink(ctx context.Context, fromID, label, toID string) error {
	edges, err := s.graph.GetEdges(ctx, graph.EdgeQuery{FromID: fromID, Label: label})
	if err != nil {
		return err
	}
	kept := false
	for _, e := range edges {
		if e.ToID == toID && !kept {
			kept = true
			continue
		}
		if err := s.graph.DeleteEdge(ctx, e.ID); err != nil {
			return err
		}
	}
	if kept {
		return nil
	}
	_, err = s.graph.AddEdge(ctx, label, fromID, toID, nil)
	return err
}

// ensureEdge creates the (label, from, to) edge exactly once. The lookup and
// create run under the same singleflight as anchor vertices: workers syncing
// assets that share a location chain would otherwise race past each other's
// GetEdges and both create. Duplicates left behind by older runs are repaired
// down to one edge.
func (s *syncService) ensureEdge(ctx context.Context, label, fromID, toID string) error {
	key := "edge|" + label + "|" + fromID + "|" + toID
	_, err, _ := s.anchors.Do(key, func() (any, error) {
		edges, err := s.graph.GetEdges(ctx, graph.EdgeQuery{FromID: fromID, ToID: toID, Label: label})
		if err != nil {
			return nil, err
		}
		if len(edges) > 1 {
			for _, e := range edges[1:] {
				if err := s.graph.DeleteEdge(ctx, e.ID); err != nil {
					return nil, err
				}
			}
		}
		if len(edges) > 0 {
			return nil, nil
		}
		_, err = s.graph.AddEdge(ctx, label, fromID, toID, nil)
		return nil, err
	})
	return err
}

// CleanupOrphans deletes Asset vertices whose relational record is gone.
// Deleting a vertex cascades its edges, so a second run with no intervening
// relational changes finds nothing to do.
func (s *syncService) CleanupOrphans(ctx context.Context, organisationID string) (*types.SyncResult, error) {
	start := time.Now()
	result := &types.SyncResult{Success: true}

	ids, err := s.assets.ListIDs(ctx, nil, organisationID)
	if err != nil {
		result.Success = false
		result.Duration = time.Since(start)
		return result, fmt.Errorf("cleanup orphans: list relational ids: %w", err)
	}
	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id.String()] = true
	}

	var filter map[string]any
	if organisationID != "" {
		filter = map[string]any{"organisation_id": organisationID}
	}
	vertices, err := s.graph.GetVerticesByLabel(ctx, types.LabelAsset, filter)
	if err != nil {
		result.Success = false
		result.Duration = time.Since(start)
		return result, fmt.Errorf("cleanup orphans: list asset vertices: %w", err)
	}

	for _, v := range vertices {
		if err := ctx.Err(); err != nil {
			result.Success = false
			result.Warnings = append(result.Warnings, "cleanup cancelled before completion")
			break
		}
		if known[v.ID] {
			continue
		}
		if err := s.graph.DeleteVertex(ctx, v.ID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", v.ID, err.Error()))
			continue
		}
		result.RecordsProcessed++
	}

	result.Duration = time.Since(start)
	s.log.Info("Orphan cleanup finished",
		"organisation_id", organisationID,
		"deleted", result.RecordsProcessed,
		"errors", len(result.Errors))

	if s.bus != nil && result.Success && result.RecordsProcessed > 0 {
		if err := s.bus.Publish(ctx, redisclient.ChangeEvent{
			Type:             redisclient.EventOrphansCleaned,
			OrganisationID:   organisationID,
			RecordsProcessed: result.RecordsProcessed,
		}); err != nil {
			s.log.Warn("Failed to publish cleanup event", "error", err)
		}
	}
	return result, nil
}
