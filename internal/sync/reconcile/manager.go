// Package reconcile implements the full bidirectional diff-and-merge
// pass run at connect time and on demand. Tables sync independently and
// in parallel; the pass is metadata-first so bandwidth stays bounded by
// the records that actually changed.
package reconcile

import (
	"context"
	"errors"
	"sync"

	"github.com/brewkit/brewsync/internal/logging"
	"github.com/brewkit/brewsync/internal/models"
	"github.com/brewkit/brewsync/internal/store"
	"github.com/brewkit/brewsync/internal/sync/conflict"
	"github.com/brewkit/brewsync/internal/sync/ops"
	"github.com/brewkit/brewsync/internal/viewcache"
)

// Manager owns reconciliation passes. A per-table advisory flag keeps
// two passes from working the same table at once; distinct tables may
// overlap freely.
type Manager struct {
	store  *store.Store
	ops    *ops.Operations
	cache  *viewcache.Cache
	tables []models.Table

	mu       sync.Mutex
	inFlight map[models.Table]bool
}

// New creates a Manager for the content tables plus the settings
// singleton.
func New(s *store.Store, o *ops.Operations, cache *viewcache.Cache) *Manager {
	return &Manager{
		store:    s,
		ops:      o,
		cache:    cache,
		tables:   models.ContentTables(),
		inFlight: make(map[models.Table]bool),
	}
}

// Run performs a full reconciliation pass over every table.
func (m *Manager) Run(ctx context.Context) *Summary {
	return m.run(ctx, m.tables, true)
}

// RunTables performs a lighter pass over a subset of tables, without
// touching the settings singleton. Used after foreground transitions.
func (m *Manager) RunTables(ctx context.Context, tables ...models.Table) *Summary {
	return m.run(ctx, tables, false)
}

func (m *Manager) run(ctx context.Context, tables []models.Table, withSettings bool) *Summary {
	lastSync, err := m.store.LastSyncTime()
	if err != nil {
		logging.Warn("Failed to read watermark, assuming first sync", map[string]interface{}{
			"error": err.Error(),
		})
		lastSync = 0
	}

	summary := &Summary{
		StartedAt: models.NowMillis(),
		FirstSync: lastSync == 0,
	}

	results := make([]TableResult, len(tables))
	var wg sync.WaitGroup
	for i, table := range tables {
		wg.Add(1)
		go func(i int, table models.Table) {
			defer wg.Done()
			results[i] = m.syncTable(ctx, table, lastSync)
		}(i, table)
	}
	wg.Wait()
	summary.Tables = results

	if withSettings {
		summary.Settings = m.syncSettings(ctx, lastSync)
	}

	// Advance the watermark only on full passes that did not fail
	// everywhere. A fully failed pass must retry from the same point
	// next time, and a subset pass never reconciled settings: moving
	// the watermark past a remote settings update would make the next
	// full pass read it as already seen and upload the stale local
	// document over it.
	if withSettings && !summary.AllFailed() {
		if err := m.store.SetLastSyncTime(summary.StartedAt); err != nil {
			logging.Error("Failed to advance watermark", err, nil)
		} else {
			summary.WatermarkAdvanced = true
		}
	}

	m.reloadCaches(withSettings)

	summary.FinishedAt = models.NowMillis()
	m.report(summary)
	return summary
}

// syncTable runs the metadata-first pass for one table:
//
//  1. load all local records,
//  2. fetch remote metadata only (id, updated_at, deleted_at),
//  3. diff to find ids whose full payload is needed,
//  4. batch-fetch exactly those payloads,
//  5. reassemble the remote list, dropping ids whose payload fetch
//     failed from both sides of the diff,
//  6. resolve against the watermark,
//  7. execute remote upsert, one local write transaction, local deletes.
func (m *Manager) syncTable(ctx context.Context, table models.Table, lastSync int64) TableResult {
	result := TableResult{Table: table}

	if !m.acquire(table) {
		result.Skipped = true
		return result
	}
	defer m.release(table)

	local, err := m.store.List(table)
	if err != nil {
		result.Err = err
		return result
	}

	metaRes := m.ops.FetchAllRecords(ctx, table, true)
	if !metaRes.Success() {
		result.Err = metaRes.Err
		return result
	}

	localByID := make(map[string]*models.SyncRecord, len(local))
	for _, rec := range local {
		localByID[rec.ID] = rec
	}

	var needPayload []string
	for _, meta := range metaRes.Data {
		if meta.Deleted() {
			continue
		}
		loc, exists := localByID[meta.ID]
		if !exists || conflict.ExtractTimestamp(meta.Times()) > conflict.ExtractTimestamp(loc.Times()) {
			needPayload = append(needPayload, meta.ID)
		}
	}

	batch := m.ops.FetchRecordsByIDs(ctx, table, needPayload)

	fullByID := make(map[string]*models.CloudRecord, len(batch.Records))
	for _, rec := range batch.Records {
		fullByID[rec.ID] = rec
	}

	// Ids whose payload never arrived are excluded from this pass
	// entirely: writing a missing payload over local state is never
	// acceptable, and uploading the stale local copy instead could
	// clobber the newer remote version. They retry next pass.
	excluded := make(map[string]bool, len(batch.FailedIDs))
	for _, id := range batch.FailedIDs {
		excluded[id] = true
	}

	needed := make(map[string]bool, len(needPayload))
	for _, id := range needPayload {
		needed[id] = true
	}

	remote := make([]*models.CloudRecord, 0, len(metaRes.Data))
	for _, meta := range metaRes.Data {
		if excluded[meta.ID] {
			continue
		}
		if meta.Deleted() || !needed[meta.ID] {
			remote = append(remote, meta)
			continue
		}
		full, ok := fullByID[meta.ID]
		if !ok || !full.HasPayload() {
			excluded[meta.ID] = true
			continue
		}
		remote = append(remote, full)
	}

	resolvable := local
	if len(excluded) > 0 {
		resolvable = make([]*models.SyncRecord, 0, len(local))
		for _, rec := range local {
			if !excluded[rec.ID] {
				resolvable = append(resolvable, rec)
			}
		}
	}

	plan := conflict.BatchResolve(resolvable, remote, lastSync)

	var errs []error

	if len(plan.ToUpload) > 0 {
		if res := m.ops.UpsertRecords(ctx, table, plan.ToUpload); res.Success() {
			result.Uploaded = res.Data
		} else {
			errs = append(errs, res.Err)
		}
	}

	if len(plan.ToDownload) > 0 {
		downloads := m.decodeDownloads(table, plan.ToDownload)
		if err := m.store.BulkPut(table, downloads); err != nil {
			errs = append(errs, err)
		} else {
			result.Downloaded = len(downloads)
		}
	}

	if len(plan.ToDeleteLocal) > 0 {
		if err := m.store.BulkDelete(table, plan.ToDeleteLocal); err != nil {
			errs = append(errs, err)
		} else {
			result.DeletedLocal = len(plan.ToDeleteLocal)
		}
	}

	result.Err = errors.Join(errs...)
	return result
}

// decodeDownloads converts accepted cloud records into local records,
// translating the grouped custom_methods shape and applying pending
// per-record format migrations to the freshly pulled data. Records that
// fail to decode are dropped rather than written over local state.
func (m *Manager) decodeDownloads(table models.Table, cloud []*models.CloudRecord) []*models.SyncRecord {
	recs := make([]*models.SyncRecord, 0, len(cloud))
	for _, c := range cloud {
		var rec *models.SyncRecord
		var err error
		if table == models.TableCustomMethods {
			var group *models.MethodGroup
			group, err = models.TranslateMethodsRow(c)
			if err == nil {
				ts := group.Timestamp
				if ts == 0 {
					ts = models.ParseISO(c.UpdatedAt)
				}
				rec = &models.SyncRecord{ID: group.EquipmentID, Timestamp: ts, Payload: group}
			}
		} else {
			rec, err = models.DecodeRecord(table, c)
		}
		if err != nil {
			logging.Warn("Dropping undecodable downloaded record", map[string]interface{}{
				"table": string(table),
				"id":    c.ID,
				"error": err.Error(),
			})
			continue
		}
		rec.Payload, _ = models.MigratePayload(rec.Payload)
		recs = append(recs, rec)
	}
	return recs
}

// syncSettings reconciles the singleton settings document with a
// one-directional rule: download when the remote copy is newer than the
// watermark, upload otherwise. Never both in one pass, so an upload is
// not echoed back as an immediate download.
func (m *Manager) syncSettings(ctx context.Context, lastSync int64) TableResult {
	result := TableResult{Table: models.TableSettings}

	if !m.acquire(models.TableSettings) {
		result.Skipped = true
		return result
	}
	defer m.release(models.TableSettings)

	tsRes := m.ops.FetchLatestTimestamp(ctx, models.TableSettings)
	if !tsRes.Success() {
		result.Err = tsRes.Err
		return result
	}

	if tsRes.Data > lastSync {
		batch := m.ops.FetchRecordsByIDs(ctx, models.TableSettings, []string{models.SettingsID})
		if !batch.Complete() {
			result.Err = errors.Join(batch.Errs...)
			return result
		}
		for _, c := range batch.Records {
			if !c.HasPayload() {
				continue
			}
			rec, err := models.DecodeRecord(models.TableSettings, c)
			if err != nil {
				result.Err = err
				return result
			}
			if err := m.store.Put(models.TableSettings, rec); err != nil {
				result.Err = err
				return result
			}
			result.Downloaded++
		}
		return result
	}

	localSettings, err := m.store.Get(models.TableSettings, models.SettingsID)
	if err != nil {
		result.Err = err
		return result
	}
	if localSettings == nil {
		return result
	}
	if res := m.ops.UpsertRecords(ctx, models.TableSettings, []*models.SyncRecord{localSettings}); res.Success() {
		result.Uploaded = res.Data
	} else {
		result.Err = res.Err
	}
	return result
}

// reloadCaches bulk-reloads all view caches from the local store.
// Post-sync views always reflect a complete snapshot, not an
// incremental patch.
func (m *Manager) reloadCaches(withSettings bool) {
	tables := m.tables
	if withSettings {
		tables = append(append([]models.Table{}, m.tables...), models.TableSettings)
	}
	for _, table := range tables {
		recs, err := m.store.List(table)
		if err != nil {
			logging.Error("Failed to reload view cache", err, map[string]interface{}{
				"table": string(table),
			})
			continue
		}
		m.cache.SetAll(table, recs)
	}
}

func (m *Manager) acquire(table models.Table) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight[table] {
		return false
	}
	m.inFlight[table] = true
	return true
}

func (m *Manager) release(table models.Table) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, table)
}

// report logs the pass outcome. Routine no-op background passes stay
// silent; the very first sync gets a distinct notice.
func (m *Manager) report(s *Summary) {
	if s.Quiet() {
		return
	}

	ctx := map[string]interface{}{
		"uploaded":   s.Uploaded(),
		"downloaded": s.Downloaded(),
		"deleted":    s.DeletedLocal(),
		"errors":     s.ErrorCount(),
		"duration":   s.FinishedAt - s.StartedAt,
	}

	if s.FirstSync {
		logging.Info("Initial sync completed", ctx)
		return
	}
	if failed := s.FailedPrimary(); len(failed) > 0 {
		names := make([]string, len(failed))
		for i, r := range failed {
			names[i] = string(r.Table)
		}
		ctx["primary_failures"] = names
	}
	logging.Info("Sync completed", ctx)
}
