package realtime

import (
	"github.com/brewkit/brewsync/internal/errors"
	"github.com/brewkit/brewsync/internal/logging"
	"github.com/brewkit/brewsync/internal/models"
	"github.com/brewkit/brewsync/internal/remote"
	"github.com/brewkit/brewsync/internal/store"
	"github.com/brewkit/brewsync/internal/sync/conflict"
	"github.com/brewkit/brewsync/internal/viewcache"
)

// Handler applies inbound change-feed events: echoes are discarded,
// deletes never outrun newer local edits, upserts go through the
// conflict resolver before touching the local store and view cache.
type Handler struct {
	store      *store.Store
	cache      *viewcache.Cache
	suppressor *Suppressor
}

// NewHandler creates a Handler.
func NewHandler(s *store.Store, cache *viewcache.Cache, sup *Suppressor) *Handler {
	return &Handler{store: s, cache: cache, suppressor: sup}
}

// Handle applies one change-feed event to local state.
func (h *Handler) Handle(ev remote.ChangeEvent) error {
	rec := ev.New
	if ev.EventType == remote.EventDelete && rec == nil {
		rec = ev.Old
	}
	if rec == nil {
		return nil
	}

	table, err := models.ParseTable(ev.Table)
	if err != nil {
		return errors.Wrap(errors.ErrTableUnknown, "change event for unknown table", err)
	}

	if h.suppressor.Suppressed(table, rec.ID) {
		logging.Debug("Suppressed echo of own change", map[string]interface{}{
			"table": ev.Table,
			"id":    rec.ID,
		})
		return nil
	}

	if ev.EventType == remote.EventDelete || rec.Deleted() {
		return h.applyRemoteDelete(table, rec)
	}
	return h.applyRemoteUpsert(table, rec)
}

// applyRemoteDelete removes the local record if the remote deletion is
// at least as new as the local edit. A record deleted remotely but
// edited locally afterwards is kept; reconciliation will resurrect it.
func (h *Handler) applyRemoteDelete(table models.Table, rec *models.CloudRecord) error {
	local, err := h.store.Get(table, rec.ID)
	if err != nil {
		return err
	}
	if local == nil {
		return nil
	}

	remoteTS := conflict.ExtractTimestamp(rec.Times())
	localTS := conflict.ExtractTimestamp(local.Times())
	if remoteTS < localTS {
		logging.Debug("Ignoring remote delete older than local edit", map[string]interface{}{
			"table":     string(table),
			"id":        rec.ID,
			"remote_ts": remoteTS,
			"local_ts":  localTS,
		})
		return nil
	}

	if err := h.store.Delete(table, rec.ID); err != nil {
		return err
	}
	h.cache.Delete(table, rec.ID)
	return nil
}

// applyRemoteUpsert writes an accepted inbound record to the local
// store and view cache. Metadata-only notifications are skipped; the
// full payload must arrive before anything is written.
func (h *Handler) applyRemoteUpsert(table models.Table, rec *models.CloudRecord) error {
	if !rec.HasPayload() {
		logging.Debug("Skipping metadata-only change event", map[string]interface{}{
			"table": string(table),
			"id":    rec.ID,
		})
		return nil
	}

	incoming, err := decodeInbound(table, rec)
	if err != nil {
		return err
	}

	local, err := h.store.Get(table, incoming.ID)
	if err != nil {
		return err
	}
	if !conflict.ShouldAcceptRemoteChange(local, rec) {
		return nil
	}

	if err := h.store.Put(table, incoming); err != nil {
		return err
	}
	h.cache.Upsert(table, incoming)
	return nil
}

// decodeInbound converts a feed record into the local shape. The
// custom_methods collection arrives grouped by parent equipment id and
// needs translation before the local write.
func decodeInbound(table models.Table, rec *models.CloudRecord) (*models.SyncRecord, error) {
	if table == models.TableCustomMethods {
		group, err := models.TranslateMethodsRow(rec)
		if err != nil {
			return nil, err
		}
		ts := group.Timestamp
		if ts == 0 {
			ts = models.ParseISO(rec.UpdatedAt)
		}
		return &models.SyncRecord{ID: group.EquipmentID, Timestamp: ts, Payload: group}, nil
	}
	return models.DecodeRecord(table, rec)
}
