// Package viewcache provides the in-memory view-state cache the UI
// reads from. The sync engine writes into it synchronously whenever it
// accepts a local-store mutation, so views never have to re-query the
// local database on every change.
package viewcache

import (
	"sort"
	"sync"

	"github.com/brewkit/brewsync/internal/models"
)

// Cache holds per-collection snapshots of the local store.
type Cache struct {
	mu          sync.RWMutex
	collections map[models.Table]map[string]*models.SyncRecord
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{
		collections: make(map[models.Table]map[string]*models.SyncRecord),
	}
}

// SetAll replaces the cached collection with the given records.
// Used for the post-sync bulk reload.
func (c *Cache) SetAll(table models.Table, recs []*models.SyncRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	coll := make(map[string]*models.SyncRecord, len(recs))
	for _, rec := range recs {
		coll[rec.ID] = rec
	}
	c.collections[table] = coll
}

// Upsert inserts the record if unseen, replaces it if known.
func (c *Cache) Upsert(table models.Table, rec *models.SyncRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	coll, ok := c.collections[table]
	if !ok {
		coll = make(map[string]*models.SyncRecord)
		c.collections[table] = coll
	}
	coll[rec.ID] = rec
}

// Delete removes a record from the cached collection.
func (c *Cache) Delete(table models.Table, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if coll, ok := c.collections[table]; ok {
		delete(coll, id)
	}
}

// Get returns the cached record, or nil when unseen.
func (c *Cache) Get(table models.Table, id string) *models.SyncRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if coll, ok := c.collections[table]; ok {
		return coll[id]
	}
	return nil
}

// Snapshot returns the cached collection ordered by id.
func (c *Cache) Snapshot(table models.Table) []*models.SyncRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	coll := c.collections[table]
	recs := make([]*models.SyncRecord, 0, len(coll))
	for _, rec := range coll {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	return recs
}

// Len returns the number of cached records in a collection.
func (c *Cache) Len(table models.Table) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.collections[table])
}
