package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/brewkit/brewsync/internal/models"
)

// cloudRow is the gorm model for the authoritative record table.
// updated_at is driven by record timestamps, not by gorm.
type cloudRow struct {
	TenantID  string     `gorm:"column:tenant_id;primaryKey"`
	Table     string     `gorm:"column:table_name;primaryKey"`
	RecordID  string     `gorm:"column:record_id;primaryKey"`
	Payload   []byte     `gorm:"column:payload;type:jsonb"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime:false"`
	DeletedAt *time.Time `gorm:"column:deleted_at"`
}

func (cloudRow) TableName() string {
	return "cloud_records"
}

// PostgresBackend implements Backend on a tenant-scoped Postgres table.
type PostgresBackend struct {
	db     *gorm.DB
	tenant string
}

// OpenPostgres connects to the cloud store and ensures the schema.
func OpenPostgres(dsn, tenant string) (*PostgresBackend, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cloud store: %w", err)
	}
	if err := db.AutoMigrate(&cloudRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate cloud schema: %w", err)
	}
	return &PostgresBackend{db: db, tenant: tenant}, nil
}

// UpsertRecords writes records with an on-conflict update keyed by
// (tenant, table, record id). The tombstone column is always cleared so
// an upsert resurrects a previously deleted row.
func (b *PostgresBackend) UpsertRecords(ctx context.Context, table models.Table, recs []*models.CloudRecord) error {
	if len(recs) == 0 {
		return nil
	}

	rows := make([]cloudRow, 0, len(recs))
	for _, rec := range recs {
		updatedAt := time.UnixMilli(models.ParseISO(rec.UpdatedAt)).UTC()
		if rec.UpdatedAt == "" {
			updatedAt = time.Now().UTC()
		}
		rows = append(rows, cloudRow{
			TenantID:  b.tenant,
			Table:     string(table),
			RecordID:  rec.ID,
			Payload:   rec.Payload,
			UpdatedAt: updatedAt,
		})
	}

	assignments := clause.AssignmentColumns([]string{"payload", "updated_at"})
	assignments = append(assignments, clause.Assignment{
		Column: clause.Column{Name: "deleted_at"},
		Value:  nil,
	})

	err := b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "tenant_id"}, {Name: "table_name"}, {Name: "record_id"},
		},
		DoUpdates: assignments,
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to upsert %d records into %s: %w", len(recs), table, err)
	}
	return nil
}

// FetchAll returns all rows of the collection, tombstones included,
// ordered by updated_at.
func (b *PostgresBackend) FetchAll(ctx context.Context, table models.Table, metadataOnly bool) ([]*models.CloudRecord, error) {
	q := b.db.WithContext(ctx).
		Where("tenant_id = ? AND table_name = ?", b.tenant, string(table)).
		Order("updated_at")
	if metadataOnly {
		q = q.Select("tenant_id", "table_name", "record_id", "updated_at", "deleted_at")
	}

	var rows []cloudRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch %s records: %w", table, err)
	}
	return toCloudRecords(rows), nil
}

// FetchByIDs returns the full rows for the given record ids.
func (b *PostgresBackend) FetchByIDs(ctx context.Context, table models.Table, ids []string) ([]*models.CloudRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []cloudRow
	err := b.db.WithContext(ctx).
		Where("tenant_id = ? AND table_name = ? AND record_id IN ?", b.tenant, string(table), ids).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s records by id: %w", table, err)
	}
	return toCloudRecords(rows), nil
}

// MarkDeleted tombstones the given records in one batched update.
func (b *PostgresBackend) MarkDeleted(ctx context.Context, table models.Table, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	now := time.Now().UTC()
	err := b.db.WithContext(ctx).Model(&cloudRow{}).
		Where("tenant_id = ? AND table_name = ? AND record_id IN ?", b.tenant, string(table), ids).
		Updates(map[string]interface{}{
			"deleted_at": now,
			"updated_at": now,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark %d %s records deleted: %w", len(ids), table, err)
	}
	return nil
}

// LatestTimestamp returns max(updated_at) of the collection in epoch ms.
func (b *PostgresBackend) LatestTimestamp(ctx context.Context, table models.Table) (int64, error) {
	var latest *time.Time
	err := b.db.WithContext(ctx).Model(&cloudRow{}).
		Where("tenant_id = ? AND table_name = ?", b.tenant, string(table)).
		Select("MAX(updated_at)").
		Scan(&latest).Error
	if err != nil {
		return 0, fmt.Errorf("failed to fetch latest %s timestamp: %w", table, err)
	}
	if latest == nil {
		return 0, nil
	}
	return latest.UnixMilli(), nil
}

func toCloudRecords(rows []cloudRow) []*models.CloudRecord {
	recs := make([]*models.CloudRecord, 0, len(rows))
	for _, row := range rows {
		rec := &models.CloudRecord{
			ID:        row.RecordID,
			TenantID:  row.TenantID,
			Table:     row.Table,
			Payload:   json.RawMessage(row.Payload),
			UpdatedAt: row.UpdatedAt.UTC().Format(time.RFC3339Nano),
		}
		if row.DeletedAt != nil {
			iso := row.DeletedAt.UTC().Format(time.RFC3339Nano)
			rec.DeletedAt = &iso
		}
		recs = append(recs, rec)
	}
	return recs
}
