// Package conflict provides conflict resolution for multi-device
// synchronization using a "last write wins" strategy. All functions are
// pure timestamp comparisons; resolution never errors and identical
// inputs always yield the same winner.
package conflict

import "github.com/brewkit/brewsync/internal/models"

// Winner identifies the side selected by resolution.
type Winner int

const (
	WinnerLocal Winner = iota
	WinnerRemote
)

// ExtractTimestamp picks the effective mutation time of a record in
// epoch ms: an explicit updatedAt field first, then the logical
// timestamp, then the cloud updated_at string, else 0.
func ExtractTimestamp(t models.Timestamps) int64 {
	if t.UpdatedAt > 0 {
		return t.UpdatedAt
	}
	if t.Timestamp > 0 {
		return t.Timestamp
	}
	return models.ParseISO(t.RemoteISO)
}

// Resolve compares a local and a remote version of the same record.
// The strictly newer side wins; the local side wins ties.
func Resolve(local *models.SyncRecord, remote *models.CloudRecord) Winner {
	if ExtractTimestamp(remote.Times()) > ExtractTimestamp(local.Times()) {
		return WinnerRemote
	}
	return WinnerLocal
}

// ShouldAcceptRemoteChange reports whether an inbound remote version
// should overwrite local state: yes when no local version exists, or
// when the remote mutation time is strictly greater.
func ShouldAcceptRemoteChange(local *models.SyncRecord, remote *models.CloudRecord) bool {
	if local == nil {
		return true
	}
	return ExtractTimestamp(remote.Times()) > ExtractTimestamp(local.Times())
}

// Plan is the output of BatchResolve: the minimal sets of records to
// upload, download and delete locally. Records in none of the buckets
// are already converged.
type Plan struct {
	ToUpload      []*models.SyncRecord
	ToDownload    []*models.CloudRecord
	ToDeleteLocal []string
}

// BatchResolve diffs the local records of one collection against the
// remote record set and partitions them into a sync plan.
//
// Rules, in order:
//   - Local-only record: always uploaded, even when its timestamp
//     predates lastSync. A missing cloud row is never read as a cloud
//     deletion; only an explicit tombstone deletes.
//   - Remote tombstone with a local copy: upload (resurrect) when the
//     local edit is strictly newer than the tombstone, delete locally
//     otherwise.
//   - Both active, both modified since lastSync: last write wins, ties
//     keep local without re-uploading.
//   - Only one side modified since lastSync: that side wins.
//   - Neither modified: keep local, unless the remote timestamp still
//     strictly exceeds the local one. That guards against a zeroed or
//     corrupted watermark and stays subordinate to the rules above.
//   - Remote-only active record: downloaded. Remote-only tombstone:
//     ignored.
//
// Remote records with a fetched-but-missing payload must be filtered
// out by the caller; a nil payload must never overwrite local state.
func BatchResolve(local []*models.SyncRecord, remote []*models.CloudRecord, lastSync int64) Plan {
	plan := Plan{}

	remoteByID := make(map[string]*models.CloudRecord, len(remote))
	for _, r := range remote {
		remoteByID[r.ID] = r
	}

	for _, l := range local {
		r, ok := remoteByID[l.ID]
		if !ok {
			plan.ToUpload = append(plan.ToUpload, l)
			continue
		}
		delete(remoteByID, l.ID)

		lts := ExtractTimestamp(l.Times())
		rts := ExtractTimestamp(r.Times())

		if r.Deleted() {
			if lts > rts {
				plan.ToUpload = append(plan.ToUpload, l)
			} else {
				plan.ToDeleteLocal = append(plan.ToDeleteLocal, l.ID)
			}
			continue
		}

		localChanged := lts > lastSync
		remoteChanged := rts > lastSync

		switch {
		case localChanged && remoteChanged:
			if rts > lts {
				plan.ToDownload = append(plan.ToDownload, r)
			} else if lts > rts {
				plan.ToUpload = append(plan.ToUpload, l)
			}
			// Equal timestamps mean both sides hold the same write.
		case localChanged:
			plan.ToUpload = append(plan.ToUpload, l)
		case remoteChanged:
			plan.ToDownload = append(plan.ToDownload, r)
		default:
			if rts > lts {
				plan.ToDownload = append(plan.ToDownload, r)
			}
		}
	}

	for _, r := range remote {
		if _, pending := remoteByID[r.ID]; !pending {
			continue
		}
		if r.Deleted() {
			continue
		}
		plan.ToDownload = append(plan.ToDownload, r)
	}

	return plan
}
