package reconcile

import "github.com/brewkit/brewsync/internal/models"

// TableResult is the outcome of one table's reconciliation.
type TableResult struct {
	Table        models.Table
	Uploaded     int
	Downloaded   int
	DeletedLocal int
	Skipped      bool
	Err          error
}

// Summary aggregates one reconciliation pass. Table failures are
// isolated: one table's error never aborts its siblings, so the
// summary can hold a mix of successes and failures.
type Summary struct {
	StartedAt         int64
	FinishedAt        int64
	FirstSync         bool
	WatermarkAdvanced bool
	Tables            []TableResult
	Settings          TableResult
}

// Uploaded returns the total records uploaded across tables.
func (s *Summary) Uploaded() int {
	n := s.Settings.Uploaded
	for _, r := range s.Tables {
		n += r.Uploaded
	}
	return n
}

// Downloaded returns the total records downloaded across tables.
func (s *Summary) Downloaded() int {
	n := s.Settings.Downloaded
	for _, r := range s.Tables {
		n += r.Downloaded
	}
	return n
}

// DeletedLocal returns the total local deletions across tables.
func (s *Summary) DeletedLocal() int {
	n := 0
	for _, r := range s.Tables {
		n += r.DeletedLocal
	}
	return n
}

// ErrorCount returns the number of failed tables, settings included.
func (s *Summary) ErrorCount() int {
	n := 0
	for _, r := range s.Tables {
		if r.Err != nil {
			n++
		}
	}
	if s.Settings.Err != nil {
		n++
	}
	return n
}

// FailedPrimary returns the failed results of primary content tables.
// Primary failures are reported distinctly from secondary ones.
func (s *Summary) FailedPrimary() []TableResult {
	var failed []TableResult
	for _, r := range s.Tables {
		if r.Err != nil && r.Table.Primary() {
			failed = append(failed, r)
		}
	}
	return failed
}

// AllFailed reports whether every attempted content table failed. A
// fully failed pass must not advance the watermark, otherwise the next
// pass would silently skip the retry window.
func (s *Summary) AllFailed() bool {
	attempted := 0
	failed := 0
	for _, r := range s.Tables {
		if r.Skipped {
			continue
		}
		attempted++
		if r.Err != nil {
			failed++
		}
	}
	return attempted > 0 && failed == attempted
}

// Quiet reports whether the pass was a routine no-op: nothing moved,
// nothing failed, not the first sync. Quiet passes produce no
// user-visible notification.
func (s *Summary) Quiet() bool {
	return !s.FirstSync &&
		s.Uploaded() == 0 && s.Downloaded() == 0 && s.DeletedLocal() == 0 &&
		s.ErrorCount() == 0
}
