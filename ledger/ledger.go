// Package ledger records which documents have been downloaded, and when.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"signvault/pkg/signvault"
)

// Backend persists ledger entries keyed by document id.
type Backend interface {
	Load(ctx context.Context) (map[string]Entry, error)
	Put(ctx context.Context, e Entry) error
}

// SignatureUpdate is a signature time to merge into the ledger.
type SignatureUpdate struct {
	At           time.Time
	ID           string
	OriginalName string
}

// Ledger reads and writes download records through a primary backend,
// degrading to a fallback backend when the primary fails.
type Ledger struct {
	primary  Backend
	fallback Backend
	logger   *slog.Logger
}

// New creates a ledger. Either backend may be nil, but not both.
func New(primary, fallback Backend, logger *slog.Logger) *Ledger {
	return &Ledger{primary: primary, fallback: fallback, logger: logger}
}

// Record stores e under id, replacing any previous entry.
func (l *Ledger) Record(ctx context.Context, id string, e Entry) error {
	if id == "" {
		return errors.New("record download: empty document id")
	}
	e.DocumentID = id

	if l.primary != nil {
		err := l.primary.Put(ctx, e)
		if err == nil {
			return nil
		}
		if l.fallback == nil {
			return fmt.Errorf("record download: %w", err)
		}
		l.logger.Warn("Ledger write failed, using fallback", "uuid", id, "error", err)
	}

	if err := l.fallback.Put(ctx, e); err != nil {
		return fmt.Errorf("record download fallback: %w", err)
	}
	return nil
}

// Meta returns every stored entry. Failures degrade to an empty ledger.
func (l *Ledger) Meta(ctx context.Context) map[string]Entry {
	if l.primary != nil {
		entries, err := l.primary.Load(ctx)
		if err == nil {
			return entries
		}
		l.logger.Warn("Ledger read failed", "error", err)
		if l.fallback == nil {
			return map[string]Entry{}
		}
	}

	entries, err := l.fallback.Load(ctx)
	if err != nil {
		l.logger.Warn("Ledger fallback read failed", "error", err)
		return map[string]Entry{}
	}
	return entries
}

// DownloadedIDs returns the ids that have ever been downloaded.
// Entries that only carry a registered signature time are not downloads.
func (l *Ledger) DownloadedIDs(ctx context.Context) map[string]struct{} {
	ids := make(map[string]struct{})
	for id, e := range l.Meta(ctx) {
		if e.DownloadedAt != nil {
			ids[id] = struct{}{}
		}
	}
	return ids
}

// RecentIDs returns the ids downloaded within the recency window ending at now.
func (l *Ledger) RecentIDs(ctx context.Context, now time.Time) map[string]struct{} {
	ids := make(map[string]struct{})
	for id, e := range l.Meta(ctx) {
		if e.DownloadedAt != nil && signvault.IsRecent(*e.DownloadedAt, now) {
			ids[id] = struct{}{}
		}
	}
	return ids
}

// IDs returns every id in the ledger, downloaded or only registered.
func (l *Ledger) IDs(ctx context.Context) []string {
	meta := l.Meta(ctx)
	ids := make([]string, 0, len(meta))
	for id := range meta {
		ids = append(ids, id)
	}
	return ids
}

// MergeSignatures writes signature times into the ledger, keeping every other
// field. Entries whose stored time already matches are left alone. It returns
// the number of entries written.
func (l *Ledger) MergeSignatures(ctx context.Context, updates []SignatureUpdate, source string) (int, error) {
	meta := l.Meta(ctx)

	var errs []error
	written := 0
	for _, u := range updates {
		if u.ID == "" || u.At.IsZero() {
			continue
		}
		e, exists := meta[u.ID]
		if exists && e.LastSignature != nil && e.LastSignature.Equal(u.At) {
			continue
		}

		at := u.At
		e.DocumentID = u.ID
		e.LastSignature = &at
		if e.LastSignatureSource == "" {
			e.LastSignatureSource = source
		}
		if e.OriginalName == "" {
			e.OriginalName = u.OriginalName
		}

		if err := l.Record(ctx, u.ID, e); err != nil {
			errs = append(errs, err)
			continue
		}
		meta[u.ID] = e
		written++
	}

	if written > 0 {
		l.logger.Info("Signature times merged into ledger", "written", written, "source", source)
	}
	return written, errors.Join(errs...)
}
