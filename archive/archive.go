// Package archive packs signed documents into a zip and records them as
// downloaded.
package archive

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_fetcher.go -package=mocks signvault/archive Fetcher

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"signvault/ledger"
)

const (
	defaultConcurrency = 4
	defaultExtension   = ".pdf"
)

// ErrEmptyArchive is returned when none of the requested documents could be fetched.
var ErrEmptyArchive = errors.New("no documents could be fetched")

// Fetcher downloads a document's binary content.
type Fetcher interface {
	DownloadContent(ctx context.Context, id string) ([]byte, bool)
}

// Recorder persists download records.
type Recorder interface {
	Record(ctx context.Context, id string, e ledger.Entry) error
}

// Archive is a built zip.
type Archive struct {
	Data  []byte
	Names []string
	Count int
}

// Builder fetches documents and zips them.
type Builder struct {
	fetcher     Fetcher
	recorder    Recorder
	logger      *slog.Logger
	now         func() time.Time
	concurrency int
	timeout     time.Duration
}

// Option configures a Builder.
type Option func(*Builder)

// WithConcurrency sets how many documents are fetched at once.
func WithConcurrency(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithTimeout bounds a whole Build call. Documents not fetched in time are skipped.
func WithTimeout(d time.Duration) Option {
	return func(b *Builder) { b.timeout = d }
}

// WithClock replaces time.Now for download timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// New creates a builder.
func New(fetcher Fetcher, recorder Recorder, logger *slog.Logger, opts ...Option) *Builder {
	b := &Builder{
		fetcher:     fetcher,
		recorder:    recorder,
		logger:      logger,
		now:         time.Now,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build fetches ids and writes every document that came back into a zip.
// names holds optional filename hints per id. Entry naming follows the order
// of ids regardless of fetch completion order.
func (b *Builder) Build(ctx context.Context, ids []string, names map[string]string) (Archive, error) {
	start := time.Now()

	fetchCtx := ctx
	if b.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	contents := make([][]byte, len(ids))
	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			if fetchCtx.Err() != nil {
				return nil
			}
			data, ok := b.fetcher.DownloadContent(fetchCtx, id)
			if !ok {
				b.logger.Warn("Document content unavailable, skipping", "uuid", id)
				return nil
			}
			contents[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Archive{}, fmt.Errorf("fetch documents: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	namer := NewNamer()
	now := b.now().UTC()

	// Recording must survive the caller's deadline once the file is in the zip.
	recordCtx := context.WithoutCancel(ctx)

	var arc Archive
	for i, id := range ids {
		data := contents[i]
		if data == nil {
			continue
		}

		original := names[id]
		if strings.TrimSpace(original) == "" {
			original = id + defaultExtension
		}
		name := namer.Next(SanitizeName(original))

		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store, Modified: now})
		if err != nil {
			return Archive{}, fmt.Errorf("create zip entry: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return Archive{}, fmt.Errorf("write zip entry: %w", err)
		}
		arc.Names = append(arc.Names, name)

		downloadedAt := now
		if err := b.recorder.Record(recordCtx, id, ledger.Entry{DocumentID: id, OriginalName: original, DownloadedAt: &downloadedAt}); err != nil {
			b.logger.Error("Failed to record download", "uuid", id, "error", err)
		}
	}

	if err := zw.Close(); err != nil {
		return Archive{}, fmt.Errorf("close zip: %w", err)
	}

	arc.Count = len(arc.Names)
	if arc.Count == 0 {
		b.logger.Warn("Archive empty", "requested", len(ids))
		return Archive{}, ErrEmptyArchive
	}
	arc.Data = buf.Bytes()

	b.logger.Info("Archive built",
		"requested", len(ids),
		"files", arc.Count,
		"bytes", len(arc.Data),
		"duration_ms", time.Since(start).Milliseconds())
	return arc, nil
}
