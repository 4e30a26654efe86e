// Package catalog turns the remote document listing into the filtered,
// sorted view shown to users.
package catalog

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_source.go -package=mocks signvault/catalog Source

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"signvault/pkg/signvault"
)

// Source lists vaults and finalized documents.
type Source interface {
	ListVaults(ctx context.Context) []signvault.Vault
	ListDocuments(ctx context.Context, vaultID string) []signvault.Document
}

// Downloads answers which documents were downloaded.
type Downloads interface {
	RecentIDs(ctx context.Context, now time.Time) map[string]struct{}
	DownloadedIDs(ctx context.Context) map[string]struct{}
}

// Query holds the listing form values.
type Query struct {
	VaultID string
	Search  string
	Period  string
	Start   string
	End     string
	Sort    signvault.SortOrder
	View    signvault.ViewStatus
	// Initial marks a first page load, which gets the default date window
	// when no date input was given.
	Initial bool
}

// Result is one rendered listing.
type Result struct {
	Range           *Range
	Documents       []signvault.Document
	Vaults          []signvault.Vault
	Start           string
	End             string
	Sort            signvault.SortOrder
	View            signvault.ViewStatus
	TotalDownloaded int
	Matched         int
	Truncated       bool
}

// Catalog runs the listing pipeline.
type Catalog struct {
	source    Source
	downloads Downloads
	logger    *slog.Logger
	now       func() time.Time
	limit     int
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) { c.now = now }
}

// WithLimit overrides the maximum number of documents returned.
func WithLimit(n int) Option {
	return func(c *Catalog) { c.limit = n }
}

// New creates a catalog.
func New(source Source, downloads Downloads, logger *slog.Logger, opts ...Option) *Catalog {
	c := &Catalog{
		source:    source,
		downloads: downloads,
		logger:    logger,
		now:       time.Now,
		limit:     signvault.MaxResults,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List fetches, enriches, filters, sorts, and truncates documents for q.
func (c *Catalog) List(ctx context.Context, q Query) Result {
	startTime := time.Now()
	now := c.now()

	if q.Sort == "" {
		q.Sort = signvault.SortNewestFirst
	}
	if q.View == "" {
		q.View = signvault.ViewNotDownloaded
	}

	vaults := c.source.ListVaults(ctx)
	vaultNames := make(map[string]string, len(vaults))
	for _, v := range vaults {
		vaultNames[v.ID] = v.Name
	}

	listed := c.source.ListDocuments(ctx, q.VaultID)
	recent := c.downloads.RecentIDs(ctx, now)

	docs := make([]signvault.Document, 0, len(listed))
	for _, d := range listed {
		d.VaultName = signvault.UnknownVault
		if name, ok := vaultNames[d.VaultID]; ok {
			d.VaultName = name
		}
		_, d.Downloaded = recent[d.ID]
		docs = append(docs, d)
	}

	docs = FilterName(docs, q.Search)

	res := Result{Vaults: vaults, Sort: q.Sort, View: q.View, Start: q.Start, End: q.End}
	if q.Initial && strings.TrimSpace(q.Period) == "" && q.Start == "" && q.End == "" {
		res.Start, res.End = DefaultDates(now)
	}
	if r, ok := ParseRange(q.Period, res.Start, res.End); ok {
		res.Range = &r
		docs = FilterRange(docs, r)
	}

	Sort(docs, q.Sort)
	docs = FilterView(docs, q.View)

	res.Matched = len(docs)
	if c.limit > 0 && len(docs) > c.limit {
		docs = docs[:c.limit]
		res.Truncated = true
	}
	res.Documents = docs
	res.TotalDownloaded = len(c.downloads.DownloadedIDs(ctx))

	c.logger.Info("Listing generated",
		"vault", q.VaultID,
		"documents", len(docs),
		"matched", res.Matched,
		"duration_ms", time.Since(startTime).Milliseconds())
	return res
}

// FilterName keeps documents whose clean name contains term, ignoring case.
func FilterName(docs []signvault.Document, term string) []signvault.Document {
	term = strings.TrimSpace(term)
	if term == "" {
		return docs
	}
	fold := cases.Fold()
	needle := fold.String(term)

	out := docs[:0:0]
	for _, d := range docs {
		if strings.Contains(fold.String(d.CleanName), needle) {
			out = append(out, d)
		}
	}
	return out
}

// FilterRange keeps documents with a signed date inside r.
func FilterRange(docs []signvault.Document, r Range) []signvault.Document {
	out := docs[:0:0]
	for _, d := range docs {
		if d.SignedDate != nil && r.Contains(*d.SignedDate) {
			out = append(out, d)
		}
	}
	return out
}

// Sort orders docs by signed date in place. Documents without a date go last
// in both orders; ties keep their listing order.
func Sort(docs []signvault.Document, order signvault.SortOrder) {
	slices.SortStableFunc(docs, func(a, b signvault.Document) int {
		switch {
		case a.SignedDate == nil && b.SignedDate == nil:
			return 0
		case a.SignedDate == nil:
			return 1
		case b.SignedDate == nil:
			return -1
		}
		cmp := a.SignedDate.Compare(*b.SignedDate)
		if order == signvault.SortOldestFirst {
			return cmp
		}
		return -cmp
	})
}

// FilterView keeps the documents matching the downloaded-state view.
func FilterView(docs []signvault.Document, view signvault.ViewStatus) []signvault.Document {
	if view != signvault.ViewDownloaded && view != signvault.ViewNotDownloaded {
		return docs
	}
	want := view == signvault.ViewDownloaded
	out := docs[:0:0]
	for _, d := range docs {
		if d.Downloaded == want {
			out = append(out, d)
		}
	}
	return out
}
