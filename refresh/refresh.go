// Package refresh resolves the latest signature time of documents and keeps
// the signature store and the ledger up to date.
package refresh

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_remote.go -package=mocks signvault/refresh Remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"signvault/cache"
	"signvault/ledger"
	"signvault/pkg/signvault"
	"signvault/timestamps"
)

const (
	// DefaultTimelineTTL is how long signer timelines are cached.
	DefaultTimelineTTL = time.Hour
	// DefaultBatchDelay spaces remote lookups in a batch refresh.
	DefaultBatchDelay = 350 * time.Millisecond
	// DefaultLedgerDelay spaces remote lookups when refreshing every ledger id.
	DefaultLedgerDelay = 250 * time.Millisecond

	// RegisteredSource marks ledger signature times written by RegisterDates.
	RegisteredSource = "registered"
)

// ErrNoDownloads is returned when a ledger-wide refresh finds no ids.
var ErrNoDownloads = errors.New("no downloads found")

// Remote looks up signature times on the signing platform.
type Remote interface {
	SignerTimeline(ctx context.Context, id string) (time.Time, bool)
	DocumentDetail(ctx context.Context, id string) (any, bool)
}

// Signatures stores resolved signature times.
type Signatures interface {
	Set(ctx context.Context, id string, t time.Time)
}

// Ledger is the part of the downloads ledger a refresh touches.
type Ledger interface {
	IDs(ctx context.Context) []string
	Meta(ctx context.Context) map[string]ledger.Entry
	MergeSignatures(ctx context.Context, updates []ledger.SignatureUpdate, source string) (int, error)
}

// Lister lists finalized documents across all vaults.
type Lister interface {
	ListDocuments(ctx context.Context, vaultID string) []signvault.Document
}

type lookup struct {
	at time.Time
	ok bool
}

// Resolver finds the latest signature time of a document, first through the
// signer timeline and then through the document detail payload.
type Resolver struct {
	remote   Remote
	timeline *cache.Func[string, lookup]
}

// NewResolver creates a resolver caching timelines for ttl.
func NewResolver(remote Remote, ttl time.Duration, opts ...cache.Option) *Resolver {
	return &Resolver{
		remote: remote,
		timeline: cache.New(ttl, func(ctx context.Context, id string) lookup {
			at, ok := remote.SignerTimeline(ctx, id)
			return lookup{at: at, ok: ok}
		}, opts...),
	}
}

// Resolve returns the latest signature time of id. With fresh set, a cached
// negative timeline result is looked up again.
func (r *Resolver) Resolve(ctx context.Context, id string, fresh bool) (time.Time, bool) {
	res := r.timeline.Get(ctx, id)
	if !res.ok && fresh {
		res = r.timeline.Fresh(ctx, id)
	}
	if res.ok {
		return res.at, true
	}

	payload, ok := r.remote.DocumentDetail(ctx, id)
	if !ok {
		return time.Time{}, false
	}
	return timestamps.Latest(payload)
}

// Refresher runs single, batch and ledger-wide refreshes.
type Refresher struct {
	resolver    *Resolver
	signatures  Signatures
	ledger      Ledger
	lister      Lister
	logger      *slog.Logger
	batchDelay  time.Duration
	ledgerDelay time.Duration
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithDelays overrides the spacing of batch and ledger-wide lookups.
func WithDelays(batch, fromLedger time.Duration) Option {
	return func(r *Refresher) {
		r.batchDelay = batch
		r.ledgerDelay = fromLedger
	}
}

// New creates a refresher.
func New(resolver *Resolver, signatures Signatures, l Ledger, lister Lister, logger *slog.Logger, opts ...Option) *Refresher {
	r := &Refresher{
		resolver:    resolver,
		signatures:  signatures,
		ledger:      l,
		lister:      lister,
		logger:      logger,
		batchDelay:  DefaultBatchDelay,
		ledgerDelay: DefaultLedgerDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RefreshOne resolves id and stores the result when found.
func (r *Refresher) RefreshOne(ctx context.Context, id string) (time.Time, bool) {
	at, ok := r.resolver.Resolve(ctx, id, false)
	if !ok {
		r.logger.Info("No signature time found", "uuid", id)
		return time.Time{}, false
	}
	r.signatures.Set(ctx, id, at)
	return at, true
}

// RefreshBatch resolves every id, spacing remote lookups. Ids without a
// signature time, or left unprocessed when ctx ends, map to nil.
func (r *Refresher) RefreshBatch(ctx context.Context, ids []string) map[string]*time.Time {
	return r.refreshAll(ctx, ids, r.batchDelay)
}

// RefreshFromLedger refreshes every id in the downloads ledger.
func (r *Refresher) RefreshFromLedger(ctx context.Context) (map[string]*time.Time, error) {
	ids := r.ledger.IDs(ctx)
	if len(ids) == 0 {
		return map[string]*time.Time{}, ErrNoDownloads
	}
	return r.refreshAll(ctx, ids, r.ledgerDelay), nil
}

func (r *Refresher) refreshAll(ctx context.Context, ids []string, delay time.Duration) map[string]*time.Time {
	start := time.Now()
	results := make(map[string]*time.Time, len(ids))
	limiter := rate.NewLimiter(rate.Every(delay), 1)

	found := 0
	for _, id := range ids {
		results[id] = nil
	}
	for _, id := range ids {
		if err := limiter.Wait(ctx); err != nil {
			r.logger.Warn("Refresh interrupted", "processed", found, "error", err)
			break
		}
		at, ok := r.resolver.Resolve(ctx, id, true)
		if !ok {
			continue
		}
		r.signatures.Set(ctx, id, at)
		results[id] = &at
		found++
	}

	r.logger.Info("Signature refresh completed",
		"requested", len(ids),
		"found", found,
		"duration_ms", time.Since(start).Milliseconds())
	return results
}

// RegisterDates writes the known signature time of every listed document into
// the ledger. The listing value wins, then the value already in the ledger,
// then a remote lookup. The returned map holds nil for documents with no time.
func (r *Refresher) RegisterDates(ctx context.Context) (map[string]*time.Time, error) {
	docs := r.lister.ListDocuments(ctx, "")
	meta := r.ledger.Meta(ctx)

	results := make(map[string]*time.Time, len(docs))
	var updates []ledger.SignatureUpdate
	for _, d := range docs {
		if d.ID == "" {
			continue
		}

		var at time.Time
		switch {
		case d.LastSignature != nil:
			at = *d.LastSignature
		case meta[d.ID].LastSignature != nil:
			at = *meta[d.ID].LastSignature
		default:
			resolved, ok := r.resolver.Resolve(ctx, d.ID, true)
			if !ok {
				results[d.ID] = nil
				continue
			}
			at = resolved
		}

		results[d.ID] = &at
		updates = append(updates, ledger.SignatureUpdate{At: at, ID: d.ID, OriginalName: d.OriginalName})
	}

	written, err := r.ledger.MergeSignatures(ctx, updates, RegisteredSource)
	if err != nil {
		return results, fmt.Errorf("merge signatures: %w", err)
	}
	r.logger.Info("Signature dates registered", "documents", len(docs), "written", written)
	return results, nil
}
