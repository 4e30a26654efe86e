package catalog

import (
	"context"
	"time"

	"signvault/cache"
	"signvault/pkg/signvault"
)

// CachedSource memoises a Source's listings for a fixed TTL.
type CachedSource struct {
	vaults    *cache.Func[struct{}, []signvault.Vault]
	documents *cache.Func[string, []signvault.Document]
}

// NewCachedSource wraps src. Empty results are cached like any other.
func NewCachedSource(src Source, ttl time.Duration, opts ...cache.Option) *CachedSource {
	return &CachedSource{
		vaults: cache.New(ttl, func(ctx context.Context, _ struct{}) []signvault.Vault {
			return src.ListVaults(ctx)
		}, opts...),
		documents: cache.New(ttl, src.ListDocuments, opts...),
	}
}

// ListVaults returns the cached vault list.
func (c *CachedSource) ListVaults(ctx context.Context) []signvault.Vault {
	return c.vaults.Get(ctx, struct{}{})
}

// ListDocuments returns the cached document list for vaultID.
func (c *CachedSource) ListDocuments(ctx context.Context, vaultID string) []signvault.Document {
	return c.documents.Get(ctx, vaultID)
}
