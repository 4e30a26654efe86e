// Package signvault contains the core domain types for the signed-document portal.
package signvault

import "time"

const (
	// StatusFinalized is the remote status name of a document whose signatures are complete.
	StatusFinalized = "Finalizado"

	// RecentWindow is how long a ledger entry keeps a document marked as downloaded.
	RecentWindow = 60 * 24 * time.Hour

	// MaxResults bounds the number of documents returned by one listing.
	MaxResults = 2000

	// UnknownVault is shown when a document's vault is not in the vault listing.
	UnknownVault = "Desconhecido"
)

// Vault is a named grouping of documents on the signing platform.
type Vault struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Document is a finalized signed document in its enriched form.
type Document struct {
	SignedDate    *time.Time `json:"signed_date,omitempty"`    // Date-only, UTC midnight
	LastSignature *time.Time `json:"last_signature,omitempty"` // Most recent signature event
	ID            string     `json:"id"`
	OriginalName  string     `json:"original_name"`
	CleanName     string     `json:"clean_name"`
	VaultID       string     `json:"vault_id,omitempty"`
	VaultName     string     `json:"vault_name"`
	Status        string     `json:"status"`
	Downloaded    bool       `json:"downloaded"`
}

// ViewStatus selects documents by their downloaded state.
type ViewStatus string

const (
	ViewAll           ViewStatus = "finalizado"
	ViewDownloaded    ViewStatus = "baixado"
	ViewNotDownloaded ViewStatus = "nao_baixado"
)

// ParseViewStatus maps a form value to a ViewStatus, falling back to def.
func ParseViewStatus(s string, def ViewStatus) ViewStatus {
	switch v := ViewStatus(s); v {
	case ViewAll, ViewDownloaded, ViewNotDownloaded:
		return v
	default:
		return def
	}
}

// SortOrder orders documents by signed date.
type SortOrder string

const (
	SortNewestFirst SortOrder = "data_desc"
	SortOldestFirst SortOrder = "data_asc"
)

// ParseSortOrder maps a form value to a SortOrder. Newest first is the default.
func ParseSortOrder(s string) SortOrder {
	if SortOrder(s) == SortOldestFirst {
		return SortOldestFirst
	}
	return SortNewestFirst
}

// IsRecent reports whether a download at downloadedAt still counts as recent at now.
func IsRecent(downloadedAt, now time.Time) bool {
	if downloadedAt.IsZero() {
		return false
	}
	return now.Sub(downloadedAt) < RecentWindow
}
