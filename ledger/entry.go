package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"signvault/timestamps"
)

// Entry is the persisted record of one downloaded document.
type Entry struct {
	DownloadedAt        *time.Time
	LastSignature       *time.Time
	DocumentID          string
	OriginalName        string
	LastSignatureSource string
}

// wireEntry is the persisted layout, shared with older deployments.
type wireEntry struct {
	DocumentID          string `json:"uuidDoc"`
	OriginalName        string `json:"nomeOriginal,omitempty"`
	DownloadedAt        any    `json:"downloaded_at,omitempty"`
	LastSignature       any    `json:"ultimaAssinatura,omitempty"`
	LastSignatureSource string `json:"ultimaAssinatura_source,omitempty"`
}

// MarshalJSON writes timestamps as RFC 3339 in UTC.
func (e Entry) MarshalJSON() ([]byte, error) {
	w := wireEntry{
		DocumentID:          e.DocumentID,
		OriginalName:        e.OriginalName,
		LastSignatureSource: e.LastSignatureSource,
	}
	if e.DownloadedAt != nil {
		w.DownloadedAt = e.DownloadedAt.UTC().Format(time.RFC3339Nano)
	}
	if e.LastSignature != nil {
		w.LastSignature = e.LastSignature.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts the object layout, a JSON string holding that object,
// or a bare timestamp string meaning the download time.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		trimmed := strings.TrimSpace(s)
		if strings.HasPrefix(trimmed, "{") {
			return e.UnmarshalJSON([]byte(trimmed))
		}
		*e = Entry{}
		if t, ok := timestamps.Parse(trimmed); ok {
			e.DownloadedAt = &t
		}
		return nil
	}

	var w wireEntry
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode ledger entry: %w", err)
	}
	*e = Entry{
		DocumentID:          w.DocumentID,
		OriginalName:        w.OriginalName,
		LastSignatureSource: w.LastSignatureSource,
	}
	if t, ok := timestamps.Parse(w.DownloadedAt); ok {
		e.DownloadedAt = &t
	}
	if t, ok := timestamps.Parse(w.LastSignature); ok {
		e.LastSignature = &t
	}
	return nil
}
