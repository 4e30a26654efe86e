// Package d4sign talks to the D4Sign document signing API.
package d4sign

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"signvault/pkg/signvault"
	"signvault/timestamps"
)

const (
	listVaultsTimeout    = 15 * time.Second
	listDocumentsTimeout = 20 * time.Second
	timelineTimeout      = 15 * time.Second
	detailTimeout        = 12 * time.Second
	downloadTimeout      = 30 * time.Second

	maxResponseBytes = 256 << 20
	defaultVaultName = "Sem Nome"
)

// StatusError is a non-200 answer from the API.
type StatusError struct {
	Path       string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Path)
}

// SignatureSource supplies signature times learned outside the document listing.
type SignatureSource interface {
	Get(ctx context.Context, id string) (time.Time, bool)
}

// Config holds API credentials and retry tuning.
type Config struct {
	BaseURL    string
	TokenAPI   string
	CryptKey   string
	Attempts   uint          // Per request, including the first; defaults to 3
	RetryDelay time.Duration // Base backoff; defaults to 500ms
}

// Client is a best-effort D4Sign API client. Every operation degrades to an
// empty or absent result on failure and logs the cause.
type Client struct {
	client     *http.Client
	logger     *slog.Logger
	signatures SignatureSource
	baseURL    string
	token      string
	cryptKey   string
	attempts   uint
	delay      time.Duration
}

// New creates a client. signatures may be nil.
func New(httpClient *http.Client, cfg Config, signatures SignatureSource, logger *slog.Logger) *Client {
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	return &Client{
		client:     httpClient,
		logger:     logger,
		signatures: signatures,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.TokenAPI,
		cryptKey:   cfg.CryptKey,
		attempts:   cfg.Attempts,
		delay:      cfg.RetryDelay,
	}
}

// ListVaults returns every vault visible to the account.
func (c *Client) ListVaults(ctx context.Context) []signvault.Vault {
	body, err := c.call(ctx, http.MethodGet, "/safes", nil, listVaultsTimeout)
	if err != nil {
		c.logger.Warn("Failed to list vaults", "error", err)
		return nil
	}

	var records []map[string]any
	if err := json.Unmarshal(body, &records); err != nil {
		c.logger.Warn("Failed to decode vault list", "error", err)
		return nil
	}

	vaults := make([]signvault.Vault, 0, len(records))
	for _, rec := range records {
		id := firstString(rec, "uuid", "uuid_safe", "uuid-safe")
		if id == "" {
			continue
		}
		name := firstString(rec, "name", "name_safe", "name-safe")
		if name == "" {
			name = defaultVaultName
		}
		vaults = append(vaults, signvault.Vault{ID: id, Name: name})
	}
	return vaults
}

// ListDocuments returns the finalized documents of one vault, or of every vault
// when vaultID is empty, with names cleaned and dates pre-parsed.
func (c *Client) ListDocuments(ctx context.Context, vaultID string) []signvault.Document {
	path := "/documents"
	if vaultID != "" {
		path = "/documents/" + url.PathEscape(vaultID) + "/safe"
	}

	body, err := c.call(ctx, http.MethodGet, path, nil, listDocumentsTimeout)
	if err != nil {
		c.logger.Warn("Failed to list documents", "vault", vaultID, "error", err)
		return nil
	}

	var records []map[string]any
	if err := json.Unmarshal(body, &records); err != nil {
		c.logger.Warn("Failed to decode document list", "vault", vaultID, "error", err)
		return nil
	}

	docs := make([]signvault.Document, 0, len(records))
	for _, rec := range records {
		if status, _ := rec["statusName"].(string); status != signvault.StatusFinalized {
			continue
		}
		doc := documentFromRecord(rec)
		if doc.LastSignature == nil && c.signatures != nil {
			if t, ok := c.signatures.Get(ctx, doc.ID); ok {
				doc.LastSignature = &t
			}
		}
		docs = append(docs, doc)
	}

	c.logger.Info("Documents listed", "vault", vaultID, "received", len(records), "finalized", len(docs))
	return docs
}

func documentFromRecord(rec map[string]any) signvault.Document {
	original := firstString(rec, "nameDoc", "name")
	doc := signvault.Document{
		ID:           firstString(rec, "uuidDoc", "uuid"),
		OriginalName: original,
		CleanName:    CleanName(original),
		VaultID:      firstString(rec, "uuid_safe", "uuidSafe"),
		Status:       firstString(rec, "statusName"),
	}

	if d, valid, found := NameDate(original); found {
		if valid {
			doc.SignedDate = &d
		}
	} else if t, ok := parseCandidate(firstPresent(rec, "dateSigned", "lastSignerDate", "lastSignDate")); ok {
		d := dateOnly(t)
		doc.SignedDate = &d
	}

	if t, ok := parseCandidate(firstPresent(rec, "lastSignerDate", "lastSignDate", "dateSigned")); ok {
		doc.LastSignature = &t
	}
	return doc
}

// SignerTimeline returns the most recent signing time among a document's signers.
func (c *Client) SignerTimeline(ctx context.Context, id string) (time.Time, bool) {
	body, err := c.call(ctx, http.MethodGet, "/documents/"+url.PathEscape(id)+"/list", nil, timelineTimeout)
	if err != nil {
		c.logger.Warn("Failed to fetch signer list", "uuid", id, "error", err)
		return time.Time{}, false
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		c.logger.Warn("Failed to decode signer list", "uuid", id, "error", err)
		return time.Time{}, false
	}
	return latestSigner(payload)
}

func latestSigner(payload any) (time.Time, bool) {
	var signers []any
	switch p := payload.(type) {
	case []any:
		signers = p
	case map[string]any:
		for _, key := range []string{"signers", "list", "data"} {
			if list, ok := p[key].([]any); ok && len(list) > 0 {
				signers = list
				break
			}
		}
	}

	var latest time.Time
	found := false
	for _, item := range signers {
		signer, ok := item.(map[string]any)
		if !ok {
			continue
		}
		t, ok := parseCandidate(signerCandidate(signer))
		if ok && (!found || t.After(latest)) {
			latest, found = t, true
		}
	}
	return latest, found
}

func signerCandidate(signer map[string]any) any {
	if v := firstPresent(signer, "signedAt", "signed_at", "dateSigned", "signedDate", "date"); v != nil {
		return v
	}

	// Later containers override earlier ones.
	var candidate any
	for _, key := range []string{"signature", "history", "events"} {
		var nested map[string]any
		switch v := signer[key].(type) {
		case map[string]any:
			nested = v
		case []any:
			if len(v) > 0 {
				nested, _ = v[0].(map[string]any)
			}
		}
		if nested == nil {
			continue
		}
		if v := firstPresent(nested, "signedAt", "date"); v != nil {
			candidate = v
		}
	}
	return candidate
}

// DocumentDetail returns the decoded detail record of a document.
func (c *Client) DocumentDetail(ctx context.Context, id string) (any, bool) {
	body, err := c.call(ctx, http.MethodGet, "/documents/"+url.PathEscape(id), nil, detailTimeout)
	if err != nil {
		c.logger.Warn("Failed to fetch document detail", "uuid", id, "error", err)
		return nil, false
	}

	var detail any
	if err := json.Unmarshal(body, &detail); err != nil {
		c.logger.Warn("Failed to decode document detail", "uuid", id, "error", err)
		return nil, false
	}
	return detail, true
}

// DownloadContent returns the signed PDF bytes of a document.
func (c *Client) DownloadContent(ctx context.Context, id string) ([]byte, bool) {
	req := map[string]string{"type": "pdf", "language": "pt"}
	body, err := c.call(ctx, http.MethodPost, "/documents/"+url.PathEscape(id)+"/download", req, downloadTimeout)
	if err != nil {
		c.logger.Warn("Failed to request download", "uuid", id, "error", err)
		return nil, false
	}

	var result map[string]any
	if err := json.Unmarshal(body, &result); err != nil {
		c.logger.Warn("Failed to decode download response", "uuid", id, "error", err)
		return nil, false
	}

	if raw, present := result["content"]; present {
		s, ok := raw.(string)
		if !ok {
			c.logger.Warn("Download content is not a string", "uuid", id)
			return nil, false
		}
		data, err := decodeContent(s)
		if err != nil {
			c.logger.Warn("Failed to decode download content", "uuid", id, "error", err)
			return nil, false
		}
		return data, len(data) > 0
	}

	if link, ok := result["url"].(string); ok && link != "" {
		data, err := c.fetch(ctx, http.MethodGet, link, "download_url", nil, downloadTimeout)
		if err != nil {
			c.logger.Warn("Failed to fetch download url", "uuid", id, "error", err)
			return nil, false
		}
		return data, len(data) > 0
	}

	c.logger.Warn("Download response carried neither content nor url", "uuid", id)
	return nil, false
}

// decodeContent decodes base64 content, tolerating a data URI prefix,
// embedded whitespace, and missing padding.
func decodeContent(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if _, after, ok := strings.Cut(s, ","); ok {
			s = after
		}
	}
	s = strings.Join(strings.Fields(s), "")
	s = strings.TrimRight(s, "=")
	if rem := len(s) % 4; rem != 0 {
		s += strings.Repeat("=", 4-rem)
	}
	return base64.StdEncoding.DecodeString(s)
}

func (c *Client) call(ctx context.Context, method, path string, body any, timeout time.Duration) ([]byte, error) {
	q := url.Values{}
	q.Set("tokenAPI", c.token)
	q.Set("cryptKey", c.cryptKey)
	return c.fetch(ctx, method, c.baseURL+path+"?"+q.Encode(), path, body, timeout)
}

// fetch performs one logical request with retries. label is logged in place
// of the URL so credentials never reach the logs.
func (c *Client) fetch(ctx context.Context, method, target, label string, body any, timeout time.Duration) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}

	var out []byte
	err := retry.Do(
		func() error {
			reqCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			var reqBody io.Reader = http.NoBody
			if payload != nil {
				reqBody = bytes.NewReader(payload)
			}
			req, err := http.NewRequestWithContext(reqCtx, method, target, reqBody)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("Accept", "application/json")
			if payload != nil {
				req.Header.Set("Content-Type", "application/json")
			}

			startTime := time.Now()
			resp, err := c.client.Do(req)
			duration := time.Since(startTime)
			if err != nil {
				c.logger.Warn("HTTP request failed",
					"method", method,
					"path", label,
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					c.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			c.logger.Info("HTTP request completed",
				"method", method,
				"path", label,
				"status_code", resp.StatusCode,
				"duration_ms", duration.Milliseconds())

			if resp.StatusCode != http.StatusOK {
				statusErr := &StatusError{Path: label, StatusCode: resp.StatusCode}
				if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
					return statusErr
				}
				return retry.Unrecoverable(statusErr)
			}

			data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
			if err != nil {
				return fmt.Errorf("read body: %w", err)
			}
			out = data
			return nil
		},
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.MaxDelay(10*c.delay),
		retry.MaxJitter(c.delay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Info("Retrying API request", "path", label, "attempt", n, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, label, err)
	}
	return out, nil
}

var _ SignatureSource = (*timestamps.Store)(nil)
