// Package storage persists the download ledger, signature times, and the
// refresh queue in Cloud Storage or a local directory.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"signvault/ledger"
)

const (
	downloadsPrefix  = "downloads/"
	signaturesPrefix = "signatures/"
	queuePrefix      = "queue/"

	queuePollInterval = 500 * time.Millisecond
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("storage: object doesn't exist")

// Store keeps one object per record, in a bucket or under a local directory.
type Store struct {
	client    *storage.Client
	logger    *slog.Logger
	localPath string
	bucket    string
	poll      time.Duration
	seqMu     sync.Mutex
	lastSeq   int64
}

// NewClient creates a Cloud Storage client. Empty credentials use the
// application default credentials.
func NewClient(ctx context.Context, credentialsJSON string) (*storage.Client, error) {
	var opts []option.ClientOption
	if credentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return client, nil
}

// New creates a store. When localPath is set the client and bucket are ignored.
func New(client *storage.Client, bucket string, localPath string, logger *slog.Logger) *Store {
	return &Store{
		client:    client,
		logger:    logger,
		localPath: localPath,
		bucket:    bucket,
		poll:      queuePollInterval,
	}
}

// objectKey builds the key for id under prefix, rejecting ids that could
// escape the prefix.
func objectKey(prefix, id string) string {
	if id == "" || len(id) > 128 {
		return ""
	}
	for _, c := range id {
		ok := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_'
		if !ok {
			return ""
		}
	}
	return prefix + id + ".json"
}

// Load returns every ledger entry.
func (s *Store) Load(ctx context.Context) (map[string]ledger.Entry, error) {
	keys, err := s.list(ctx, downloadsPrefix)
	if err != nil {
		return nil, err
	}

	entries := make(map[string]ledger.Entry, len(keys))
	for _, key := range keys {
		data, err := s.read(ctx, key)
		if err != nil {
			s.logger.Warn("Failed to load ledger entry", "key", key, "error", err)
			continue
		}
		var e ledger.Entry
		if err := json.Unmarshal(data, &e); err != nil {
			s.logger.Warn("Failed to decode ledger entry", "key", key, "error", err)
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(key, downloadsPrefix), ".json")
		if e.DocumentID == "" {
			e.DocumentID = id
		}
		entries[id] = e
	}
	return entries, nil
}

// Put writes one ledger entry.
func (s *Store) Put(ctx context.Context, e ledger.Entry) error {
	key := objectKey(downloadsPrefix, e.DocumentID)
	if key == "" {
		return fmt.Errorf("invalid document id %q", e.DocumentID)
	}
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}
	if err := s.write(ctx, key, data); err != nil {
		return err
	}
	s.logger.Debug("Ledger entry saved", "key", key)
	return nil
}

type signatureRecord struct {
	DocumentID string    `json:"uuid"`
	SignedAt   time.Time `json:"ultimaAssinatura"`
}

// GetSignature returns the stored signature time for id.
func (s *Store) GetSignature(ctx context.Context, id string) (time.Time, bool, error) {
	key := objectKey(signaturesPrefix, id)
	if key == "" {
		return time.Time{}, false, nil
	}
	data, err := s.read(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	var rec signatureRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return time.Time{}, false, fmt.Errorf("unmarshal signature: %w", err)
	}
	return rec.SignedAt, !rec.SignedAt.IsZero(), nil
}

// SetSignature stores the signature time for id.
func (s *Store) SetSignature(ctx context.Context, id string, t time.Time) error {
	key := objectKey(signaturesPrefix, id)
	if key == "" {
		return fmt.Errorf("invalid document id %q", id)
	}
	data, err := json.Marshal(signatureRecord{DocumentID: id, SignedAt: t.UTC()})
	if err != nil {
		return fmt.Errorf("marshal signature: %w", err)
	}
	return s.write(ctx, key, data)
}

// Push appends ids to the refresh queue, one object per id.
func (s *Store) Push(ctx context.Context, ids ...string) (int, error) {
	n := 0
	for _, id := range ids {
		if objectKey("", id) == "" {
			s.logger.Warn("Skipping invalid queue id", "uuid", id)
			continue
		}
		key := fmt.Sprintf("%s%020d-%s", queuePrefix, s.nextSeq(), uuid.NewString())
		if err := s.write(ctx, key, []byte(id)); err != nil {
			return n, fmt.Errorf("push %s: %w", id, err)
		}
		n++
	}
	return n, nil
}

// nextSeq returns a strictly increasing timestamp so queue keys sort in push order.
func (s *Store) nextSeq() int64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	seq := time.Now().UnixNano()
	if seq <= s.lastSeq {
		seq = s.lastSeq + 1
	}
	s.lastSeq = seq
	return seq
}

// Pop claims the oldest queued id, polling until timeout. Claiming deletes
// the object, so concurrent consumers never receive the same item.
func (s *Store) Pop(ctx context.Context, timeout time.Duration) (string, bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		id, ok, err := s.claim(ctx)
		if err != nil || ok {
			return id, ok, err
		}

		wait := min(s.poll, time.Until(deadline))
		if wait <= 0 {
			return "", false, nil
		}
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (s *Store) claim(ctx context.Context) (string, bool, error) {
	if s.localPath != "" {
		return s.claimLocal()
	}

	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: queuePrefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return "", false, nil
		}
		if err != nil {
			return "", false, fmt.Errorf("iterate queue: %w", err)
		}

		data, err := s.read(ctx, attrs.Name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return "", false, err
		}

		obj := s.client.Bucket(s.bucket).Object(attrs.Name).If(storage.Conditions{GenerationMatch: attrs.Generation})
		if err := obj.Delete(ctx); err != nil {
			if errors.Is(err, storage.ErrObjectNotExist) || isPreconditionFailed(err) {
				continue
			}
			return "", false, fmt.Errorf("claim queue item: %w", err)
		}
		return string(data), true, nil
	}
}

func (s *Store) claimLocal() (string, bool, error) {
	dir := filepath.Join(s.localPath, queuePrefix)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read queue directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && !strings.HasSuffix(entry.Name(), ".tmp") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := os.Remove(path); err != nil {
			continue
		}
		return string(data), true, nil
	}
	return "", false, nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

func (s *Store) write(ctx context.Context, key string, data []byte) error {
	if s.localPath != "" {
		path := filepath.Join(s.localPath, filepath.FromSlash(key))
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return fmt.Errorf("create local directory: %w", err)
		}
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, data, 0o600); err != nil {
			return fmt.Errorf("write to local storage: %w", err)
		}
		if err := os.Rename(tmp, path); err != nil {
			return fmt.Errorf("write to local storage: %w", err)
		}
		return nil
	}

	err := retry.Do(
		func() error {
			w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
			w.ContentType = "application/json"
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					s.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close storage writer: %w", closeErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying write after error", "attempt", n, "key", key, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("write after retries: %w", err)
	}
	return nil
}

func (s *Store) read(ctx context.Context, key string) ([]byte, error) {
	if s.localPath != "" {
		data, err := os.ReadFile(filepath.Join(s.localPath, filepath.FromSlash(key)))
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("read from local storage: %w", err)
		}
		return data, nil
	}

	var data []byte
	notFound := false
	err := retry.Do(
		func() error {
			r, openErr := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
			if openErr != nil {
				if errors.Is(openErr, storage.ErrObjectNotExist) {
					notFound = true
					return retry.Unrecoverable(ErrNotFound)
				}
				return fmt.Errorf("open storage reader: %w", openErr)
			}
			defer func() {
				if closeErr := r.Close(); closeErr != nil {
					s.logger.Warn("Failed to close storage reader", "error", closeErr)
				}
			}()

			var readErr error
			data, readErr = io.ReadAll(r)
			if readErr != nil {
				return fmt.Errorf("read from storage: %w", readErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying read after error", "attempt", n, "key", key, "error", retryErr)
		}),
	)
	if notFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read after retries: %w", err)
	}
	return data, nil
}

// list returns the keys under prefix, sorted.
func (s *Store) list(ctx context.Context, prefix string) ([]string, error) {
	if s.localPath != "" {
		entries, err := os.ReadDir(filepath.Join(s.localPath, filepath.FromSlash(prefix)))
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read local storage directory: %w", err)
		}
		var keys []string
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			keys = append(keys, prefix+entry.Name())
		}
		sort.Strings(keys)
		return keys, nil
	}

	var keys []string
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate storage: %w", err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}
