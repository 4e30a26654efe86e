package d4sign

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type staticSignatures map[string]time.Time

func (s staticSignatures) Get(_ context.Context, id string) (time.Time, bool) {
	t, ok := s[id]
	return t, ok
}

func newTestClient(t *testing.T, handler http.Handler, sigs SignatureSource) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(srv.Client(), Config{
		BaseURL:    srv.URL,
		TokenAPI:   "tok",
		CryptKey:   "key",
		Attempts:   3,
		RetryDelay: time.Millisecond,
	}, sigs, logger)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestCleanName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"20240101 Contract R$ 1.234,56.pdf", "Contract"},
		{"20240101Contract.PDF", "Contract"},
		{"Acordo r$ 500,00 pdf", "Acordo"},
		{"Plain name", "Plain name"},
		{"  Spaced.pdf  ", "Spaced.pdf"},
		{"Report v1.2", "Report v1.2"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CleanName(tt.in); got != tt.want {
			t.Errorf("CleanName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNameDate(t *testing.T) {
	d, valid, found := NameDate("Contract 20240315 signed")
	if !found || !valid || !d.Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("NameDate() = (%v, %v, %v), want 2024-03-15", d, valid, found)
	}

	_, valid, found = NameDate("Invoice 99999999")
	if !found || valid {
		t.Errorf("NameDate(invalid) = (valid=%v, found=%v), want (false, true)", valid, found)
	}

	_, _, found = NameDate("No date 2024-03-15")
	if found {
		t.Error("NameDate() found a run in a dashed date")
	}
}

func TestDocumentFromRecord(t *testing.T) {
	tests := []struct {
		name       string
		rec        map[string]any
		wantSigned string
		wantLast   string
	}{
		{
			name:       "date from name wins",
			rec:        map[string]any{"uuidDoc": "d1", "nameDoc": "20240101 A.pdf", "dateSigned": "2023-05-05T10:00:00Z"},
			wantSigned: "2024-01-01",
			wantLast:   "2023-05-05T10:00:00Z",
		},
		{
			name:       "invalid name date does not fall back",
			rec:        map[string]any{"uuid": "d2", "name": "99999999 B", "dateSigned": "2023-05-05T10:00:00Z"},
			wantSigned: "",
			wantLast:   "2023-05-05T10:00:00Z",
		},
		{
			name:       "field fallback",
			rec:        map[string]any{"uuid": "d3", "name": "C", "lastSignerDate": "2024-02-10T23:30:00Z"},
			wantSigned: "2024-02-10",
			wantLast:   "2024-02-10T23:30:00Z",
		},
		{
			name:       "last signature prefers lastSignerDate",
			rec:        map[string]any{"uuid": "d4", "name": "D", "dateSigned": "2024-01-01T00:00:00Z", "lastSignerDate": "2024-01-09T00:00:00Z"},
			wantSigned: "2024-01-01",
			wantLast:   "2024-01-09T00:00:00Z",
		},
		{
			name:       "epoch",
			rec:        map[string]any{"uuid": "d5", "name": "E", "lastSignDate": float64(1709288430)},
			wantSigned: "2024-03-01",
			wantLast:   "2024-03-01T10:20:30Z",
		},
		{
			name: "nothing",
			rec:  map[string]any{"uuid": "d6", "name": "F", "dateSigned": ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := documentFromRecord(tt.rec)
			gotSigned := ""
			if doc.SignedDate != nil {
				gotSigned = doc.SignedDate.Format("2006-01-02")
			}
			if gotSigned != tt.wantSigned {
				t.Errorf("SignedDate = %q, want %q", gotSigned, tt.wantSigned)
			}
			gotLast := ""
			if doc.LastSignature != nil {
				gotLast = doc.LastSignature.UTC().Format(time.RFC3339)
			}
			if gotLast != tt.wantLast {
				t.Errorf("LastSignature = %q, want %q", gotLast, tt.wantLast)
			}
		})
	}
}

func TestListDocuments(t *testing.T) {
	cached := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /documents/{vault}/safe", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("tokenAPI") != "tok" || r.URL.Query().Get("cryptKey") != "key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.PathValue("vault") != "v1" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, []map[string]any{
			{"uuidDoc": "a", "nameDoc": "20240101 Contract R$ 1.234,56.pdf", "statusName": "Finalizado", "uuid_safe": "v1"},
			{"uuidDoc": "b", "nameDoc": "Draft", "statusName": "Processando"},
			{"uuidDoc": "c", "nameDoc": "Other", "statusName": "finalizado"},
			{"uuidDoc": "d", "nameDoc": "Cached", "statusName": "Finalizado", "uuidSafe": "v1"},
		})
	})

	c := newTestClient(t, mux, staticSignatures{"d": cached})
	docs := c.ListDocuments(context.Background(), "v1")

	if len(docs) != 2 {
		t.Fatalf("ListDocuments() returned %d documents, want 2", len(docs))
	}
	if docs[0].ID != "a" || docs[0].CleanName != "Contract" || docs[0].VaultID != "v1" {
		t.Errorf("first document = %+v", docs[0])
	}
	if docs[1].ID != "d" || docs[1].LastSignature == nil || !docs[1].LastSignature.Equal(cached) {
		t.Errorf("second document did not pick up the stored signature: %+v", docs[1])
	}
	for _, d := range docs {
		if d.Status != "Finalizado" {
			t.Errorf("non-finalized document listed: %+v", d)
		}
	}
}

func TestListDocumentsFailureIsEmpty(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusBadGateway)
	}), nil)

	if docs := c.ListDocuments(context.Background(), ""); len(docs) != 0 {
		t.Errorf("ListDocuments() = %v, want empty", docs)
	}
	if calls.Load() != 3 {
		t.Errorf("server calls = %d, want 3 attempts", calls.Load())
	}
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusForbidden)
	}), nil)

	if vaults := c.ListVaults(context.Background()); len(vaults) != 0 {
		t.Errorf("ListVaults() = %v, want empty", vaults)
	}
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1", calls.Load())
	}
}

func TestListVaults(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/safes" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, []map[string]any{
			{"uuid_safe": "v1", "name-safe": "Contratos"},
			{"uuid-safe": "v2"},
			{"name": "orphan"},
		})
	}), nil)

	vaults := c.ListVaults(context.Background())
	if len(vaults) != 2 {
		t.Fatalf("ListVaults() returned %d vaults, want 2", len(vaults))
	}
	if vaults[0].ID != "v1" || vaults[0].Name != "Contratos" {
		t.Errorf("vaults[0] = %+v", vaults[0])
	}
	if vaults[1].ID != "v2" || vaults[1].Name != "Sem Nome" {
		t.Errorf("vaults[1] = %+v", vaults[1])
	}
}

func TestSignerTimeline(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		want    time.Time
		ok      bool
	}{
		{
			name: "list",
			payload: []map[string]any{
				{"email": "a", "signedAt": "2024-01-01T10:00:00Z"},
				{"email": "b", "signedAt": "2024-01-03T10:00:00Z"},
				{"email": "c"},
			},
			want: time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC),
			ok:   true,
		},
		{
			name:    "object with signers",
			payload: map[string]any{"signers": []map[string]any{{"signed_at": "2024-02-02 08:00:00"}}},
			want:    time.Date(2024, 2, 2, 8, 0, 0, 0, time.UTC),
			ok:      true,
		},
		{
			name: "nested history",
			payload: map[string]any{"data": []map[string]any{
				{"history": []map[string]any{{"date": "2024-03-03T00:00:00Z"}}},
				{"signature": map[string]any{"signedAt": "2024-03-01T00:00:00Z"}},
			}},
			want: time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC),
			ok:   true,
		},
		{
			name:    "no signers",
			payload: map[string]any{"signers": []any{}},
			ok:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/documents/doc-1/list" {
					http.NotFound(w, r)
					return
				}
				writeJSON(w, tt.payload)
			}), nil)

			got, ok := c.SignerTimeline(context.Background(), "doc-1")
			if ok != tt.ok {
				t.Fatalf("SignerTimeline() ok = %v, want %v", ok, tt.ok)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("SignerTimeline() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDocumentDetail(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"uuidDoc": "doc-1", "statusName": "Finalizado"})
	}), nil)

	detail, ok := c.DocumentDetail(context.Background(), "doc-1")
	if !ok {
		t.Fatal("DocumentDetail() ok = false")
	}
	m, _ := detail.(map[string]any)
	if m["uuidDoc"] != "doc-1" {
		t.Errorf("DocumentDetail() = %v", detail)
	}
}

func TestDownloadContent(t *testing.T) {
	pdf := []byte("%PDF-1.4 test")
	encoded := base64.StdEncoding.EncodeToString(pdf)
	unpadded := base64.RawStdEncoding.EncodeToString([]byte("%PDF-1.4 x"))

	tests := []struct {
		name     string
		response map[string]any
		want     []byte
		ok       bool
	}{
		{
			name:     "plain base64",
			response: map[string]any{"content": encoded},
			want:     pdf,
			ok:       true,
		},
		{
			name:     "data uri",
			response: map[string]any{"content": "data:application/pdf;base64," + encoded},
			want:     pdf,
			ok:       true,
		},
		{
			name:     "missing padding",
			response: map[string]any{"content": unpadded},
			want:     []byte("%PDF-1.4 x"),
			ok:       true,
		},
		{
			name:     "url redirect",
			response: map[string]any{"url": "/files/doc-1.pdf"},
			want:     pdf,
			ok:       true,
		},
		{
			name:     "neither",
			response: map[string]any{"message": "later"},
			ok:       false,
		},
		{
			name:     "bad base64",
			response: map[string]any{"content": "!!!not base64!!!"},
			ok:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var srvURL string
			mux := http.NewServeMux()
			mux.HandleFunc("POST /documents/{id}/download", func(w http.ResponseWriter, r *http.Request) {
				var body map[string]string
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["type"] != "pdf" || body["language"] != "pt" {
					http.Error(w, "bad request", http.StatusBadRequest)
					return
				}
				resp := make(map[string]any, len(tt.response))
				for k, v := range tt.response {
					resp[k] = v
				}
				if path, ok := resp["url"].(string); ok {
					resp["url"] = srvURL + path
				}
				writeJSON(w, resp)
			})
			mux.HandleFunc("GET /files/doc-1.pdf", func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write(pdf)
			})
			srv := httptest.NewServer(mux)
			defer srv.Close()
			srvURL = srv.URL

			c := New(srv.Client(), Config{BaseURL: srv.URL, RetryDelay: time.Millisecond}, nil,
				slog.New(slog.NewTextHandler(io.Discard, nil)))

			got, ok := c.DownloadContent(context.Background(), "doc-1")
			if ok != tt.ok {
				t.Fatalf("DownloadContent() ok = %v, want %v", ok, tt.ok)
			}
			if ok && string(got) != string(tt.want) {
				t.Errorf("DownloadContent() = %q, want %q", got, tt.want)
			}
		})
	}
}
