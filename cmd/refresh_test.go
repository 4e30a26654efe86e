package cmd

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestPrintResults(t *testing.T) {
	at := time.Date(2024, 5, 2, 14, 30, 0, 0, time.UTC)
	var buf bytes.Buffer
	if err := printResults(&buf, map[string]*time.Time{"b": nil, "a": &at}); err != nil {
		t.Fatalf("printResults() error = %v", err)
	}

	var got []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if len(got) != 2 {
		t.Fatalf("printed %d results, want 2", len(got))
	}
	if got[0]["uuid"] != "a" || got[0]["ultimaAssinatura"] != "2024-05-02T14:30:00Z" {
		t.Errorf("first result = %v", got[0])
	}
	if got[1]["uuid"] != "b" || got[1]["ultimaAssinatura"] != nil {
		t.Errorf("second result = %v", got[1])
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{"serve": false, "refresh": false, "register-dates": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
	if refreshCmd.Flags().Lookup("from-downloads") == nil {
		t.Error("refresh has no --from-downloads flag")
	}
}

func TestRefreshRequiresIDs(t *testing.T) {
	fromDownloads = false
	if err := refreshCmd.RunE(refreshCmd, nil); err == nil {
		t.Error("refresh without ids or --from-downloads succeeded")
	}
}
