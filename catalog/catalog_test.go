package catalog_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"signvault/catalog"
	"signvault/catalog/mocks"
	"signvault/pkg/signvault"
)

type fakeDownloads struct {
	recent     map[string]struct{}
	downloaded map[string]struct{}
}

func (f fakeDownloads) RecentIDs(context.Context, time.Time) map[string]struct{} { return f.recent }
func (f fakeDownloads) DownloadedIDs(context.Context) map[string]struct{} { return f.downloaded }

func set(ids ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ids(docs []signvault.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestParseRange(t *testing.T) {
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }
	endOf := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 23, 59, 59, 0, time.UTC) }

	tests := []struct {
		name               string
		period, start, end string
		want               catalog.Range
		ok                 bool
	}{
		{"iso pair", "2024-01-01 - 2024-01-31", "", "", catalog.Range{Start: day(2024, 1, 1), End: endOf(2024, 1, 31)}, true},
		{"display pair", "01/02/2024 - 29/02/2024", "", "", catalog.Range{Start: day(2024, 2, 1), End: endOf(2024, 2, 29)}, true},
		{"iso single", "2024-03-05", "", "", catalog.Range{Start: day(2024, 3, 5), End: endOf(2024, 3, 5)}, true},
		{"display single", "05/03/2024", "", "", catalog.Range{Start: day(2024, 3, 5), End: endOf(2024, 3, 5)}, true},
		{"period wins over fields", "2024-03-05", "2020-01-01", "2020-12-31", catalog.Range{Start: day(2024, 3, 5), End: endOf(2024, 3, 5)}, true},
		{"discrete fields", "", "2024-01-01", "2024-01-02", catalog.Range{Start: day(2024, 1, 1), End: endOf(2024, 1, 2)}, true},
		{"missing end", "", "2024-01-01", "", catalog.Range{}, false},
		{"garbage period", "last week", "2024-01-01", "2024-01-02", catalog.Range{}, false},
		{"invalid date", "2024-13-45 - 2024-14-01", "", "", catalog.Range{}, false},
		{"bad discrete", "", "01/01/2024", "2024-01-02", catalog.Range{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := catalog.ParseRange(tt.period, tt.start, tt.end)
			if ok != tt.ok {
				t.Fatalf("ParseRange() ok = %v, want %v", ok, tt.ok)
			}
			if ok && (!got.Start.Equal(tt.want.Start) || !got.End.Equal(tt.want.End)) {
				t.Errorf("ParseRange() = %v..%v, want %v..%v", got.Start, got.End, tt.want.Start, tt.want.End)
			}
		})
	}
}

func TestRangeInclusion(t *testing.T) {
	r, ok := catalog.ParseRange("", "2024-01-10", "2024-01-20")
	if !ok {
		t.Fatal("ParseRange() failed")
	}
	tests := []struct {
		d    time.Time
		want bool
	}{
		{time.Date(2024, 1, 9, 23, 59, 59, 0, time.UTC), false},
		{time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), true},
		{time.Date(2024, 1, 20, 23, 59, 59, 0, time.UTC), true},
		{time.Date(2024, 1, 21, 0, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		if got := r.Contains(tt.d); got != tt.want {
			t.Errorf("Contains(%v) = %v, want %v", tt.d, got, tt.want)
		}
	}

	docs := []signvault.Document{
		{ID: "in", SignedDate: date(2024, 1, 20)},
		{ID: "out", SignedDate: date(2024, 1, 21)},
		{ID: "none"},
	}
	if got := ids(catalog.FilterRange(docs, r)); !equalIDs(got, []string{"in"}) {
		t.Errorf("FilterRange() = %v, want [in]", got)
	}
}

func TestSort(t *testing.T) {
	docs := []signvault.Document{
		{ID: "jan", SignedDate: date(2024, 1, 1)},
		{ID: "none"},
		{ID: "mar", SignedDate: date(2024, 3, 1)},
	}

	catalog.Sort(docs, signvault.SortNewestFirst)
	if got := ids(docs); !equalIDs(got, []string{"mar", "jan", "none"}) {
		t.Errorf("newest first = %v, want [mar jan none]", got)
	}

	catalog.Sort(docs, signvault.SortOldestFirst)
	if got := ids(docs); !equalIDs(got, []string{"jan", "mar", "none"}) {
		t.Errorf("oldest first = %v, want [jan mar none]", got)
	}
}

func TestSortIsStable(t *testing.T) {
	docs := []signvault.Document{
		{ID: "a", SignedDate: date(2024, 1, 1)},
		{ID: "b", SignedDate: date(2024, 1, 1)},
		{ID: "c"},
		{ID: "d"},
	}
	catalog.Sort(docs, signvault.SortNewestFirst)
	if got := ids(docs); !equalIDs(got, []string{"a", "b", "c", "d"}) {
		t.Errorf("Sort() = %v, want listing order among ties", got)
	}
}

func TestFilterName(t *testing.T) {
	docs := []signvault.Document{
		{ID: "1", CleanName: "Contrato de Locação"},
		{ID: "2", CleanName: "Aditivo"},
		{ID: "3", CleanName: "CONTRATO social"},
	}
	if got := ids(catalog.FilterName(docs, "  contrato ")); !equalIDs(got, []string{"1", "3"}) {
		t.Errorf("FilterName() = %v, want [1 3]", got)
	}
	if got := ids(catalog.FilterName(docs, "LOCAÇÃO")); !equalIDs(got, []string{"1"}) {
		t.Errorf("FilterName() = %v, want [1]", got)
	}
	if got := catalog.FilterName(docs, ""); len(got) != 3 {
		t.Errorf("FilterName(\"\") returned %d documents, want 3", len(got))
	}
}

func listing() []signvault.Document {
	return []signvault.Document{
		{ID: "a", CleanName: "Alpha", VaultID: "v1", Status: signvault.StatusFinalized, SignedDate: date(2024, 5, 10)},
		{ID: "b", CleanName: "Beta", VaultID: "v1", Status: signvault.StatusFinalized, SignedDate: date(2024, 5, 20)},
		{ID: "c", CleanName: "Gamma", VaultID: "gone", Status: signvault.StatusFinalized, SignedDate: date(2024, 1, 1)},
		{ID: "d", CleanName: "Delta", VaultID: "v1", Status: signvault.StatusFinalized},
	}
}

func TestListViewsPartitionUniverse(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := mocks.NewMockSource(ctrl)
	src.EXPECT().ListVaults(gomock.Any()).Return([]signvault.Vault{{ID: "v1", Name: "Contratos"}}).AnyTimes()
	src.EXPECT().ListDocuments(gomock.Any(), "").Return(listing()).AnyTimes()

	downloads := fakeDownloads{recent: set("a", "c"), downloaded: set("a", "c", "old")}
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := catalog.New(src, downloads, discard(), catalog.WithClock(func() time.Time { return now }))

	all := c.List(context.Background(), catalog.Query{View: signvault.ViewAll})
	if got := ids(all.Documents); !equalIDs(got, []string{"b", "a", "c", "d"}) {
		t.Errorf("all = %v, want [b a c d]", got)
	}
	if all.TotalDownloaded != 3 {
		t.Errorf("TotalDownloaded = %d, want 3", all.TotalDownloaded)
	}

	got := c.List(context.Background(), catalog.Query{View: signvault.ViewDownloaded})
	if !equalIDs(ids(got.Documents), []string{"a", "c"}) {
		t.Errorf("baixado = %v, want [a c]", ids(got.Documents))
	}
	for _, d := range got.Documents {
		if !d.Downloaded {
			t.Errorf("document %s in baixado view is not marked downloaded", d.ID)
		}
	}

	got = c.List(context.Background(), catalog.Query{View: signvault.ViewNotDownloaded})
	if !equalIDs(ids(got.Documents), []string{"b", "d"}) {
		t.Errorf("nao_baixado = %v, want [b d]", ids(got.Documents))
	}

	for _, d := range all.Documents {
		want := "Contratos"
		if d.ID == "c" {
			want = signvault.UnknownVault
		}
		if d.VaultName != want {
			t.Errorf("document %s vault name = %q, want %q", d.ID, d.VaultName, want)
		}
	}
}

func TestListDefaultRangeOnInitialView(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := mocks.NewMockSource(ctrl)
	src.EXPECT().ListVaults(gomock.Any()).Return(nil).AnyTimes()
	src.EXPECT().ListDocuments(gomock.Any(), "v1").Return(listing()).AnyTimes()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := catalog.New(src, fakeDownloads{}, discard(), catalog.WithClock(func() time.Time { return now }))

	initial := c.List(context.Background(), catalog.Query{VaultID: "v1", View: signvault.ViewAll, Initial: true})
	if initial.Start != "2024-04-02" || initial.End != "2024-06-01" {
		t.Errorf("default range = %s..%s, want 2024-04-02..2024-06-01", initial.Start, initial.End)
	}
	if !equalIDs(ids(initial.Documents), []string{"b", "a"}) {
		t.Errorf("initial documents = %v, want [b a]", ids(initial.Documents))
	}

	resubmitted := c.List(context.Background(), catalog.Query{VaultID: "v1", View: signvault.ViewAll})
	if resubmitted.Range != nil {
		t.Errorf("resubmitted view applied range %v", resubmitted.Range)
	}
	if len(resubmitted.Documents) != 4 {
		t.Errorf("resubmitted documents = %d, want 4", len(resubmitted.Documents))
	}

	explicit := c.List(context.Background(), catalog.Query{VaultID: "v1", View: signvault.ViewAll, Initial: true, Period: "2024-01-01"})
	if !equalIDs(ids(explicit.Documents), []string{"c"}) {
		t.Errorf("explicit period documents = %v, want [c]", ids(explicit.Documents))
	}
}

func TestListTruncates(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := mocks.NewMockSource(ctrl)

	var many []signvault.Document
	for i := range 10 {
		many = append(many, signvault.Document{ID: fmt.Sprintf("doc-%d", i), SignedDate: date(2024, 1, i+1)})
	}
	src.EXPECT().ListVaults(gomock.Any()).Return(nil)
	src.EXPECT().ListDocuments(gomock.Any(), "").Return(many)

	c := catalog.New(src, fakeDownloads{}, discard(), catalog.WithLimit(3))
	res := c.List(context.Background(), catalog.Query{Sort: signvault.SortOldestFirst, View: signvault.ViewAll})

	if !res.Truncated || res.Matched != 10 {
		t.Errorf("Truncated = %v, Matched = %d, want true, 10", res.Truncated, res.Matched)
	}
	if !equalIDs(ids(res.Documents), []string{"doc-0", "doc-1", "doc-2"}) {
		t.Errorf("documents = %v, want first three oldest", ids(res.Documents))
	}
}

func TestCachedSource(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := mocks.NewMockSource(ctrl)
	src.EXPECT().ListVaults(gomock.Any()).Return([]signvault.Vault{{ID: "v1"}}).Times(1)
	src.EXPECT().ListDocuments(gomock.Any(), "v1").Return(listing()).Times(1)
	src.EXPECT().ListDocuments(gomock.Any(), "v2").Return(nil).Times(1)

	cached := catalog.NewCachedSource(src, time.Minute)
	ctx := context.Background()
	for range 3 {
		cached.ListVaults(ctx)
		cached.ListDocuments(ctx, "v1")
		cached.ListDocuments(ctx, "v2")
	}
}
