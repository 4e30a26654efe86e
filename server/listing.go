package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"signvault/archive"
	"signvault/catalog"
	"signvault/pkg/signvault"
)

const maxFormMemory = 32 << 20

// pageData feeds index.tmpl.
type pageData struct {
	Result          catalog.Result
	Query           catalog.Query
	Message         string
	AutoRefreshLast string
	AutoRefreshNext string
}

// documentsResponse is the JSON form of a listing.
type documentsResponse struct {
	Documents       []signvault.Document `json:"documents"`
	Vaults          []signvault.Vault    `json:"vaults"`
	Start           string               `json:"data_inicio"`
	End             string               `json:"data_fim"`
	Sort            signvault.SortOrder  `json:"ordenar_por"`
	View            signvault.ViewStatus `json:"view_status"`
	TotalDownloaded int                  `json:"total_baixados"`
	Matched         int                  `json:"matched"`
	Truncated       bool                 `json:"truncated"`
}

func parseForm(r *http.Request) error {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return err
	}
	return nil
}

// queryFromForm reads the listing filters. A GET is a first page load.
func queryFromForm(r *http.Request) catalog.Query {
	return catalog.Query{
		VaultID: strings.TrimSpace(r.Form.Get("cofre")),
		Search:  r.Form.Get("busca_nome"),
		Period:  r.Form.Get("data_periodo"),
		Start:   strings.TrimSpace(r.Form.Get("data_inicio")),
		End:     strings.TrimSpace(r.Form.Get("data_fim")),
		Sort:    signvault.ParseSortOrder(r.Form.Get("ordenar_por")),
		View:    signvault.ParseViewStatus(r.Form.Get("view_status"), signvault.ViewNotDownloaded),
		Initial: r.Method == http.MethodGet,
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		s.logger.Warn("Invalid form submission", "error", err)
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	q := queryFromForm(r)
	if r.Method == http.MethodPost && r.Form.Has("download") {
		if ids := selectedIDs(r); len(ids) > 0 {
			s.handleDownload(w, r, q, ids)
			return
		}
	}

	s.renderIndex(w, r, q, "", http.StatusOK)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, q catalog.Query, ids []string) {
	names := make(map[string]string, len(ids))
	for _, id := range ids {
		if name := r.Form.Get("doc_nomes[" + id + "]"); name != "" {
			names[id] = name
		}
	}

	arc, err := s.archiver.Build(r.Context(), ids, names)
	if errors.Is(err, archive.ErrEmptyArchive) {
		s.renderIndex(w, r, q, "Nenhum documento pôde ser baixado.", http.StatusUnprocessableEntity)
		return
	}
	if err != nil {
		s.logger.Error("Archive build failed", "requested", len(ids), "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+archiveFilename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(arc.Data)))
	w.Header().Set("X-Zip-Count", strconv.Itoa(arc.Count))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(arc.Data); err != nil {
		s.logger.Warn("Failed to write archive", "error", err)
	}
}

// selectedIDs returns the checked document ids, without blanks or repeats.
func selectedIDs(r *http.Request) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, id := range r.Form["documentos"] {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

func (s *Server) renderIndex(w http.ResponseWriter, r *http.Request, q catalog.Query, message string, status int) {
	data := pageData{
		Result:  s.catalog.List(r.Context(), q),
		Query:   q,
		Message: message,
	}
	if s.sweeps != nil {
		if last := s.sweeps.LastRun(); !last.IsZero() {
			data.AutoRefreshLast = last.UTC().Format("2006-01-02 15:04:05 UTC")
			data.AutoRefreshNext = last.Add(s.autoRefresh).UTC().Format("2006-01-02 15:04:05 UTC")
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.WriteHeader(status)
	if err := templates.ExecuteTemplate(w, "index.tmpl", data); err != nil {
		s.logger.Error("Failed to render template", "template", "index.tmpl", "error", err)
	}
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		writeJSON(w, s.logger, http.StatusBadRequest, map[string]string{"error": "invalid query"})
		return
	}

	res := s.catalog.List(r.Context(), queryFromForm(r))
	docs := res.Documents
	if docs == nil {
		docs = []signvault.Document{}
	}
	vaults := res.Vaults
	if vaults == nil {
		vaults = []signvault.Vault{}
	}
	writeJSON(w, s.logger, http.StatusOK, documentsResponse{
		Documents:       docs,
		Vaults:          vaults,
		Start:           res.Start,
		End:             res.End,
		Sort:            res.Sort,
		View:            res.View,
		TotalDownloaded: res.TotalDownloaded,
		Matched:         res.Matched,
		Truncated:       res.Truncated,
	})
}
