package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lyssadev/MarkPEWeb/core/catalog"
	"github.com/lyssadev/MarkPEWeb/core/content"
	"github.com/lyssadev/MarkPEWeb/core/infra/buildinfo"
	"github.com/lyssadev/MarkPEWeb/core/infra/logging"
)

const defaultSearchLimit = 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":         "ok",
		"time":           time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"build":          buildinfo.Info(),
	})
}

type searchParams struct {
	Query string `json:"query"`
	Type  string `json:"type"`
	Limit int    `json:"limit"`
}

type searchItem struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Tags     []string          `json:"tags"`
	Kind     string            `json:"kind"`
	Contents []searchContent   `json:"contents"`
	Images   []catalog.Image   `json:"images,omitempty"`
	Titles   map[string]string `json:"titles,omitempty"`
}

type searchContent struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	params := searchParams{Type: "name", Limit: defaultSearchLimit}
	switch r.Method {
	case http.MethodPost:
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if params.Type == "" {
			params.Type = "name"
		}
		if params.Limit <= 0 {
			params.Limit = defaultSearchLimit
		}
	default:
		query := r.URL.Query()
		params.Query = query.Get("q")
		if t := query.Get("type"); t != "" {
			params.Type = t
		}
		if raw := query.Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			params.Limit = parsed
		}
	}

	if !catalog.ValidSearchType(params.Type) {
		http.Error(w, fmt.Sprintf("unknown search type %q", params.Type), http.StatusBadRequest)
		return
	}
	if params.Type == "name" && strings.TrimSpace(params.Query) == "" {
		http.Error(w, "query is required for name searches", http.StatusBadRequest)
		return
	}

	items, err := s.catalog.Search(r.Context(), params.Query, params.Type, params.Limit)
	if err != nil {
		logging.Error("gateway", "search failed", "type", params.Type, "error", err)
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}

	out := make([]searchItem, 0, len(items))
	for _, item := range items {
		contents := make([]searchContent, 0, len(item.Contents))
		for _, entry := range item.Contents {
			contents = append(contents, searchContent{Type: string(entry.Kind), URL: entry.URL})
		}
		out = append(out, searchItem{
			ID:       item.ID,
			Title:    item.Title,
			Tags:     item.Tags,
			Kind:     item.Kind,
			Contents: contents,
			Images:   item.Images,
			Titles:   item.Titles,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"count": len(out),
		"items": out,
	})
}

type downloadRequest struct {
	ID  string `json:"id"`
	Raw bool   `json:"raw"`
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	delivery, err := s.downloads.Download(r.Context(), req.ID, !req.Raw)
	if err != nil {
		status, msg := statusForError(err)
		logging.Warn("gateway", "download failed", "item", req.ID, "error", err)
		http.Error(w, msg, status)
		return
	}

	w.Header().Set("X-Content-Title", sanitizeHeader(delivery.Title))
	w.Header().Set("X-Content-Types", strings.Join(delivery.ContentTypes, ", "))
	w.Header().Set("X-Total-Files", strconv.Itoa(delivery.TotalFiles))
	multiple := len(delivery.ContentTypes) > 1 || delivery.TotalFiles > 1
	w.Header().Set("X-Has-Multiple-Types", strconv.FormatBool(multiple))
	w.Header().Set("X-Processed", strconv.FormatBool(delivery.Processed))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", delivery.Filename))

	if !delivery.Processed {
		s.proxyRaw(w, r, delivery)
		return
	}
	if delivery.Dir != "" {
		defer os.RemoveAll(delivery.Dir)
	}

	file, err := os.Open(delivery.Path)
	if err != nil {
		logging.Error("gateway", "artifact open failed", "path", delivery.Path, "error", err)
		http.Error(w, "artifact unavailable", http.StatusInternalServerError)
		return
	}
	defer file.Close()
	if info, err := file.Stat(); err == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	}
	w.Header().Set("Content-Type", "application/zip")
	if _, err := io.Copy(w, file); err != nil {
		logging.Warn("gateway", "artifact stream interrupted", "item", req.ID, "error", err)
	}
}

// proxyRaw streams the first declared asset straight from the remote CDN
// without running the pipeline.
func (s *Server) proxyRaw(w http.ResponseWriter, r *http.Request, delivery *content.Delivery) {
	upstream, err := http.NewRequestWithContext(r.Context(), http.MethodGet, delivery.RawURL, nil)
	if err != nil {
		http.Error(w, "bad upstream url", http.StatusInternalServerError)
		return
	}
	resp, err := s.client.Do(upstream)
	if err != nil {
		logging.Error("gateway", "raw fetch failed", "url", delivery.RawURL, "error", err)
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		http.Error(w, fmt.Sprintf("upstream returned %d", resp.StatusCode), http.StatusBadGateway)
		return
	}
	if length := resp.Header.Get("Content-Length"); length != "" {
		w.Header().Set("Content-Length", length)
	}
	w.Header().Set("Content-Type", "application/zip")
	if _, err := io.Copy(w, resp.Body); err != nil {
		logging.Warn("gateway", "raw stream interrupted", "url", delivery.RawURL, "error", err)
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.progress == nil {
		http.Error(w, "progress stream unavailable", http.StatusServiceUnavailable)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("gateway", "ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	logging.Info("gateway", "ws connected", "remote", r.RemoteAddr)

	events, cancel := s.progress.Subscribe()
	defer cancel()

	// Reader loop only to observe the close handshake.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// statusForError maps pipeline failures to response codes.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, content.ErrNoContent):
		return http.StatusNotFound, "no downloadable content"
	case errors.Is(err, content.ErrMissingKeys):
		return http.StatusUnprocessableEntity, "missing_decryption_keys"
	default:
		return http.StatusInternalServerError, "download failed"
	}
}

func sanitizeHeader(val string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, val)
}
