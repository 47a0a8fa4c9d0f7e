package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/beanvault/wallpaper-ai/internal/catalog"
	"github.com/beanvault/wallpaper-ai/internal/categories"
	"github.com/beanvault/wallpaper-ai/internal/httputil"
)

// maxRequestBody bounds JSON request bodies on the public endpoints.
const maxRequestBody = 64 << 10

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": s.service,
	})
}

// --- Downloads ---

type downloadRequest struct {
	Name string `json:"name"`
}

type downloadResponse struct {
	Message          string `json:"message"`
	NewDownloadCount int    `json:"newDownloadCount"`
}

// POST /api/download {"name": "<filename>"}
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req downloadRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		httputil.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	count, err := s.catalog.IncrementDownloads(r.Context(), name)
	if errors.Is(err, catalog.ErrNotFound) {
		httputil.Error(w, http.StatusNotFound, "wallpaper not found")
		return
	}
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "failed to record download", err.Error())
		return
	}

	log.Debug().Str("filename", name).Int("downloads", count).Msg("Download recorded")
	httputil.RespondJSON(w, http.StatusOK, downloadResponse{
		Message:          "Download count updated",
		NewDownloadCount: count,
	})
}

// --- Catalog reads ---

// GET /api/top-downloads
func (s *Server) handleTopDownloads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rows, err := s.catalog.TopDownloads(r.Context(), catalog.DefaultTopLimit)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "failed to list wallpapers", err.Error())
		return
	}
	httputil.RespondJSON(w, http.StatusOK, rows)
}

// GET /api/latest?limit=N
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	rows, err := s.catalog.Latest(r.Context(), catalog.ClampLimit(limit, catalog.DefaultLatestLimit))
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "failed to list wallpapers", err.Error())
		return
	}
	httputil.RespondJSON(w, http.StatusOK, rows)
}

type categoryResponse struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
	Value    string `json:"value"`
}

// GET /api/categories/{light|dark}
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	mode, err := categories.ParseMode(strings.TrimPrefix(r.URL.Path, "/api/categories/"))
	if err != nil {
		httputil.Error(w, http.StatusNotFound, "not found")
		return
	}

	counters, err := s.catalog.ListCounters(r.Context())
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "failed to list categories", err.Error())
		return
	}
	out := []categoryResponse{}
	for _, c := range counters {
		if categories.ModeOf(c.Category) != mode {
			continue
		}
		out = append(out, categoryResponse{
			Category: c.Category,
			Count:    c.Count,
			Value:    categories.Label(c.Category),
		})
	}
	httputil.RespondJSON(w, http.StatusOK, out)
}

// --- Generation trigger ---

type generateResponse struct {
	Category     string `json:"category"`
	Prompt       string `json:"prompt"`
	PredictionID string `json:"predictionId"`
}

// GET|POST /generate/{light|dark}?category=&prompt=
//
// Without a category a random key of the requested mode is used. A prompt
// parameter bypasses the composer.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	mode, err := categories.ParseMode(strings.TrimPrefix(r.URL.Path, "/generate/"))
	if err != nil {
		httputil.Error(w, http.StatusNotFound, "not found")
		return
	}

	q := r.URL.Query()
	category := categories.RandomKey(mode)
	if raw := q.Get("category"); raw != "" {
		category, err = categories.Normalize(raw)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	text := strings.TrimSpace(q.Get("prompt"))
	if text == "" {
		if s.composer == nil {
			httputil.Error(w, http.StatusServiceUnavailable, "prompt composer not configured; pass ?prompt=")
			return
		}
		text, err = s.composer.Compose(r.Context(), category, mode)
		if err != nil {
			httputil.Error(w, http.StatusBadGateway, "failed to compose prompt", err.Error())
			return
		}
	}

	id, err := s.generator.Submit(r.Context(), category, text)
	if err != nil {
		httputil.Error(w, http.StatusBadGateway, "failed to submit generation job", err.Error())
		return
	}

	log.Info().
		Str("category", category).
		Str("mode", string(mode)).
		Str("predictionId", id).
		Msg("Generation job submitted")
	httputil.RespondJSON(w, http.StatusOK, generateResponse{
		Category:     category,
		Prompt:       text,
		PredictionID: id,
	})
}
