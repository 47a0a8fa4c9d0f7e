// Package api serves the public catalog endpoints, the admin generation
// triggers and the provider callbacks behind one http.Handler, used both by
// the Lambda adapter and the local server.
//
// Endpoints:
//
//	GET      /health                  health check
//	POST     /api/download            increment a wallpaper's download count
//	GET      /api/top-downloads       most downloaded wallpapers
//	GET      /api/latest              newest wallpapers (?limit=)
//	GET      /api/categories/light    light-mode category counters
//	GET      /api/categories/dark     dark-mode category counters
//	GET|POST /generate/light          start a light-mode generation (?category=, ?prompt=)
//	GET|POST /generate/dark           start a dark-mode generation
//	POST     /webhook/generated       generation completion callback
//	POST     /webhook/upscale         upscale completion callback
package api

import (
	"context"
	"net/http"

	"github.com/beanvault/wallpaper-ai/internal/catalog"
	"github.com/beanvault/wallpaper-ai/internal/prompt"
	"github.com/beanvault/wallpaper-ai/internal/webhook"
)

// Catalog is the read and download-count side of the catalog store.
type Catalog interface {
	IncrementDownloads(ctx context.Context, filename string) (int, error)
	TopDownloads(ctx context.Context, limit int) ([]catalog.Wallpaper, error)
	Latest(ctx context.Context, limit int) ([]catalog.Wallpaper, error)
	ListCounters(ctx context.Context) ([]catalog.CategoryCounter, error)
}

// Generator submits text-to-image jobs.
type Generator interface {
	Submit(ctx context.Context, category, prompt string) (string, error)
}

// Deps are the collaborators of the router. Webhooks may be nil, in which
// case the callback routes are not mounted.
type Deps struct {
	Catalog    Catalog
	Generator  Generator
	Composer   prompt.Composer
	Webhooks   *webhook.Handler
	AdminToken string
	Service    string
}

// Server holds the handler dependencies.
type Server struct {
	catalog    Catalog
	generator  Generator
	composer   prompt.Composer
	adminToken string
	service    string
}

// NewRouter builds the complete HTTP handler with logging and metrics
// middleware applied.
func NewRouter(d Deps) http.Handler {
	s := &Server{
		catalog:    d.Catalog,
		generator:  d.Generator,
		composer:   d.Composer,
		adminToken: d.AdminToken,
		service:    d.Service,
	}
	if s.service == "" {
		s.service = "wallpaper-ai"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/download", s.handleDownload)
	mux.HandleFunc("/api/top-downloads", s.handleTopDownloads)
	mux.HandleFunc("/api/latest", s.handleLatest)
	mux.HandleFunc("/api/categories/", s.handleCategories)
	mux.Handle("/generate/", s.withAdminToken(http.HandlerFunc(s.handleGenerate)))
	if d.Webhooks != nil {
		d.Webhooks.Register(mux)
	}

	return withLogging(withMetrics(mux))
}
