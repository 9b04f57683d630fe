// Package httpapi exposes the offer backend over HTTP: scan upload,
// offer queries and search, the review workflow, and taxonomy and
// SKU-override management.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dealscanner/deals-cli/internal/classify"
	"github.com/dealscanner/deals-cli/internal/offer"
	"github.com/dealscanner/deals-cli/internal/store"
)

// Server bundles the handler dependencies.
type Server struct {
	svc        *offer.Service
	classifier *classify.Classifier
	store      store.Store
	uploads    *rate.Limiter
}

// Options tunes the HTTP surface.
type Options struct {
	// UploadRatePerSec throttles scan uploads; they fan out into
	// hundreds of row writes each.
	UploadRatePerSec float64
	UploadBurst      int
}

// NewServer creates the HTTP API server.
func NewServer(svc *offer.Service, cl *classify.Classifier, st store.Store, opts Options) *Server {
	perSec := opts.UploadRatePerSec
	if perSec <= 0 {
		perSec = 2
	}
	burst := opts.UploadBurst
	if burst <= 0 {
		burst = 5
	}
	return &Server{
		svc:        svc,
		classifier: cl,
		store:      st,
		uploads:    rate.NewLimiter(rate.Limit(perSec), burst),
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Reviewer"},
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.With(s.uploadLimit).Post("/management/upload", s.handleUpload)

		r.Route("/offers", func(r chi.Router) {
			r.Get("/", s.handleListOffers)
			r.Get("/detail", s.handleGetOffer)
			r.Get("/review-queue", s.handleReviewQueue)
			r.Get("/search", s.handleSearch)
			r.Get("/corrections", s.handleCorrections)
			r.Put("/", s.handleUpdateOffer)
			r.Post("/delete", s.handleDeleteOffer)
			r.Post("/batch-approve", s.handleBatchApprove)
			r.Post("/batch-reject", s.handleBatchReject)
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", s.handleListCategories)
			r.Put("/", s.handleUpsertCategory)
			r.Delete("/{id}", s.handleDeleteCategory)
		})

		r.Route("/sku-overrides", func(r chi.Router) {
			r.Get("/", s.handleListOverrides)
			r.Put("/", s.handleCreateOverride)
			r.Post("/deactivate", s.handleDeactivateOverride)
		})
	})

	return r
}

// uploadLimit rejects uploads beyond the configured rate.
func (s *Server) uploadLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.uploads.Allow() {
			writeError(w, http.StatusTooManyRequests, "upload rate exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// reviewer extracts the caller-supplied reviewer identity.
func reviewer(r *http.Request) string {
	if v := r.Header.Get("X-Reviewer"); v != "" {
		return v
	}
	return "unknown"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("response encode failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
