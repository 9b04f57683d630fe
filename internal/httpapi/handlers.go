package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dealscanner/deals-cli/internal/model"
	"github.com/dealscanner/deals-cli/internal/offer"
	"github.com/dealscanner/deals-cli/internal/store"
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var payload model.ScanPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid scan payload: "+err.Error())
		return
	}

	result, err := s.svc.IngestScan(r.Context(), &payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListOffers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.OfferFilter{
		Retailer: strings.ToLower(q.Get("retailer")),
		Category: q.Get("category"),
		Status:   model.OfferStatus(q.Get("status")),
		Limit:    intParam(q.Get("limit"), 0),
	}
	if raw := q.Get("valid_on"); raw != "" {
		d, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid valid_on date, want YYYY-MM-DD")
			return
		}
		filter.ValidOn = &d
	}

	offers, err := s.svc.List(r.Context(), filter)
	if err != nil {
		s.serverError(w, "list offers", err)
		return
	}
	writeJSON(w, http.StatusOK, offerList(offers))
}

func (s *Server) handleGetOffer(w http.ResponseWriter, r *http.Request) {
	pk, rk := r.URL.Query().Get("partition_key"), r.URL.Query().Get("row_key")
	if pk == "" || rk == "" {
		writeError(w, http.StatusBadRequest, "partition_key and row_key are required")
		return
	}

	o, err := s.svc.Get(r.Context(), pk, rk)
	if err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "offer not found")
			return
		}
		s.serverError(w, "get offer", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleReviewQueue(w http.ResponseWriter, r *http.Request) {
	offers, err := s.svc.ReviewQueue(r.Context(), intParam(r.URL.Query().Get("limit"), 0))
	if err != nil {
		s.serverError(w, "review queue", err)
		return
	}
	writeJSON(w, http.StatusOK, offerList(offers))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sq := offer.SearchQuery{
		Term:  q.Get("q"),
		Limit: intParam(q.Get("limit"), 0),
	}
	if raw := q.Get("date"); raw != "" {
		d, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
			return
		}
		sq.Date = d
	}
	if raw := q.Get("retailers"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				sq.Retailers = append(sq.Retailers, part)
			}
		}
	}

	offers, err := s.svc.Search(r.Context(), sq)
	if err != nil {
		s.serverError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, offerList(offers))
}

func (s *Server) handleCorrections(w http.ResponseWriter, r *http.Request) {
	pk, rk := r.URL.Query().Get("partition_key"), r.URL.Query().Get("row_key")
	if pk == "" || rk == "" {
		writeError(w, http.StatusBadRequest, "partition_key and row_key are required")
		return
	}

	events, err := s.svc.History(r.Context(), pk, rk)
	if err != nil {
		s.serverError(w, "corrections", err)
		return
	}
	if events == nil {
		events = []model.CorrectionEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleUpdateOffer(w http.ResponseWriter, r *http.Request) {
	var req offer.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid update request: "+err.Error())
		return
	}
	if req.PartitionKey == "" || req.RowKey == "" {
		writeError(w, http.StatusBadRequest, "partition_key and row_key are required")
		return
	}
	req.Reviewer = reviewer(r)

	o, err := s.svc.Update(r.Context(), &req)
	if err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "offer not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type deleteRequest struct {
	PartitionKey string `json:"partition_key"`
	RowKey       string `json:"row_key"`
	Reason       string `json:"reason,omitempty"`
}

func (s *Server) handleDeleteOffer(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid delete request: "+err.Error())
		return
	}
	if req.PartitionKey == "" || req.RowKey == "" {
		writeError(w, http.StatusBadRequest, "partition_key and row_key are required")
		return
	}

	if err := s.svc.Delete(r.Context(), req.PartitionKey, req.RowKey, reviewer(r), req.Reason); err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "offer not found")
			return
		}
		s.serverError(w, "delete offer", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type batchRequest struct {
	IDs    []string `json:"ids"`
	Reason string   `json:"reason,omitempty"`
}

func (s *Server) handleBatchApprove(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid batch request: "+err.Error())
		return
	}

	result, err := s.svc.BatchApprove(r.Context(), req.IDs, reviewer(r))
	if err != nil {
		s.serverError(w, "batch approve", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBatchReject(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid batch request: "+err.Error())
		return
	}

	result, err := s.svc.BatchReject(r.Context(), req.IDs, reviewer(r), req.Reason)
	if err != nil {
		s.serverError(w, "batch reject", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	cats, err := s.store.ListCategories(r.Context(), !includeInactive)
	if err != nil {
		s.serverError(w, "list categories", err)
		return
	}
	if cats == nil {
		cats = []model.Category{}
	}
	writeJSON(w, http.StatusOK, cats)
}

func (s *Server) handleUpsertCategory(w http.ResponseWriter, r *http.Request) {
	var cat model.Category
	if err := json.NewDecoder(r.Body).Decode(&cat); err != nil {
		writeError(w, http.StatusBadRequest, "invalid category: "+err.Error())
		return
	}
	if cat.ID == "" || cat.Name == "" {
		writeError(w, http.StatusBadRequest, "category id and name are required")
		return
	}
	cat.UpdatedAt = time.Now().UTC()

	if err := s.store.UpsertCategory(r.Context(), &cat); err != nil {
		s.serverError(w, "upsert category", err)
		return
	}
	s.classifier.Invalidate()
	writeJSON(w, http.StatusOK, cat)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteCategory(r.Context(), id); err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "category not found")
			return
		}
		s.serverError(w, "delete category", err)
		return
	}
	s.classifier.Invalidate()
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListOverrides(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	overrides, err := s.svc.Overrides(r.Context(), q.Get("retailer"), q.Get("include_inactive") == "true")
	if err != nil {
		s.serverError(w, "list overrides", err)
		return
	}
	if overrides == nil {
		overrides = []model.SkuOverride{}
	}
	writeJSON(w, http.StatusOK, overrides)
}

func (s *Server) handleCreateOverride(w http.ResponseWriter, r *http.Request) {
	var req offer.OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid override: "+err.Error())
		return
	}
	if req.CreatedBy == "" {
		req.CreatedBy = reviewer(r)
	}

	ov, err := s.svc.CreateOverride(r.Context(), &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

type deactivateRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleDeactivateOverride(w http.ResponseWriter, r *http.Request) {
	var req deactivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, "override id is required")
		return
	}

	if err := s.svc.DeactivateOverride(r.Context(), req.ID); err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "override not found")
			return
		}
		s.serverError(w, "deactivate override", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (s *Server) serverError(w http.ResponseWriter, op string, err error) {
	zap.L().Error("request failed", zap.String("op", op), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

// offerList keeps empty results as [] rather than null.
func offerList(offers []model.Offer) []model.Offer {
	if offers == nil {
		return []model.Offer{}
	}
	return offers
}

func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
