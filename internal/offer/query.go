package offer

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/dealscanner/deals-cli/internal/match"
	"github.com/dealscanner/deals-cli/internal/model"
	"github.com/dealscanner/deals-cli/internal/store"
)

// List returns offers matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter store.OfferFilter) ([]model.Offer, error) {
	return s.store.ListOffers(ctx, filter)
}

// Get resolves one offer by identity.
func (s *Service) Get(ctx context.Context, partitionKey, rowKey string) (*model.Offer, error) {
	return s.store.GetOffer(ctx, partitionKey, rowKey)
}

// ReviewQueue returns offers awaiting review, least confident first so
// reviewers see the most doubtful extractions at the top.
func (s *Service) ReviewQueue(ctx context.Context, limit int) ([]model.Offer, error) {
	offers, err := s.store.ListOffers(ctx, store.OfferFilter{
		Status: model.StatusNeedsReview,
		Limit:  limit,
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(offers, func(i, j int) bool {
		return offers[i].Confidence < offers[j].Confidence
	})
	return offers, nil
}

// SearchQuery describes a consumer-facing offer search.
type SearchQuery struct {
	Term      string
	Date      time.Time
	Retailers []string
	Limit     int
}

// Search finds offers valid on the given date, optionally narrowed to a
// retailer set and a fuzzy product term, sorted by unit price ascending
// with offers lacking a unit price last. Deleted offers never surface.
func (s *Service) Search(ctx context.Context, q SearchQuery) ([]model.Offer, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	date := q.Date
	if date.IsZero() {
		date = s.now().UTC()
	}

	// Filter in process: the retailer-set and fuzzy predicates have to
	// work identically over both store backends.
	candidates, err := s.store.ListOffers(ctx, store.OfferFilter{
		ValidOn: &date,
		Limit:   searchScanLimit,
	})
	if err != nil {
		return nil, err
	}

	retailerSet := make(map[string]bool, len(q.Retailers))
	for _, r := range q.Retailers {
		retailerSet[strings.ToLower(strings.TrimSpace(r))] = true
	}

	var results []model.Offer
	for _, o := range candidates {
		if o.Status == model.StatusDeleted {
			continue
		}
		if len(retailerSet) > 0 && !retailerSet[strings.ToLower(o.Retailer)] {
			continue
		}
		if q.Term != "" && !matchesTerm(&o, q.Term) {
			continue
		}
		results = append(results, o)
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i].UnitPriceValue, results[j].UnitPriceValue
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// searchScanLimit caps how many valid-on-date offers a search pulls from
// the store before in-process filtering.
const searchScanLimit = 2000

func matchesTerm(o *model.Offer, term string) bool {
	return match.IsFuzzyMatch(o.ProductTextRaw, term, match.DefaultThreshold) ||
		match.IsFuzzyMatch(o.BrandNorm, term, match.DefaultThreshold) ||
		match.IsFuzzyMatch(o.ProductNorm, term, match.DefaultThreshold)
}

// History returns the correction events for an offer, newest first.
func (s *Service) History(ctx context.Context, partitionKey, rowKey string) ([]model.CorrectionEvent, error) {
	return s.store.ListCorrections(ctx, partitionKey, rowKey)
}
