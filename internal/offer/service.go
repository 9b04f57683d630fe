// Package offer implements the offer lifecycle: batch ingest, status
// routing, review mutations with audit events, queries and search.
package offer

import (
	"time"

	"github.com/dealscanner/deals-cli/internal/classify"
	"github.com/dealscanner/deals-cli/internal/store"
)

const (
	// DefaultPublishThreshold is the confidence at or above which a
	// derived offer publishes without review.
	DefaultPublishThreshold = 0.9

	// DefaultValidityDays is the assumed flyer validity window when the
	// scan metadata carries unparseable dates.
	DefaultValidityDays = 7

	defaultQueryLimit = 100
)

// Config tunes the lifecycle service. Zero values fall back to defaults.
type Config struct {
	PublishThreshold float64
	ValidityDays     int
}

// Service mediates all offer mutations and reads. It owns status routing
// and derived-field recomputation; nothing else writes offers.
type Service struct {
	store      store.Store
	classifier *classify.Classifier
	threshold  float64
	validity   time.Duration
	now        func() time.Time
}

// New creates a lifecycle service over the given store and classifier.
func New(st store.Store, cl *classify.Classifier, cfg Config) *Service {
	threshold := cfg.PublishThreshold
	if threshold <= 0 {
		threshold = DefaultPublishThreshold
	}
	days := cfg.ValidityDays
	if days <= 0 {
		days = DefaultValidityDays
	}
	return &Service{
		store:      st,
		classifier: cl,
		threshold:  threshold,
		validity:   time.Duration(days) * 24 * time.Hour,
		now:        time.Now,
	}
}

// parseValidity turns the caller-supplied date strings into a window,
// defaulting to [now, now+validity] when a date does not parse.
func (s *Service) parseValidity(fromRaw, toRaw string) (time.Time, time.Time) {
	now := s.now().UTC().Truncate(24 * time.Hour)

	from, err := parseDate(fromRaw)
	if err != nil {
		from = now
	}
	to, err := parseDate(toRaw)
	if err != nil {
		to = from.Add(s.validity)
	}
	return from, to
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	return t.UTC(), err
}
