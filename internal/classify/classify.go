// Package classify assigns offers to a category taxonomy by keyword scoring.
package classify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dealscanner/deals-cli/internal/model"
	"github.com/dealscanner/deals-cli/internal/store"
)

// DefaultCacheTTL bounds how long the category taxonomy is served from memory.
const DefaultCacheTTL = 5 * time.Minute

// Classifier scores product text against category keywords. Categories are
// loaded from the store and cached; reviewers edit the taxonomy rarely, so a
// short TTL is enough to pick changes up.
type Classifier struct {
	store store.Store
	ttl   time.Duration
	now   func() time.Time

	mu         sync.Mutex
	cached     []model.Category
	fetchedAt  time.Time
	generation int

	group singleflight.Group
}

// New creates a Classifier backed by the given store.
func New(st store.Store, ttl time.Duration) *Classifier {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Classifier{
		store: st,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Categories returns the active taxonomy, refreshing the cache when the TTL
// has passed. Concurrent refreshes are collapsed into a single store query.
// When the store has no categories yet, the built-in defaults are used so
// classification works before seeding.
func (c *Classifier) Categories(ctx context.Context) ([]model.Category, error) {
	c.mu.Lock()
	if c.cached != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		cats := c.cached
		c.mu.Unlock()
		return cats, nil
	}
	gen := c.generation
	c.mu.Unlock()

	v, err, _ := c.group.Do(fmt.Sprintf("categories-%d", gen), func() (any, error) {
		cats, err := c.store.ListCategories(ctx, true)
		if err != nil {
			return nil, err
		}
		if len(cats) == 0 {
			cats = DefaultCategories()
		}
		c.mu.Lock()
		// A refresh that started before an Invalidate must not resurrect
		// the pre-invalidation taxonomy.
		if c.generation == gen {
			c.cached = cats
			c.fetchedAt = c.now()
		}
		c.mu.Unlock()
		return cats, nil
	})
	if err != nil {
		// Serve the stale taxonomy rather than failing classification.
		c.mu.Lock()
		stale := c.cached
		c.mu.Unlock()
		if stale != nil {
			zap.L().Warn("category refresh failed, serving stale cache", zap.Error(err))
			return stale, nil
		}
		return nil, eris.Wrap(err, "classify: load categories")
	}
	return v.([]model.Category), nil
}

// Classify returns the category id whose keywords best match the product
// text. Ties go to the category with the lowest sort order, then the
// lexically smallest id. Text matching no keywords falls back to the
// catch-all category.
func (c *Classifier) Classify(ctx context.Context, productText string) (string, error) {
	if strings.TrimSpace(productText) == "" {
		return model.FallbackCategoryID, nil
	}

	cats, err := c.Categories(ctx)
	if err != nil {
		return "", err
	}

	textLower := strings.ToLower(productText)

	bestID := ""
	bestScore := 0
	bestSort := 0
	for _, cat := range cats {
		score := 0
		for _, kw := range cat.Keywords {
			if kw != "" && strings.Contains(textLower, strings.ToLower(kw)) {
				score++
			}
		}
		if score == 0 {
			continue
		}
		better := score > bestScore ||
			(score == bestScore && cat.SortOrder < bestSort) ||
			(score == bestScore && cat.SortOrder == bestSort && cat.ID < bestID)
		if bestID == "" || better {
			bestID = cat.ID
			bestScore = score
			bestSort = cat.SortOrder
		}
	}

	if bestID == "" {
		return model.FallbackCategoryID, nil
	}
	return bestID, nil
}

// Name returns the display name for a category id, or "Andet" when unknown.
func (c *Classifier) Name(ctx context.Context, id string) string {
	cats, err := c.Categories(ctx)
	if err != nil {
		return "Andet"
	}
	for _, cat := range cats {
		if cat.ID == id {
			return cat.Name
		}
	}
	return "Andet"
}

// Invalidate drops the cache so the next call reloads from the store.
// Called after taxonomy mutations through the API.
func (c *Classifier) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.fetchedAt = time.Time{}
	c.generation++
	c.mu.Unlock()
}

// DefaultCategories is the built-in Danish supermarket taxonomy, used to seed
// new databases and as the fallback before any categories are stored.
func DefaultCategories() []model.Category {
	return []model.Category{
		{ID: "mejeri", Name: "Mejeri", Keywords: []string{"mælk", "smør", "ost", "yoghurt", "skyr", "fløde", "æg", "arla", "lurpak"}, Description: "Mælk, ost, yoghurt, smør, fløde, skyr, æg", SortOrder: 10, Active: true},
		{ID: "koed", Name: "Kød", Keywords: []string{"kylling", "oksekød", "svinekød", "flæsk", "bacon", "pølse", "hakket", "kød", "medister"}, Description: "Kød, kylling, svinekød, oksekød, hakket kød, pølser", SortOrder: 20, Active: true},
		{ID: "paalæg", Name: "Pålæg", Keywords: []string{"pålæg", "skinke", "salami", "leverpostej", "spegepølse", "rullepølse"}, Description: "Leverpostej, spegepølse, skinke", SortOrder: 25, Active: true},
		{ID: "fisk", Name: "Fisk", Keywords: []string{"laks", "sild", "rejer", "torsk", "makrel", "tun", "fisk"}, Description: "Frisk fisk, røget fisk, rejer, tun, makrel", SortOrder: 30, Active: true},
		{ID: "frugt-groent", Name: "Frugt & Grønt", Keywords: []string{"æble", "banan", "tomat", "agurk", "salat", "kartoffel", "gulerod", "frugt", "grønt"}, Description: "Frugt, grøntsager, salat, kartofler", SortOrder: 40, Active: true},
		{ID: "broed-bagvaerk", Name: "Brød & Bagværk", Keywords: []string{"brød", "boller", "rugbrød", "toast", "croissant", "kage"}, Description: "Brød, boller, kager", SortOrder: 50, Active: true},
		{ID: "drikkevarer", Name: "Drikkevarer", Keywords: []string{"cola", "juice", "vand", "sodavand", "kaffe", "te"}, Description: "Sodavand, juice, vand, kaffe, te", SortOrder: 60, Active: true},
		{ID: "oel-vin", Name: "Øl & Vin", Keywords: []string{"øl", "vin", "carlsberg", "tuborg", "whisky", "vodka", "champagne"}, Description: "Øl, vin, spiritus", SortOrder: 65, Active: true},
		{ID: "frost", Name: "Frost", Keywords: []string{"is", "frost", "frossen", "pizza", "frosne"}, Description: "Frosne varer, is, frossen pizza", SortOrder: 70, Active: true},
		{ID: "kolonial", Name: "Kolonial", Keywords: []string{"pasta", "ris", "mel", "sukker", "sauce", "ketchup", "konserves"}, Description: "Konserves, pasta, ris, sauce", SortOrder: 80, Active: true},
		{ID: "snacks", Name: "Snacks", Keywords: []string{"chips", "slik", "chokolade", "nødder", "popcorn", "kiks"}, Description: "Chips, slik, chokolade, nødder", SortOrder: 90, Active: true},
		{ID: "personlig-pleje", Name: "Personlig pleje", Keywords: []string{"shampoo", "sæbe", "tandpasta", "deodorant", "creme"}, Description: "Shampoo, tandpasta, creme", SortOrder: 100, Active: true},
		{ID: "rengoering", Name: "Rengøring", Keywords: []string{"vaskemiddel", "opvask", "rengøring"}, Description: "Opvaskemiddel, vaskemiddel", SortOrder: 110, Active: true},
		{ID: "husholdning", Name: "Husholdning", Keywords: []string{"toiletpapir", "køkkenrulle", "servietter", "folie"}, Description: "Køkkenrulle, toiletpapir, folie", SortOrder: 115, Active: true},
		{ID: "non-food", Name: "Non-food", Keywords: []string{"tøj", "sko", "legetøj", "elektronik"}, Description: "Tøj, sko, legetøj, elektronik", SortOrder: 130, Active: true},
		{ID: model.FallbackCategoryID, Name: "Andet", Keywords: nil, Description: "Alt der ikke passer andre kategorier", SortOrder: 999, Active: true},
	}
}
