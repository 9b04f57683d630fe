package model

import "strings"

// ScanPayload is the inbound document produced by the external flyer
// scanner. Two shapes are accepted: the legacy Danish "tilbud" shape
// (full-derive ingest) and the v2 "offers" shape (trust-scanner ingest).
// Whichever array is populated selects the path.
type ScanPayload struct {
	Meta   ScanMeta       `json:"meta"`
	Offers []ScannedOffer `json:"offers,omitempty"`
	Tilbud []LegacyOffer  `json:"tilbud,omitempty"`
	Stats  *ScanStats     `json:"stats,omitempty"`
}

// IsLegacy reports whether the payload uses the legacy tilbud shape.
func (p *ScanPayload) IsLegacy() bool {
	return len(p.Offers) == 0 && len(p.Tilbud) > 0
}

// ScanMeta identifies the retailer and validity window of a scan.
// Legacy field names (butik, gyldig_fra, gyldig_til, kilde_fil) are
// accepted alongside the v2 names.
type ScanMeta struct {
	Retailer  string `json:"retailer,omitempty"`
	Butik     string `json:"butik,omitempty"`
	ValidFrom string `json:"valid_from,omitempty"`
	GyldigFra string `json:"gyldig_fra,omitempty"`
	ValidTo   string `json:"valid_to,omitempty"`
	GyldigTil string `json:"gyldig_til,omitempty"`
	SrcFile   string `json:"source_file,omitempty"`
	KildeFil  string `json:"kilde_fil,omitempty"`
}

// RetailerName returns the retailer from either shape, trimmed.
func (m ScanMeta) RetailerName() string {
	if r := strings.TrimSpace(m.Retailer); r != "" {
		return r
	}
	return strings.TrimSpace(m.Butik)
}

// ValidFromRaw returns the raw validity-start string from either shape.
func (m ScanMeta) ValidFromRaw() string {
	if m.ValidFrom != "" {
		return m.ValidFrom
	}
	return m.GyldigFra
}

// ValidToRaw returns the raw validity-end string from either shape.
func (m ScanMeta) ValidToRaw() string {
	if m.ValidTo != "" {
		return m.ValidTo
	}
	return m.GyldigTil
}

// SourceFile returns the source file name from either shape.
func (m ScanMeta) SourceFile() string {
	if m.SrcFile != "" {
		return m.SrcFile
	}
	return m.KildeFil
}

// ScanStats carries optional scanner-side statistics, passed through to
// the batch result for observability.
type ScanStats struct {
	PagesScanned   int     `json:"pages_scanned,omitempty"`
	OffersDetected int     `json:"offers_detected,omitempty"`
	DurationSecs   float64 `json:"duration_secs,omitempty"`
}

// ScannedOffer is one offer in the v2 shape. The scanner has already
// normalized fields and may supply precomputed derived values, which
// are trusted and only recomputed when absent.
type ScannedOffer struct {
	ProductTextRaw string `json:"product_text_raw"`
	BrandNorm      string `json:"brand_norm,omitempty"`
	ProductNorm    string `json:"product_norm,omitempty"`
	VariantNorm    string `json:"variant_norm,omitempty"`
	Category       string `json:"category,omitempty"`

	NetAmountValue float64 `json:"net_amount_value,omitempty"`
	NetAmountUnit  string  `json:"net_amount_unit,omitempty"`
	PackCount      int     `json:"pack_count,omitempty"`
	ContainerType  string  `json:"container_type,omitempty"`

	PriceValue       float64  `json:"price_value,omitempty"`
	DepositValue     float64  `json:"deposit_value,omitempty"`
	PriceExclDeposit float64  `json:"price_excl_deposit,omitempty"`
	UnitPriceValue   *float64 `json:"unit_price_value,omitempty"`
	UnitPriceUnit    string   `json:"unit_price_unit,omitempty"`
	SkuKey           string   `json:"sku_key,omitempty"`

	Confidence float64              `json:"confidence"`
	Breakdown  *ConfidenceBreakdown `json:"confidence_breakdown,omitempty"`
	Status     string               `json:"status,omitempty"`
	Comment    string               `json:"comment,omitempty"`

	Page      int       `json:"page,omitempty"`
	BBox      []float64 `json:"bbox,omitempty"`
	TextLines []string  `json:"text_lines,omitempty"`
}

// LegacyOffer is one offer in the legacy tilbud shape. Only raw scanned
// fields are present; all derived fields are computed on ingest.
type LegacyOffer struct {
	Produkt   string   `json:"produkt"`
	Maerke    string   `json:"maerke,omitempty"`
	Variant   string   `json:"variant,omitempty"`
	Emballage string   `json:"emballage,omitempty"`
	TotalPris float64  `json:"total_pris,omitempty"`
	Pant      float64  `json:"pant,omitempty"`
	Maengde   *Maengde `json:"maengde_normaliseret,omitempty"`
	Enhed     string   `json:"enhed,omitempty"`
	Antal     int      `json:"antal,omitempty"`
	Kategori  string   `json:"kategori,omitempty"`
	Kommentar string   `json:"kommentar,omitempty"`
	Konfidens float64  `json:"konfidens"`
	Side      int      `json:"side,omitempty"`
}

// Maengde is the normalized quantity block of a legacy offer.
type Maengde struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// AmountValue returns the net amount value, preferring the normalized block.
func (l *LegacyOffer) AmountValue() float64 {
	if l.Maengde != nil {
		return l.Maengde.Value
	}
	return 0
}

// AmountUnit returns the net amount unit, preferring the normalized block.
func (l *LegacyOffer) AmountUnit() string {
	if l.Maengde != nil && l.Maengde.Unit != "" {
		return l.Maengde.Unit
	}
	return l.Enhed
}
