package domain

import (
	"fmt"
	"time"
)

// Valid listing price range in yen. Values outside are treated as
// extraction noise and rejected, never clamped.
const (
	MinValidPrice = 10
	MaxValidPrice = 1_000_000
)

// Product is the canonical listing record emitted by the extraction
// resolver. ID, Title and Price are mandatory; everything else is
// best-effort.
type Product struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Price       int       `json:"price"`
	URL         string    `json:"url"`
	ImageURL    string    `json:"image_url,omitempty"`
	Sold        bool      `json:"sold"`
	Condition   string    `json:"condition,omitempty"`
	LikeCount   int       `json:"like_count"`
	Keywords    []string  `json:"keywords,omitempty"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// Validate reports whether the record satisfies the mandatory-field
// invariants. Invalid records are dropped by the resolver, not emitted.
func (p *Product) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("product has no id")
	}
	if p.Title == "" {
		return fmt.Errorf("product %s has no title", p.ID)
	}
	if p.Price < MinValidPrice || p.Price > MaxValidPrice {
		return fmt.Errorf("product %s price %d outside valid range [%d, %d]",
			p.ID, p.Price, MinValidPrice, MaxValidPrice)
	}
	return nil
}
