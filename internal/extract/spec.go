package extract

import "regexp"

// Field names a product attribute resolved through a locator cascade.
type Field string

const (
	FieldTitle     Field = "title"
	FieldPrice     Field = "price"
	FieldImage     Field = "image"
	FieldLikes     Field = "likes"
	FieldCondition Field = "condition"
)

// LocatorCandidate is one named strategy for finding a value on a page.
// Candidates are tried in order; the first that matches wins.
type LocatorCandidate struct {
	Name     string
	Selector string
}

// Spec maps each field to its ordered candidate list, plus the
// container candidates that bound a single listing card. Immutable,
// built once at startup and shared across calls.
type Spec struct {
	Containers  []LocatorCandidate
	Fields      map[Field][]LocatorCandidate
	ItemPath    *regexp.Regexp
	SoldMarkers []string
}

// DefaultSpec covers the marketplace layouts seen in the wild: the
// current data-testid grid, the legacy items-box design, and a couple
// of class-pattern fallbacks.
func DefaultSpec() *Spec {
	return &Spec{
		Containers: []LocatorCandidate{
			{Name: "item-cell-li", Selector: `li[data-testid="item-cell"]`},
			{Name: "item-cell-div", Selector: `div[data-testid="item-cell"]`},
			{Name: "item-cell-article", Selector: `article[data-testid="item-cell"]`},
			{Name: "items-box-section", Selector: `section.items-box`},
			{Name: "items-box-div", Selector: `div.items-box`},
			{Name: "items-box-link", Selector: `a.items-box`},
			{Name: "item-card-class", Selector: `div[class*="ItemCard"]`},
			{Name: "item-card-kebab", Selector: `div[class*="item-card"]`},
			{Name: "grid-cell-link", Selector: `ul[class*="grid"] > li > a`},
		},
		Fields: map[Field][]LocatorCandidate{
			FieldTitle: {
				{Name: "heading", Selector: "h3, h4, h5"},
				{Name: "aria-label", Selector: "[aria-label]"},
				{Name: "items-box-name", Selector: ".items-box-name"},
				{Name: "card-title-class", Selector: `[class*="ItemCard__title"]`},
				{Name: "item-name-class", Selector: `[class*="item-name"]`},
				{Name: "name-span", Selector: `span[class*="name"]`},
			},
			FieldPrice: {
				{Name: "items-box-price", Selector: ".items-box-price"},
				{Name: "price-class", Selector: `[class*="price"], [class*="Price"]`},
				{Name: "amount-span", Selector: `span[class*="amount"]`},
				{Name: "price-testid", Selector: `[data-testid*="price"]`},
			},
			FieldImage: {
				{Name: "img-tag", Selector: "img"},
			},
			FieldLikes: {
				{Name: "like-class", Selector: `[class*="like"], [class*="Like"]`},
				{Name: "like-testid", Selector: `[data-testid*="like"]`},
			},
			FieldCondition: {
				{Name: "condition-class", Selector: `[class*="condition"]`},
			},
		},
		ItemPath:    regexp.MustCompile(`/item/([A-Za-z0-9]+)`),
		SoldMarkers: []string{"SOLD", "売り切れ", "売切れ", "SOLD OUT"},
	}
}

// Structured-payload field aliases. Entries under a listing may come
// from several API generations, so each field accepts a few key names,
// resolved by ordered lookup.
var (
	idAliases        = []string{"id", "itemId", "productId"}
	titleAliases     = []string{"name", "title", "itemName"}
	thumbnailAliases = []string{"thumbnailUrl", "thumbnail", "thumbnails", "imageUrl"}
)
