package domain

type ListingStatus string

func (s ListingStatus) String() string {
	return string(s)
}

const (
	StatusAny     ListingStatus = ""
	StatusOnSale  ListingStatus = "on_sale"
	StatusSoldOut ListingStatus = "sold_out"
)

// SearchConditions narrows a keyword search. Zero values mean "not set"
// and are omitted from the built URL.
type SearchConditions struct {
	Status           ListingStatus `json:"status,omitempty" mapstructure:"status"`
	ItemCondition    int           `json:"item_condition,omitempty" mapstructure:"item_condition"`
	PriceMin         int           `json:"price_min,omitempty" mapstructure:"price_min"`
	PriceMax         int           `json:"price_max,omitempty" mapstructure:"price_max"`
	ShippingIncluded bool          `json:"shipping_included,omitempty" mapstructure:"shipping_included"`
	Sort             string        `json:"sort,omitempty" mapstructure:"sort"`
	Order            string        `json:"order,omitempty" mapstructure:"order"`
}
