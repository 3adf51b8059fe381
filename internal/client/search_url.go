package client

import (
	"fmt"
	"net/url"
	"strconv"

	"mercari/monitor/internal/domain"
)

// buildSearchURL assembles a keyword search URL from the conditions.
// Unset conditions are omitted rather than sent as empty parameters.
func buildSearchURL(baseURL, keyword string, cond domain.SearchConditions) string {
	params := url.Values{}
	params.Set("keyword", keyword)

	if cond.Status != domain.StatusAny {
		params.Set("status", cond.Status.String())
	}
	if cond.ItemCondition > 0 {
		params.Set("item_condition_id", strconv.Itoa(cond.ItemCondition))
	}
	if cond.PriceMin > 0 {
		params.Set("price_min", strconv.Itoa(cond.PriceMin))
	}
	if cond.PriceMax > 0 {
		params.Set("price_max", strconv.Itoa(cond.PriceMax))
	}
	if cond.ShippingIncluded {
		params.Set("shipping_payer_id", "2")
	}

	sort := cond.Sort
	if sort == "" {
		sort = "created_time"
	}
	order := cond.Order
	if order == "" {
		order = "desc"
	}
	params.Set("sort", sort)
	params.Set("order", order)

	return fmt.Sprintf("%s/search?%s", baseURL, params.Encode())
}
