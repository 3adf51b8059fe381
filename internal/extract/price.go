package extract

import (
	"regexp"
	"strconv"
	"strings"

	"mercari/monitor/internal/domain"
)

// Ordered numeric-extraction patterns: currency-prefixed first, then
// currency-suffixed, then bare digits with separators.
var pricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`[￥¥]\s*([0-9][0-9,]*)`),
	regexp.MustCompile(`([0-9][0-9,]*)\s*(?:円|[￥¥])`),
	regexp.MustCompile(`([0-9][0-9,]*)`),
}

// ParsePrice extracts a price from listing text. The first pattern
// yielding a value inside the valid range wins; out-of-range values are
// rejected, not clamped.
func ParsePrice(text string) (int, bool) {
	if text == "" {
		return 0, false
	}
	for _, pattern := range pricePatterns {
		match := pattern.FindStringSubmatch(text)
		if len(match) < 2 {
			continue
		}
		price, err := strconv.Atoi(strings.ReplaceAll(match[1], ",", ""))
		if err != nil {
			continue
		}
		if price >= domain.MinValidPrice && price <= domain.MaxValidPrice {
			return price, true
		}
	}
	return 0, false
}
