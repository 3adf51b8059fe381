package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mercari/monitor/internal/domain"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"
)

// payloadShape is one known layout of the embedded JSON blob. Shapes
// are tried in priority order; the first yielding entries wins.
type payloadShape struct {
	name    string
	entries func(root map[string]interface{}) []map[string]interface{}
}

var payloadShapes = []payloadShape{
	{
		name: "searchResult.itemGrid.items",
		entries: func(root map[string]interface{}) []map[string]interface{} {
			return digList(root, "props", "pageProps", "initialState", "searchResult", "itemGrid", "items")
		},
	},
	{
		name: "pageProps.items",
		entries: func(root map[string]interface{}) []map[string]interface{} {
			return digList(root, "props", "pageProps", "items")
		},
	},
	{
		name: "entities.items",
		entries: func(root map[string]interface{}) []map[string]interface{} {
			keyed := digMap(root, "props", "pageProps", "initialState", "entities", "items")
			if len(keyed) == 0 {
				return nil
			}
			entries := make([]map[string]interface{}, 0, len(keyed))
			for _, v := range keyed {
				if entry, ok := v.(map[string]interface{}); ok {
					entries = append(entries, entry)
				}
			}
			return entries
		},
	},
}

// extractStructured pulls the embedded application/json blob out of the
// page and tries each known shape against it. Returns nil when the page
// carries no recognizable structured data at all.
func (r *Resolver) extractStructured(doc *goquery.Document, keyword string, stats *Stats) []domain.Product {
	raw := structuredBlob(doc)
	if raw == "" {
		return nil
	}

	var root map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &root); err != nil {
		log.Debugf("structured blob does not decode: %v", err)
		return nil
	}

	for _, shape := range payloadShapes {
		entries := shape.entries(root)
		if len(entries) == 0 {
			continue
		}
		log.Debugf("structured shape %s matched %d entries", shape.name, len(entries))
		stats.Shape = shape.name

		products := make([]domain.Product, 0, len(entries))
		for _, entry := range entries {
			product := normalizeEntry(entry, keyword)
			if err := product.Validate(); err != nil {
				log.Debugf("dropping structured entry: %v", err)
				stats.Dropped++
				continue
			}
			products = append(products, product)
		}
		return products
	}

	return nil
}

// structuredBlob finds the embedded state script. Falls back to any
// script that mentions the expected top-level keys when the canonical
// id is absent.
func structuredBlob(doc *goquery.Document) string {
	if script := doc.Find(`script#__NEXT_DATA__[type="application/json"]`).First(); script.Length() > 0 {
		return script.Text()
	}

	var blob string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if strings.Contains(text, `"pageProps"`) && strings.Contains(text, `"initialState"`) {
			blob = text
			return false
		}
		return true
	})
	return blob
}

// normalizeEntry coerces one raw listing entry into the canonical
// record, resolving each field through its alias table.
func normalizeEntry(entry map[string]interface{}, keyword string) domain.Product {
	id := firstString(entry, idAliases)
	product := domain.Product{
		ID:          id,
		Title:       firstString(entry, titleAliases),
		Price:       entryPrice(entry),
		ImageURL:    entryThumbnail(entry),
		Sold:        asString(entry["status"]) == "sold_out",
		Condition:   asString(entry["condition"]),
		LikeCount:   int(asFloat(entry["numLikes"])),
		ExtractedAt: time.Now(),
	}
	if keyword != "" {
		product.Keywords = []string{keyword}
	}

	product.URL = fmt.Sprintf("https://jp.mercari.com/item/%s", id)
	if raw := asString(entry["url"]); raw != "" {
		if strings.HasPrefix(raw, "http") {
			product.URL = raw
		} else {
			product.URL = "https://jp.mercari.com" + raw
		}
	}
	return product
}

// entryPrice accepts both a raw number and an object with a nested
// value field.
func entryPrice(entry map[string]interface{}) int {
	switch v := entry["price"].(type) {
	case float64:
		return int(v)
	case string:
		if price, ok := ParsePrice(v); ok {
			return price
		}
	case map[string]interface{}:
		return int(asFloat(v["value"]))
	}
	return 0
}

func entryThumbnail(entry map[string]interface{}) string {
	for _, key := range thumbnailAliases {
		switch v := entry[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case []interface{}:
			if len(v) > 0 {
				if s, ok := v[0].(string); ok && s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func firstString(entry map[string]interface{}, aliases []string) string {
	for _, key := range aliases {
		if s := asString(entry[key]); s != "" {
			return s
		}
	}
	return ""
}

func asString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}

func asFloat(v interface{}) float64 {
	if f, ok := v.(float64); ok {
		return f
	}
	return 0
}

func digMap(root map[string]interface{}, path ...string) map[string]interface{} {
	current := root
	for _, key := range path {
		next, ok := current[key].(map[string]interface{})
		if !ok {
			return nil
		}
		current = next
	}
	return current
}

func digList(root map[string]interface{}, path ...string) []map[string]interface{} {
	parent := digMap(root, path[:len(path)-1]...)
	if parent == nil {
		return nil
	}
	raw, ok := parent[path[len(path)-1]].([]interface{})
	if !ok {
		return nil
	}
	entries := make([]map[string]interface{}, 0, len(raw))
	for _, v := range raw {
		if entry, ok := v.(map[string]interface{}); ok {
			entries = append(entries, entry)
		}
	}
	return entries
}
