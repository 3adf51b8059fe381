package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"mercari/monitor/internal/domain"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"
)

var (
	backgroundImageRe = regexp.MustCompile(`url\(["']?([^"')]+)["']?\)`)
	digitsRe          = regexp.MustCompile(`\d+`)
)

// extractMarkup walks the container candidate cascade. The first
// candidate matching at least one element is used for the whole page;
// candidates are never mixed within one page.
func (r *Resolver) extractMarkup(doc *goquery.Document, keyword string, stats *Stats) []domain.Product {
	containers, candidate := r.findContainers(doc)
	if containers == nil {
		return r.scanItemLinks(doc, keyword, stats)
	}
	log.Debugf("container candidate %s matched %d elements", candidate, containers.Length())
	stats.Shape = "markup:" + candidate

	var products []domain.Product
	containers.Each(func(i int, el *goquery.Selection) {
		product, ok := r.parseContainer(el, keyword)
		if !ok {
			stats.Dropped++
			return
		}
		if err := product.Validate(); err != nil {
			log.Debugf("dropping markup entry #%d: %v", i, err)
			stats.Dropped++
			return
		}
		products = append(products, product)
	})
	return products
}

func (r *Resolver) findContainers(doc *goquery.Document) (*goquery.Selection, string) {
	for _, candidate := range r.spec.Containers {
		sel := doc.Find(candidate.Selector)
		if sel.Length() > 0 {
			return sel, candidate.Name
		}
	}
	return nil, ""
}

// parseContainer resolves each field through its candidate cascade,
// independently per field.
func (r *Resolver) parseContainer(el *goquery.Selection, keyword string) (domain.Product, bool) {
	url, ok := r.itemURL(el)
	if !ok {
		return domain.Product{}, false
	}

	product := domain.Product{
		ID:          r.itemID(url),
		Title:       r.fieldText(el, FieldTitle),
		URL:         url,
		ImageURL:    imageURL(el),
		Sold:        r.soldStatus(el),
		Condition:   r.fieldText(el, FieldCondition),
		LikeCount:   r.likeCount(el),
		ExtractedAt: time.Now(),
	}
	if keyword != "" {
		product.Keywords = []string{keyword}
	}

	if product.Title == "" {
		// img alt text is the last resort for titles
		if alt, exists := el.Find("img").First().Attr("alt"); exists {
			product.Title = cleanText(alt)
		}
	}

	if price, ok := r.price(el); ok {
		product.Price = price
	}
	return product, true
}

func (r *Resolver) itemURL(el *goquery.Selection) (string, bool) {
	if goquery.NodeName(el) == "a" {
		if href, exists := el.Attr("href"); exists && r.spec.ItemPath.MatchString(href) {
			return absoluteURL(href), true
		}
	}
	var found string
	el.Find("a[href]").EachWithBreak(func(_ int, link *goquery.Selection) bool {
		href, _ := link.Attr("href")
		if r.spec.ItemPath.MatchString(href) {
			found = absoluteURL(href)
			return false
		}
		return true
	})
	return found, found != ""
}

func (r *Resolver) itemID(url string) string {
	match := r.spec.ItemPath.FindStringSubmatch(url)
	if len(match) > 1 {
		return match[1]
	}
	return ""
}

func (r *Resolver) fieldText(el *goquery.Selection, field Field) string {
	for _, candidate := range r.spec.Fields[field] {
		node := el.Find(candidate.Selector).First()
		if node.Length() == 0 {
			continue
		}
		if label, exists := node.Attr("aria-label"); exists && label != "" {
			return cleanText(label)
		}
		if text := cleanText(node.Text()); text != "" {
			return text
		}
	}
	return ""
}

func (r *Resolver) price(el *goquery.Selection) (int, bool) {
	for _, candidate := range r.spec.Fields[FieldPrice] {
		node := el.Find(candidate.Selector).First()
		if node.Length() == 0 {
			continue
		}
		if price, ok := ParsePrice(node.Text()); ok {
			return price, true
		}
	}
	// last resort: scan the whole container text
	return ParsePrice(el.Text())
}

func (r *Resolver) soldStatus(el *goquery.Selection) bool {
	text := el.Text()
	for _, marker := range r.spec.SoldMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return el.Find(`[class*="sold"], [class*="Sold"]`).Length() > 0
}

func (r *Resolver) likeCount(el *goquery.Selection) int {
	text := r.fieldText(el, FieldLikes)
	if match := digitsRe.FindString(text); match != "" {
		if n, err := strconv.Atoi(match); err == nil {
			return n
		}
	}
	return 0
}

// imageURL prefers lazy-loaded sources, then plain src, then a
// background-image style.
func imageURL(el *goquery.Selection) string {
	img := el.Find("img").First()
	if img.Length() > 0 {
		if src, exists := img.Attr("data-src"); exists && src != "" {
			return src
		}
		if src, exists := img.Attr("src"); exists && src != "" {
			return src
		}
	}
	var found string
	el.Find("[style]").EachWithBreak(func(_ int, styled *goquery.Selection) bool {
		style, _ := styled.Attr("style")
		if strings.Contains(style, "background-image") {
			if match := backgroundImageRe.FindStringSubmatch(style); len(match) > 1 {
				found = match[1]
				return false
			}
		}
		return true
	})
	return found
}

// scanItemLinks is the final fallback when no container candidate
// matches: every hyperlink pointing at an item path becomes a minimal
// url-only record. These skip validation deliberately since only the
// url is known.
func (r *Resolver) scanItemLinks(doc *goquery.Document, keyword string, stats *Stats) []domain.Product {
	seen := make(map[string]bool)
	var products []domain.Product

	doc.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		if !r.spec.ItemPath.MatchString(href) {
			return
		}
		url := absoluteURL(href)
		id := r.itemID(url)
		if id == "" || seen[id] {
			return
		}
		seen[id] = true

		product := domain.Product{
			ID:          id,
			URL:         url,
			Title:       cleanText(link.Text()),
			ExtractedAt: time.Now(),
		}
		if keyword != "" {
			product.Keywords = []string{keyword}
		}
		if price, ok := ParsePrice(link.Text()); ok {
			product.Price = price
		}
		products = append(products, product)
	})

	if len(products) > 0 {
		log.Debugf("link-scan fallback found %d item links", len(products))
		stats.Shape = "markup:link-scan"
	}
	return products
}

func absoluteURL(href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	return "https://jp.mercari.com" + href
}

func cleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
