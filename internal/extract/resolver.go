package extract

import (
	"fmt"
	"strings"

	"mercari/monitor/internal/domain"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"
)

// Stats counts what one Resolve call did, for observability. Dropped
// records are counted here, never surfaced as errors.
type Stats struct {
	Shape   string
	Dropped int
}

// Resolver turns raw page payloads into canonical product records. It
// owns only the immutable spec it was configured with and is safe to
// share across calls.
type Resolver struct {
	spec *Spec
}

func NewResolver(spec *Spec) *Resolver {
	if spec == nil {
		spec = DefaultSpec()
	}
	return &Resolver{spec: spec}
}

// Resolve tries structured extraction first, then the markup cascades.
// A page where nothing matches is a soft empty result, not an error:
// the error return is reserved for payloads that cannot be parsed as
// a document at all.
func (r *Resolver) Resolve(payload, keyword string) ([]domain.Product, Stats, error) {
	var stats Stats

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(payload))
	if err != nil {
		return nil, stats, fmt.Errorf("failed to parse payload: %w", err)
	}

	if products := r.extractStructured(doc, keyword, &stats); len(products) > 0 {
		log.Debugf("structured mode yielded %d records (%d dropped)", len(products), stats.Dropped)
		return products, stats, nil
	}

	products := r.extractMarkup(doc, keyword, &stats)
	if len(products) == 0 {
		log.Warnf("⚠️ no listing structure matched; page may have changed or be empty")
		return nil, stats, nil
	}

	log.Debugf("markup mode (%s) yielded %d records (%d dropped)", stats.Shape, len(products), stats.Dropped)
	return products, stats, nil
}
