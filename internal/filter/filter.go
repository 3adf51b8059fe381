package filter

import (
	"context"
	"fmt"
	"image"
	"time"

	"mercari/monitor/internal/domain"

	"github.com/corona10/goimagehash"
	log "github.com/sirupsen/logrus"
)

// DefaultHammingThreshold is the empirical bit distance at or under
// which two perceptual hashes count as the same photo.
const DefaultHammingThreshold = 4

// Decision is the outcome of admitting one record.
type Decision int

const (
	Admitted Decision = iota
	RejectedDuplicate
	RejectedNearDuplicate
)

func (d Decision) String() string {
	switch d {
	case Admitted:
		return "admitted"
	case RejectedDuplicate:
		return "rejected_duplicate"
	case RejectedNearDuplicate:
		return "rejected_near_duplicate"
	default:
		return "unknown"
	}
}

// SeenStore is the persisted exact-novelty collaborator: an append-only
// id to first-seen-timestamp table. Single writer assumed.
type SeenStore interface {
	Exists(ctx context.Context, id string) (bool, error)
	Put(ctx context.Context, id string, firstSeen time.Time) error
}

// fingerprint pairs a perceptual hash with the record it came from.
type fingerprint struct {
	hash      *goimagehash.ImageHash
	productID string
}

// Novelty filters out already-seen ids and visually near-duplicate
// listings. The exact seen-set lives in the store across runs; the
// fingerprint index lives in memory for the current run only.
type Novelty struct {
	store     SeenStore
	threshold int
	index     []fingerprint
}

func NewNovelty(store SeenStore, threshold int) *Novelty {
	if threshold <= 0 {
		threshold = DefaultHammingThreshold
	}
	return &Novelty{store: store, threshold: threshold}
}

// Reset clears the in-run fingerprint index. Called at the start of
// each sweep.
func (n *Novelty) Reset() {
	n.index = n.index[:0]
}

// IndexSize reports how many fingerprints the current run has admitted.
func (n *Novelty) IndexSize() int {
	return len(n.index)
}

// Admit checks exact novelty against the store, then visual novelty
// against the in-run index when an image is supplied. Re-processing an
// already-seen id always rejects, so repeated sweeps are idempotent.
func (n *Novelty) Admit(ctx context.Context, product *domain.Product, img image.Image) (Decision, error) {
	seen, err := n.store.Exists(ctx, product.ID)
	if err != nil {
		return Admitted, fmt.Errorf("failed to check seen store for %s: %w", product.ID, err)
	}
	if seen {
		return RejectedDuplicate, nil
	}
	if err := n.store.Put(ctx, product.ID, time.Now()); err != nil {
		return Admitted, fmt.Errorf("failed to mark %s as seen: %w", product.ID, err)
	}

	if img == nil {
		return Admitted, nil
	}

	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		// an unhashable image cannot match anything; let it through
		log.Debugf("could not fingerprint image for %s: %v", product.ID, err)
		return Admitted, nil
	}
	return n.admitFingerprint(product.ID, hash), nil
}

// admitFingerprint scans the whole in-run index per call. O(n) per
// check, which is fine at tens to low hundreds of images per run; this
// is the known scalability limit of the visual filter.
func (n *Novelty) admitFingerprint(productID string, hash *goimagehash.ImageHash) Decision {
	for _, fp := range n.index {
		distance, err := hash.Distance(fp.hash)
		if err != nil {
			continue
		}
		if distance <= n.threshold {
			log.Debugf("image for %s within %d bits of %s", productID, distance, fp.productID)
			return RejectedNearDuplicate
		}
	}
	n.index = append(n.index, fingerprint{hash: hash, productID: productID})
	return Admitted
}
