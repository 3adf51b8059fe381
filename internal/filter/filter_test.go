package filter

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/corona10/goimagehash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercari/monitor/internal/domain"
)

// memStore is an in-memory SeenStore for tests.
type memStore struct {
	ids map[string]time.Time
	err error
}

func newMemStore() *memStore {
	return &memStore{ids: make(map[string]time.Time)}
}

func (m *memStore) Exists(_ context.Context, id string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.ids[id]
	return ok, nil
}

func (m *memStore) Put(_ context.Context, id string, firstSeen time.Time) error {
	if m.err != nil {
		return m.err
	}
	m.ids[id] = firstSeen
	return nil
}

func TestAdmitRejectsSeenID(t *testing.T) {
	t.Parallel()

	novelty := NewNovelty(newMemStore(), 0)
	product := &domain.Product{ID: "m111", Title: "item", Price: 100}

	first, err := novelty.Admit(context.Background(), product, nil)
	require.NoError(t, err)
	assert.Equal(t, Admitted, first)

	second, err := novelty.Admit(context.Background(), product, nil)
	require.NoError(t, err)
	assert.Equal(t, RejectedDuplicate, second)
}

func TestAdmitSurvivesSweepsViaStore(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	novelty := NewNovelty(store, 0)
	product := &domain.Product{ID: "m222", Title: "item", Price: 100}

	_, err := novelty.Admit(context.Background(), product, nil)
	require.NoError(t, err)

	// a new sweep clears the fingerprint index but not the seen set
	novelty.Reset()
	decision, err := novelty.Admit(context.Background(), product, nil)
	require.NoError(t, err)
	assert.Equal(t, RejectedDuplicate, decision)
}

func TestAdmitStoreErrorSurfaces(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.err = errors.New("connection refused")
	novelty := NewNovelty(store, 0)

	_, err := novelty.Admit(context.Background(), &domain.Product{ID: "m333"}, nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "m333")
}

func TestAdmitFingerprintHammingThreshold(t *testing.T) {
	t.Parallel()

	novelty := NewNovelty(newMemStore(), DefaultHammingThreshold)

	base := goimagehash.NewImageHash(0x0, goimagehash.PHash)
	within := goimagehash.NewImageHash(0x7, goimagehash.PHash)     // 3 bits apart
	beyond := goimagehash.NewImageHash(0x1F, goimagehash.PHash)    // 5 bits apart
	farther := goimagehash.NewImageHash(0xFF00, goimagehash.PHash) // far from both

	assert.Equal(t, Admitted, novelty.admitFingerprint("m1", base))
	assert.Equal(t, RejectedNearDuplicate, novelty.admitFingerprint("m2", within))
	assert.Equal(t, Admitted, novelty.admitFingerprint("m3", beyond))
	assert.Equal(t, Admitted, novelty.admitFingerprint("m4", farther))
	assert.Equal(t, 3, novelty.IndexSize(), "rejected fingerprints must not enter the index")
}

func TestAdmitFingerprintExactBoundary(t *testing.T) {
	t.Parallel()

	novelty := NewNovelty(newMemStore(), DefaultHammingThreshold)

	base := goimagehash.NewImageHash(0x0, goimagehash.PHash)
	atThreshold := goimagehash.NewImageHash(0xF, goimagehash.PHash) // exactly 4 bits

	assert.Equal(t, Admitted, novelty.admitFingerprint("m1", base))
	assert.Equal(t, RejectedNearDuplicate, novelty.admitFingerprint("m2", atThreshold),
		"distance equal to the threshold still counts as the same photo")
}

func TestAdmitIdenticalImagesRejected(t *testing.T) {
	t.Parallel()

	novelty := NewNovelty(newMemStore(), DefaultHammingThreshold)
	img := gradientImage(256, 256)

	first, err := novelty.Admit(context.Background(), &domain.Product{ID: "m1"}, img)
	require.NoError(t, err)
	assert.Equal(t, Admitted, first)

	second, err := novelty.Admit(context.Background(), &domain.Product{ID: "m2"}, img)
	require.NoError(t, err)
	assert.Equal(t, RejectedNearDuplicate, second, "the same photo under a new id must be caught")
}

func TestResetClearsFingerprintIndex(t *testing.T) {
	t.Parallel()

	novelty := NewNovelty(newMemStore(), 0)
	novelty.admitFingerprint("m1", goimagehash.NewImageHash(0x0, goimagehash.PHash))
	require.Equal(t, 1, novelty.IndexSize())

	novelty.Reset()
	assert.Zero(t, novelty.IndexSize())
}

func gradientImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.Gray{Y: uint8((x + y) % 256)})
		}
	}
	return img
}
