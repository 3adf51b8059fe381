package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProductValidate(t *testing.T) {
	t.Parallel()

	valid := Product{ID: "m111", Title: "Nintendo Switch", Price: 24800}
	assert.NoError(t, valid.Validate())

	cases := []struct {
		name    string
		mutate  func(p *Product)
		message string
	}{
		{"missing id", func(p *Product) { p.ID = "" }, "no id"},
		{"missing title", func(p *Product) { p.Title = "" }, "no title"},
		{"price below range", func(p *Product) { p.Price = MinValidPrice - 1 }, "outside valid range"},
		{"price above range", func(p *Product) { p.Price = MaxValidPrice + 1 }, "outside valid range"},
		{"zero price", func(p *Product) { p.Price = 0 }, "outside valid range"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := valid
			tc.mutate(&p)
			assert.ErrorContains(t, p.Validate(), tc.message)
		})
	}
}

func TestPriceBoundariesAreInclusive(t *testing.T) {
	t.Parallel()

	low := Product{ID: "m1", Title: "t", Price: MinValidPrice}
	high := Product{ID: "m2", Title: "t", Price: MaxValidPrice}
	assert.NoError(t, low.Validate())
	assert.NoError(t, high.Validate())
}
