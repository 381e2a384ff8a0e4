package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yendza/controller-backend/internal/core/domain"
)

func TestStatic_Lookup(t *testing.T) {
	c, err := New([]domain.Product{
		{ID: "rice-25kg", Unit: "bag", ReorderThreshold: 5},
		{ID: "cement", Unit: "bag", AllowBackorder: true},
	})
	require.NoError(t, err)

	p, err := c.Product(context.Background(), "rice-25kg")
	require.NoError(t, err)
	assert.Equal(t, "bag", p.Unit)

	_, err = c.Product(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	all, err := c.Products(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "cement", all[0].ID)
}

func TestStatic_ReplaceRejectsInvalid(t *testing.T) {
	c, err := New([]domain.Product{{ID: "P"}})
	require.NoError(t, err)

	cases := map[string][]domain.Product{
		"empty id":      {{ID: ""}},
		"at sign":       {{ID: "a@b"}},
		"padded":        {{ID: " P"}},
		"duplicate":     {{ID: "X"}, {ID: "X"}},
		"negative mark": {{ID: "Y", ReorderThreshold: -1}},
	}
	for name, products := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, c.Replace(products), domain.ErrValidation)
		})
	}

	// The previous set stays in place after a rejected reload.
	_, err = c.Product(context.Background(), "P")
	assert.NoError(t, err)
}

func TestProduct_BelowReorder(t *testing.T) {
	p := domain.Product{ID: "P", ReorderThreshold: 5}
	assert.True(t, p.BelowReorder(5))
	assert.True(t, p.BelowReorder(-2))
	assert.False(t, p.BelowReorder(6))
	assert.False(t, domain.Product{ID: "Q"}.BelowReorder(0))
}
