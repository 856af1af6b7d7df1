package cartstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marmota-alpina/gostack-desafio-08/internal/domain"
)

func TestMutations_LeaveInputUntouched(t *testing.T) {
	orig := domain.Products{
		{ID: "a", Quantity: 1},
		{ID: "b", Quantity: 0},
	}
	snapshot := orig.Clone()

	added := addToCart(orig, domain.ItemInput{ID: "a"})
	assert.Equal(t, 2, added[0].Quantity)

	incremented, changed := increment(orig, "b")
	assert.True(t, changed)
	assert.Equal(t, 1, incremented[1].Quantity)

	pruned, changed := decrement(orig, "a", domain.PruneZeroQuantity)
	assert.True(t, changed)
	assert.Equal(t, domain.Products{{ID: "b", Quantity: 0}}, pruned)

	_, changed = decrement(orig, "b", domain.RetainZeroQuantity)
	assert.False(t, changed)

	assert.Equal(t, snapshot, orig)
}
