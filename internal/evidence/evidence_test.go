package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdslc/internal/depgraph"
	"sdslc/internal/diag"
	"sdslc/internal/ref"
)

const annotatedSource = `package shop

// Order is the persisted order record.
//
// @Structure.ORDER holds a @Type.MONEY total and is governed by
// CONTRACT.orders.v1.
type Order struct {
	Total int64
}

// Money is a fixed-point currency amount.
//
// @Type.MONEY
type Money int64

// Store persists orders.
//
// @Interface.STORE writes @Structure.ORDER rows per CONTRACT.storage.v1
// and SSOT.orders.
type Store interface {
	Put(o Order) error
}

// MaxItems bounds one order.
//
// @Const.MAX_ITEMS
const MaxItems = 100

// PlaceOrder validates and persists an order.
//
// @Function.PLACE_ORDER reads @Const.MAX_ITEMS and writes through
// @Interface.STORE.
func PlaceOrder(o Order) error {
	return nil
}

// helper has no identity token and contributes nothing.
func helper() {}
`

func TestHarvestSource(t *testing.T) {
	h := NewHarvester()

	t.Run("annotated declarations become sites", func(t *testing.T) {
		sites, recs, err := h.HarvestSource([]byte(annotatedSource), "shop.go")
		require.NoError(t, err)
		assert.Empty(t, recs)

		byKey := make(map[string]depgraph.Site, len(sites))
		for _, s := range sites {
			byKey[s.Key()] = s
		}
		require.Len(t, byKey, 5)

		order := byKey["Structure.ORDER"]
		assert.Equal(t, []ref.InternalRef{{Kind: ref.KindType, RelID: "MONEY"}}, order.InternalRefs)
		assert.Equal(t, []ref.ContractRef{"CONTRACT.orders.v1"}, order.ContractRefs)

		store := byKey["Interface.STORE"]
		assert.Equal(t, []ref.InternalRef{{Kind: ref.KindStructure, RelID: "ORDER"}}, store.InternalRefs)
		assert.Equal(t, []ref.SSOTRef{"SSOT.orders"}, store.SSOTRefs)

		place := byKey["Function.PLACE_ORDER"]
		assert.Equal(t, []ref.InternalRef{
			{Kind: ref.KindConst, RelID: "MAX_ITEMS"},
			{Kind: ref.KindInterface, RelID: "STORE"},
		}, place.InternalRefs)

		money := byKey["Type.MONEY"]
		assert.Empty(t, money.InternalRefs)
	})

	t.Run("identity kind must match the declaration form", func(t *testing.T) {
		src := []byte(`package shop

// @Function.NOT_A_FUNC
type Oops struct{}
`)
		sites, recs, err := h.HarvestSource(src, "oops.go")
		require.NoError(t, err)
		assert.Empty(t, sites)
		require.Len(t, recs, 1)
		assert.Equal(t, diag.CodeRefKind, recs[0].Code)
		assert.Equal(t, diag.SeverityWarn, recs[0].Severity)
	})

	t.Run("plain comments yield nothing", func(t *testing.T) {
		src := []byte(`package shop

// Cache is internal plumbing.
type Cache struct{}
`)
		sites, recs, err := h.HarvestSource(src, "cache.go")
		require.NoError(t, err)
		assert.Empty(t, sites)
		assert.Empty(t, recs)
	})
}

func TestHarvestFeedsDepBuild(t *testing.T) {
	h := NewHarvester()
	sites, recs, err := h.HarvestSource([]byte(annotatedSource), "shop.go")
	require.NoError(t, err)
	require.Empty(t, recs)

	res, recs := depgraph.Build(sites)
	require.NotNil(t, res)
	assert.Empty(t, recs)

	targets := make(map[string]bool, len(res.Deps))
	for _, d := range res.Deps {
		targets[d.From.String()+"->"+d.To.String()] = true
	}
	assert.True(t, targets["@Structure.ORDER->@Type.MONEY"])
	assert.True(t, targets["@Interface.STORE->@Structure.ORDER"])
	assert.True(t, targets["@Function.PLACE_ORDER->@Interface.STORE"])
	assert.True(t, targets["@Interface.STORE->CONTRACT.storage.v1"])
}
