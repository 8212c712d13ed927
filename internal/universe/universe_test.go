package universe

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/krx-quant/internal/models"
)

func TestMarketsAreSortedAndTagged(t *testing.T) {
	for market, list := range map[models.Market][]models.Stock{
		models.MarketKOSPI:  KOSPI(),
		models.MarketKOSDAQ: KOSDAQ(),
	} {
		require.NotEmpty(t, list)
		assert.True(t, sort.SliceIsSorted(list, func(i, j int) bool { return list[i].Code < list[j].Code }))
		for _, s := range list {
			assert.Equal(t, market, s.Market)
			assert.Len(t, s.Code, 6)
			assert.NotEmpty(t, s.Name)
		}
	}
}

func TestAllHasNoDuplicates(t *testing.T) {
	all := All()
	assert.Len(t, all, len(KOSPI())+len(KOSDAQ()))
	assert.Equal(t, models.MarketKOSPI, all[0].Market)
	assert.Equal(t, models.MarketKOSDAQ, all[len(all)-1].Market)

	seen := make(map[string]bool)
	for _, s := range all {
		assert.False(t, seen[s.Code], "duplicate code %s", s.Code)
		seen[s.Code] = true
	}
}

func TestCallersCannotMutateUniverse(t *testing.T) {
	list := KOSPI()
	original := list[0]
	list[0].Name = "changed"

	assert.Equal(t, original, KOSPI()[0])

	all := All()
	all[0].Code = "999999"
	assert.Equal(t, original, All()[0])
}

func TestLookup(t *testing.T) {
	s, ok := Lookup("005930")
	require.True(t, ok)
	assert.Equal(t, "삼성전자", s.Name)
	assert.Equal(t, models.MarketKOSPI, s.Market)

	_, ok = Lookup("000000")
	assert.False(t, ok)
}

func TestByMarket(t *testing.T) {
	assert.Equal(t, KOSDAQ(), ByMarket(models.MarketKOSDAQ))
	assert.Nil(t, ByMarket(models.Market("NYSE")))
}

func TestSelect(t *testing.T) {
	got := Select([]string{"035720", "123456"})
	require.Len(t, got, 2)
	assert.Equal(t, "카카오", got[0].Name)
	assert.Equal(t, models.Stock{Code: "123456"}, got[1])
}
