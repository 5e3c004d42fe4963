package features

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cytops/cytops/internal/table"
	"github.com/cytops/cytops/pkg/core"
)

// eventsTable builds a raw events table. Each row map overrides the
// zero-valued defaults of the fixed event schema.
func eventsTable(t *testing.T, rows ...map[string]string) *table.Table {
	t.Helper()
	tbl := table.New(core.EventColumns...)
	for _, overrides := range rows {
		cells := make([]string, len(core.EventColumns))
		for i, col := range core.EventColumns {
			cells[i] = "0"
			if v, ok := overrides[col]; ok {
				cells[i] = v
			}
		}
		require.NoError(t, tbl.AppendRow(cells...))
	}
	return tbl
}

func unixAt(t *testing.T, value string) string {
	t.Helper()
	ts, err := time.Parse("2006-01-02 15:04", value)
	require.NoError(t, err)
	return strconv.FormatInt(ts.Unix(), 10)
}

func TestAddDateFeatures(t *testing.T) {
	// 23:30 plus the one hour adjustment rolls over to the next day.
	events := eventsTable(t, map[string]string{
		core.ColClickTimestamp: unixAt(t, "2020-08-01 23:30"),
	})

	e := NewExtractor()
	require.NoError(t, e.AddDateFeatures(events))

	assert.Equal(t, "0", events.MustCell(0, core.ColHour))
	assert.Equal(t, "2020-08-02", events.MustCell(0, core.ColDate))
	assert.Equal(t, "8", events.MustCell(0, core.ColMonth))
	assert.Equal(t, "31", events.MustCell(0, core.ColWeek))
}

func TestAddDateFeatures_InvalidTimestamp(t *testing.T) {
	events := eventsTable(t, map[string]string{
		core.ColClickTimestamp: "not-a-number",
	})

	err := NewExtractor().AddDateFeatures(events)
	assert.Error(t, err)
}

func TestProductCatalog(t *testing.T) {
	events := eventsTable(t,
		map[string]string{core.ColProductID: "p1", core.ColProductTitle: "Red Shoe"},
		map[string]string{core.ColProductID: "p1", core.ColProductTitle: "Red Shoe"},
		map[string]string{core.ColProductID: "p2", core.ColProductTitle: "Blue Sneaker Large"},
	)

	catalog, err := NewExtractor().ProductCatalog(events)
	require.NoError(t, err)

	// Duplicate product rows collapse.
	assert.Equal(t, 2, catalog.Len())

	// Titles split into word-part columns, padded for shorter titles.
	assert.Equal(t, "Red", catalog.MustCell(0, core.ProductTitlePartPrefix+"0"))
	assert.Equal(t, "Shoe", catalog.MustCell(0, core.ProductTitlePartPrefix+"1"))
	assert.Equal(t, "", catalog.MustCell(0, core.ProductTitlePartPrefix+"2"))
	assert.Equal(t, "Large", catalog.MustCell(1, core.ProductTitlePartPrefix+"2"))

	// Sequential 1-based unique IDs.
	assert.Equal(t, "1", catalog.MustCell(0, core.ColUniqueProductID))
	assert.Equal(t, "2", catalog.MustCell(1, core.ColUniqueProductID))
}

func TestAttachProductIDs(t *testing.T) {
	events := eventsTable(t,
		map[string]string{core.ColProductID: "p1", core.ColProductTitle: "Red Shoe"},
		map[string]string{core.ColProductID: "p2", core.ColProductTitle: "Blue Sneaker"},
		map[string]string{core.ColProductID: "p1", core.ColProductTitle: "Red Shoe"},
	)

	e := NewExtractor()
	catalog, err := e.ProductCatalog(events)
	require.NoError(t, err)
	require.NoError(t, e.AttachProductIDs(events, catalog))

	assert.Equal(t, "1", events.MustCell(0, core.ColUniqueProductID))
	assert.Equal(t, "2", events.MustCell(1, core.ColUniqueProductID))
	assert.Equal(t, "1", events.MustCell(2, core.ColUniqueProductID))
}

func TestProcessMoneyFeatures(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain value", "12.5", "12.5"},
		{"sentinel -1", "-1", "0"},
		{"sentinel -1.0", "-1.0", "0"},
		{"quoted sentinel", `"-1"`, "0"},
		{"negative clamped", "-5.5", "0"},
		{"zero", "0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := eventsTable(t, map[string]string{
				core.ColSalesAmountInEuro: tt.raw,
				core.ColProductPrice:      "3.5",
			})

			require.NoError(t, NewExtractor().ProcessMoneyFeatures(events))
			assert.Equal(t, tt.want, events.MustCell(0, core.ColSalesAmountInEuro))
			assert.Equal(t, "3.5", events.MustCell(0, core.ColProductPrice))
		})
	}
}

func TestProcessMoneyFeatures_PriceKeepsSentinels(t *testing.T) {
	// The -1 sentinel only applies to the sales amount; a price of -1
	// is a real value and must survive unmapped.
	events := eventsTable(t, map[string]string{
		core.ColSalesAmountInEuro: "-1",
		core.ColProductPrice:      "-1",
	})

	require.NoError(t, NewExtractor().ProcessMoneyFeatures(events))
	assert.Equal(t, "0", events.MustCell(0, core.ColSalesAmountInEuro))
	assert.Equal(t, "-1", events.MustCell(0, core.ColProductPrice))
}

func TestProcessMoneyFeatures_Invalid(t *testing.T) {
	events := eventsTable(t, map[string]string{
		core.ColSalesAmountInEuro: "twelve",
	})
	assert.Error(t, NewExtractor().ProcessMoneyFeatures(events))
}

func TestDayOfCampaignForDates(t *testing.T) {
	byDate, err := DayOfCampaignForDates([]string{"2020-08-03", "2020-08-01", "2020-08-05", "2020-08-01"})
	require.NoError(t, err)

	assert.Equal(t, map[string]int{
		"2020-08-01": 0,
		"2020-08-03": 2,
		"2020-08-05": 4,
	}, byDate)
}

func TestDayOfCampaignForDates_Invalid(t *testing.T) {
	_, err := DayOfCampaignForDates([]string{"08/01/2020"})
	assert.Error(t, err)
}

func TestAggregateProductDay(t *testing.T) {
	events := table.New(core.ColDate, core.ColUniqueProductID, core.ColSalesAmountInEuro)
	for _, row := range [][]string{
		{"2020-08-01", "1", "10"},
		{"2020-08-01", "1", "2.5"},
		{"2020-08-01", "2", "0"},
		{"2020-08-02", "1", "4"},
	} {
		require.NoError(t, events.AppendRow(row...))
	}

	agg, err := NewExtractor().AggregateProductDay(events)
	require.NoError(t, err)
	require.Equal(t, 3, agg.Len())

	// Sorted by date then product; sums and click counts per group.
	assert.Equal(t, "12.5", agg.MustCell(0, core.ColTotalSalesAmountInEuro))
	assert.Equal(t, "2", agg.MustCell(0, core.ColNumberOfClicks))
	assert.Equal(t, "1_2020-08-01", agg.MustCell(0, core.ColProductDayID))
	assert.Equal(t, "1", agg.MustCell(0, core.ColProductDayIndex))

	assert.Equal(t, "2_2020-08-01", agg.MustCell(1, core.ColProductDayID))
	assert.Equal(t, "1_2020-08-02", agg.MustCell(2, core.ColProductDayID))
	assert.Equal(t, "3", agg.MustCell(2, core.ColProductDayIndex))
}

func TestFillMissingProductDays(t *testing.T) {
	sales := table.New(
		core.ColDate,
		core.ColUniqueProductID,
		core.ColTotalSalesAmountInEuro,
		core.ColNumberOfClicks,
	)
	require.NoError(t, sales.AppendRow("2020-08-01", "1", "12.5", "3"))

	grid, err := NewExtractor().FillMissingProductDays(
		sales,
		[]string{"1", "2"},
		[]string{"2020-08-01", "2020-08-02"},
		map[string]int{"2020-08-01": 0, "2020-08-02": 1},
	)
	require.NoError(t, err)

	// Full product x date grid.
	require.Equal(t, 4, grid.Len())
	assert.Equal(t, "12.5", grid.MustCell(0, core.ColTotalSalesAmountInEuro))
	assert.Equal(t, "3", grid.MustCell(0, core.ColNumberOfClicks))

	// Missing combinations are zero-filled.
	assert.Equal(t, "0", grid.MustCell(1, core.ColTotalSalesAmountInEuro))
	assert.Equal(t, "0", grid.MustCell(3, core.ColNumberOfClicks))

	// Campaign day and a fresh sequential index on every row.
	assert.Equal(t, "1", grid.MustCell(1, core.ColDayOfCampaign))
	assert.Equal(t, "4", grid.MustCell(3, core.ColProductDayIndex))
}

func TestExtractor_Execute(t *testing.T) {
	events := eventsTable(t,
		map[string]string{
			core.ColClickTimestamp:    unixAt(t, "2020-08-01 10:00"),
			core.ColProductID:         "p1",
			core.ColProductTitle:      "Red Shoe",
			core.ColSalesAmountInEuro: "10",
		},
		map[string]string{
			core.ColClickTimestamp:    unixAt(t, "2020-08-02 10:00"),
			core.ColProductID:         "p1",
			core.ColProductTitle:      "Red Shoe",
			core.ColSalesAmountInEuro: "-1",
		},
		map[string]string{
			core.ColClickTimestamp:    unixAt(t, "2020-08-01 11:00"),
			core.ColProductID:         "p2",
			core.ColProductTitle:      "Blue Sneaker",
			core.ColSalesAmountInEuro: "5",
		},
	)

	catalog, productDaySales, err := NewExtractor().Execute(events)
	require.NoError(t, err)

	assert.Equal(t, 2, catalog.Len())

	// 2 products x 2 days, zero-filled.
	require.Equal(t, 4, productDaySales.Len())

	byID := make(map[string][2]string, productDaySales.Len())
	for i := 0; i < productDaySales.Len(); i++ {
		byID[productDaySales.MustCell(i, core.ColProductDayID)] = [2]string{
			productDaySales.MustCell(i, core.ColTotalSalesAmountInEuro),
			productDaySales.MustCell(i, core.ColNumberOfClicks),
		}
	}
	assert.Equal(t, [2]string{"10", "1"}, byID["1_2020-08-01"])
	assert.Equal(t, [2]string{"0", "1"}, byID["1_2020-08-02"], "sentinel sale counts as a click with zero sales")
	assert.Equal(t, [2]string{"5", "1"}, byID["2_2020-08-01"])
	assert.Equal(t, [2]string{"0", "0"}, byID["2_2020-08-02"], "missing product-day is zero-filled")
}
