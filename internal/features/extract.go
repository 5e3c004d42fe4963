// Package features transforms raw click events into the product-day
// sales features used for modeling. It covers date feature extraction,
// the product catalog, monetary cleanup, campaign-day calculation, and
// the zero-filled product-day aggregation.
package features

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cytops/cytops/internal/table"
	"github.com/cytops/cytops/pkg/core"
)

// DateLayout is the wire format of the derived date column.
const DateLayout = "2006-01-02"

// moneySentinels are raw values that mean "no sale" in the event log and
// are normalized to zero.
var moneySentinels = map[string]struct{}{
	"-1":     {},
	"-1.0":   {},
	`"-1"`:   {},
	`"-1.0"`: {},
}

// Extractor derives model features from raw events.
type Extractor struct {
	// TimeAdjust shifts click timestamps before date features are
	// derived, compensating for the log's clock offset. Default one hour.
	TimeAdjust time.Duration
}

// NewExtractor returns an Extractor with the default time adjustment.
func NewExtractor() *Extractor {
	return &Extractor{TimeAdjust: time.Hour}
}

// AddDateFeatures parses click_timestamp on every row and appends hour,
// date, month and ISO week columns.
func (e *Extractor) AddDateFeatures(t *table.Table) error {
	n := t.Len()
	hours := make([]string, n)
	dates := make([]string, n)
	months := make([]string, n)
	weeks := make([]string, n)

	for i := 0; i < n; i++ {
		ts, err := t.Int(i, core.ColClickTimestamp)
		if err != nil {
			return fmt.Errorf("date features: %w", err)
		}
		adjusted := time.Unix(ts, 0).UTC().Add(e.TimeAdjust)
		_, week := adjusted.ISOWeek()

		hours[i] = strconv.Itoa(adjusted.Hour())
		dates[i] = adjusted.Format(DateLayout)
		months[i] = strconv.Itoa(int(adjusted.Month()))
		weeks[i] = strconv.Itoa(week)
	}

	for _, col := range []struct {
		name   string
		values []string
	}{
		{core.ColHour, hours},
		{core.ColDate, dates},
		{core.ColMonth, months},
		{core.ColWeek, weeks},
	} {
		if err := t.AddColumn(col.name, col.values); err != nil {
			return fmt.Errorf("date features: %w", err)
		}
	}
	return nil
}

// ProductCatalog builds the deduplicated product table: the product
// identity columns, the product title split into part columns, and a
// sequential unique_product_id.
func (e *Extractor) ProductCatalog(t *table.Table) (*table.Table, error) {
	products, err := t.Select(core.ProductColumns...)
	if err != nil {
		return nil, fmt.Errorf("product catalog: %w", err)
	}
	products = products.DistinctRows()

	titles, err := products.Column(core.ColProductTitle)
	if err != nil {
		return nil, err
	}
	maxParts := 0
	split := make([][]string, len(titles))
	for i, title := range titles {
		split[i] = strings.Fields(title)
		if len(split[i]) > maxParts {
			maxParts = len(split[i])
		}
	}
	for p := 0; p < maxParts; p++ {
		values := make([]string, len(titles))
		for i := range titles {
			if p < len(split[i]) {
				values[i] = split[i][p]
			}
		}
		name := core.ProductTitlePartPrefix + strconv.Itoa(p)
		if err := products.AddColumn(name, values); err != nil {
			return nil, fmt.Errorf("product catalog: %w", err)
		}
	}

	ids := make([]string, products.Len())
	for i := range ids {
		ids[i] = strconv.Itoa(i + 1)
	}
	if err := products.AddColumn(core.ColUniqueProductID, ids); err != nil {
		return nil, fmt.Errorf("product catalog: %w", err)
	}
	return products, nil
}

// AttachProductIDs joins the events with the product catalog on the
// product identity columns, appending unique_product_id to every event.
// Events without a catalog match are an error; the catalog was derived
// from the same events.
func (e *Extractor) AttachProductIDs(events, catalog *table.Table) error {
	byIdentity := make(map[string]string, catalog.Len())
	for i := 0; i < catalog.Len(); i++ {
		key, err := identityKey(catalog, i)
		if err != nil {
			return err
		}
		uid, err := catalog.Cell(i, core.ColUniqueProductID)
		if err != nil {
			return err
		}
		byIdentity[key] = uid
	}

	ids := make([]string, events.Len())
	for i := 0; i < events.Len(); i++ {
		key, err := identityKey(events, i)
		if err != nil {
			return err
		}
		uid, ok := byIdentity[key]
		if !ok {
			return fmt.Errorf("event row %d has no product catalog entry", i)
		}
		ids[i] = uid
	}
	return events.AddColumn(core.ColUniqueProductID, ids)
}

func identityKey(t *table.Table, row int) (string, error) {
	parts := make([]string, len(core.ProductColumns))
	for i, col := range core.ProductColumns {
		v, err := t.Cell(row, col)
		if err != nil {
			return "", err
		}
		parts[i] = v
	}
	return strings.Join(parts, "\x1f"), nil
}

// ProcessMoneyFeatures normalizes the monetary columns in place: the
// sales amount is parsed as a float with negative values and sentinels
// clamped to zero, and the product price is parsed as a float.
func (e *Extractor) ProcessMoneyFeatures(t *table.Table) error {
	for i := 0; i < t.Len(); i++ {
		amount, err := parseMoney(t.MustCell(i, core.ColSalesAmountInEuro))
		if err != nil {
			return fmt.Errorf("sales amount row %d: %w", i, err)
		}
		if amount < 0 {
			amount = 0
		}
		if err := t.SetCell(i, core.ColSalesAmountInEuro, formatFloat(amount)); err != nil {
			return err
		}

		price, err := parseFloat(t.MustCell(i, core.ColProductPrice))
		if err != nil {
			return fmt.Errorf("product price row %d: %w", i, err)
		}
		if err := t.SetCell(i, core.ColProductPrice, formatFloat(price)); err != nil {
			return err
		}
	}
	return nil
}

// parseMoney maps the missing-value sentinels to zero before parsing.
// Only the sales amount uses sentinels; the price is a plain float.
func parseMoney(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if _, ok := moneySentinels[raw]; ok {
		return 0, nil
	}
	return parseFloat(raw)
}

func parseFloat(raw string) (float64, error) {
	return strconv.ParseFloat(strings.Trim(strings.TrimSpace(raw), `"`), 64)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// AddDayOfCampaign appends the day_of_campaign column: days elapsed
// since the earliest date in the table.
func (e *Extractor) AddDayOfCampaign(t *table.Table) error {
	dates, err := t.Column(core.ColDate)
	if err != nil {
		return err
	}
	byDate, err := DayOfCampaignForDates(dates)
	if err != nil {
		return err
	}
	values := make([]string, len(dates))
	for i, d := range dates {
		values[i] = strconv.Itoa(byDate[d])
	}
	return t.AddColumn(core.ColDayOfCampaign, values)
}

// DayOfCampaignForDates maps each distinct date to its day number in the
// campaign, counted from the earliest date.
func DayOfCampaignForDates(dates []string) (map[string]int, error) {
	var first time.Time
	parsed := make(map[string]time.Time, len(dates))
	for _, d := range dates {
		if _, ok := parsed[d]; ok {
			continue
		}
		ts, err := time.Parse(DateLayout, d)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", d, err)
		}
		parsed[d] = ts
		if first.IsZero() || ts.Before(first) {
			first = ts
		}
	}
	out := make(map[string]int, len(parsed))
	for d, ts := range parsed {
		out[d] = int(ts.Sub(first).Hours() / 24)
	}
	return out, nil
}

// AggregateProductDay groups the events by (date, unique_product_id) and
// produces total sales and click counts per product per day, with the
// product_day_id and a sequential product_day_index.
func (e *Extractor) AggregateProductDay(t *table.Table) (*table.Table, error) {
	type key struct{ date, uid string }
	type agg struct {
		total  float64
		clicks int64
	}
	groups := make(map[key]*agg)
	for i := 0; i < t.Len(); i++ {
		amount, err := t.Float(i, core.ColSalesAmountInEuro)
		if err != nil {
			return nil, err
		}
		k := key{
			date: t.MustCell(i, core.ColDate),
			uid:  t.MustCell(i, core.ColUniqueProductID),
		}
		g, ok := groups[k]
		if !ok {
			g = &agg{}
			groups[k] = g
		}
		g.total += amount
		g.clicks++
	}

	keys := make([]key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		if keys[a].date != keys[b].date {
			return keys[a].date < keys[b].date
		}
		return keys[a].uid < keys[b].uid
	})

	out := table.New(
		core.ColDate,
		core.ColUniqueProductID,
		core.ColTotalSalesAmountInEuro,
		core.ColNumberOfClicks,
		core.ColProductDayID,
		core.ColProductDayIndex,
	)
	for i, k := range keys {
		g := groups[k]
		if err := out.AppendRow(
			k.date,
			k.uid,
			formatFloat(g.total),
			strconv.FormatInt(g.clicks, 10),
			k.uid+"_"+k.date,
			strconv.Itoa(i+1),
		); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// FillMissingProductDays expands the aggregated sales to the full grid
// of product x date combinations. Days a product sold nothing appear
// with zero sales and zero clicks, and every row gets its campaign day
// and a fresh product_day_index.
func (e *Extractor) FillMissingProductDays(
	sales *table.Table,
	productIDs, dates []string,
	dayOfCampaign map[string]int,
) (*table.Table, error) {
	type key struct{ uid, date string }
	existing := make(map[key]int, sales.Len())
	for i := 0; i < sales.Len(); i++ {
		existing[key{
			uid:  sales.MustCell(i, core.ColUniqueProductID),
			date: sales.MustCell(i, core.ColDate),
		}] = i
	}

	out := table.New(
		core.ColUniqueProductID,
		core.ColDate,
		core.ColDayOfCampaign,
		core.ColTotalSalesAmountInEuro,
		core.ColNumberOfClicks,
		core.ColProductDayID,
		core.ColProductDayIndex,
	)
	index := 1
	for _, uid := range productIDs {
		for _, date := range dates {
			day, ok := dayOfCampaign[date]
			if !ok {
				return nil, fmt.Errorf("date %q has no campaign day", date)
			}
			total := "0"
			clicks := "0"
			if i, ok := existing[key{uid: uid, date: date}]; ok {
				total = sales.MustCell(i, core.ColTotalSalesAmountInEuro)
				clicks = sales.MustCell(i, core.ColNumberOfClicks)
			}
			if err := out.AppendRow(
				uid,
				date,
				strconv.Itoa(day),
				total,
				clicks,
				uid+"_"+date,
				strconv.Itoa(index),
			); err != nil {
				return nil, err
			}
			index++
		}
	}
	return out, nil
}

// Execute runs the full feature extraction over raw events and returns
// the product catalog and the zero-filled product-day sales table.
func (e *Extractor) Execute(events *table.Table) (catalog, productDaySales *table.Table, err error) {
	if err := e.AddDateFeatures(events); err != nil {
		return nil, nil, err
	}

	catalog, err = e.ProductCatalog(events)
	if err != nil {
		return nil, nil, err
	}
	if err := e.AttachProductIDs(events, catalog); err != nil {
		return nil, nil, err
	}
	if err := e.ProcessMoneyFeatures(events); err != nil {
		return nil, nil, err
	}
	if err := e.AddDayOfCampaign(events); err != nil {
		return nil, nil, err
	}

	sales, err := e.AggregateProductDay(events)
	if err != nil {
		return nil, nil, err
	}

	productIDs, err := catalog.Column(core.ColUniqueProductID)
	if err != nil {
		return nil, nil, err
	}
	dates, err := events.Distinct(core.ColDate)
	if err != nil {
		return nil, nil, err
	}
	sort.Strings(dates)
	dayOfCampaign, err := DayOfCampaignForDates(dates)
	if err != nil {
		return nil, nil, err
	}

	productDaySales, err = e.FillMissingProductDays(sales, productIDs, dates, dayOfCampaign)
	if err != nil {
		return nil, nil, err
	}
	return catalog, productDaySales, nil
}
