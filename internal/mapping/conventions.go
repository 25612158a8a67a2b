package mapping

import (
	"sort"
	"strings"
)

// Canonical price fields
const (
	FieldDate     = "date"
	FieldAdjClose = "adj_close"
	FieldClose    = "close"
	FieldHigh     = "high"
	FieldLow      = "low"
	FieldOpen     = "open"
	FieldVolume   = "volume"
)

// FieldRule routes every external column starting with Prefix to a canonical Field.
// Providers decorate column names differently: "Close_AAPL", "close", "4. close", etc.
type FieldRule struct {
	// Prefix is the start of the provider column name (e.g. "Adj Close_")
	Prefix string

	// Field is the canonical PricePoint field (e.g. "adj_close")
	Field string
}

// Convention is the column naming used by one data provider.
// A row is accepted only when every rule populated a field.
type Convention struct {
	Name  string
	Rules []FieldRule
}

// YahooFinance matches rows produced by yfinance with flattened multi-index columns,
// e.g. {"Date": "2024-01-02 00:00:00", "Adj Close_AAPL": 184.9, "Close_AAPL": 185.6, ...}.
// "Adj Close_" is listed before "Close_" for readability only; neither is a prefix of the other.
var YahooFinance = Convention{
	Name: "yahoo_finance",
	Rules: []FieldRule{
		{Prefix: "Date", Field: FieldDate},
		{Prefix: "Adj Close_", Field: FieldAdjClose},
		{Prefix: "Close_", Field: FieldClose},
		{Prefix: "High_", Field: FieldHigh},
		{Prefix: "Low_", Field: FieldLow},
		{Prefix: "Open_", Field: FieldOpen},
		{Prefix: "Volume_", Field: FieldVolume},
	},
}

// DefaultConventions are tried in order for every incoming price row.
// Add new providers here; the upsert path does not change.
var DefaultConventions = []Convention{
	YahooFinance,
}

// Map routes the row's columns to canonical fields.
// Columns are visited in sorted order and each one goes to the first matching rule, so a
// column feeds at most one field. The second return value is false when the number of
// distinct fields populated differs from the number of rules.
func (c Convention) Map(row map[string]interface{}) (map[string]interface{}, bool) {
	if len(c.Rules) == 0 {
		return nil, false
	}

	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mapped := make(map[string]interface{}, len(c.Rules))
	for _, key := range keys {
		for _, rule := range c.Rules {
			if strings.HasPrefix(key, rule.Prefix) {
				mapped[rule.Field] = row[key]
				break
			}
		}
	}

	if len(mapped) != c.fieldCount() {
		return nil, false
	}
	return mapped, true
}

func (c Convention) fieldCount() int {
	fields := make(map[string]struct{}, len(c.Rules))
	for _, rule := range c.Rules {
		fields[rule.Field] = struct{}{}
	}
	return len(fields)
}
