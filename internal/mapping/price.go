package mapping

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrEmptyValue marks a null or blank value
	ErrEmptyValue = errors.New("empty value")
	// ErrInvalidValue marks a value that cannot be coerced to the target type
	ErrInvalidValue = errors.New("invalid value")
)

// dateLayouts are the date renderings seen from analyzers: pandas str(Timestamp),
// ISO dates and RFC3339 with or without zone.
var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05.999999999",
}

// PriceRow is a price row in canonical shape.
// Correlation and instrument ids are not part of it; the caller injects them.
type PriceRow struct {
	Date     time.Time
	AdjClose decimal.NullDecimal
	Close    decimal.NullDecimal
	High     decimal.NullDecimal
	Low      decimal.NullDecimal
	Open     decimal.NullDecimal
	Volume   *int64
}

// Complete reports whether the row carries a close price worth persisting.
// Zero is treated like a missing close: no listed instrument closes at exactly zero.
func (r PriceRow) Complete() bool {
	return r.Close.Valid && !r.Close.Decimal.IsZero()
}

// MapPriceRow tries each convention in order and returns the first typed row produced.
// It returns false when no convention recognizes the row or its values don't coerce.
func MapPriceRow(row map[string]interface{}, conventions ...Convention) (PriceRow, bool) {
	if len(conventions) == 0 {
		conventions = DefaultConventions
	}

	for _, convention := range conventions {
		mapped, ok := convention.Map(row)
		if !ok {
			continue
		}
		typed, err := toPriceRow(mapped)
		if err != nil {
			continue
		}
		return typed, true
	}
	return PriceRow{}, false
}

func toPriceRow(mapped map[string]interface{}) (PriceRow, error) {
	var (
		row PriceRow
		err error
	)

	row.Date, err = ParseDate(mapped[FieldDate])
	if err != nil {
		return PriceRow{}, fmt.Errorf("date: %w", err)
	}

	decimals := []struct {
		field string
		dst   *decimal.NullDecimal
	}{
		{FieldAdjClose, &row.AdjClose},
		{FieldClose, &row.Close},
		{FieldHigh, &row.High},
		{FieldLow, &row.Low},
		{FieldOpen, &row.Open},
	}
	for _, d := range decimals {
		*d.dst, err = ParseNullDecimal(mapped[d.field])
		if err != nil {
			return PriceRow{}, fmt.Errorf("%s: %w", d.field, err)
		}
	}

	row.Volume, err = parseNullInt(mapped[FieldVolume])
	if err != nil {
		return PriceRow{}, fmt.Errorf("volume: %w", err)
	}

	return row, nil
}

// ParseDate accepts the date renderings analyzers produce.
// Numbers are read as Unix epoch milliseconds (pandas to_json default).
func ParseDate(value interface{}) (time.Time, error) {
	switch v := value.(type) {
	case nil:
		return time.Time{}, ErrEmptyValue
	case time.Time:
		return v.UTC(), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, ErrEmptyValue
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: unrecognized date %q", ErrInvalidValue, s)
	case float64:
		return time.UnixMilli(int64(v)).UTC(), nil
	case json.Number:
		ms, err := v.Int64()
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return time.UnixMilli(ms).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported date type %T", ErrInvalidValue, value)
	}
}

// ParseNullDecimal coerces a JSON value to a nullable decimal.
// null, blank strings and NaN become an invalid (NULL) decimal rather than an error.
func ParseNullDecimal(value interface{}) (decimal.NullDecimal, error) {
	switch v := value.(type) {
	case nil:
		return decimal.NullDecimal{}, nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.NullDecimal{}, nil
		}
		return decimal.NewNullDecimal(decimal.NewFromFloat(v)), nil
	case int:
		return decimal.NewNullDecimal(decimal.NewFromInt(int64(v))), nil
	case int64:
		return decimal.NewNullDecimal(decimal.NewFromInt(v)), nil
	case json.Number:
		return parseDecimalString(v.String())
	case string:
		return parseDecimalString(v)
	default:
		return decimal.NullDecimal{}, fmt.Errorf("%w: unsupported number type %T", ErrInvalidValue, value)
	}
}

func parseDecimalString(s string) (decimal.NullDecimal, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "null") || strings.EqualFold(s, "none") {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%w: %q", ErrInvalidValue, s)
	}
	return decimal.NewNullDecimal(d), nil
}

func parseNullInt(value interface{}) (*int64, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil
		}
		n := int64(math.Round(v))
		return &n, nil
	case int:
		n := int64(v)
		return &n, nil
	case int64:
		return &v, nil
	case json.Number:
		return parseIntString(v.String())
	case string:
		return parseIntString(v)
	default:
		return nil, fmt.Errorf("%w: unsupported integer type %T", ErrInvalidValue, value)
	}
}

func parseIntString(s string) (*int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return nil, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidValue, s)
	}
	n := int64(math.Round(f))
	return &n, nil
}
