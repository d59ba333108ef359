package postgres

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Numeric columns travel as text so no precision is lost to float conversion.

func parseDecimal(col, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s %q: %w", col, s, err)
	}
	return d, nil
}

func parseBigInt(col, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("parse %s %q: not an integer", col, s)
	}
	return v, nil
}

func bigIntText(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

type decimalField struct {
	col string
	src string
	dst *decimal.Decimal
}

func parseDecimals(fields ...decimalField) error {
	for _, f := range fields {
		d, err := parseDecimal(f.col, f.src)
		if err != nil {
			return err
		}
		*f.dst = d
	}
	return nil
}
