// Package helpers provides common utility functions used across the codebase.
package helpers

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// All chains store amounts on the wire in their smallest integer unit (wei,
// satoshi, lamports, mutez). Conversion to human-readable decimal amounts is
// centralized here; adapters only supply the base-unit exponent.

// FromBaseUnits converts an integer base-unit amount to a decimal amount.
// For example, FromBaseUnits(150000000, 8) returns 1.5 (BTC from satoshis).
func FromBaseUnits(amount *big.Int, exponent uint8) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -int32(exponent))
}

// ToBaseUnits converts a decimal amount to integer base units, truncating any
// precision beyond the exponent. ToBaseUnits(1.5, 8) returns 150000000.
func ToBaseUnits(amount decimal.Decimal, exponent uint8) *big.Int {
	return amount.Shift(int32(exponent)).Truncate(0).BigInt()
}

// ParseBaseUnits parses a base-10 string of integer base units.
func ParseBaseUnits(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("empty amount string")
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %q", s)
	}
	return n, nil
}

// ParseDecimal parses a human-unit decimal string ("1.5").
func ParseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount string")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// FormatBaseUnits renders integer base units as a decimal string.
// FormatBaseUnits(100000000, 8) returns "1".
func FormatBaseUnits(amount *big.Int, exponent uint8) string {
	return FromBaseUnits(amount, exponent).String()
}

// GweiToWei converts a gwei amount to wei. Fee providers quote EVM gas
// prices in gwei; transactions carry wei.
func GweiToWei(gwei decimal.Decimal) *big.Int {
	return ToBaseUnits(gwei, 9)
}
