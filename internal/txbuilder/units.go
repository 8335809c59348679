package txbuilder

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

func ValidateDecimals(decimals uint8) error {
	switch decimals {
	case 6, 9, 18:
		return nil
	default:
		return fmt.Errorf("%w: %d (supported: 6, 9, 18)", ErrUnsupportedDecimals, decimals)
	}
}

// ToBaseUnits converts a human amount to the token's smallest unit.
func ToBaseUnits(amount decimal.Decimal, decimals uint8) (*big.Int, error) {
	if err := ValidateDecimals(decimals); err != nil {
		return nil, err
	}
	return shiftToInt(amount, decimals)
}

func FromBaseUnits(v *big.Int, decimals uint8) (decimal.Decimal, error) {
	if err := ValidateDecimals(decimals); err != nil {
		return decimal.Zero, err
	}
	if v == nil {
		return decimal.Zero, errors.New("value is nil")
	}
	return decimal.NewFromBigInt(v, -int32(decimals)), nil
}

// FormatUnits renders base units for logs without the decimals check.
func FormatUnits(v *big.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -int32(decimals)).String()
}

func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, errors.New("amount is empty")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// ParseUnits accepts any decimals; use ToBaseUnits for token amounts.
func ParseUnits(amount string, decimals uint8) (*big.Int, error) {
	d, err := ParseAmount(amount)
	if err != nil {
		return nil, err
	}
	return shiftToInt(d, decimals)
}

func GweiToWei(gwei float64) (*big.Int, error) {
	if gwei < 0 {
		return nil, errors.New("gwei must be non-negative")
	}
	return shiftToInt(decimal.NewFromFloat(gwei).Truncate(9), 9)
}

func shiftToInt(amount decimal.Decimal, decimals uint8) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, errors.New("amount must be non-negative")
	}
	shifted := amount.Shift(int32(decimals))
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("%w: %s with %d decimals", ErrAmountPrecision, amount.String(), decimals)
	}
	return shifted.BigInt(), nil
}

// ParseBaseUnits reads a non-negative integer amount already in base units,
// decimal or 0x-prefixed hex.
func ParseBaseUnits(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("amount is empty")
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	v, ok := new(big.Int).SetString(s, base)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid base-unit amount %q", s)
	}
	return v, nil
}
