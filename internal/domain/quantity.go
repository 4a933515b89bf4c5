package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidQuantity marks a quantity string that cannot be converted into a
// positive whole number of grams.
var ErrInvalidQuantity = errors.New("quantity: invalid value")

// ParseKilograms converts a decimal kilogram string ("2", "0.75", "1.250")
// into grams. At most three decimal places are accepted; anything finer than
// a gram, non-numeric, zero, or negative is rejected.
func ParseKilograms(value string) (int64, error) {
	grams, err := ParseStockKilograms(value)
	if err != nil {
		return 0, err
	}
	if grams == 0 {
		return 0, fmt.Errorf("%w: must be positive: %q", ErrInvalidQuantity, value)
	}
	return grams, nil
}

// ParseStockKilograms is ParseKilograms for stock levels, where zero is a
// legitimate value (sold out).
func ParseStockKilograms(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidQuantity)
	}

	whole := value
	frac := ""
	if idx := strings.IndexByte(value, '.'); idx >= 0 {
		whole = value[:idx]
		frac = value[idx+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 3 {
		return 0, fmt.Errorf("%w: finer than grams: %q", ErrInvalidQuantity, value)
	}

	kilos, err := strconv.ParseUint(whole, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidQuantity, value)
	}

	var grams int64
	if frac != "" {
		parsed, err := strconv.ParseUint(frac+strings.Repeat("0", 3-len(frac)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidQuantity, value)
		}
		grams = int64(parsed)
	}

	return int64(kilos)*GramsPerKilogram + grams, nil
}

// FormatKilograms renders grams back into a decimal kilogram string with
// trailing zeros trimmed.
func FormatKilograms(grams int64) string {
	kilos := grams / GramsPerKilogram
	rest := grams % GramsPerKilogram
	if rest == 0 {
		return strconv.FormatInt(kilos, 10)
	}
	frac := strings.TrimRight(fmt.Sprintf("%03d", rest), "0")
	return fmt.Sprintf("%d.%s", kilos, frac)
}
