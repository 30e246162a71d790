package common

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	SOLDecimals  = 9 // SOL has 9 decimals (lamports)
	USDCDecimals = 6 // USDC has 6 decimals (micro)
)

// FormatUnits converts raw base units to a decimal string without float
// precision loss. Example: FormatUnits(24981836, 9) = "0.024981836".
func FormatUnits(value uint64, decimals int) string {
	s := strconv.FormatUint(value, 10)
	if decimals <= 0 {
		return s
	}

	// Pad with leading zeros if needed
	for len(s) <= decimals {
		s = "0" + s
	}

	pos := len(s) - decimals
	return s[:pos] + "." + s[pos:]
}

// ParseUnits converts a decimal string to raw base units without float
// precision loss. Example: ParseUnits("0.024981836", 9) = 24981836.
func ParseUnits(s string, decimals int) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty string")
	}

	parts := strings.Split(s, ".")

	if len(parts) == 1 {
		// No decimal point - multiply by 10^decimals
		n, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return 0, err
		}
		for i := 0; i < decimals; i++ {
			n *= 10
		}
		return n, nil
	}

	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid decimal format")
	}

	whole := parts[0]
	frac := parts[1]

	// Pad or truncate fractional part to exact decimals
	if len(frac) < decimals {
		frac += strings.Repeat("0", decimals-len(frac))
	} else if len(frac) > decimals {
		frac = frac[:decimals]
	}

	combined := whole + frac
	return strconv.ParseUint(combined, 10, 64)
}

// LamportsToSOL converts lamports to a SOL display string.
func LamportsToSOL(lamports uint64) string {
	return FormatUnits(lamports, SOLDecimals)
}

// MicroToUSDC converts micro units to a USDC display string.
func MicroToUSDC(micro uint64) string {
	return FormatUnits(micro, USDCDecimals)
}

// CompareAmounts compares two decimal string amounts at the given precision
// without float precision loss. Returns -1 if a < b, 0 if equal, 1 if a > b.
func CompareAmounts(a, b string, decimals int) (int, error) {
	aVal, err := ParseUnits(a, decimals)
	if err != nil {
		return 0, fmt.Errorf("failed to parse amount '%s': %w", a, err)
	}

	bVal, err := ParseUnits(b, decimals)
	if err != nil {
		return 0, fmt.Errorf("failed to parse amount '%s': %w", b, err)
	}

	if aVal < bVal {
		return -1, nil
	}
	if aVal > bVal {
		return 1, nil
	}
	return 0, nil
}
