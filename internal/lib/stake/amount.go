package stake

import (
	"fmt"
	"strconv"
	"strings"
)

const solDecimals = 9

// ParseSOL converts a decimal SOL amount ("1", "0.72", ".5") into lamports. Anything non-numeric, negative,
// zero or more precise than a lamport is rejected with ErrInvalidAmount.
func ParseSOL(amount string) (uint64, error) {
	amount = strings.TrimSpace(amount)
	whole, frac, _ := strings.Cut(amount, ".")
	if whole == "" && frac == "" {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, amount)
	}
	if len(frac) > solDecimals {
		return 0, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, amount, solDecimals)
	}
	if !isDigits(whole) || !isDigits(frac) {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, amount)
	}
	var (
		wholeLamports uint64
		fracLamports  uint64
		err           error
	)
	if whole != "" {
		wholeLamports, err = strconv.ParseUint(whole, 10, 64)
		if err != nil || wholeLamports > (^uint64(0))/LamportsPerSol {
			return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidAmount, amount)
		}
		wholeLamports *= LamportsPerSol
	}
	if frac != "" {
		frac += strings.Repeat("0", solDecimals-len(frac))
		fracLamports, _ = strconv.ParseUint(frac, 10, 64)
	}
	total := wholeLamports + fracLamports
	if total < wholeLamports {
		return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidAmount, amount)
	}
	if total == 0 {
		return 0, fmt.Errorf("%w: amount must be more than 0", ErrInvalidAmount)
	}
	return total, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FormatSOL renders lamports as SOL w/ trailing zeros (and a bare decimal point) removed.
func FormatSOL(lamports uint64) string {
	formatted := fmt.Sprintf("%d.%09d", lamports/LamportsPerSol, lamports%LamportsPerSol)
	formatted = strings.TrimRight(formatted, "0")
	formatted = strings.TrimRight(formatted, ".")
	return formatted
}

// FormatSOLFixed renders lamports as SOL truncated to the given number of decimals, ie: 2 -> "0.72"
func FormatSOLFixed(lamports uint64, decimals int) string {
	if decimals <= 0 {
		return strconv.FormatUint(lamports/LamportsPerSol, 10)
	}
	if decimals > solDecimals {
		decimals = solDecimals
	}
	frac := fmt.Sprintf("%09d", lamports%LamportsPerSol)
	return fmt.Sprintf("%d.%s", lamports/LamportsPerSol, frac[:decimals])
}
