package tui

import (
	"fmt"
	"math"
	"time"
)

// FormatMoney formats an amount with two decimals and thousands separators.
func FormatMoney(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	whole := int64(v)
	cents := int64(math.Round((v - float64(whole)) * 100))
	if cents == 100 {
		whole++
		cents = 0
	}
	s := fmt.Sprintf("%d", whole)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return fmt.Sprintf("%s%s.%02d", sign, s, cents)
}

// FormatPercentage formats a percentage value as "X.X%".
func FormatPercentage(pct float64) string {
	return fmt.Sprintf("%.1f%%", pct)
}

// FormatRunway formats runway months; 999 and above means unbounded.
func FormatRunway(months float64) string {
	switch {
	case months >= 999:
		return "unbounded"
	case months <= 0:
		return "none"
	default:
		return fmt.Sprintf("%.1f months", months)
	}
}

// FormatUpdated formats a server timestamp, "never" when unset.
func FormatUpdated(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04")
}
