package report

import (
	"math"
	"strconv"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Absent is shown in place of a missing figure.
const Absent = "ikke"

var monthsNO = [...]string{"jan", "feb", "mar", "apr", "mai", "jun", "jul", "aug", "sep", "okt", "nov", "des"}

var printer = message.NewPrinter(language.Norwegian)

// FormatDate renders t as "2.jan 2024", or "" for nil.
func FormatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return strconv.Itoa(t.Day()) + "." + monthsNO[t.Month()-1] + " " + strconv.Itoa(t.Year())
}

// FormatCount renders an employee count, or Absent.
func FormatCount(n *int) string {
	if n == nil {
		return Absent
	}
	return strconv.Itoa(*n)
}

// FormatNOK renders an MNOK amount as whole kroner with Norwegian digit
// grouping, or Absent.
func FormatNOK(mnok *float64) string {
	if mnok == nil || math.IsNaN(*mnok) {
		return Absent
	}
	return printer.Sprintf("%d", int64(math.Round(*mnok*1_000_000)))
}

// FormatMNOK renders an MNOK amount with one decimal, or Absent.
func FormatMNOK(mnok *float64) string {
	if mnok == nil || math.IsNaN(*mnok) {
		return Absent
	}
	return printer.Sprintf("%.1f", *mnok)
}
