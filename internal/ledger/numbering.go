package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FormatDocumentNumber renders numbers such as RCPT007/11/2025.
func FormatDocumentNumber(prefix string, seq int64, at time.Time) string {
	return fmt.Sprintf("%s%03d/%02d/%d", prefix, seq, int(at.Month()), at.Year())
}

// Period is the counter scope for document numbers issued at the given time.
func Period(at time.Time) string {
	return at.Format("2006-01")
}

// PeriodSuffix is the "/MM/YYYY" tail shared by every number of a period.
func PeriodSuffix(at time.Time) string {
	return fmt.Sprintf("/%02d/%d", int(at.Month()), at.Year())
}

// ParseDocumentSequence extracts the numeric part of a document number.
// Anything malformed yields 0.
func ParseDocumentSequence(prefix string, number string) int64 {
	rest, ok := strings.CutPrefix(strings.TrimSpace(number), prefix)
	if !ok {
		return 0
	}
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		rest = rest[:idx]
	}
	seq, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || seq < 0 {
		return 0
	}
	return seq
}

// NextDocumentNumber derives the successor of the last issued number. It is
// only safe behind a serialization point; live numbering uses the
// repository counters and this is kept for seeding them from legacy rows.
func NextDocumentNumber(prefix string, last string, at time.Time) string {
	return FormatDocumentNumber(prefix, ParseDocumentSequence(prefix, last)+1, at)
}

// TransferReference renders TR-ABLA-0001-1125 style references.
func TransferReference(from string, to string, seq int64, at time.Time) string {
	return fmt.Sprintf("TR-%s%s-%04d-%s", locationCode(from), locationCode(to), seq, at.Format("0106"))
}

func locationCode(location string) string {
	if len(location) < 2 {
		return "XX"
	}
	return strings.ToUpper(location[:2])
}

// FormatNaira renders an amount as ₦14,000.00.
func FormatNaira(d decimal.Decimal) string {
	fixed := Money(d).StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign = "-"
		fixed = fixed[1:]
	}
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + "₦" + b.String() + "." + frac
}
