// Package core provides money parsing and handling utilities.
//
// Amounts are held as integer paise. Inputs come from forms in rupees with an
// optional rupee sign and Indian digit grouping ("₹1,23,456.78").
package core

import (
	"strconv"
	"strings"
	"unicode"
)

// MaxAmountPaise bounds every amount accepted from input (₹1,00,000 crore).
// Rate arithmetic multiplies by 10000 and must stay inside int64.
const MaxAmountPaise int64 = 100_000_000_000_000

// Rupees returns a Money value for a whole number of rupees.
func Rupees(r int64) Money {
	return Money{Paise: r * 100}
}

// Add returns m + o.
func (m Money) Add(o Money) Money { return Money{Paise: m.Paise + o.Paise} }

// Sub returns m - o.
func (m Money) Sub(o Money) Money { return Money{Paise: m.Paise - o.Paise} }

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool { return m.Paise == 0 }

// IsPositive reports whether the amount is greater than zero.
func (m Money) IsPositive() bool { return m.Paise > 0 }

// String formats the amount with the rupee sign and Indian grouping.
func (m Money) String() string { return FormatINR(m.Paise) }

// Decimal formats the amount as a plain decimal string ("123456.78") for
// spreadsheet cells and form values.
func (m Money) Decimal() string {
	neg := m.Paise < 0
	p := m.Paise
	if neg {
		p = -p
	}
	s := strconv.FormatInt(p/100, 10) + "." + twoDigits(p%100)
	if neg {
		return "-" + s
	}
	return s
}

// ParseDecimalToPaise converts a rupee string to paise with half-up rounding.
//
// The rupee sign, spaces and grouping commas are ignored; the decimal
// separator is the dot. Negative values and malformed input yield
// ErrInvalidAmount. Zero is accepted: callers decide whether it is meaningful.
//
// Examples:
//
//	ParseDecimalToPaise("1,23,456.78") -> 12345678, nil
//	ParseDecimalToPaise("₹ 12.345")    -> 1235, nil (rounds up)
//	ParseDecimalToPaise("12.344")      -> 1234, nil
func ParseDecimalToPaise(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "₹")
	s = strings.TrimPrefix(s, "Rs.")
	s = strings.Map(func(r rune) rune {
		if r == ',' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if r < '0' || r > '9' {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil || iv > MaxAmountPaise/100 {
		return 0, ErrInvalidAmount
	}
	var frac int64
	if len(fracPart) > 0 {
		frac = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			frac += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				frac++
			}
		}
	}
	paise := iv*100 + frac
	if paise > MaxAmountPaise {
		return 0, ErrInvalidAmount
	}
	return paise, nil
}

// ParseMoney is ParseDecimalToPaise returning Money.
func ParseMoney(s string) (Money, error) {
	p, err := ParseDecimalToPaise(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Paise: p}, nil
}

// FormatINR renders paise as "₹1,23,456.78": the last three rupee digits form
// one group and the rest are grouped in pairs.
func FormatINR(paise int64) string {
	neg := paise < 0
	if neg {
		paise = -paise
	}
	digits := strconv.FormatInt(paise/100, 10)
	var b strings.Builder
	if len(digits) > 3 {
		head, tail := digits[:len(digits)-3], digits[len(digits)-3:]
		lead := len(head) % 2
		if lead > 0 {
			b.WriteString(head[:lead])
		}
		for i := lead; i < len(head); i += 2 {
			if b.Len() > 0 {
				b.WriteByte(',')
			}
			b.WriteString(head[i : i+2])
		}
		b.WriteByte(',')
		b.WriteString(tail)
	} else {
		b.WriteString(digits)
	}
	out := "₹" + b.String() + "." + twoDigits(paise%100)
	if neg {
		return "-" + out
	}
	return out
}

func twoDigits(n int64) string {
	if n < 10 {
		return "0" + strconv.FormatInt(n, 10)
	}
	return strconv.FormatInt(n, 10)
}

// BasisPoints expresses a percentage in hundredths of a percent (18% = 1800).
type BasisPoints int64

// ParsePercent parses "18", "2.5" or "12.75%" into basis points.
func ParsePercent(s string) (BasisPoints, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	p, err := ParseDecimalToPaise(s)
	if err != nil {
		return 0, ErrInvalidRate
	}
	if p > 100_00 {
		return 0, ErrInvalidRate
	}
	return BasisPoints(p), nil
}

// String renders the rate as a percentage without trailing zeros ("2.5%").
func (b BasisPoints) String() string {
	whole := int64(b) / 100
	frac := int64(b) % 100
	if frac < 0 {
		frac = -frac
	}
	if frac == 0 {
		return strconv.FormatInt(whole, 10) + "%"
	}
	f := twoDigits(frac)
	f = strings.TrimRight(f, "0")
	return strconv.FormatInt(whole, 10) + "." + f + "%"
}

// Ratio returns part/whole in basis points, rounded half up; zero when whole
// is not positive.
func Ratio(part, whole Money) BasisPoints {
	if whole.Paise <= 0 {
		return 0
	}
	return BasisPoints((part.Paise*100_00 + whole.Paise/2) / whole.Paise)
}
