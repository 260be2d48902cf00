// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from strings
// and formatting amounts for display in a configured currency and locale.
package core

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// ParseAmount converts a decimal string to an amount with two decimals.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. Returns an error wrapping
// ErrValidation for invalid formats, negative values, or zero amounts.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,34")  -> 12.34, nil
//	ParseAmount("12.345") -> 12.35, nil (rounds up)
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	for _, p := range parts {
		for _, r := range p {
			if !unicode.IsDigit(r) {
				return 0, ErrInvalidAmount
			}
		}
	}
	if parts[0] == "" {
		s = "0" + s
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	d = d.Round(2)
	if !d.IsPositive() {
		return 0, ErrInvalidAmount
	}
	return d.InexactFloat64(), nil
}

// CurrencyInfo describes a supported display currency.
type CurrencyInfo struct {
	Code   string `json:"code"`
	Label  string `json:"label"`
	Symbol string `json:"symbol"`
}

var supportedCurrencies = []CurrencyInfo{
	{"USD", "US Dollar", "$"},
	{"EUR", "Euro", "€"},
	{"GBP", "British Pound", "£"},
	{"JPY", "Japanese Yen", "¥"},
	{"CAD", "Canadian Dollar", "C$"},
	{"AUD", "Australian Dollar", "A$"},
	{"INR", "Indian Rupee", "₹"},
	{"CNY", "Chinese Yuan", "¥"},
	{"BRL", "Brazilian Real", "R$"},
	{"MXN", "Mexican Peso", "MX$"},
}

// Currencies lists the supported display currencies.
func Currencies() []CurrencyInfo {
	return append([]CurrencyInfo(nil), supportedCurrencies...)
}

// LookupCurrency returns the info for an ISO code.
func LookupCurrency(code string) (CurrencyInfo, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, c := range supportedCurrencies {
		if c.Code == code {
			return c, true
		}
	}
	return CurrencyInfo{}, false
}

// Formatter renders amounts as display strings, e.g. "$1,234.50".
// A Formatter is safe for concurrent use.
type Formatter struct {
	info    CurrencyInfo
	tag     language.Tag
	scale   int
	unknown bool // currency has no CLDR data; use the plain fallback
}

// NewFormatter returns a formatter for a supported currency code and a BCP 47
// locale. An unparsable locale falls back to American English.
func NewFormatter(code, locale string) (*Formatter, error) {
	info, ok := LookupCurrency(code)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported currency %q", ErrValidation, code)
	}
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.AmericanEnglish
	}
	f := &Formatter{info: info, tag: tag, scale: 2}
	unit, err := currency.ParseISO(info.Code)
	if err != nil {
		f.unknown = true
		return f, nil
	}
	f.scale, _ = currency.Standard.Rounding(unit)
	return f, nil
}

// Currency returns the formatter's currency.
func (f *Formatter) Currency() CurrencyInfo { return f.info }

// Format renders amount with the currency symbol, locale grouping and the
// currency's standard number of decimals.
func (f *Formatter) Format(amount float64) string {
	if f.unknown {
		return fmt.Sprintf("%s%.2f", f.info.Symbol, amount)
	}
	d := decimal.NewFromFloat(amount).Round(int32(f.scale))
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	p := message.NewPrinter(f.tag)
	return sign + f.info.Symbol + p.Sprint(number.Decimal(d.InexactFloat64(), number.Scale(f.scale)))
}

// FormatRupees renders the compact rupee style used in receipts, e.g.
// "Rs. 72,000/-".
func FormatRupees(amount float64) string {
	if amount == 0 {
		return "Rs. 0/-"
	}
	p := message.NewPrinter(language.English)
	return "Rs. " + p.Sprint(number.Decimal(amount, number.MaxFractionDigits(2))) + "/-"
}
