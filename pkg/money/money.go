// Package money renders minor-unit amounts as localized currency strings.
package money

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Formatter formats amounts for one locale.
type Formatter struct {
	tag     language.Tag
	printer *message.Printer
}

// NewFormatter returns a Formatter for locale, a BCP 47 tag such as "en-US".
// Unparseable locales fall back to English.
func NewFormatter(locale string) *Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return &Formatter{tag: tag, printer: message.NewPrinter(tag)}
}

// Locale returns the tag the formatter renders for.
func (f *Formatter) Locale() string {
	return f.tag.String()
}

// Format renders amount, given in the currency's minor units, as
// "<symbol> <number>" using the locale's grouping and decimal separators.
func (f *Formatter) Format(amount int64, code string) (string, error) {
	unit, err := currency.ParseISO(strings.ToUpper(code))
	if err != nil {
		return "", fmt.Errorf("parse currency %q: %w", code, err)
	}

	scale, _ := currency.Standard.Rounding(unit)
	value := float64(amount) / math.Pow10(scale)

	symbol := f.printer.Sprint(currency.Symbol(unit))
	digits := f.printer.Sprint(number.Decimal(value, number.Scale(scale)))
	return symbol + " " + digits, nil
}

// Format is a convenience for NewFormatter(locale).Format(amount, code).
func Format(amount int64, code, locale string) (string, error) {
	return NewFormatter(locale).Format(amount, code)
}
