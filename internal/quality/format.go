package quality

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// PercentFormatter renders the partial-coverage prefix of a warning.
type PercentFormatter interface {
	PartialWarning(percent float64, text string) string
}

// LocaleFormatter formats percentages with the decimal separator of a locale.
type LocaleFormatter struct {
	printer  *message.Printer
	template string
}

// NewLocaleFormatter creates a formatter for a BCP 47 locale such as "nb" or "en".
// Norwegian locales produce "12,5 % av ..." and others "12.5% of ...".
func NewLocaleFormatter(locale string) *LocaleFormatter {
	tag := language.Make(locale)
	tmpl := "%s%% of %s"
	if base, _ := tag.Base(); isNorwegian(base.String()) {
		tmpl = "%s %% av %s"
	}
	return &LocaleFormatter{printer: message.NewPrinter(tag), template: tmpl}
}

func isNorwegian(base string) bool {
	switch base {
	case "nb", "nn", "no":
		return true
	}
	return false
}

// Percent renders p with at most two decimals.
func (f *LocaleFormatter) Percent(p float64) string {
	return f.printer.Sprint(number.Decimal(p, number.MaxFractionDigits(2)))
}

// PartialWarning implements PercentFormatter.
func (f *LocaleFormatter) PartialWarning(percent float64, text string) string {
	return fmt.Sprintf(f.template, f.Percent(percent), strings.ToLower(text))
}
