// Package ocr turns the raw text of a scanned receipt into structured fields.
package ocr

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finlight/internal/core"
)

// UnknownVendor is reported when no vendor line can be identified.
const UnknownVendor = "Unknown"

// ExtractedText is the output of an OCR engine.
type ExtractedText struct {
	Text string
	// Confidence is the engine's score in [0,1]; zero when not reported.
	Confidence float64
}

// TextExtractor reads the text of an image.
type TextExtractor interface {
	ExtractText(ctx context.Context, image []byte) (ExtractedText, error)
}

type ReceiptItem struct {
	Description string
	Quantity    int64
	UnitPrice   core.Money
	Total       core.Money
}

// ReceiptProcessingResult is the structured reading of a receipt.
type ReceiptProcessingResult struct {
	Vendor     string
	Amount     core.Money
	Date       core.Date // zero when no date was found
	VATAmount  core.Money
	Items      []ReceiptItem
	RawText    string
	Confidence decimal.Decimal
}

var (
	amountRe   = regexp.MustCompile(`(?i)(?:\bR|\bZAR)?\s?(\d{1,3}(?:,\d{3})+|\d+)[.,](\d{2})\b`)
	totalRe    = regexp.MustCompile(`(?i)\b(?:grand\s+)?total\b|\bamount\s+due\b|\bbalance\s+due\b`)
	subtotalRe = regexp.MustCompile(`(?i)\bsub\s*-?\s*total`)
	vatRe      = regexp.MustCompile(`(?i)\b(?:vat|tax)\b`)
	ymdRe      = regexp.MustCompile(`\b(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})\b`)
	dmyRe      = regexp.MustCompile(`\b(\d{1,2})[-/.](\d{1,2})[-/.](\d{4})\b`)
	itemRe     = regexp.MustCompile(`^(.*?[A-Za-z].*?)\s+(\d{1,4})\s*[xX@*]\s*(?:R\s?)?(\d+[.,]\d{2})\s+(?:R\s?)?(\d+[.,]\d{2})$`)

	// Lines carrying these words are payment or summary lines, never items.
	nonItemRe = regexp.MustCompile(`(?i)\b(?:total|subtotal|vat|tax|change|cash|card|balance|tendered|due|tel|vat\s*no)\b`)
)

// ParseReceipt extracts vendor, total, VAT, date and line items from text.
// Nothing it returns is authoritative; callers present it for confirmation.
func ParseReceipt(in ExtractedText) ReceiptProcessingResult {
	lines := splitLines(in.Text)
	res := ReceiptProcessingResult{
		Vendor:  parseVendor(lines),
		RawText: in.Text,
		Items:   []ReceiptItem{},
	}
	res.Amount = parseTotal(lines)
	res.VATAmount = parseVAT(lines)
	res.Date = parseDate(in.Text)
	res.Items = parseItems(lines)
	res.Confidence = confidence(in.Confidence, res)
	return res
}

func splitLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.Join(strings.Fields(l), " ")
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

// parseVendor picks the first line with letters that is not an amount or
// date line.
func parseVendor(lines []string) string {
	for _, l := range lines {
		if !strings.ContainsFunc(l, isLetter) {
			continue
		}
		if amountRe.MatchString(l) || ymdRe.MatchString(l) || dmyRe.MatchString(l) {
			continue
		}
		return l
	}
	return UnknownVendor
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// parseTotal prefers the largest amount on a TOTAL line and falls back to
// the largest amount anywhere.
func parseTotal(lines []string) core.Money {
	var labelled, largest core.Money
	for _, l := range lines {
		for _, m := range amounts(l) {
			if m.Cents > largest.Cents {
				largest = m
			}
			if totalRe.MatchString(l) && !subtotalRe.MatchString(l) && m.Cents > labelled.Cents {
				labelled = m
			}
		}
	}
	if labelled.Cents > 0 {
		return labelled
	}
	return largest
}

// parseVAT returns the last amount on the first VAT line.
func parseVAT(lines []string) core.Money {
	for _, l := range lines {
		if !vatRe.MatchString(l) {
			continue
		}
		if found := amounts(l); len(found) > 0 {
			return found[len(found)-1]
		}
	}
	return core.Money{}
}

func parseDate(text string) core.Date {
	if m := ymdRe.FindStringSubmatch(text); m != nil {
		if d, ok := validDate(m[1], m[2], m[3]); ok {
			return d
		}
	}
	if m := dmyRe.FindStringSubmatch(text); m != nil {
		if d, ok := validDate(m[3], m[2], m[1]); ok {
			return d
		}
	}
	return core.Date{}
}

func validDate(ys, ms, ds string) (core.Date, bool) {
	y, _ := strconv.Atoi(ys)
	m, _ := strconv.Atoi(ms)
	d, _ := strconv.Atoi(ds)
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return core.Date{}, false
	}
	date := core.NewDate(y, m, d)
	if date.Month() != time.Month(m) || date.Day() != d {
		return core.Date{}, false // e.g. 31/02
	}
	return date, true
}

func parseItems(lines []string) []ReceiptItem {
	items := []ReceiptItem{}
	for _, l := range lines {
		if nonItemRe.MatchString(l) {
			continue
		}
		m := itemRe.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		qty, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil || qty <= 0 {
			continue
		}
		unit, err1 := core.ParseMoney(m[3])
		total, err2 := core.ParseMoney(m[4])
		if err1 != nil || err2 != nil {
			continue
		}
		items = append(items, ReceiptItem{
			Description: strings.TrimSpace(m[1]),
			Quantity:    qty,
			UnitPrice:   unit,
			Total:       total,
		})
	}
	return items
}

// amounts returns every monetary amount in a line, in order. Dates are
// blanked first so "03.06.2024" is not read as 3.06.
func amounts(line string) []core.Money {
	line = ymdRe.ReplaceAllString(line, " ")
	line = dmyRe.ReplaceAllString(line, " ")
	var out []core.Money
	for _, m := range amountRe.FindAllStringSubmatch(line, -1) {
		whole := strings.ReplaceAll(m[1], ",", "")
		money, err := core.ParseMoney(whole + "." + m[2])
		if err != nil {
			continue
		}
		out = append(out, money)
	}
	return out
}

// confidence uses the engine score when present, otherwise the share of the
// key fields that were found.
func confidence(engine float64, r ReceiptProcessingResult) decimal.Decimal {
	if engine > 0 {
		return decimal.NewFromFloat(engine).Round(2)
	}
	found := 0
	if r.Vendor != UnknownVendor {
		found++
	}
	if r.Amount.Cents > 0 {
		found++
	}
	if !r.Date.IsZero() {
		found++
	}
	if len(r.Items) > 0 {
		found++
	}
	return decimal.NewFromInt(int64(found)).Div(decimal.NewFromInt(4)).Round(2)
}
