package listing

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Sane bounds for an asking price. Anything outside is a parse mistake
// (a phone number, a monthly fee, an area).
const (
	minAskingPrice = 1000
	maxAskingPrice = 100000000
)

// amountPattern matches grouped numbers such as "1 250 000" or "250.000,00"
const amountPattern = `([0-9]{1,3}(?:[., \x{00a0}][0-9]{3})+(?:[.,][0-9]{1,2})?|[0-9]+(?:[.,][0-9]{1,2})?)`

var (
	euroAfterRe  = regexp.MustCompile(amountPattern + `\s*(?:€|EUR)`)
	euroBeforeRe = regexp.MustCompile(`(?:€|EUR)\s*` + amountPattern)
)

var priceMetaSelectors = []string{
	"meta[property='product:price:amount']",
	"meta[property='og:price:amount']",
	"meta[itemprop='price']",
}

var priceTextSelectors = []string{
	"[itemprop='price']",
	"[data-testid*='price']",
	"[class*='price']",
	"[id*='price']",
}

// ExtractPrice finds the asking price on a listing page. It tries, in order:
// price meta tags, JSON-LD offers, price-like elements, then the page text.
func ExtractPrice(doc *goquery.Document) (float64, bool) {
	for _, sel := range priceMetaSelectors {
		if content, ok := doc.Find(sel).First().Attr("content"); ok {
			if v, ok := parseAmount(content); ok {
				return v, true
			}
		}
	}

	if v, ok := extractJSONLDPrice(doc); ok {
		return v, true
	}

	for _, sel := range priceTextSelectors {
		var found float64
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if content, ok := s.Attr("content"); ok {
				if v, ok := parseAmount(content); ok {
					found = v
					return false
				}
			}
			if v, ok := extractEuroAmount(s.Text()); ok {
				found = v
				return false
			}
			return true
		})
		if found > 0 {
			return found, true
		}
	}

	return extractEuroAmount(doc.Find("body").Text())
}

func extractJSONLDPrice(doc *goquery.Document) (float64, bool) {
	var found float64
	doc.Find("script[type='application/ld+json']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var data any
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			return true
		}
		if v, ok := findOfferPrice(data); ok {
			found = v
			return false
		}
		return true
	})
	return found, found > 0
}

// findOfferPrice walks JSON-LD looking for offers.price
func findOfferPrice(node any) (float64, bool) {
	switch n := node.(type) {
	case []any:
		for _, item := range n {
			if v, ok := findOfferPrice(item); ok {
				return v, true
			}
		}
	case map[string]any:
		if offers, ok := n["offers"]; ok {
			if v, ok := offerPrice(offers); ok {
				return v, true
			}
		}
		if graph, ok := n["@graph"]; ok {
			return findOfferPrice(graph)
		}
	}
	return 0, false
}

func offerPrice(offers any) (float64, bool) {
	switch o := offers.(type) {
	case []any:
		for _, item := range o {
			if v, ok := offerPrice(item); ok {
				return v, true
			}
		}
	case map[string]any:
		switch p := o["price"].(type) {
		case float64:
			return inRange(p)
		case string:
			return parseAmount(p)
		}
		if spec, ok := o["priceSpecification"]; ok {
			return offerPrice(spec)
		}
	}
	return 0, false
}

func extractEuroAmount(text string) (float64, bool) {
	for _, re := range []*regexp.Regexp{euroBeforeRe, euroAfterRe} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if v, ok := parseAmount(m[1]); ok {
				return v, true
			}
		}
	}
	return 0, false
}

// parseAmount reads "300.000", "300,000", "300 000", "1.234,56" and
// "1,234.56" style numbers.
func parseAmount(raw string) (float64, bool) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	s := strings.Trim(b.String(), ".,")
	if s == "" {
		return 0, false
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastDot >= 0:
		s = normalizeSingleSeparator(s, ".")
	case lastComma >= 0:
		s = normalizeSingleSeparator(s, ",")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return inRange(v)
}

// normalizeSingleSeparator decides whether sep groups thousands or marks
// decimals: repeated, or followed by exactly three digits, means thousands.
func normalizeSingleSeparator(s, sep string) string {
	if strings.Count(s, sep) > 1 || len(s)-strings.LastIndex(s, sep)-1 == 3 {
		return strings.ReplaceAll(s, sep, "")
	}
	return strings.Replace(s, sep, ".", 1)
}

func inRange(v float64) (float64, bool) {
	if v < minAskingPrice || v > maxAskingPrice {
		return 0, false
	}
	return v, true
}
