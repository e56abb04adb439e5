package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/siherrmann/docpipe/model"
)

// PatternKind controls how a raw pattern match is normalized before it is
// stored in the fact bundle.
type PatternKind string

const (
	PatternCurrency PatternKind = "currency" // "$2,847,500" -> 2847500
	PatternCount    PatternKind = "count"    // "14 vendors" -> 14
	PatternPercent  PatternKind = "percent"  // "60%" -> 60
	PatternDate     PatternKind = "date"     // "March 1, 2027" -> "2027-03-01"
	PatternKeyword  PatternKind = "keyword"  // first matching option wins
)

// KeywordOption is one canonical keyword value with the text variants that
// map onto it.
type KeywordOption struct {
	Value    string
	Variants []string
}

// PatternSpec is one entry of the declarative pattern table: a fact key, the
// normalization kind and either a matcher or a keyword option list. The
// pattern stage is data, not branching code, so specs are independently
// testable.
type PatternSpec struct {
	Key     string
	Kind    PatternKind
	Matcher *regexp.Regexp  // first capture group is the value
	Options []KeywordOption // only for PatternKeyword
}

const datePattern = `(?:\d{4}-\d{2}-\d{2}|(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},\s+\d{4}|\d{1,2}/\d{1,2}/\d{4})`

const currencyPattern = `(\$\s?\d{1,3}(?:,\d{3})*(?:\.\d+)?|\$\s?\d+(?:\.\d+)?[MBK]?)`

var patternTable = map[model.DocumentType][]PatternSpec{
	model.DocTypeMarketResearch: {
		{Key: "vendor_count", Kind: PatternCount,
			Matcher: regexp.MustCompile(`(?i)(\d+)\s+(?:qualified\s+|capable\s+)?(?:vendors|suppliers|sources|offerors)`)},
		{Key: "average_unit_cost", Kind: PatternCurrency,
			Matcher: regexp.MustCompile(`(?i)average\s+(?:unit\s+)?(?:cost|price)\D{0,30}?` + currencyPattern)},
		{Key: "market_maturity", Kind: PatternKeyword, Options: []KeywordOption{
			{Value: "mature", Variants: []string{"mature market", "well-established market"}},
			{Value: "emerging", Variants: []string{"emerging market", "nascent market"}},
			{Value: "commercial", Variants: []string{"commercial item", "commercially available"}},
		}},
	},
	model.DocTypeCostEstimate: {
		{Key: "total_cost", Kind: PatternCurrency,
			Matcher: regexp.MustCompile(`(?i)total\s+(?:estimated\s+|program\s+|lifecycle\s+)?cost\D{0,40}?` + currencyPattern)},
		{Key: "base_year_cost", Kind: PatternCurrency,
			Matcher: regexp.MustCompile(`(?i)base\s+year\D{0,40}?` + currencyPattern)},
		{Key: "option_year_cost", Kind: PatternCurrency,
			Matcher: regexp.MustCompile(`(?i)option\s+year(?:s)?\D{0,40}?` + currencyPattern)},
		{Key: "period_of_performance_months", Kind: PatternCount,
			Matcher: regexp.MustCompile(`(?i)period\s+of\s+performance\D{0,30}?(\d+)\s*months`)},
		{Key: "confidence_level", Kind: PatternPercent,
			Matcher: regexp.MustCompile(`(?i)confidence\s+(?:level\s+)?(?:of\s+)?(\d+(?:\.\d+)?)\s*%`)},
	},
	model.DocTypeAcquisitionPlan: {
		{Key: "total_cost", Kind: PatternCurrency,
			Matcher: regexp.MustCompile(`(?i)total\s+(?:estimated\s+|program\s+|lifecycle\s+)?cost\D{0,40}?` + currencyPattern)},
		{Key: "ioc_date", Kind: PatternDate,
			Matcher: regexp.MustCompile(`(?i)(?:initial\s+operational\s+capability|ioc)[^.\n]{0,40}?(` + datePattern + `)`)},
		{Key: "foc_date", Kind: PatternDate,
			Matcher: regexp.MustCompile(`(?i)(?:full\s+operational\s+capability|foc)[^.\n]{0,40}?(` + datePattern + `)`)},
		{Key: "contract_type", Kind: PatternKeyword, Options: []KeywordOption{
			{Value: "FFP", Variants: []string{"firm fixed price", "firm-fixed-price", "ffp"}},
			{Value: "CPFF", Variants: []string{"cost plus fixed fee", "cost-plus-fixed-fee", "cpff"}},
			{Value: "T&M", Variants: []string{"time and materials", "time-and-materials", "t&m"}},
			{Value: "IDIQ", Variants: []string{"indefinite delivery indefinite quantity", "idiq"}},
		}},
		{Key: "small_business_setaside", Kind: PatternKeyword, Options: []KeywordOption{
			{Value: "total", Variants: []string{"total small business set-aside", "100% set-aside"}},
			{Value: "partial", Variants: []string{"partial small business set-aside", "partial set-aside"}},
			{Value: "none", Variants: []string{"full and open competition", "no set-aside"}},
		}},
	},
	model.DocTypeStatementOfWork: {
		{Key: "period_of_performance_months", Kind: PatternCount,
			Matcher: regexp.MustCompile(`(?i)period\s+of\s+performance\D{0,30}?(\d+)\s*months`)},
		{Key: "deliverable_count", Kind: PatternCount,
			Matcher: regexp.MustCompile(`(?i)(\d+)\s+(?:contract\s+)?deliverables`)},
		{Key: "security_clearance", Kind: PatternKeyword, Options: []KeywordOption{
			{Value: "top secret", Variants: []string{"top secret clearance", "ts/sci"}},
			{Value: "secret", Variants: []string{"secret clearance"}},
			{Value: "public trust", Variants: []string{"public trust"}},
			{Value: "none", Variants: []string{"no clearance required"}},
		}},
	},
	model.DocTypeEvaluationScorecard: {
		{Key: "technical_weight", Kind: PatternPercent,
			Matcher: regexp.MustCompile(`(?i)technical\s+(?:approach|merit|factor)?\D{0,30}?(\d+(?:\.\d+)?)\s*%`)},
		{Key: "cost_weight", Kind: PatternPercent,
			Matcher: regexp.MustCompile(`(?i)(?:cost|price)\s+(?:factor|realism)?\D{0,30}?(\d+(?:\.\d+)?)\s*%`)},
		{Key: "past_performance_weight", Kind: PatternPercent,
			Matcher: regexp.MustCompile(`(?i)past\s+performance\D{0,30}?(\d+(?:\.\d+)?)\s*%`)},
		{Key: "evaluation_method", Kind: PatternKeyword, Options: []KeywordOption{
			{Value: "tradeoff", Variants: []string{"best value tradeoff", "tradeoff process", "best-value"}},
			{Value: "LPTA", Variants: []string{"lowest price technically acceptable", "lpta"}},
		}},
	},
	model.DocTypeSourceSelectionPlan: {
		{Key: "award_date", Kind: PatternDate,
			Matcher: regexp.MustCompile(`(?i)award[^.\n]{0,40}?(` + datePattern + `)`)},
		{Key: "offeror_count", Kind: PatternCount,
			Matcher: regexp.MustCompile(`(?i)(\d+)\s+(?:offerors|proposals)`)},
		{Key: "evaluation_method", Kind: PatternKeyword, Options: []KeywordOption{
			{Value: "tradeoff", Variants: []string{"best value tradeoff", "tradeoff process", "best-value"}},
			{Value: "LPTA", Variants: []string{"lowest price technically acceptable", "lpta"}},
		}},
	},
}

// PatternsFor returns the ordered pattern table for a document type.
func PatternsFor(docType model.DocumentType) []PatternSpec {
	return patternTable[docType]
}

// applyPatterns runs the pattern stage over the concatenated passage text.
// Passages are assumed pre-ranked by relevance, so the first match in passage
// order wins for each fact key.
func applyPatterns(docType model.DocumentType, passages []*model.Passage) model.FactBundle {
	bundle := model.FactBundle{}
	if len(passages) == 0 {
		return bundle
	}

	texts := make([]string, 0, len(passages))
	for _, p := range passages {
		texts = append(texts, p.Text)
	}
	text := strings.Join(texts, "\n\n")

	for _, spec := range PatternsFor(docType) {
		if _, ok := bundle[spec.Key]; ok {
			continue
		}

		if spec.Kind == PatternKeyword {
			if value, ok := matchKeyword(text, spec.Options); ok {
				bundle[spec.Key] = value
			}
			continue
		}

		match := spec.Matcher.FindStringSubmatch(text)
		if len(match) < 2 {
			continue
		}

		switch spec.Kind {
		case PatternCurrency, PatternCount, PatternPercent:
			if n, ok := NormalizeNumber(match[1]); ok {
				bundle[spec.Key] = n
			}
		case PatternDate:
			if d, ok := NormalizeDate(match[1]); ok {
				bundle[spec.Key] = d
			}
		}
	}

	return bundle
}

// matchKeyword returns the canonical value of the option whose variant occurs
// earliest in the text.
func matchKeyword(text string, options []KeywordOption) (string, bool) {
	lower := strings.ToLower(text)

	best := -1
	value := ""
	for _, option := range options {
		for _, variant := range option.Variants {
			idx := strings.Index(lower, strings.ToLower(variant))
			if idx >= 0 && (best < 0 || idx < best) {
				best = idx
				value = option.Value
			}
		}
	}

	return value, best >= 0
}

// NormalizeNumber converts a matched amount to a plain number, tolerating
// thousands separators, currency symbols, percent signs and the common
// K/M/B magnitude suffixes.
func NormalizeNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	multiplier := 1.0
	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1_000
		s = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier = 1_000_000
		s = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "B"):
		multiplier = 1_000_000_000
		s = strings.TrimSuffix(s, "B")
	}

	replacer := strings.NewReplacer("$", "", ",", "", "%", "", " ", "")
	s = replacer.Replace(s)

	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n * multiplier, true
}

var dateLayouts = []string{
	"2006-01-02",
	"January 2, 2006",
	"1/2/2006",
	"01/02/2006",
}

// NormalizeDate parses a matched date and renders it as YYYY-MM-DD.
func NormalizeDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}
