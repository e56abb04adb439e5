package xref

import (
	"fmt"
	"math"
	"strings"

	"github.com/siherrmann/docpipe/model"
)

// Summarize renders a short deterministic summary of a document record for
// injection into downstream generation prompts. The output is a pure
// function of the record, so repeated resolution of an unchanged store
// produces identical context bundles.
func Summarize(record *model.DocumentRecord) string {
	if record == nil {
		return ""
	}

	date := record.GeneratedAt.UTC().Format("2006-01-02")
	lead := fmt.Sprintf("%v for program %v, generated %v.", record.DocumentType.DisplayName(), record.Program, date)

	var parts []string
	switch record.DocumentType {
	case model.DocTypeMarketResearch:
		parts = appendFact(parts, "identified vendors", factCount(record.Facts, "vendor_count"))
		parts = appendFact(parts, "average unit cost", factMoney(record.Facts, "average_unit_cost"))
		parts = appendFact(parts, "market maturity", factString(record.Facts, "market_maturity"))
	case model.DocTypeCostEstimate:
		parts = appendFact(parts, "total estimated cost", factMoney(record.Facts, "total_cost"))
		parts = appendFact(parts, "period of performance", factMonths(record.Facts, "period_of_performance_months"))
		parts = appendFact(parts, "confidence", factPercent(record.Facts, "confidence_level"))
	case model.DocTypeAcquisitionPlan:
		parts = appendFact(parts, "contract type", factString(record.Facts, "contract_type"))
		parts = appendFact(parts, "small business set-aside", factString(record.Facts, "small_business_setaside"))
		parts = appendFact(parts, "planned initial operating capability", factString(record.Facts, "ioc_date"))
	case model.DocTypeStatementOfWork:
		parts = appendFact(parts, "deliverables", factCount(record.Facts, "deliverable_count"))
		parts = appendFact(parts, "place of performance", factString(record.Facts, "place_of_performance"))
		parts = appendFact(parts, "security clearance", factString(record.Facts, "security_clearance"))
	case model.DocTypeEvaluationScorecard:
		parts = appendFact(parts, "technical weight", factPercent(record.Facts, "technical_weight"))
		parts = appendFact(parts, "cost weight", factPercent(record.Facts, "cost_weight"))
		parts = appendFact(parts, "past performance weight", factPercent(record.Facts, "past_performance_weight"))
	case model.DocTypeSourceSelectionPlan:
		parts = appendFact(parts, "evaluation method", factString(record.Facts, "evaluation_method"))
		parts = appendFact(parts, "expected offerors", factCount(record.Facts, "offeror_count"))
		parts = appendFact(parts, "target award date", factString(record.Facts, "award_date"))
	}

	if len(parts) == 0 {
		return lead
	}
	return lead + " Key facts: " + strings.Join(parts, ", ") + "."
}

func appendFact(parts []string, label string, value string) []string {
	if value == "" {
		return parts
	}
	return append(parts, fmt.Sprintf("%v %v", label, value))
}

func factString(facts model.FactBundle, key string) string {
	value, ok := facts.String(key)
	if !ok {
		return ""
	}
	return value
}

func factCount(facts model.FactBundle, key string) string {
	value, ok := facts.Number(key)
	if !ok {
		return ""
	}
	return formatNumber(value)
}

func factMonths(facts model.FactBundle, key string) string {
	value, ok := facts.Number(key)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%v months", formatNumber(value))
}

func factPercent(facts model.FactBundle, key string) string {
	value, ok := facts.Number(key)
	if !ok {
		return ""
	}
	return formatNumber(value) + "%"
}

func factMoney(facts model.FactBundle, key string) string {
	value, ok := facts.Number(key)
	if !ok {
		return ""
	}
	return "$" + groupThousands(value)
}

// formatNumber prints integers without a decimal point and other values
// with up to two decimals.
func formatNumber(value float64) string {
	if value == math.Trunc(value) {
		return fmt.Sprintf("%.0f", value)
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", value), "0"), ".")
}

// groupThousands renders 2847500 as 2,847,500.
func groupThousands(value float64) string {
	whole := formatNumber(value)
	fraction := ""
	if i := strings.IndexByte(whole, '.'); i >= 0 {
		fraction = whole[i:]
		whole = whole[:i]
	}

	negative := strings.HasPrefix(whole, "-")
	whole = strings.TrimPrefix(whole, "-")

	var groups []string
	for len(whole) > 3 {
		groups = append([]string{whole[len(whole)-3:]}, groups...)
		whole = whole[:len(whole)-3]
	}
	groups = append([]string{whole}, groups...)

	result := strings.Join(groups, ",") + fraction
	if negative {
		result = "-" + result
	}
	return result
}
