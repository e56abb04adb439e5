package populate

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/siherrmann/docpipe/model"
)

// FieldSpec describes one template field of a document type and where its
// value may come from. Sources are tried strictly in order: explicit
// configuration, cross-referenced upstream fact, the document's own
// extracted fact, then a fixed default. A field that exhausts all sources
// renders a self-describing placeholder instead of being dropped.
type FieldSpec struct {
	Name        string
	ConfigKey   string
	Upstream    model.DocumentType
	UpstreamKey string
	FactKey     string
	Default     string
}

var fieldTable = map[model.DocumentType][]FieldSpec{
	model.DocTypeMarketResearch: {
		{Name: "vendor_count", FactKey: "vendor_count"},
		{Name: "average_unit_cost", FactKey: "average_unit_cost"},
		{Name: "market_maturity", FactKey: "market_maturity", Default: "emerging"},
		{Name: "key_vendors", FactKey: "key_vendors"},
	},
	model.DocTypeCostEstimate: {
		{Name: "total_cost", ConfigKey: "total_cost", FactKey: "total_cost"},
		{Name: "market_unit_cost", Upstream: model.DocTypeMarketResearch, UpstreamKey: "average_unit_cost"},
		{Name: "period_of_performance_months", ConfigKey: "period_of_performance_months", FactKey: "period_of_performance_months", Default: "12"},
		{Name: "confidence_level", FactKey: "confidence_level"},
		{Name: "labor_categories", FactKey: "labor_categories"},
	},
	model.DocTypeAcquisitionPlan: {
		{Name: "total_cost", Upstream: model.DocTypeCostEstimate, UpstreamKey: "total_cost", FactKey: "total_cost"},
		{Name: "vendor_count", Upstream: model.DocTypeMarketResearch, UpstreamKey: "vendor_count"},
		{Name: "contract_type", ConfigKey: "contract_type", FactKey: "contract_type", Default: "FFP"},
		{Name: "small_business_setaside", ConfigKey: "small_business_setaside", FactKey: "small_business_setaside", Default: "none"},
		{Name: "ioc_date", ConfigKey: "ioc_date", FactKey: "ioc_date"},
		{Name: "foc_date", ConfigKey: "foc_date", FactKey: "foc_date"},
		{Name: "milestones", FactKey: "milestones"},
	},
	model.DocTypeStatementOfWork: {
		{Name: "contract_type", Upstream: model.DocTypeAcquisitionPlan, UpstreamKey: "contract_type"},
		{Name: "period_of_performance_months", ConfigKey: "period_of_performance_months", FactKey: "period_of_performance_months"},
		{Name: "place_of_performance", ConfigKey: "place_of_performance", FactKey: "place_of_performance", Default: "contractor site"},
		{Name: "security_clearance", ConfigKey: "security_clearance", FactKey: "security_clearance", Default: "none required"},
		{Name: "deliverable_count", FactKey: "deliverable_count"},
		{Name: "task_areas", FactKey: "task_areas"},
	},
	model.DocTypeEvaluationScorecard: {
		{Name: "technical_weight", ConfigKey: "technical_weight", FactKey: "technical_weight", Default: "50"},
		{Name: "cost_weight", ConfigKey: "cost_weight", FactKey: "cost_weight", Default: "30"},
		{Name: "past_performance_weight", ConfigKey: "past_performance_weight", FactKey: "past_performance_weight", Default: "20"},
		{Name: "task_area_count", Upstream: model.DocTypeStatementOfWork, UpstreamKey: "deliverable_count"},
		{Name: "evaluation_method", ConfigKey: "evaluation_method", FactKey: "evaluation_method", Default: "best value tradeoff"},
		{Name: "evaluation_criteria", FactKey: "evaluation_criteria"},
	},
	model.DocTypeSourceSelectionPlan: {
		{Name: "evaluation_method", Upstream: model.DocTypeEvaluationScorecard, UpstreamKey: "evaluation_method", FactKey: "evaluation_method"},
		{Name: "technical_weight", Upstream: model.DocTypeEvaluationScorecard, UpstreamKey: "technical_weight"},
		{Name: "award_date", ConfigKey: "award_date", FactKey: "award_date"},
		{Name: "offeror_count", FactKey: "offeror_count"},
		{Name: "selection_steps", FactKey: "selection_steps"},
	},
}

// FieldsFor returns the template field specs of a document type.
func FieldsFor(docType model.DocumentType) []FieldSpec {
	specs := fieldTable[docType]
	result := make([]FieldSpec, len(specs))
	copy(result, specs)
	return result
}

// Populate resolves every template field of docType through the source
// priority chain. It never fails: a field without any source yields a
// placeholder naming the field and the missing upstream or fact, so the
// rendered document shows exactly what is absent.
func Populate(docType model.DocumentType, config map[string]string, refs model.ContextBundle, facts model.FactBundle) map[string]string {
	fields := make(map[string]string, len(fieldTable[docType]))
	for _, spec := range fieldTable[docType] {
		fields[spec.Name] = resolveField(spec, config, refs, facts)
	}
	return fields
}

func resolveField(spec FieldSpec, config map[string]string, refs model.ContextBundle, facts model.FactBundle) string {
	if spec.ConfigKey != "" {
		if value, ok := config[spec.ConfigKey]; ok && value != "" {
			return value
		}
	}

	if spec.Upstream != "" {
		if value, ok := refs.Fact(spec.Upstream, spec.UpstreamKey); ok {
			return formatValue(value)
		}
	}

	if spec.FactKey != "" {
		if value, ok := facts[spec.FactKey]; ok {
			return formatValue(value)
		}
	}

	if spec.Default != "" {
		return spec.Default
	}

	return placeholder(spec, refs)
}

// placeholder renders the unresolved field as a marker that survives into
// the final document and names what is missing.
func placeholder(spec FieldSpec, refs model.ContextBundle) string {
	if spec.Upstream != "" {
		if slot, ok := refs[spec.Upstream]; ok && slot.Missing {
			return fmt.Sprintf("[MISSING: %v - no %v available for this program]", spec.Name, spec.Upstream.DisplayName())
		}
		return fmt.Sprintf("[MISSING: %v - %v did not provide %v]", spec.Name, spec.Upstream.DisplayName(), spec.UpstreamKey)
	}
	return fmt.Sprintf("[MISSING: %v - not found in reference material]", spec.Name)
}

// formatValue renders a fact value for template insertion.
func formatValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		if v == math.Trunc(v) {
			return fmt.Sprintf("%.0f", v)
		}
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
	case []interface{}:
		items := make([]string, 0, len(v))
		for _, item := range v {
			items = append(items, formatListItem(item))
		}
		return strings.Join(items, "; ")
	default:
		return fmt.Sprintf("%v", v)
	}
}

func formatListItem(item interface{}) string {
	record, ok := item.(map[string]interface{})
	if !ok {
		return formatValue(item)
	}

	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%v: %v", k, formatValue(record[k])))
	}
	return strings.Join(parts, ", ")
}
