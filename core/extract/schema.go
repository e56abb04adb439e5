package extract

import (
	"github.com/siherrmann/docpipe/core/generate"
	"github.com/siherrmann/docpipe/model"
)

// Expected value types for structured extraction results.
const (
	TypeNumber = "number"
	TypeString = "string"
	TypeDate   = "date"
	TypeList   = "list"
)

// schemaTable fixes the full fact schema per document type. The pattern stage
// resolves a subset of these keys cheaply; the structured stage is asked only
// for the rest.
var schemaTable = map[model.DocumentType]generate.Schema{
	model.DocTypeMarketResearch: {
		"vendor_count":      TypeNumber,
		"average_unit_cost": TypeNumber,
		"market_maturity":   TypeString,
		"key_vendors":       TypeList,
	},
	model.DocTypeCostEstimate: {
		"total_cost":                   TypeNumber,
		"base_year_cost":               TypeNumber,
		"option_year_cost":             TypeNumber,
		"period_of_performance_months": TypeNumber,
		"confidence_level":             TypeNumber,
		"labor_categories":             TypeList,
	},
	model.DocTypeAcquisitionPlan: {
		"total_cost":              TypeNumber,
		"ioc_date":                TypeDate,
		"foc_date":                TypeDate,
		"contract_type":           TypeString,
		"small_business_setaside": TypeString,
		"milestones":              TypeList,
	},
	model.DocTypeStatementOfWork: {
		"period_of_performance_months": TypeNumber,
		"deliverable_count":            TypeNumber,
		"security_clearance":           TypeString,
		"place_of_performance":         TypeString,
		"task_areas":                   TypeList,
	},
	model.DocTypeEvaluationScorecard: {
		"technical_weight":        TypeNumber,
		"cost_weight":             TypeNumber,
		"past_performance_weight": TypeNumber,
		"evaluation_method":       TypeString,
		"evaluation_criteria":     TypeList,
	},
	model.DocTypeSourceSelectionPlan: {
		"award_date":        TypeDate,
		"offeror_count":     TypeNumber,
		"evaluation_method": TypeString,
		"selection_steps":   TypeList,
	},
}

// SchemaFor returns the fixed fact schema for a document type.
func SchemaFor(docType model.DocumentType) generate.Schema {
	schema := generate.Schema{}
	for k, v := range schemaTable[docType] {
		schema[k] = v
	}
	return schema
}

// validValue checks a structured extraction value against its expected type.
// Values failing validation are dropped from the bundle, never defaulted.
func validValue(value interface{}, expected string) bool {
	switch expected {
	case TypeNumber:
		_, ok := value.(float64)
		return ok
	case TypeString:
		s, ok := value.(string)
		return ok && s != ""
	case TypeDate:
		s, ok := value.(string)
		if !ok {
			return false
		}
		_, ok = NormalizeDate(s)
		return ok
	case TypeList:
		l, ok := value.([]interface{})
		return ok && len(l) > 0
	default:
		return false
	}
}
