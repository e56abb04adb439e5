package model

// DocumentType identifies one of the procurement document kinds the
// pipeline knows how to generate.
type DocumentType string

const (
	DocTypeMarketResearch      DocumentType = "market_research"
	DocTypeCostEstimate        DocumentType = "cost_estimate"
	DocTypeAcquisitionPlan     DocumentType = "acquisition_plan"
	DocTypeStatementOfWork     DocumentType = "statement_of_work"
	DocTypeEvaluationScorecard DocumentType = "evaluation_scorecard"
	DocTypeSourceSelectionPlan DocumentType = "source_selection_plan"
)

// AllDocumentTypes returns every known document type in dependency-friendly
// order (upstream types first).
func AllDocumentTypes() []DocumentType {
	return []DocumentType{
		DocTypeMarketResearch,
		DocTypeCostEstimate,
		DocTypeAcquisitionPlan,
		DocTypeStatementOfWork,
		DocTypeEvaluationScorecard,
		DocTypeSourceSelectionPlan,
	}
}

// Valid reports whether the type is one of the known document types.
func (d DocumentType) Valid() bool {
	switch d {
	case DocTypeMarketResearch, DocTypeCostEstimate, DocTypeAcquisitionPlan,
		DocTypeStatementOfWork, DocTypeEvaluationScorecard, DocTypeSourceSelectionPlan:
		return true
	default:
		return false
	}
}

// DisplayName returns the human readable title of the document type.
func (d DocumentType) DisplayName() string {
	switch d {
	case DocTypeMarketResearch:
		return "Market Research Report"
	case DocTypeCostEstimate:
		return "Independent Cost Estimate"
	case DocTypeAcquisitionPlan:
		return "Acquisition Plan"
	case DocTypeStatementOfWork:
		return "Statement of Work"
	case DocTypeEvaluationScorecard:
		return "Evaluation Scorecard"
	case DocTypeSourceSelectionPlan:
		return "Source Selection Plan"
	default:
		return string(d)
	}
}
