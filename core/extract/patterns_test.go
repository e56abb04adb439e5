package extract

import (
	"testing"

	"github.com/siherrmann/docpipe/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passage(sourceID string, text string) *model.Passage {
	return &model.Passage{SourceID: sourceID, Text: text}
}

func TestApplyPatterns(t *testing.T) {
	t.Run("Extract cost estimate facts", func(t *testing.T) {
		passages := []*model.Passage{
			passage("cost-papers", `The total estimated cost is $2,847,500 over a period of performance of 36 months.
The base year accounts for $1,100,000. Confidence level of 80%.`),
		}

		bundle := applyPatterns(model.DocTypeCostEstimate, passages)

		assert.Equal(t, float64(2847500), bundle["total_cost"])
		assert.Equal(t, float64(1100000), bundle["base_year_cost"])
		assert.Equal(t, float64(36), bundle["period_of_performance_months"])
		assert.Equal(t, float64(80), bundle["confidence_level"])
	})

	t.Run("Extract acquisition plan keywords and dates", func(t *testing.T) {
		passages := []*model.Passage{
			passage("plan-draft", `The effort will be awarded as a firm fixed price contract under full and open competition.
Initial operational capability is planned for March 1, 2027.`),
		}

		bundle := applyPatterns(model.DocTypeAcquisitionPlan, passages)

		assert.Equal(t, "FFP", bundle["contract_type"])
		assert.Equal(t, "none", bundle["small_business_setaside"])
		assert.Equal(t, "2027-03-01", bundle["ioc_date"])
	})

	t.Run("First match in passage order wins for conflicting values", func(t *testing.T) {
		passages := []*model.Passage{
			passage("ranked-first", "Total estimated cost: $2,847,500."),
			passage("ranked-second", "Total estimated cost: $9,999,999."),
		}

		bundle := applyPatterns(model.DocTypeCostEstimate, passages)

		assert.Equal(t, float64(2847500), bundle["total_cost"], "Expected the value from the most relevant passage to win")
	})

	t.Run("Keyword match picks the earliest variant occurrence", func(t *testing.T) {
		passages := []*model.Passage{
			passage("plan", "A cost plus fixed fee arrangement was considered, but a firm fixed price contract was rejected."),
		}

		bundle := applyPatterns(model.DocTypeAcquisitionPlan, passages)

		assert.Equal(t, "CPFF", bundle["contract_type"], "Expected the keyword occurring first in the text to win")
	})

	t.Run("No passages yields an empty bundle", func(t *testing.T) {
		bundle := applyPatterns(model.DocTypeCostEstimate, nil)
		assert.Empty(t, bundle)
	})

	t.Run("Unmatched patterns leave keys absent", func(t *testing.T) {
		passages := []*model.Passage{
			passage("unrelated", "This passage talks about something else entirely."),
		}

		bundle := applyPatterns(model.DocTypeCostEstimate, passages)
		_, ok := bundle["total_cost"]
		assert.False(t, ok, "Expected no value instead of a guess")
	})
}

func TestNormalizeNumber(t *testing.T) {
	cases := []struct {
		name  string
		in    string
		want  float64
		valid bool
	}{
		{"Plain integer", "42", 42, true},
		{"Currency with separators", "$2,847,500", 2847500, true},
		{"Currency with space", "$ 1,000", 1000, true},
		{"Percent", "80%", 80, true},
		{"Decimal", "12.5", 12.5, true},
		{"Thousands suffix", "$45K", 45000, true},
		{"Millions suffix", "$2.5M", 2500000, true},
		{"Billions suffix", "$1B", 1000000000, true},
		{"Garbage", "about right", 0, false},
		{"Empty", "", 0, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := NormalizeNumber(c.in)
			assert.Equal(t, c.valid, ok)
			if c.valid {
				assert.Equal(t, c.want, got)
			}
		})
	}
}

func TestNormalizeDate(t *testing.T) {
	cases := []struct {
		name  string
		in    string
		want  string
		valid bool
	}{
		{"ISO date", "2027-03-01", "2027-03-01", true},
		{"Long form", "March 1, 2027", "2027-03-01", true},
		{"Slash form", "3/1/2027", "2027-03-01", true},
		{"Padded slash form", "03/01/2027", "2027-03-01", true},
		{"Not a date", "next spring", "", false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := NormalizeDate(c.in)
			assert.Equal(t, c.valid, ok)
			if c.valid {
				assert.Equal(t, c.want, got)
			}
		})
	}
}

func TestSchemaFor(t *testing.T) {
	t.Run("Every document type has a schema", func(t *testing.T) {
		for _, docType := range model.AllDocumentTypes() {
			schema := SchemaFor(docType)
			require.NotEmpty(t, schema, "Expected a schema for %v", docType)
		}
	})

	t.Run("Returned schema is a copy", func(t *testing.T) {
		schema := SchemaFor(model.DocTypeCostEstimate)
		schema["injected"] = TypeString

		fresh := SchemaFor(model.DocTypeCostEstimate)
		_, ok := fresh["injected"]
		assert.False(t, ok, "Expected mutations to not leak into the table")
	})
}
