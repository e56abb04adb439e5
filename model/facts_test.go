package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactBundleScan(t *testing.T) {
	t.Run("Scan JSONB bytes", func(t *testing.T) {
		var bundle FactBundle
		err := bundle.Scan([]byte(`{"total_cost": 2847500, "contract_type": "FFP"}`))
		require.NoError(t, err)

		cost, ok := bundle.Number("total_cost")
		assert.True(t, ok)
		assert.Equal(t, float64(2847500), cost)

		contractType, ok := bundle.String("contract_type")
		assert.True(t, ok)
		assert.Equal(t, "FFP", contractType)
	})

	t.Run("Scan nil yields empty bundle", func(t *testing.T) {
		var bundle FactBundle
		err := bundle.Scan(nil)
		require.NoError(t, err)
		assert.Empty(t, bundle)
	})

	t.Run("Scan invalid type fails", func(t *testing.T) {
		var bundle FactBundle
		err := bundle.Scan(42)
		assert.Error(t, err)
	})
}

func TestFactBundleAccessors(t *testing.T) {
	bundle := FactBundle{
		"total_cost":    float64(1000000),
		"contract_type": "CPFF",
		"key_vendors":   []interface{}{"Acme", "Globex"},
	}

	t.Run("Keys are sorted", func(t *testing.T) {
		assert.Equal(t, []string{"contract_type", "key_vendors", "total_cost"}, bundle.Keys())
	})

	t.Run("Number rejects non-numeric values", func(t *testing.T) {
		_, ok := bundle.Number("contract_type")
		assert.False(t, ok)
		_, ok = bundle.Number("unknown")
		assert.False(t, ok)
	})

	t.Run("String rejects non-string values", func(t *testing.T) {
		_, ok := bundle.String("total_cost")
		assert.False(t, ok)
	})

	t.Run("Clone is independent of the original", func(t *testing.T) {
		clone := bundle.Clone()
		clone["total_cost"] = float64(0)
		cost, _ := bundle.Number("total_cost")
		assert.Equal(t, float64(1000000), cost, "Expected the original to stay untouched")
	})
}

func TestGenerationTaskProgress(t *testing.T) {
	t.Run("Progress counts terminal documents", func(t *testing.T) {
		task := &GenerationTask{
			RequestedTypes: TypeList{DocTypeMarketResearch, DocTypeCostEstimate, DocTypeAcquisitionPlan},
			PerDocument: ProgressMap{
				DocTypeMarketResearch:  {Status: DocumentStatusDone},
				DocTypeCostEstimate:    {Status: DocumentStatusFailed, Error: "model error"},
				DocTypeAcquisitionPlan: {Status: DocumentStatusRunning},
			},
		}
		assert.Equal(t, 67, task.Progress(), "Expected failed documents to count towards progress")
	})

	t.Run("Progress of empty task is zero", func(t *testing.T) {
		task := &GenerationTask{}
		assert.Equal(t, 0, task.Progress())
	})
}
