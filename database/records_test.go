package database

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/docpipe/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordsNewRecordsDBHandler(t *testing.T) {
	database := initDB(t)

	t.Run("Valid call NewRecordsDBHandler", func(t *testing.T) {
		recordsDbHandler, err := NewRecordsDBHandler(database, true)
		assert.NoError(t, err, "Expected NewRecordsDBHandler to not return an error")
		require.NotNil(t, recordsDbHandler, "Expected NewRecordsDBHandler to return a non-nil instance")
		require.NotNil(t, recordsDbHandler.db, "Expected NewRecordsDBHandler to have a non-nil database instance")
		require.NotNil(t, recordsDbHandler.db.Instance, "Expected NewRecordsDBHandler to have a non-nil database connection instance")
	})

	t.Run("Invalid call NewRecordsDBHandler with nil database", func(t *testing.T) {
		_, err := NewRecordsDBHandler(nil, false)
		assert.Error(t, err, "Expected error when creating RecordsDBHandler with nil database")
		assert.Contains(t, err.Error(), "database connection is nil", "Expected specific error message for nil database connection")
	})
}

func TestRecordsInsert(t *testing.T) {
	database := initDB(t)

	recordsDbHandler, err := NewRecordsDBHandler(database, true)
	require.NoError(t, err, "Expected NewRecordsDBHandler to not return an error")

	generatedAt := time.Date(2026, 8, 14, 10, 0, 0, 0, time.UTC)

	t.Run("Insert record", func(t *testing.T) {
		record := &model.DocumentRecord{
			DocumentType: model.DocTypeMarketResearch,
			Program:      "Aurora",
			GeneratedAt:  generatedAt,
			FilePath:     "Aurora/market_research_2026-08-14.md",
			Facts:        model.FactBundle{"vendor_count": float64(14)},
		}

		err := recordsDbHandler.InsertRecord(record)
		assert.NoError(t, err, "Expected InsertRecord to not return an error")
		assert.NotEqual(t, uuid.Nil, record.ID, "Expected inserted record to have an id")
		assert.NotZero(t, record.Seq, "Expected inserted record to have a sequence number")
		assert.WithinDuration(t, record.CreatedAt, time.Now(), 2*time.Second, "Expected CreatedAt to be set")
	})

	t.Run("Insert derives deterministic id", func(t *testing.T) {
		record := &model.DocumentRecord{
			DocumentType: model.DocTypeCostEstimate,
			Program:      "Aurora",
			GeneratedAt:  generatedAt,
			Facts:        model.FactBundle{"total_cost": float64(2847500)},
		}

		err := recordsDbHandler.InsertRecord(record)
		require.NoError(t, err, "Expected InsertRecord to not return an error")

		// First record of the day for this pair, so same-day sequence 0
		expected := model.NewRecordID(model.DocTypeCostEstimate, "Aurora", generatedAt, 0)
		assert.Equal(t, expected, record.ID, "Expected the database to derive the same id as NewRecordID")
	})

	t.Run("Same day regeneration gets a distinct id", func(t *testing.T) {
		first := &model.DocumentRecord{
			DocumentType: model.DocTypeStatementOfWork,
			Program:      "Aurora",
			GeneratedAt:  generatedAt,
		}
		second := &model.DocumentRecord{
			DocumentType: model.DocTypeStatementOfWork,
			Program:      "Aurora",
			GeneratedAt:  generatedAt,
		}

		require.NoError(t, recordsDbHandler.InsertRecord(first))
		require.NoError(t, recordsDbHandler.InsertRecord(second))

		assert.NotEqual(t, first.ID, second.ID, "Expected same-day regenerations to get distinct ids")
		assert.Greater(t, second.Seq, first.Seq, "Expected sequence numbers to reflect insertion order")
	})
}

func TestRecordsGet(t *testing.T) {
	database := initDB(t)

	recordsDbHandler, err := NewRecordsDBHandler(database, true)
	require.NoError(t, err)

	record := &model.DocumentRecord{
		DocumentType: model.DocTypeMarketResearch,
		Program:      "Borealis",
		GeneratedAt:  time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC),
		Facts:        model.FactBundle{"market_maturity": "mature"},
	}
	err = recordsDbHandler.InsertRecord(record)
	require.NoError(t, err)

	t.Run("Select existing record", func(t *testing.T) {
		retrieved, found, err := recordsDbHandler.SelectRecord(record.ID)
		assert.NoError(t, err, "Expected SelectRecord to not return an error")
		assert.True(t, found, "Expected record to be found")
		require.NotNil(t, retrieved)
		assert.Equal(t, record.ID, retrieved.ID, "Expected record ids to match")
		assert.Equal(t, record.DocumentType, retrieved.DocumentType, "Expected document types to match")
		assert.Equal(t, "mature", retrieved.Facts["market_maturity"], "Expected facts to round-trip")
	})

	t.Run("Select missing record reports absence without error", func(t *testing.T) {
		retrieved, found, err := recordsDbHandler.SelectRecord(uuid.New())
		assert.NoError(t, err, "Expected absence to not be an error")
		assert.False(t, found, "Expected record to not be found")
		assert.Nil(t, retrieved)
	})
}

func TestRecordsSelectLatest(t *testing.T) {
	database := initDB(t)

	recordsDbHandler, err := NewRecordsDBHandler(database, true)
	require.NoError(t, err)

	program := "Cascade"

	t.Run("Latest of empty store reports absence", func(t *testing.T) {
		retrieved, found, err := recordsDbHandler.SelectLatestRecord(model.DocTypeCostEstimate, program)
		assert.NoError(t, err)
		assert.False(t, found, "Expected no record for an empty store")
		assert.Nil(t, retrieved)
	})

	t.Run("Latest returns the record with the greatest generated_at", func(t *testing.T) {
		older := &model.DocumentRecord{
			DocumentType: model.DocTypeCostEstimate,
			Program:      program,
			GeneratedAt:  time.Date(2026, 8, 10, 10, 0, 0, 0, time.UTC),
			Facts:        model.FactBundle{"total_cost": float64(1000000)},
		}
		newer := &model.DocumentRecord{
			DocumentType: model.DocTypeCostEstimate,
			Program:      program,
			GeneratedAt:  time.Date(2026, 8, 12, 10, 0, 0, 0, time.UTC),
			Facts:        model.FactBundle{"total_cost": float64(1200000)},
		}

		require.NoError(t, recordsDbHandler.InsertRecord(older))
		require.NoError(t, recordsDbHandler.InsertRecord(newer))

		retrieved, found, err := recordsDbHandler.SelectLatestRecord(model.DocTypeCostEstimate, program)
		assert.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, newer.ID, retrieved.ID, "Expected the newer record to win")

		// The older record is still stored, the store is append only
		_, found, err = recordsDbHandler.SelectRecord(older.ID)
		assert.NoError(t, err)
		assert.True(t, found, "Expected the older record to still exist")
	})

	t.Run("Latest breaks generated_at ties by insertion order", func(t *testing.T) {
		generatedAt := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
		first := &model.DocumentRecord{
			DocumentType: model.DocTypeAcquisitionPlan,
			Program:      program,
			GeneratedAt:  generatedAt,
		}
		second := &model.DocumentRecord{
			DocumentType: model.DocTypeAcquisitionPlan,
			Program:      program,
			GeneratedAt:  generatedAt,
		}

		require.NoError(t, recordsDbHandler.InsertRecord(first))
		require.NoError(t, recordsDbHandler.InsertRecord(second))

		retrieved, found, err := recordsDbHandler.SelectLatestRecord(model.DocTypeAcquisitionPlan, program)
		assert.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, second.ID, retrieved.ID, "Expected the later insertion to win the tie")
	})

	t.Run("Latest is scoped per program", func(t *testing.T) {
		other := &model.DocumentRecord{
			DocumentType: model.DocTypeCostEstimate,
			Program:      "OtherProgram",
			GeneratedAt:  time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
		}
		require.NoError(t, recordsDbHandler.InsertRecord(other))

		retrieved, found, err := recordsDbHandler.SelectLatestRecord(model.DocTypeCostEstimate, program)
		assert.NoError(t, err)
		require.True(t, found)
		assert.NotEqual(t, other.ID, retrieved.ID, "Expected records of other programs to not leak")
	})
}

func TestRecordsSelectReferencing(t *testing.T) {
	database := initDB(t)

	recordsDbHandler, err := NewRecordsDBHandler(database, true)
	require.NoError(t, err)

	program := "Dakota"

	upstream := &model.DocumentRecord{
		DocumentType: model.DocTypeMarketResearch,
		Program:      program,
		GeneratedAt:  time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, recordsDbHandler.InsertRecord(upstream))

	referencing := &model.DocumentRecord{
		DocumentType: model.DocTypeCostEstimate,
		Program:      program,
		GeneratedAt:  time.Date(2026, 8, 2, 8, 0, 0, 0, time.UTC),
		References:   model.References{model.DocTypeMarketResearch: upstream.ID},
	}
	require.NoError(t, recordsDbHandler.InsertRecord(referencing))

	unrelated := &model.DocumentRecord{
		DocumentType: model.DocTypeStatementOfWork,
		Program:      program,
		GeneratedAt:  time.Date(2026, 8, 3, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, recordsDbHandler.InsertRecord(unrelated))

	t.Run("Select records referencing an id", func(t *testing.T) {
		records, err := recordsDbHandler.SelectRecordsReferencing(upstream.ID)
		assert.NoError(t, err)
		require.Len(t, records, 1, "Expected exactly one referencing record")
		assert.Equal(t, referencing.ID, records[0].ID)
		assert.Equal(t, upstream.ID, records[0].References[model.DocTypeMarketResearch], "Expected pinned reference to round-trip")
	})

	t.Run("Select records referencing an unreferenced id", func(t *testing.T) {
		records, err := recordsDbHandler.SelectRecordsReferencing(unrelated.ID)
		assert.NoError(t, err)
		assert.Empty(t, records, "Expected no referencing records")
	})
}

func TestRecordsSelectByProgram(t *testing.T) {
	database := initDB(t)

	recordsDbHandler, err := NewRecordsDBHandler(database, true)
	require.NoError(t, err)

	program := "Everglade"
	for i := 0; i < 5; i++ {
		record := &model.DocumentRecord{
			DocumentType: model.DocTypeMarketResearch,
			Program:      program,
			GeneratedAt:  time.Date(2026, 8, 1+i, 8, 0, 0, 0, time.UTC),
		}
		require.NoError(t, recordsDbHandler.InsertRecord(record))
	}

	t.Run("Page through program records newest first", func(t *testing.T) {
		firstPage, err := recordsDbHandler.SelectRecordsByProgram(program, nil, 3)
		assert.NoError(t, err)
		require.Len(t, firstPage, 3, "Expected a full first page")

		last := firstPage[len(firstPage)-1].CreatedAt
		secondPage, err := recordsDbHandler.SelectRecordsByProgram(program, &last, 3)
		assert.NoError(t, err)
		assert.LessOrEqual(t, len(secondPage), 2, "Expected the remainder on the second page")

		seen := map[uuid.UUID]bool{}
		for _, record := range append(firstPage, secondPage...) {
			assert.False(t, seen[record.ID], "Expected no record to appear on both pages")
			seen[record.ID] = true
		}
	})
}
