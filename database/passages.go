package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/docpipe/helper"
	"github.com/siherrmann/docpipe/model"
	loadSql "github.com/siherrmann/docpipe/sql"
)

// PassagesDBHandlerFunctions defines the interface for reference passage database operations.
type PassagesDBHandlerFunctions interface {
	InsertPassage(sourceID string, content string, embedding []float32, metadata model.Metadata) error
	SelectPassagesBySimilarity(embedding []float32, topK int) ([]*model.Passage, error)
}

// PassagesDBHandler handles the reference passage corpus searched by vector
// similarity.
type PassagesDBHandler struct {
	db           *helper.Database
	embeddingDim int
}

// NewPassagesDBHandler creates a new passages database handler with the given
// embedding dimension. It initializes the database connection and loads
// passage-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewPassagesDBHandler(db *helper.Database, embeddingDim int, force bool) (*PassagesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if embeddingDim <= 0 {
		return nil, helper.NewError("embedding dimension validation", fmt.Errorf("embedding dimension must be positive"))
	}

	passagesDbHandler := &PassagesDBHandler{
		db:           db,
		embeddingDim: embeddingDim,
	}

	err := loadSql.LoadPassagesSql(passagesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load passages sql", err)
	}

	err = passagesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized PassagesDBHandler")

	return passagesDbHandler, nil
}

// CreateTable creates the 'reference_passages' table in the database.
// If the table already exists, it does not create it again.
func (h *PassagesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_passages($1);`, h.embeddingDim)
	if err != nil {
		log.Panicf("error initializing reference_passages table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table reference_passages")

	return nil
}

// InsertPassage inserts a new reference passage with its embedding.
func (h *PassagesDBHandler) InsertPassage(sourceID string, content string, embedding []float32, metadata model.Metadata) error {
	_, err := h.db.Instance.Exec(
		`SELECT insert_passage($1, $2, $3, $4)`,
		sourceID,
		content,
		pgvector.NewVector(embedding),
		metadata,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// SelectPassagesBySimilarity returns the topK passages most similar to the
// query embedding, most similar first.
func (h *PassagesDBHandler) SelectPassagesBySimilarity(embedding []float32, topK int) ([]*model.Passage, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_passages_by_similarity($1, $2)`,
		pgvector.NewVector(embedding),
		topK,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var passages []*model.Passage
	for rows.Next() {
		var id int64
		passage := &model.Passage{}
		err := rows.Scan(
			&id,
			&passage.SourceID,
			&passage.Text,
			&passage.Metadata,
			&passage.Score,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		passages = append(passages, passage)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return passages, nil
}
