package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/docpipe/helper"
	"github.com/siherrmann/docpipe/model"
	loadSql "github.com/siherrmann/docpipe/sql"
)

// RecordsDBHandlerFunctions defines the interface for document record database operations.
type RecordsDBHandlerFunctions interface {
	InsertRecord(record *model.DocumentRecord) error
	SelectRecord(id uuid.UUID) (*model.DocumentRecord, bool, error)
	SelectLatestRecord(docType model.DocumentType, program string) (*model.DocumentRecord, bool, error)
	SelectRecordsReferencing(id uuid.UUID) ([]*model.DocumentRecord, error)
	SelectRecordsByProgram(program string, lastCreatedAt *time.Time, limit int) ([]*model.DocumentRecord, error)
}

// RecordsDBHandler handles the append-only document metadata store.
type RecordsDBHandler struct {
	db *helper.Database
}

// NewRecordsDBHandler creates a new records database handler.
// It initializes the database connection and loads record-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewRecordsDBHandler(db *helper.Database, force bool) (*RecordsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	recordsDbHandler := &RecordsDBHandler{
		db: db,
	}

	err := loadSql.LoadRecordsSql(recordsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load records sql", err)
	}

	err = recordsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized RecordsDBHandler")

	return recordsDbHandler, nil
}

// CreateTable creates the 'document_records' table in the database.
// If the table already exists, it does not create it again.
// It also creates all necessary indexes.
func (h *RecordsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_records();`)
	if err != nil {
		log.Panicf("error initializing document_records table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table document_records")

	return nil
}

// InsertRecord appends a new document record. The id and sequence are
// computed inside the insert_record SQL function in one atomic append, so
// saves never overwrite and retries produce distinct ids without corrupting
// existing rows.
func (h *RecordsDBHandler) InsertRecord(record *model.DocumentRecord) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_record($1, $2, $3, $4, $5, $6)`,
		record.DocumentType,
		record.Program,
		record.GeneratedAt,
		record.FilePath,
		record.Facts,
		record.References,
	)

	err := scanRecord(row, record)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectRecord retrieves a record by id. Absence is reported through the
// second return value, not as an error.
func (h *RecordsDBHandler) SelectRecord(id uuid.UUID) (*model.DocumentRecord, bool, error) {
	record := &model.DocumentRecord{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_record($1)`,
		id,
	)

	err := scanRecord(row, record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, helper.NewError("scan", err)
	}

	return record, true, nil
}

// SelectLatestRecord retrieves the record with the greatest generated_at for
// the (documentType, program) pair, ties broken by insertion order. Absence
// is reported through the second return value so callers can apply a
// fallback without error handling.
func (h *RecordsDBHandler) SelectLatestRecord(docType model.DocumentType, program string) (*model.DocumentRecord, bool, error) {
	record := &model.DocumentRecord{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_latest_record($1, $2)`,
		docType,
		program,
	)

	err := scanRecord(row, record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, helper.NewError("scan", err)
	}

	return record, true, nil
}

// SelectRecordsReferencing returns every record whose references pin the
// given record id. Used for cascading-impact queries.
func (h *RecordsDBHandler) SelectRecordsReferencing(id uuid.UUID) ([]*model.DocumentRecord, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_records_referencing($1)`,
		id,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// SelectRecordsByProgram retrieves a program's records newest first with
// keyset pagination.
func (h *RecordsDBHandler) SelectRecordsByProgram(program string, lastCreatedAt *time.Time, limit int) ([]*model.DocumentRecord, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_records_by_program($1, $2, $3)`,
		program,
		lastCreatedAt,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner, record *model.DocumentRecord) error {
	return row.Scan(
		&record.ID,
		&record.Seq,
		&record.DocumentType,
		&record.Program,
		&record.GeneratedAt,
		&record.FilePath,
		&record.Facts,
		&record.References,
		&record.CreatedAt,
	)
}

func scanRecords(rows *sql.Rows) ([]*model.DocumentRecord, error) {
	var records []*model.DocumentRecord
	for rows.Next() {
		record := &model.DocumentRecord{}
		err := scanRecord(rows, record)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		records = append(records, record)
	}

	err := rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return records, nil
}
