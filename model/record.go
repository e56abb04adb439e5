package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/docpipe/helper"
)

// RecordNamespace is the UUID namespace for deterministic record ids.
// It must match the namespace constant used by the insert_record SQL function.
var RecordNamespace = uuid.MustParse("7d3f1b2a-9c4e-4f8a-b1d6-2e5a8c7f0d93")

// References maps an upstream document type to the id of the concrete record
// that was used when the downstream document was generated. Reference pinning
// is by id, not by "latest": regenerating the upstream document does not
// rewrite the references of documents that already exist.
type References map[DocumentType]uuid.UUID

// Value implements the driver.Valuer interface for database storage
func (r References) Value() (driver.Value, error) {
	return json.Marshal(r)
}

// Scan implements the sql.Scanner interface for database retrieval
func (r *References) Scan(value interface{}) error {
	if value == nil {
		*r = References{}
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return helper.NewError("byte assertion", errors.New("type assertion to []byte failed"))
	}

	return json.Unmarshal(b, r)
}

// DocumentRecord is the durable metadata record of one generated document.
// Records are append only: they are created when a document finishes
// generating and never mutated or deleted by the pipeline.
type DocumentRecord struct {
	ID           uuid.UUID    `json:"id"`
	Seq          int64        `json:"seq"` // insertion order, breaks generated_at ties
	DocumentType DocumentType `json:"document_type"`
	Program      string       `json:"program"`
	GeneratedAt  time.Time    `json:"generated_at"`
	FilePath     string       `json:"file_path"`
	Facts        FactBundle   `json:"facts"`
	References   References   `json:"references"`
	CreatedAt    time.Time    `json:"created_at"`
}

// NewRecordID derives the deterministic id for a record from its identifying
// fields. The sequence number distinguishes same-day regenerations of the
// same document type for the same program. The SQL layer computes the same
// SHA1 UUID via uuid_generate_v5, so ids agree wherever they are derived.
func NewRecordID(docType DocumentType, program string, generatedAt time.Time, sequence int64) uuid.UUID {
	name := fmt.Sprintf("%s|%s|%s|%d", docType, program, generatedAt.UTC().Format(time.RFC3339), sequence)
	return uuid.NewSHA1(RecordNamespace, []byte(name))
}
