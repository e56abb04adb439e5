package xref

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/siherrmann/docpipe/helper"
	"github.com/siherrmann/docpipe/model"
)

// RecordStore is the slice of the metadata store the resolver needs.
// Implemented by database.RecordsDBHandler.
type RecordStore interface {
	SelectLatestRecord(docType model.DocumentType, program string) (*model.DocumentRecord, bool, error)
}

// Resolver assembles the cross-reference context for a document about to be
// generated. It reads the latest upstream record per dependency edge once,
// at resolution time; records saved afterwards do not affect the bundle.
type Resolver struct {
	graph   *ReferenceGraph
	records RecordStore
	log     *slog.Logger
}

// NewResolver creates a resolver over the given dependency graph and record
// store.
func NewResolver(graph *ReferenceGraph, records RecordStore, logger *slog.Logger) (*Resolver, error) {
	if graph == nil {
		return nil, helper.NewError("resolver initialization", fmt.Errorf("reference graph is nil"))
	}
	if records == nil {
		return nil, helper.NewError("resolver initialization", fmt.Errorf("record store is nil"))
	}
	if logger == nil {
		logger = slog.New(helper.NewPrettyHandler(os.Stdout, helper.PrettyHandlerOptions{}))
	}

	return &Resolver{
		graph:   graph,
		records: records,
		log:     logger,
	}, nil
}

// Resolve returns one context slot per upstream dependency of docType. A
// dependency with no stored record, or whose lookup fails, yields an
// explicit missing marker instead of an error; downstream consumers decide
// how to degrade. Resolving the same unchanged store state twice returns
// identical bundles.
func (r *Resolver) Resolve(ctx context.Context, docType model.DocumentType, program string) (model.ContextBundle, error) {
	if !r.graph.Has(docType) {
		return nil, helper.NewError("context resolution", fmt.Errorf("unknown document type %v", docType))
	}
	if err := ctx.Err(); err != nil {
		return nil, helper.NewError("context resolution", err)
	}

	bundle := model.ContextBundle{}
	for _, upstream := range r.graph.InEdges(docType) {
		record, found, err := r.records.SelectLatestRecord(upstream, program)
		if err != nil {
			r.log.Warn("upstream lookup failed", slog.Any("documentType", upstream), slog.String("program", program), slog.Any("error", err))
			bundle[upstream] = &model.UpstreamContext{
				Missing: true,
				Reason:  fmt.Sprintf("lookup of latest %v record failed", upstream),
			}
			continue
		}
		if !found {
			bundle[upstream] = &model.UpstreamContext{
				Missing: true,
				Reason:  fmt.Sprintf("no %v document has been generated for program %v", upstream, program),
			}
			continue
		}

		bundle[upstream] = &model.UpstreamContext{
			RecordID: record.ID,
			Facts:    record.Facts.Clone(),
			Summary:  Summarize(record),
		}
	}

	return bundle, nil
}
