package docpipe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/docpipe/core/extract"
	"github.com/siherrmann/docpipe/core/generate"
	"github.com/siherrmann/docpipe/core/populate"
	"github.com/siherrmann/docpipe/core/retrieve"
	"github.com/siherrmann/docpipe/core/schedule"
	"github.com/siherrmann/docpipe/core/xref"
	"github.com/siherrmann/docpipe/database"
	"github.com/siherrmann/docpipe/helper"
	"github.com/siherrmann/docpipe/model"
	loadSql "github.com/siherrmann/docpipe/sql"
)

// DocPipe provides a unified interface to the document generation pipeline:
// reference material storage and retrieval, fact extraction, cross-reference
// resolution and dependency-aware batch scheduling.
type DocPipe struct {
	DB        *helper.Database
	Records   *database.RecordsDBHandler
	Tasks     *database.TasksDBHandler
	Passages  *database.PassagesDBHandler
	Graph     *xref.ReferenceGraph
	Resolver  *xref.Resolver
	Extractor *extract.Extractor
	Scheduler *schedule.Scheduler
	Retriever retrieve.Retriever // Optional, set via SetRetriever or UseDefaultRetriever
	Generator generate.Generator // Optional, set via SetGenerator
	// Field overrides per document type, tried before any extracted fact
	FieldConfig map[model.DocumentType]map[string]string
	config      model.PipeConfig
	embed       retrieve.EmbedFunc
	log         *slog.Logger
}

// NewDocPipe creates a DocPipe instance with all handlers initialized.
func NewDocPipe(dbConfig *helper.DatabaseConfiguration, pipeConfig model.PipeConfig, embeddingDim int) (*DocPipe, error) {
	// Logger
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	// Initialize database
	db := helper.NewDatabase("docpipe", dbConfig, logger)
	err := loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	// force=false to not reload if functions already exist
	records, err := database.NewRecordsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create records handler", err)
	}

	tasks, err := database.NewTasksDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create tasks handler", err)
	}

	passages, err := database.NewPassagesDBHandler(db, embeddingDim, false)
	if err != nil {
		return nil, helper.NewError("create passages handler", err)
	}

	graph := xref.DefaultReferenceGraph()
	resolver, err := xref.NewResolver(graph, records, logger)
	if err != nil {
		return nil, helper.NewError("create resolver", err)
	}

	pipe := &DocPipe{
		DB:          db,
		Records:     records,
		Tasks:       tasks,
		Passages:    passages,
		Graph:       graph,
		Resolver:    resolver,
		FieldConfig: map[model.DocumentType]map[string]string{},
		config:      pipeConfig,
		log:         logger,
	}
	pipe.Extractor = extract.NewExtractor(nil, pipeConfig.StructuredTimeout, logger)

	scheduler, err := schedule.NewScheduler(graph, tasks, records, pipe.generateAndSave, pipeConfig, logger)
	if err != nil {
		return nil, helper.NewError("create scheduler", err)
	}
	pipe.Scheduler = scheduler

	return pipe, nil
}

// Close stops the scheduler and closes the database connection.
func (d *DocPipe) Close() error {
	if d.Scheduler != nil {
		d.Scheduler.Close()
	}
	if d.DB != nil && d.DB.Instance != nil {
		return d.DB.Instance.Close()
	}
	return nil
}

// SetGenerator sets the model client used for structured extraction and
// narrative generation.
func (d *DocPipe) SetGenerator(gen generate.Generator) {
	d.Generator = gen
	d.Extractor = extract.NewExtractor(gen, d.config.StructuredTimeout, d.log)
}

// SetRetriever sets the passage retriever used to fetch reference material.
func (d *DocPipe) SetRetriever(retriever retrieve.Retriever) {
	d.Retriever = retriever
}

// UseDefaultRetriever sets up vector retrieval over the stored passages
// using the all-MiniLM-L6-v2 embedding model (384 dimensions).
func (d *DocPipe) UseDefaultRetriever() error {
	embed, err := retrieve.DefaultEmbedder()
	if err != nil {
		return helper.NewError("create default embedder", err)
	}

	retriever, err := retrieve.NewVectorRetriever(d.Passages, embed)
	if err != nil {
		return helper.NewError("create vector retriever", err)
	}

	d.embed = embed
	d.Retriever = retriever
	return nil
}

// AddReferenceMaterial embeds and stores one span of reference material so
// later extractions can retrieve it. Requires a retriever with an embedder,
// see UseDefaultRetriever.
func (d *DocPipe) AddReferenceMaterial(sourceID string, content string, metadata model.Metadata) error {
	if d.embed == nil {
		return helper.NewError("add reference material", fmt.Errorf("no embedder set, use UseDefaultRetriever() first"))
	}

	embedding, err := d.embed(content)
	if err != nil {
		return helper.NewError("embed reference material", err)
	}

	return d.Passages.InsertPassage(sourceID, content, embedding, metadata)
}

// RequestBatch queues generation of the given document types for a program
// and returns the task id to poll via TaskStatus.
func (d *DocPipe) RequestBatch(ctx context.Context, program string, types []model.DocumentType, freeText string) (uuid.UUID, error) {
	return d.Scheduler.RequestBatch(ctx, program, types, freeText)
}

// TaskStatus returns the current state of a generation task.
func (d *DocPipe) TaskStatus(taskID uuid.UUID) (*model.GenerationTask, bool, error) {
	return d.Tasks.SelectTask(taskID)
}

// CancelTask stops scheduling of not yet started documents of a task.
func (d *DocPipe) CancelTask(taskID uuid.UUID) bool {
	return d.Scheduler.Cancel(taskID)
}

// CheckDependencies reports whether a document of docType could be
// generated for the program right now and which upstream types are missing.
func (d *DocPipe) CheckDependencies(docType model.DocumentType, program string) (*schedule.Readiness, error) {
	return d.Scheduler.CheckDependencies(docType, program)
}

// Resolve assembles the cross-reference context a document of docType would
// be generated with, including explicit markers for missing dependencies.
func (d *DocPipe) Resolve(ctx context.Context, docType model.DocumentType, program string) (model.ContextBundle, error) {
	return d.Resolver.Resolve(ctx, docType, program)
}

// Extract runs the fact extraction stages over the given passages without
// generating a document.
func (d *DocPipe) Extract(ctx context.Context, docType model.DocumentType, passages []*model.Passage) (model.FactBundle, []extract.Warning) {
	return d.Extractor.Extract(ctx, docType, passages)
}

// Impacted returns the records that reference the given record, i.e. the
// documents that would be stale if it were regenerated.
func (d *DocPipe) Impacted(recordID uuid.UUID) ([]*model.DocumentRecord, error) {
	return d.Records.SelectRecordsReferencing(recordID)
}

// SetFieldConfig sets explicit template field overrides for a document
// type. Configured values win over cross-referenced and extracted facts.
func (d *DocPipe) SetFieldConfig(docType model.DocumentType, config map[string]string) {
	d.FieldConfig[docType] = config
}

// GenerateDocument runs the full pipeline for one document: resolve
// cross-references, retrieve reference passages, extract facts, generate
// the narrative, populate the template and save the metadata record. It
// returns the stored record and the rendered document text.
func (d *DocPipe) GenerateDocument(ctx context.Context, docType model.DocumentType, program string, freeText string) (*model.DocumentRecord, string, error) {
	if !docType.Valid() {
		return nil, "", helper.NewError("document generation", fmt.Errorf("unknown document type %v", docType))
	}
	if program == "" {
		return nil, "", helper.NewError("document generation", fmt.Errorf("program is empty"))
	}

	// Cross-reference context is read once, before generation starts.
	refs, err := d.Resolver.Resolve(ctx, docType, program)
	if err != nil {
		return nil, "", helper.NewError("document generation", err)
	}

	passages := d.retrievePassages(ctx, docType, program, freeText)

	facts, warnings := d.Extractor.Extract(ctx, docType, passages)
	for _, warning := range warnings {
		d.log.Warn("extraction warning", slog.String("stage", warning.Stage), slog.String("message", warning.Message))
	}

	narrative, err := d.generateNarrative(ctx, docType, program, freeText, refs, facts)
	if err != nil {
		return nil, "", helper.NewError("document generation", err)
	}

	generatedAt := time.Now().UTC()
	fields := populate.Populate(docType, d.FieldConfig[docType], refs, facts)
	content := populate.Render(docType, program, generatedAt, fields, narrative)

	record := &model.DocumentRecord{
		DocumentType: docType,
		Program:      program,
		GeneratedAt:  generatedAt,
		FilePath:     fmt.Sprintf("%v/%v_%v.md", program, docType, generatedAt.Format("2006-01-02")),
		Facts:        facts,
		References:   pinReferences(refs),
	}
	err = d.Records.InsertRecord(record)
	if err != nil {
		return nil, "", helper.NewError("document generation", err)
	}

	return record, content, nil
}

// generateAndSave adapts GenerateDocument to the scheduler's generate
// function, dropping the rendered content.
func (d *DocPipe) generateAndSave(ctx context.Context, docType model.DocumentType, program string, freeText string) (*model.DocumentRecord, error) {
	record, _, err := d.GenerateDocument(ctx, docType, program, freeText)
	return record, err
}

// retrievePassages fetches reference material for the extraction stages.
// Retrieval failure degrades to an empty passage list, it never fails the
// document.
func (d *DocPipe) retrievePassages(ctx context.Context, docType model.DocumentType, program string, freeText string) []*model.Passage {
	if d.Retriever == nil {
		return nil
	}

	retrievalCtx, cancel := context.WithTimeout(ctx, d.config.RetrievalTimeout)
	defer cancel()

	passages, err := d.Retriever.Retrieve(retrievalCtx, retrievalQuery(docType, program, freeText), d.config.PassageCount)
	if err != nil {
		d.log.Warn("passage retrieval failed", slog.Any("documentType", docType), slog.String("program", program), slog.Any("error", err))
		return nil
	}
	return passages
}

// generateNarrative asks the model client for the narrative sections. A
// missing generator degrades to an empty narrative; a model error fails the
// document, as there is nothing useful to render without it.
func (d *DocPipe) generateNarrative(ctx context.Context, docType model.DocumentType, program string, freeText string, refs model.ContextBundle, facts model.FactBundle) (string, error) {
	if d.Generator == nil {
		return "", nil
	}

	narrativeCtx, cancel := context.WithTimeout(ctx, d.config.NarrativeTimeout)
	defer cancel()

	return d.Generator.GenerateNarrative(narrativeCtx, narrativePrompt(docType, program, freeText, refs, facts))
}

// pinReferences records which upstream record versions the document was
// generated against. Missing slots are not pinned.
func pinReferences(refs model.ContextBundle) model.References {
	pinned := model.References{}
	for docType, slot := range refs {
		if slot != nil && !slot.Missing {
			pinned[docType] = slot.RecordID
		}
	}
	return pinned
}

// retrievalQuery builds the passage search query for a document type.
func retrievalQuery(docType model.DocumentType, program string, freeText string) string {
	var b strings.Builder
	b.WriteString(docType.DisplayName())
	b.WriteString(" ")
	b.WriteString(program)
	if freeText != "" {
		b.WriteString(" ")
		b.WriteString(freeText)
	}
	return b.String()
}

// narrativePrompt builds the generation prompt from the program context,
// upstream summaries and extracted facts, in a fixed order so identical
// inputs produce identical prompts.
func narrativePrompt(docType model.DocumentType, program string, freeText string, refs model.ContextBundle, facts model.FactBundle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write the narrative sections of a %v for program %v.\n", docType.DisplayName(), program)
	if freeText != "" {
		fmt.Fprintf(&b, "\nAdditional direction:\n%v\n", freeText)
	}

	upstreams := make([]model.DocumentType, 0, len(refs))
	for _, upstream := range model.AllDocumentTypes() {
		if _, ok := refs[upstream]; ok {
			upstreams = append(upstreams, upstream)
		}
	}
	if len(upstreams) > 0 {
		b.WriteString("\nUpstream documents:\n")
		for _, upstream := range upstreams {
			slot := refs[upstream]
			if slot.Missing {
				fmt.Fprintf(&b, "- %v: missing (%v)\n", upstream.DisplayName(), slot.Reason)
				continue
			}
			fmt.Fprintf(&b, "- %v\n", slot.Summary)
		}
	}

	if len(facts) > 0 {
		b.WriteString("\nExtracted facts:\n")
		for _, key := range facts.Keys() {
			fmt.Fprintf(&b, "- %v: %v\n", key, facts[key])
		}
	}

	b.WriteString("\nUse the upstream facts and summaries verbatim where they apply. Note any missing upstream document explicitly instead of inventing its contents.")
	return b.String()
}
