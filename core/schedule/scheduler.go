package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/siherrmann/docpipe/core/xref"
	"github.com/siherrmann/docpipe/helper"
	"github.com/siherrmann/docpipe/model"
)

// TaskStore is the slice of the task store the scheduler needs.
// Implemented by database.TasksDBHandler.
type TaskStore interface {
	InsertTask(task *model.GenerationTask) error
	SelectTask(id uuid.UUID) (*model.GenerationTask, bool, error)
	UpdateTaskStatus(id uuid.UUID, status model.TaskStatus, taskErr string) (*model.GenerationTask, error)
	UpdateTaskDocument(id uuid.UUID, docType model.DocumentType, status model.DocumentStatus, docErr string, progressPercent int) (*model.GenerationTask, error)
}

// RecordChecker looks up the latest stored record per document type, used
// for readiness checks against dependencies outside the requested batch.
// Implemented by database.RecordsDBHandler.
type RecordChecker interface {
	SelectLatestRecord(docType model.DocumentType, program string) (*model.DocumentRecord, bool, error)
}

// GenerateFunc produces and persists one document. The scheduler calls it
// only once all dependencies of docType are satisfied.
type GenerateFunc func(ctx context.Context, docType model.DocumentType, program string, freeText string) (*model.DocumentRecord, error)

// Readiness is the result of a dependency check for a single document type.
type Readiness struct {
	CanGenerate       bool                 `json:"can_generate"`
	MissingTypes      []model.DocumentType `json:"missing_types,omitempty"`
	EstimatedDuration time.Duration        `json:"estimated_duration"`
}

// Scheduler runs batch generation requests over the document dependency
// graph. Documents are generated layer by layer: independent siblings run
// concurrently on a bounded worker pool, downstream types wait until their
// upstream records are saved. A single document failure never aborts the
// batch; only a scheduler fault marks the task itself failed.
type Scheduler struct {
	graph    *xref.ReferenceGraph
	tasks    TaskStore
	records  RecordChecker
	generate GenerateFunc
	pool     *ants.Pool
	estimate time.Duration
	log      *slog.Logger

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
}

// NewScheduler creates a scheduler with a worker pool of config.Workers.
// The dependency graph is validated here so a broken dependency table
// surfaces at startup instead of inside a batch.
func NewScheduler(graph *xref.ReferenceGraph, tasks TaskStore, records RecordChecker, generate GenerateFunc, config model.PipeConfig, logger *slog.Logger) (*Scheduler, error) {
	if graph == nil {
		return nil, helper.NewError("scheduler initialization", fmt.Errorf("reference graph is nil"))
	}
	if err := graph.Validate(); err != nil {
		return nil, helper.NewError("scheduler initialization", err)
	}
	if tasks == nil {
		return nil, helper.NewError("scheduler initialization", fmt.Errorf("task store is nil"))
	}
	if records == nil {
		return nil, helper.NewError("scheduler initialization", fmt.Errorf("record store is nil"))
	}
	if generate == nil {
		return nil, helper.NewError("scheduler initialization", fmt.Errorf("generate function is nil"))
	}
	if logger == nil {
		logger = slog.New(helper.NewPrettyHandler(os.Stdout, helper.PrettyHandlerOptions{}))
	}

	workers := config.Workers
	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, helper.NewError("worker pool creation", err)
	}

	estimate := config.EstimatePerDocument
	if estimate <= 0 {
		estimate = 45 * time.Second
	}

	return &Scheduler{
		graph:    graph,
		tasks:    tasks,
		records:  records,
		generate: generate,
		pool:     pool,
		estimate: estimate,
		log:      logger,
		cancels:  map[uuid.UUID]context.CancelFunc{},
	}, nil
}

// Close stops the worker pool. Batches already running are cancelled.
func (s *Scheduler) Close() {
	s.mu.Lock()
	for _, cancel := range s.cancels {
		cancel()
	}
	s.mu.Unlock()
	s.pool.Release()
}

// CheckDependencies reports whether a single document of docType could be
// generated right now, which upstream types are missing from the store and
// a duration estimate for the generation.
func (s *Scheduler) CheckDependencies(docType model.DocumentType, program string) (*Readiness, error) {
	if !s.graph.Has(docType) {
		return nil, helper.NewError("dependency check", fmt.Errorf("unknown document type %v", docType))
	}

	readiness := &Readiness{CanGenerate: true, EstimatedDuration: s.estimate}
	for _, upstream := range s.graph.InEdges(docType) {
		_, found, err := s.records.SelectLatestRecord(upstream, program)
		if err != nil {
			return nil, helper.NewError("dependency check", err)
		}
		if !found {
			readiness.CanGenerate = false
			readiness.MissingTypes = append(readiness.MissingTypes, upstream)
		}
	}

	return readiness, nil
}

// RequestBatch validates and queues a batch generation request and starts
// it in the background. Requested types are deduplicated; the returned task
// ID can be polled via the task store and cancelled via Cancel.
func (s *Scheduler) RequestBatch(_ context.Context, program string, requested []model.DocumentType, freeText string) (uuid.UUID, error) {
	if program == "" {
		return uuid.Nil, helper.NewError("batch request", fmt.Errorf("program is empty"))
	}
	if len(requested) == 0 {
		return uuid.Nil, helper.NewError("batch request", fmt.Errorf("no document types requested"))
	}

	seen := map[model.DocumentType]bool{}
	var types model.TypeList
	for _, docType := range requested {
		if !s.graph.Has(docType) {
			return uuid.Nil, helper.NewError("batch request", fmt.Errorf("unknown document type %v", docType))
		}
		if !seen[docType] {
			seen[docType] = true
			types = append(types, docType)
		}
	}

	task := &model.GenerationTask{
		Program:        program,
		RequestedTypes: types,
		Status:         model.TaskStatusQueued,
	}
	if err := s.tasks.InsertTask(task); err != nil {
		return uuid.Nil, helper.NewError("batch request", err)
	}

	// Batch execution outlives the request context; cancellation goes
	// through Cancel instead.
	batchCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[task.ID] = cancel
	s.mu.Unlock()

	go s.runBatch(batchCtx, task.ID, program, types, freeText)

	return task.ID, nil
}

// Cancel stops scheduling of not yet started documents of the task.
// Documents already running finish normally. It reports whether the task
// was still active.
func (s *Scheduler) Cancel(taskID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel, ok := s.cancels[taskID]
	if ok {
		cancel()
	}
	return ok
}

func (s *Scheduler) runBatch(ctx context.Context, taskID uuid.UUID, program string, requested model.TypeList, freeText string) {
	defer func() {
		s.mu.Lock()
		if cancel, ok := s.cancels[taskID]; ok {
			cancel()
			delete(s.cancels, taskID)
		}
		s.mu.Unlock()
	}()

	if _, err := s.tasks.UpdateTaskStatus(taskID, model.TaskStatusRunning, ""); err != nil {
		s.failTask(taskID, helper.NewError("task status update", err))
		return
	}

	layers, err := s.graph.Layers(requested)
	if err != nil {
		s.failTask(taskID, helper.NewError("batch scheduling", err))
		return
	}

	run := &batchRun{
		scheduler: s,
		taskID:    taskID,
		program:   program,
		requested: requested,
		done:      map[model.DocumentType]model.DocumentStatus{},
	}

	cancelled := false
	for _, layer := range layers {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		var wg sync.WaitGroup
		for _, docType := range layer {
			missing := run.missingDependencies(docType)
			if len(missing) > 0 {
				run.markDocument(docType, model.DocumentStatusFailed, fmt.Sprintf("dependency missing: %v", missing))
				continue
			}

			docType := docType
			wg.Add(1)
			err := s.pool.Submit(func() {
				defer wg.Done()
				run.generateOne(ctx, docType, freeText)
			})
			if err != nil {
				wg.Done()
				run.markDocument(docType, model.DocumentStatusFailed, fmt.Sprintf("worker submission failed: %v", err))
			}
		}
		wg.Wait()
	}

	if cancelled {
		for _, docType := range requested {
			if _, terminal := run.status(docType); !terminal {
				run.markDocument(docType, model.DocumentStatusFailed, "cancelled before start")
			}
		}
	}

	if _, err := s.tasks.UpdateTaskStatus(taskID, model.TaskStatusCompleted, ""); err != nil {
		s.log.Error("task status update failed", slog.Any("taskId", taskID), slog.Any("error", err))
	}
}

func (s *Scheduler) failTask(taskID uuid.UUID, cause error) {
	s.log.Error("batch failed", slog.Any("taskId", taskID), slog.Any("error", cause))
	if _, err := s.tasks.UpdateTaskStatus(taskID, model.TaskStatusFailed, cause.Error()); err != nil {
		s.log.Error("task status update failed", slog.Any("taskId", taskID), slog.Any("error", err))
	}
}

// batchRun holds the per-batch progress shared between worker goroutines.
type batchRun struct {
	scheduler *Scheduler
	taskID    uuid.UUID
	program   string
	requested model.TypeList

	mu   sync.Mutex
	done map[model.DocumentType]model.DocumentStatus
}

// missingDependencies returns the upstream types of docType that are
// satisfied neither by a document generated in this batch nor, for types
// outside the batch, by the latest stored record.
func (r *batchRun) missingDependencies(docType model.DocumentType) []model.DocumentType {
	var missing []model.DocumentType
	for _, upstream := range r.scheduler.graph.InEdges(docType) {
		if r.inBatch(upstream) {
			if status, _ := r.status(upstream); status != model.DocumentStatusDone {
				missing = append(missing, upstream)
			}
			continue
		}
		_, found, err := r.scheduler.records.SelectLatestRecord(upstream, r.program)
		if err != nil || !found {
			missing = append(missing, upstream)
		}
	}
	return missing
}

func (r *batchRun) generateOne(ctx context.Context, docType model.DocumentType, freeText string) {
	r.markDocument(docType, model.DocumentStatusRunning, "")

	record, err := r.scheduler.generate(ctx, docType, r.program, freeText)
	if err != nil {
		r.scheduler.log.Warn("document generation failed", slog.Any("documentType", docType), slog.String("program", r.program), slog.Any("error", err))
		r.markDocument(docType, model.DocumentStatusFailed, err.Error())
		return
	}

	r.scheduler.log.Info("document generated", slog.Any("documentType", docType), slog.String("program", r.program), slog.Any("recordId", record.ID))
	r.markDocument(docType, model.DocumentStatusDone, "")
}

func (r *batchRun) inBatch(docType model.DocumentType) bool {
	for _, t := range r.requested {
		if t == docType {
			return true
		}
	}
	return false
}

func (r *batchRun) status(docType model.DocumentType) (model.DocumentStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status, ok := r.done[docType]
	return status, ok && status.Terminal()
}

// markDocument records the transition locally and persists it together with
// the recomputed progress percentage. The lock is held across the store call
// so concurrent transitions persist in computation order and the stored
// progress never runs backwards. Store update failures are logged and do not
// abort the batch.
func (r *batchRun) markDocument(docType model.DocumentType, status model.DocumentStatus, docErr string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.done[docType] = status
	terminal := 0
	for _, t := range r.requested {
		if s, ok := r.done[t]; ok && s.Terminal() {
			terminal++
		}
	}
	progress := int(float64(terminal)/float64(len(r.requested))*100 + 0.5)

	if _, err := r.scheduler.tasks.UpdateTaskDocument(r.taskID, docType, status, docErr, progress); err != nil {
		r.scheduler.log.Error("task document update failed", slog.Any("taskId", r.taskID), slog.Any("documentType", docType), slog.Any("error", err))
	}
}
