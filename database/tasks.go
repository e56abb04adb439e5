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

// TasksDBHandlerFunctions defines the interface for generation task database operations.
type TasksDBHandlerFunctions interface {
	InsertTask(task *model.GenerationTask) error
	SelectTask(id uuid.UUID) (*model.GenerationTask, bool, error)
	SelectTasksByProgram(program string, limit int) ([]*model.GenerationTask, error)
	UpdateTaskStatus(id uuid.UUID, status model.TaskStatus, taskErr string) (*model.GenerationTask, error)
	UpdateTaskDocument(id uuid.UUID, docType model.DocumentType, status model.DocumentStatus, docErr string, progressPercent int) (*model.GenerationTask, error)
}

// TasksDBHandler handles generation task database operations.
type TasksDBHandler struct {
	db *helper.Database
}

// NewTasksDBHandler creates a new tasks database handler.
// It initializes the database connection and loads task-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewTasksDBHandler(db *helper.Database, force bool) (*TasksDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	tasksDbHandler := &TasksDBHandler{
		db: db,
	}

	err := loadSql.LoadTasksSql(tasksDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load tasks sql", err)
	}

	err = tasksDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized TasksDBHandler")

	return tasksDbHandler, nil
}

// CreateTable creates the 'generation_tasks' table in the database.
// If the table already exists, it does not create it again.
func (h *TasksDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_tasks();`)
	if err != nil {
		log.Panicf("error initializing generation_tasks table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table generation_tasks")

	return nil
}

// InsertTask inserts a new generation task in status queued.
func (h *TasksDBHandler) InsertTask(task *model.GenerationTask) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.PerDocument == nil {
		task.PerDocument = model.ProgressMap{}
		for _, docType := range task.RequestedTypes {
			task.PerDocument[docType] = model.DocumentProgress{Status: model.DocumentStatusPending}
		}
	}

	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_task($1, $2, $3, $4)`,
		task.ID,
		task.Program,
		task.RequestedTypes,
		task.PerDocument,
	)

	err := scanTask(row, task)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectTask retrieves a task by id. Absence is reported through the second
// return value.
func (h *TasksDBHandler) SelectTask(id uuid.UUID) (*model.GenerationTask, bool, error) {
	task := &model.GenerationTask{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_task($1)`,
		id,
	)

	err := scanTask(row, task)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, helper.NewError("scan", err)
	}

	return task, true, nil
}

// SelectTasksByProgram retrieves a program's tasks newest first.
func (h *TasksDBHandler) SelectTasksByProgram(program string, limit int) ([]*model.GenerationTask, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_tasks_by_program($1, $2)`,
		program,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var tasks []*model.GenerationTask
	for rows.Next() {
		task := &model.GenerationTask{}
		err := scanTask(rows, task)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		tasks = append(tasks, task)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return tasks, nil
}

// UpdateTaskStatus updates the task-level status.
func (h *TasksDBHandler) UpdateTaskStatus(id uuid.UUID, status model.TaskStatus, taskErr string) (*model.GenerationTask, error) {
	task := &model.GenerationTask{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM update_task_status($1, $2, $3)`,
		id,
		status,
		taskErr,
	)

	err := scanTask(row, task)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return task, nil
}

// UpdateTaskDocument updates one per-document slot and the recomputed
// progress percentage in a single atomic statement.
func (h *TasksDBHandler) UpdateTaskDocument(id uuid.UUID, docType model.DocumentType, status model.DocumentStatus, docErr string, progressPercent int) (*model.GenerationTask, error) {
	task := &model.GenerationTask{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM update_task_document($1, $2, $3, $4, $5)`,
		id,
		docType,
		status,
		docErr,
		progressPercent,
	)

	err := scanTask(row, task)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return task, nil
}

func scanTask(row rowScanner, task *model.GenerationTask) error {
	return row.Scan(
		&task.ID,
		&task.Program,
		&task.RequestedTypes,
		&task.Status,
		&task.PerDocument,
		&task.ProgressPercent,
		&task.Error,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
}
