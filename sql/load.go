package sql

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
)

//go:embed init.sql
var initSQL string

//go:embed records.sql
var recordsSQL string

//go:embed tasks.sql
var tasksSQL string

//go:embed passages.sql
var passagesSQL string

// Function lists for verification
var RecordsFunctions = []string{
	"init_records",
	"insert_record",
	"select_record",
	"select_latest_record",
	"select_records_referencing",
	"select_records_by_program",
}

var TasksFunctions = []string{
	"init_tasks",
	"insert_task",
	"select_task",
	"select_tasks_by_program",
	"update_task_status",
	"update_task_document",
}

var PassagesFunctions = []string{
	"init_passages",
	"insert_passage",
	"select_passages_by_similarity",
}

// Init intializes db extensions
func Init(db *sql.DB) error {
	_, err := db.Exec(initSQL)
	if err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}

	log.Println("Database extensions initialized successfully")
	return nil
}

// LoadRecordsSql loads record-related SQL functions
func LoadRecordsSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, RecordsFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing records functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(recordsSQL)
	if err != nil {
		return fmt.Errorf("error executing records SQL: %w", err)
	}

	exist, err := checkFunctions(db, RecordsFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL records functions loaded successfully")
	return nil
}

// LoadTasksSql loads task-related SQL functions
func LoadTasksSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, TasksFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing tasks functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(tasksSQL)
	if err != nil {
		return fmt.Errorf("error executing tasks SQL: %w", err)
	}

	exist, err := checkFunctions(db, TasksFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL tasks functions loaded successfully")
	return nil
}

// LoadPassagesSql loads passage-related SQL functions
func LoadPassagesSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, PassagesFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing passages functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(passagesSQL)
	if err != nil {
		return fmt.Errorf("error executing passages SQL: %w", err)
	}

	exist, err := checkFunctions(db, PassagesFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL passages functions loaded successfully")
	return nil
}

// LoadAllSql loads all SQL functions
func LoadAllSql(db *sql.DB, force bool) error {
	if err := LoadRecordsSql(db, force); err != nil {
		return err
	}

	if err := LoadTasksSql(db, force); err != nil {
		return err
	}

	if err := LoadPassagesSql(db, force); err != nil {
		return err
	}

	return nil
}

// checkFunctions verifies that all required functions exist in the database
func checkFunctions(db *sql.DB, sqlFunctions []string) (bool, error) {
	var allExist bool
	for _, f := range sqlFunctions {
		err := db.QueryRow(
			`SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);`,
			f,
		).Scan(&allExist)
		if err != nil {
			return false, fmt.Errorf("error checking existence of function %s: %w", f, err)
		}
		if !allExist {
			log.Printf("Function %s does not exist", f)
			break
		}
	}
	return allExist, nil
}
