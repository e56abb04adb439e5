package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/siherrmann/docpipe"
	"github.com/siherrmann/docpipe/helper"
	"github.com/siherrmann/docpipe/model"
)

const marketSurvey = `Market survey for tactical communication systems, conducted August 2026.

The survey identified 14 vendors offering relevant products. The market is considered
mature, with established suppliers and stable pricing. Average unit cost across
comparable systems is approximately $45,000.

Several vendors hold existing government-wide acquisition contracts, and at least
five qualify as small businesses under the applicable size standard.`

const costData = `Cost working papers, program Meridian.

The independent estimate places the total cost at $2,847,500 over a 36 month
period of performance. The base year accounts for $1,100,000 with two option
years at $873,750 each. Confidence level: 80%.`

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	pipe, err := docpipe.NewDocPipe(dbConfig, model.DefaultPipeConfig(), 384)
	if err != nil {
		log.Fatalf("Failed to create pipeline: %v", err)
	}
	defer pipe.Close()

	// Set up vector retrieval over the stored reference material
	if err := pipe.UseDefaultRetriever(); err != nil {
		log.Fatalf("Failed to set up retriever: %v", err)
	}

	// Store reference material for the extraction stages
	err = pipe.AddReferenceMaterial("market-survey-2026", marketSurvey, model.Metadata{"kind": "survey"})
	if err != nil {
		log.Fatalf("Failed to add reference material: %v", err)
	}
	err = pipe.AddReferenceMaterial("cost-working-papers", costData, model.Metadata{"kind": "cost_data"})
	if err != nil {
		log.Fatalf("Failed to add reference material: %v", err)
	}

	ctx := context.Background()
	program := "Meridian"

	// Check readiness: the cost estimate depends on market research
	readiness, err := pipe.CheckDependencies(model.DocTypeCostEstimate, program)
	if err != nil {
		log.Fatalf("Failed to check dependencies: %v", err)
	}
	fmt.Printf("Cost estimate ready: %v, missing: %v\n", readiness.CanGenerate, readiness.MissingTypes)

	// Request both documents; the scheduler orders them by dependency
	taskID, err := pipe.RequestBatch(ctx, program, []model.DocumentType{
		model.DocTypeCostEstimate,
		model.DocTypeMarketResearch,
	}, "Focus on commercial off-the-shelf options.")
	if err != nil {
		log.Fatalf("Failed to request batch: %v", err)
	}
	fmt.Printf("Requested batch task %v\n", taskID)

	// Poll the task until it reaches a terminal state
	for {
		task, found, err := pipe.TaskStatus(taskID)
		if err != nil || !found {
			log.Fatalf("Failed to poll task %v: %v", taskID, err)
		}
		fmt.Printf("Task %v: %v (%d%%)\n", taskID, task.Status, task.ProgressPercent)
		if task.Status.Terminal() {
			for docType, progress := range task.PerDocument {
				fmt.Printf("  %v: %v %v\n", docType, progress.Status, progress.Error)
			}
			break
		}
		time.Sleep(time.Second)
	}

	// The stored records carry the extracted facts and pinned references
	record, found, err := pipe.Records.SelectLatestRecord(model.DocTypeCostEstimate, program)
	if err != nil {
		log.Fatalf("Failed to load record: %v", err)
	}
	if found {
		fmt.Printf("Cost estimate record %v\n", record.ID)
		fmt.Printf("  facts: %v\n", record.Facts)
		fmt.Printf("  references: %v\n", record.References)

		impacted, err := pipe.Impacted(record.References[model.DocTypeMarketResearch])
		if err == nil {
			fmt.Printf("  documents referencing the market research: %d\n", len(impacted))
		}
	}
}
