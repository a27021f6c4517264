package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/vibecodementor/VibeMentor/internal/pkg/database"
	"github.com/vibecodementor/VibeMentor/internal/pkg/env"
	"github.com/vibecodementor/VibeMentor/internal/pkg/reconcile"
)

// One-shot reconciliation run for operators and cron. Prints the report as
// JSON and exits non-zero when any user could not be repaired.
func main() {
	env.SetupEnvFile()
	database.SetupDatabase()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	report, err := reconcile.NewFromDB(database.GetDB()).Run(ctx)
	if err != nil {
		log.Fatalf("reconciliation failed: %v", err)
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("failed to encode report: %v", err)
	}
	os.Stdout.Write(append(out, '\n'))

	if len(report.Failures) > 0 {
		os.Exit(1)
	}
}
