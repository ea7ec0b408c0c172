package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/moveatlas/moveatlas-backend/internal/app"
)

func main() {
	var dryRun bool
	var timeoutMin int
	flag.BoolVar(&dryRun, "dry-run", false, "report drift without deleting anything")
	flag.IntVar(&timeoutMin, "timeout", 30, "sweep timeout in minutes")
	flag.Parse()

	application, err := app.New()
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutMin)*time.Minute)
	defer cancel()

	report, err := application.Services.Reconcile.Sweep(ctx, dryRun)
	if err != nil {
		fmt.Printf("reconcile sweep: %v\n", err)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		fmt.Printf("encode report: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
