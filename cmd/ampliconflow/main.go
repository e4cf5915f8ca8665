// Command ampliconflow runs a 16S amplicon analysis pipeline: importing
// paired-end reads, DADA2 denoising, taxonomy classification, exports,
// and a combined ASV table. Stages whose outputs already exist are
// skipped, so an interrupted run resumes where it left off.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/mbiome/ampliconflow/internal/config"
	"github.com/mbiome/ampliconflow/internal/events"
	"github.com/mbiome/ampliconflow/internal/journal"
	"github.com/mbiome/ampliconflow/internal/pipeline"
	"github.com/mbiome/ampliconflow/internal/runner"
	"github.com/mbiome/ampliconflow/internal/scheduler"
	"github.com/mbiome/ampliconflow/internal/tui"
)

func main() {
	args := os.Args[1:]

	// Subcommands come before flags: ampliconflow [init|history|run] [flags]
	sub := "run"
	if len(args) > 0 && (args[0] == "init" || args[0] == "history" || args[0] == "run") {
		sub = args[0]
		args = args[1:]
	}

	var err error
	switch sub {
	case "init":
		err = runInit()
	case "history":
		err = runHistory(args)
	default:
		err = runPipeline(args)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runPipeline executes the pipeline up to the requested terminal stage.
func runPipeline(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "extra config file (merged over global and project configs)")
	manifest := fs.String("manifest", "", "sample manifest file (overrides config)")
	classifier := fs.String("classifier", "", "trained taxonomy classifier (overrides config)")
	outDir := fs.String("out", "", "output directory (overrides config)")
	stage := fs.String("stage", "all", "terminal stage to run up to")
	jobs := fs.Int("jobs", 0, "max concurrent stages (overrides config; 1 = sequential)")
	watch := fs.Bool("watch", false, "show the live TUI instead of plain log output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, globalPath, projectPath, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	// Flags win over every config layer.
	if *manifest != "" {
		cfg.ManifestFile = *manifest
	}
	if *classifier != "" {
		cfg.Taxonomy.Classifier = *classifier
	}
	if *outDir != "" {
		cfg.OutputDir = *outDir
	}
	if *jobs > 0 {
		cfg.Concurrency = *jobs
	}

	store, err := openJournal(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	bus := events.NewEventBus()

	pm := runner.NewProcessManager()

	// Kill tracked subprocess groups the moment the shutdown signal
	// lands. Waiting for the run goroutine first would deadlock: it is
	// the one blocked on those very subprocesses.
	go func() {
		<-ctx.Done()
		if killErr := pm.KillAll(); killErr != nil {
			log.Printf("Error killing subprocesses: %v", killErr)
		}
	}()

	var inv runner.Invoker = runner.NewExec(pm)
	inv = journal.NewRecordingInvoker(inv, store)
	inv = events.NewPublishingInvoker(inv, bus)

	stages := pipeline.New(cfg, inv)
	root, err := stages.Node(*stage)
	if err != nil {
		return err
	}

	if _, err := store.BeginRun(ctx, *stage); err != nil {
		return fmt.Errorf("starting run record: %w", err)
	}

	runErr := make(chan error, 1)
	go func() {
		defer bus.Close()
		runErr <- execute(ctx, cfg, bus, store, root)
	}()

	var consumeErr error
	if *watch {
		consumeErr = runWatch(bus, cfg, globalPath, projectPath)
	} else {
		logEvents(bus.SubscribeAll(256))
	}

	err = <-runErr

	finishCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if finishErr := store.FinishRun(finishCtx, err); finishErr != nil {
		log.Printf("Error finishing run record: %v", finishErr)
	}

	if consumeErr != nil && err == nil {
		return consumeErr
	}
	return err
}

// execute picks the sequential resolver or the parallel runner based on
// the configured concurrency.
func execute(ctx context.Context, cfg *config.PipelineConfig, bus *events.EventBus, store journal.Store, root pipeline.Node) error {
	if cfg.Concurrency > 1 {
		return scheduler.NewParallelRunner(cfg.Concurrency, bus, store).Run(ctx, root)
	}
	_, err := scheduler.NewResolver(bus, store).Resolve(ctx, root)
	return err
}

// runWatch runs the live TUI until the user quits or the bus closes.
func runWatch(bus *events.EventBus, cfg *config.PipelineConfig, globalPath, projectPath string) error {
	model := tui.NewModel(bus, cfg, globalPath, projectPath)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// logEvents drains the bus to plain log lines until it closes.
func logEvents(ch <-chan events.Event) {
	for ev := range ch {
		switch e := ev.(type) {
		case events.StageStartedEvent:
			log.Printf("[%s] started", e.ID)
		case events.StageSkippedEvent:
			log.Printf("[%s] outputs present, skipped", e.ID)
		case events.StageCompletedEvent:
			log.Printf("[%s] completed in %v", e.ID, e.Duration.Round(time.Millisecond))
		case events.StageFailedEvent:
			log.Printf("[%s] failed after %v: %v", e.ID, e.Duration.Round(time.Millisecond), e.Err)
		}
	}
}

// loadConfig merges defaults, global config, project config, and an
// optional extra config file, in that order.
func loadConfig(extraPath string) (*config.PipelineConfig, string, string, error) {
	globalPath, projectPath, err := config.DefaultPaths()
	if err != nil {
		return nil, "", "", err
	}

	cfg, err := config.Load(globalPath, projectPath)
	if err != nil {
		return nil, "", "", err
	}

	if extraPath != "" {
		if err := config.MergeFile(cfg, extraPath); err != nil {
			return nil, "", "", err
		}
	}

	return cfg, globalPath, projectPath, nil
}

// openJournal opens the run journal at the configured path, defaulting
// to a database inside the output directory.
func openJournal(ctx context.Context, cfg *config.PipelineConfig) (journal.Store, error) {
	path := cfg.JournalPath
	if path == "" {
		path = filepath.Join(cfg.OutputDir, "ampliconflow.db")
	}
	return journal.NewSQLiteStore(ctx, path)
}

// runInit interactively creates a project config file.
func runInit() error {
	cfg := config.DefaultConfig()

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Manifest File").
				Description("Tab-separated sample manifest for qiime tools import").
				Value(&cfg.ManifestFile),

			huh.NewInput().
				Title("Taxonomy Classifier").
				Description("Trained sklearn classifier artifact (.qza)").
				Value(&cfg.Taxonomy.Classifier),

			huh.NewInput().
				Title("Output Directory").
				Value(&cfg.OutputDir),
		),
	)

	if err := form.Run(); err != nil {
		return err
	}

	_, projectPath, err := config.DefaultPaths()
	if err != nil {
		return err
	}
	if err := config.Save(cfg, projectPath); err != nil {
		return err
	}

	fmt.Printf("Wrote %s\n", projectPath)
	return nil
}

// runHistory prints recent runs and their stage dispositions.
func runHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("limit", 10, "max runs to show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()

	cfg, _, _, err := loadConfig("")
	if err != nil {
		return err
	}

	store, err := openJournal(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(ctx, *limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No recorded runs.")
		return nil
	}

	for _, r := range runs {
		fmt.Printf("run %d  stage=%s  status=%s  started=%s\n",
			r.ID, r.TerminalStage, r.Status, r.StartedAt.Format(time.RFC3339))
		if r.Error != "" {
			fmt.Printf("  error: %s\n", r.Error)
		}

		execs, err := store.StageExecutions(ctx, r.ID)
		if err != nil {
			return err
		}
		for _, e := range execs {
			fmt.Printf("  %-20s %-10s %v\n", e.Stage, e.Disposition, e.Duration.Round(time.Millisecond))
		}
	}

	return nil
}
