package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mbiome/ampliconflow/internal/config"
	"github.com/mbiome/ampliconflow/internal/runner"
)

// captureInvoker records every command and reports success with a
// canned stdout. It does not create any files.
type captureInvoker struct {
	commands []runner.Command
	stdout   string
}

func (c *captureInvoker) Run(ctx context.Context, cmd runner.Command) (runner.Result, error) {
	c.commands = append(c.commands, cmd)
	return runner.Result{Stdout: []byte(c.stdout)}, nil
}

func (c *captureInvoker) last(t *testing.T) runner.Command {
	t.Helper()
	if len(c.commands) == 0 {
		t.Fatal("no commands were invoked")
	}
	return c.commands[len(c.commands)-1]
}

func stageConfig(t *testing.T) *config.PipelineConfig {
	t.Helper()
	dir := t.TempDir()

	manifest := filepath.Join(dir, "manifest.txt")
	if err := os.WriteFile(manifest, []byte("sample-id\n"), 0644); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}
	classifier := filepath.Join(dir, "classifier.qza")
	if err := os.WriteFile(classifier, []byte("classifier"), 0644); err != nil {
		t.Fatalf("writing classifier: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.OutputDir = filepath.Join(dir, "output")
	cfg.ManifestFile = manifest
	cfg.Taxonomy.Classifier = classifier
	return cfg
}

func TestStagesFactory(t *testing.T) {
	cfg := stageConfig(t)
	s := New(cfg, &captureInvoker{})

	wantIDs := []string{
		"all", "combine", "convert-biom", "denoise", "denoise-tabulate",
		"export-rep-seqs", "export-table", "export-taxonomy", "import",
		"summarize", "taxonomy", "taxonomy-tabulate",
	}
	gotIDs := s.IDs()
	if len(gotIDs) != len(wantIDs) {
		t.Fatalf("expected %d stages, got %v", len(wantIDs), gotIDs)
	}
	for i, want := range wantIDs {
		if gotIDs[i] != want {
			t.Errorf("IDs()[%d] = %q, want %q", i, gotIDs[i], want)
		}
	}

	if _, err := s.Node("no-such-stage"); err == nil {
		t.Error("expected error for unknown stage ID")
	}

	if got := s.All().ID(); got != "all" {
		t.Errorf("All() ID = %q, want all", got)
	}
	if deps := s.All().Dependencies(); len(deps) != 11 {
		t.Errorf("expected all to depend on 11 stages, got %d", len(deps))
	}
}

func TestStageIdentityStable(t *testing.T) {
	// The same stage reached through different paths must be the same
	// node instance, so memoized resolution sees one identity.
	cfg := stageConfig(t)
	s := New(cfg, &captureInvoker{})

	combine, err := s.Node("combine")
	if err != nil {
		t.Fatalf("Node failed: %v", err)
	}
	viaCombine := combine.Dependencies()["export-taxonomy"].Dependencies()["taxonomy"]
	direct, err := s.Node("taxonomy")
	if err != nil {
		t.Fatalf("Node failed: %v", err)
	}
	if viaCombine != direct {
		t.Error("taxonomy reached via combine is a different instance than the factory's")
	}
}

func TestImportStageCommand(t *testing.T) {
	cfg := stageConfig(t)
	inv := &captureInvoker{}
	s := New(cfg, inv)

	imp, err := s.Node("import")
	if err != nil {
		t.Fatalf("Node failed: %v", err)
	}
	if err := imp.Run(context.Background(), Inputs{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	cmd := inv.last(t)
	if cmd.Program != "qiime" {
		t.Errorf("expected qiime, got %q", cmd.Program)
	}
	line := cmd.String()
	for _, want := range []string{
		"tools import",
		"--type SampleData[PairedEndSequencesWithQuality]",
		"--input-path " + cfg.ManifestFile,
		"--input-format PairedEndFastqManifestPhred33",
		"paired-end-demux.qza",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("import command missing %q: %s", want, line)
		}
	}
}

func TestImportStageMissingManifest(t *testing.T) {
	cfg := stageConfig(t)
	cfg.ManifestFile = filepath.Join(cfg.OutputDir, "missing.txt")
	inv := &captureInvoker{}
	s := New(cfg, inv)

	imp, err := s.Node("import")
	if err != nil {
		t.Fatalf("Node failed: %v", err)
	}

	runErr := imp.Run(context.Background(), Inputs{})
	var missErr *MissingInputError
	if !errors.As(runErr, &missErr) {
		t.Fatalf("expected MissingInputError, got: %v", runErr)
	}
	if missErr.Stage != "import" || missErr.Path != cfg.ManifestFile {
		t.Errorf("unexpected error fields: %+v", missErr)
	}
	if len(inv.commands) != 0 {
		t.Error("no tool may run when the manifest is missing")
	}
}

func TestDenoiseStageCommandAndLog(t *testing.T) {
	cfg := stageConfig(t)
	inv := &captureInvoker{stdout: "denoising chatter"}
	s := New(cfg, inv)

	den, err := s.Node("denoise")
	if err != nil {
		t.Fatalf("Node failed: %v", err)
	}

	imp, _ := s.Node("import")
	inputs := Inputs{"import": imp.Outputs()}
	if err := den.Run(context.Background(), inputs); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	line := inv.last(t).String()
	for _, want := range []string{
		"dada2 denoise-paired",
		"--p-trim-left-f 19",
		"--p-trunc-len-f 250",
		"--p-trim-left-r 20",
		"--p-trunc-len-r 250",
		"--p-n-threads 10",
		"--verbose",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("denoise command missing %q: %s", want, line)
		}
	}

	logData, err := os.ReadFile(filepath.Join(cfg.OutputDir, "dada2", "dada2_log.txt"))
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if string(logData) != "denoising chatter" {
		t.Errorf("expected log to hold tool stdout, got %q", logData)
	}
}

func TestTaxonomyStageMissingClassifier(t *testing.T) {
	cfg := stageConfig(t)
	cfg.Taxonomy.Classifier = filepath.Join(cfg.OutputDir, "missing.qza")
	inv := &captureInvoker{}
	s := New(cfg, inv)

	tax, err := s.Node("taxonomy")
	if err != nil {
		t.Fatalf("Node failed: %v", err)
	}

	den, _ := s.Node("denoise")
	runErr := tax.Run(context.Background(), Inputs{"denoise": den.Outputs()})
	var missErr *MissingInputError
	if !errors.As(runErr, &missErr) {
		t.Fatalf("expected MissingInputError, got: %v", runErr)
	}
	if missErr.Stage != "taxonomy" {
		t.Errorf("expected taxonomy stage, got %q", missErr.Stage)
	}
}

func TestExportStagesTargetKnownFilenames(t *testing.T) {
	cfg := stageConfig(t)
	s := New(cfg, &captureInvoker{})

	tests := []struct {
		stage string
		file  string
	}{
		{"export-table", "feature-table.biom"},
		{"export-taxonomy", "taxonomy.tsv"},
		{"export-rep-seqs", "dna-sequences.fasta"},
	}

	for _, tt := range tests {
		n, err := s.Node(tt.stage)
		if err != nil {
			t.Fatalf("Node(%s) failed: %v", tt.stage, err)
		}
		found := false
		for _, out := range n.Outputs() {
			if filepath.Base(out.Path) == tt.file {
				found = true
			}
			if filepath.Dir(out.Path) != filepath.Join(cfg.OutputDir, "exported") {
				t.Errorf("%s output %s not under exported/", tt.stage, out.Path)
			}
		}
		if !found {
			t.Errorf("%s does not declare %s", tt.stage, tt.file)
		}
	}
}

func TestCombineStageCommand(t *testing.T) {
	cfg := stageConfig(t)
	inv := &captureInvoker{stdout: "combined 42 features"}
	s := New(cfg, inv)

	combine, err := s.Node("combine")
	if err != nil {
		t.Fatalf("Node failed: %v", err)
	}

	deps := combine.Dependencies()
	inputs := Inputs{}
	for key, dep := range deps {
		inputs[key] = dep.Outputs()
	}
	if err := combine.Run(context.Background(), inputs); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	cmd := inv.last(t)
	if cmd.Program != "generate_combined_feature_table.py" {
		t.Errorf("unexpected combine program %q", cmd.Program)
	}
	line := cmd.String()
	for _, want := range []string{"-f ", "-s ", "-t ", "-o "} {
		if !strings.Contains(line, want) {
			t.Errorf("combine command missing %q: %s", want, line)
		}
	}

	logData, err := os.ReadFile(filepath.Join(cfg.OutputDir, "exported", "ASV_table_combined.log"))
	if err != nil {
		t.Fatalf("reading combine log: %v", err)
	}
	if string(logData) != "combined 42 features" {
		t.Errorf("expected combine log to hold tool stdout, got %q", logData)
	}
}

func TestCompleteAndMissingOutputs(t *testing.T) {
	cfg := stageConfig(t)
	s := New(cfg, &captureInvoker{})

	imp, err := s.Node("import")
	if err != nil {
		t.Fatalf("Node failed: %v", err)
	}

	if Complete(imp) {
		t.Error("import must be incomplete before any output exists")
	}
	if missing := MissingOutputs(imp); len(missing) != 1 || missing[0] != "demux" {
		t.Errorf("expected missing [demux], got %v", missing)
	}

	if err := imp.Outputs()["demux"].WriteBytes([]byte("artifact")); err != nil {
		t.Fatalf("writing output: %v", err)
	}
	if !Complete(imp) {
		t.Error("import must be complete once its output exists")
	}
}
