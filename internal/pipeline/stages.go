package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/mbiome/ampliconflow/internal/config"
	"github.com/mbiome/ampliconflow/internal/runner"
	"github.com/mbiome/ampliconflow/internal/target"
)

// Stages constructs the full set of pipeline nodes from explicit
// configuration. Node instances are created once and shared, so
// dependency references are stable across the whole resolution.
type Stages struct {
	byID map[string]Node
	all  Node
}

// New builds every stage node from the given configuration and
// process invoker.
func New(cfg *config.PipelineConfig, inv runner.Invoker) *Stages {
	layout := Layout{Root: cfg.OutputDir}

	imp := &importStage{
		qiime:       cfg.Tools.Qiime,
		manifest:    cfg.ManifestFile,
		sampleType:  cfg.Import.SampleType,
		inputFormat: cfg.Import.InputFormat,
		layout:      layout,
		inv:         inv,
	}
	sum := &summarizeStage{qiime: cfg.Tools.Qiime, imp: imp, layout: layout, inv: inv}
	den := &denoiseStage{
		qiime:  cfg.Tools.Qiime,
		params: cfg.Denoise,
		imp:    imp,
		layout: layout,
		inv:    inv,
	}
	denTab := &tabulateStage{
		id:      "denoise-tabulate",
		qiime:   cfg.Tools.Qiime,
		depKey:  "denoise",
		dep:     den,
		depName: "stats",
		out:     target.NewFile("tabulated", filepath.Join(layout.DenoiseDir(), "stats-dada2.qzv")),
		inv:     inv,
	}
	tax := &taxonomyStage{
		qiime:      cfg.Tools.Qiime,
		classifier: cfg.Taxonomy.Classifier,
		jobs:       cfg.Taxonomy.Jobs,
		den:        den,
		layout:     layout,
		inv:        inv,
	}
	taxTab := &tabulateStage{
		id:      "taxonomy-tabulate",
		qiime:   cfg.Tools.Qiime,
		depKey:  "taxonomy",
		dep:     tax,
		depName: "taxonomy",
		out:     target.NewFile("tabulated", filepath.Join(layout.TaxonomyDir(), "taxonomy.qzv")),
		inv:     inv,
	}
	expTable := &exportStage{
		id:      "export-table",
		qiime:   cfg.Tools.Qiime,
		depKey:  "denoise",
		dep:     den,
		depName: "table",
		out:     target.NewBytesFile("biom", filepath.Join(layout.ExportDir(), "feature-table.biom")),
		inv:     inv,
	}
	expTax := &exportStage{
		id:      "export-taxonomy",
		qiime:   cfg.Tools.Qiime,
		depKey:  "taxonomy",
		dep:     tax,
		depName: "taxonomy",
		out:     target.NewFile("tsv", filepath.Join(layout.ExportDir(), "taxonomy.tsv")),
		inv:     inv,
	}
	expSeqs := &exportStage{
		id:      "export-rep-seqs",
		qiime:   cfg.Tools.Qiime,
		depKey:  "denoise",
		dep:     den,
		depName: "rep_seqs",
		out:     target.NewFile("fasta", filepath.Join(layout.ExportDir(), "dna-sequences.fasta")),
		inv:     inv,
	}
	convert := &convertBiomStage{biom: cfg.Tools.Biom, exp: expTable, layout: layout, inv: inv}
	combine := &combineStage{
		script:  cfg.Tools.Combine,
		expTax:  expTax,
		expSeqs: expSeqs,
		convert: convert,
		layout:  layout,
		inv:     inv,
	}

	nodes := []Node{imp, sum, den, denTab, tax, taxTab, expTable, expTax, expSeqs, convert, combine}
	byID := make(map[string]Node, len(nodes)+1)
	for _, n := range nodes {
		byID[n.ID()] = n
	}

	all := &allStage{nodes: nodes}
	byID[all.ID()] = all

	return &Stages{byID: byID, all: all}
}

// Node returns the stage with the given ID.
func (s *Stages) Node(id string) (Node, error) {
	n, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("unknown stage %q (known: %v)", id, s.IDs())
	}
	return n, nil
}

// All returns the synthetic terminal node depending on every stage.
func (s *Stages) All() Node { return s.all }

// IDs returns all stage IDs in sorted order.
func (s *Stages) IDs() []string {
	ids := make([]string, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// requireReadable verifies an externally-supplied input file can be
// opened for read before a tool is invoked against it.
func requireReadable(stage, path string) error {
	f := target.NewFile(stage, path)
	rc, err := f.OpenRead()
	if err != nil {
		return &MissingInputError{Stage: stage, Path: path, Err: err}
	}
	rc.Close()
	return nil
}

// importStage brings raw paired-end reads into a qiime artifact.
type importStage struct {
	qiime       string
	manifest    string
	sampleType  string
	inputFormat string
	layout      Layout
	inv         runner.Invoker
}

func (n *importStage) ID() string                    { return "import" }
func (n *importStage) Dependencies() map[string]Node { return map[string]Node{} }

func (n *importStage) Outputs() Outputs {
	return Outputs{
		"demux": target.NewBytesFile("demux", filepath.Join(n.layout.Root, "paired-end-demux.qza")),
	}
}

func (n *importStage) Run(ctx context.Context, deps Inputs) error {
	if err := ensureDir(n.layout.Root); err != nil {
		return err
	}
	if err := requireReadable(n.ID(), n.manifest); err != nil {
		return err
	}

	_, err := n.inv.Run(ctx, runner.Command{
		Program: n.qiime,
		Args: []string{
			"tools", "import",
			"--type", n.sampleType,
			"--input-path", n.manifest,
			"--output-path", n.Outputs()["demux"].Path,
			"--input-format", n.inputFormat,
		},
	})
	return err
}

// summarizeStage renders a quality summary of the imported reads.
type summarizeStage struct {
	qiime  string
	imp    Node
	layout Layout
	inv    runner.Invoker
}

func (n *summarizeStage) ID() string                    { return "summarize" }
func (n *summarizeStage) Dependencies() map[string]Node { return map[string]Node{"import": n.imp} }

func (n *summarizeStage) Outputs() Outputs {
	return Outputs{
		"summary": target.NewBytesFile("summary", filepath.Join(n.layout.Root, "paired-end-demux.qzv")),
	}
}

func (n *summarizeStage) Run(ctx context.Context, deps Inputs) error {
	if err := ensureDir(n.layout.Root); err != nil {
		return err
	}

	_, err := n.inv.Run(ctx, runner.Command{
		Program: n.qiime,
		Args: []string{
			"demux", "summarize",
			"--i-data", deps.File("import", "demux").Path,
			"--o-visualization", n.Outputs()["summary"].Path,
		},
	})
	return err
}

// denoiseStage runs DADA2 paired-end denoising and persists the tool's
// stdout into a log artifact.
type denoiseStage struct {
	qiime  string
	params config.DenoiseConfig
	imp    Node
	layout Layout
	inv    runner.Invoker
}

func (n *denoiseStage) ID() string                    { return "denoise" }
func (n *denoiseStage) Dependencies() map[string]Node { return map[string]Node{"import": n.imp} }

func (n *denoiseStage) Outputs() Outputs {
	dir := n.layout.DenoiseDir()
	return Outputs{
		"table":    target.NewBytesFile("table", filepath.Join(dir, "dada2-table.qza")),
		"rep_seqs": target.NewBytesFile("rep_seqs", filepath.Join(dir, "dada2-rep-seqs.qza")),
		"stats":    target.NewBytesFile("stats", filepath.Join(dir, "stats-dada2.qza")),
		"log":      target.NewBytesFile("log", filepath.Join(dir, "dada2_log.txt")),
	}
}

func (n *denoiseStage) Run(ctx context.Context, deps Inputs) error {
	if err := ensureDir(n.layout.DenoiseDir()); err != nil {
		return err
	}

	out := n.Outputs()
	res, err := n.inv.Run(ctx, runner.Command{
		Program: n.qiime,
		Args: []string{
			"dada2", "denoise-paired",
			"--i-demultiplexed-seqs", deps.File("import", "demux").Path,
			"--p-trim-left-f", strconv.Itoa(n.params.TrimLeftForward),
			"--p-trunc-len-f", strconv.Itoa(n.params.TruncLenForward),
			"--p-trim-left-r", strconv.Itoa(n.params.TrimLeftReverse),
			"--p-trunc-len-r", strconv.Itoa(n.params.TruncLenReverse),
			"--p-n-threads", strconv.Itoa(n.params.Threads),
			"--o-table", out["table"].Path,
			"--o-representative-sequences", out["rep_seqs"].Path,
			"--o-denoising-stats", out["stats"].Path,
			"--verbose",
		},
	})
	if err != nil {
		return err
	}

	return out["log"].WriteBytes(res.Stdout)
}

// taxonomyStage classifies representative sequences against a trained
// classifier and persists the tool's stdout into a log artifact.
type taxonomyStage struct {
	qiime      string
	classifier string
	jobs       int
	den        Node
	layout     Layout
	inv        runner.Invoker
}

func (n *taxonomyStage) ID() string                    { return "taxonomy" }
func (n *taxonomyStage) Dependencies() map[string]Node { return map[string]Node{"denoise": n.den} }

func (n *taxonomyStage) Outputs() Outputs {
	dir := n.layout.TaxonomyDir()
	return Outputs{
		"taxonomy": target.NewBytesFile("taxonomy", filepath.Join(dir, "taxonomy.qza")),
		"log":      target.NewBytesFile("log", filepath.Join(dir, "taxonomy_log.txt")),
	}
}

func (n *taxonomyStage) Run(ctx context.Context, deps Inputs) error {
	if err := ensureDir(n.layout.TaxonomyDir()); err != nil {
		return err
	}
	if err := requireReadable(n.ID(), n.classifier); err != nil {
		return err
	}

	out := n.Outputs()
	res, err := n.inv.Run(ctx, runner.Command{
		Program: n.qiime,
		Args: []string{
			"feature-classifier", "classify-sklearn",
			"--i-classifier", n.classifier,
			"--i-reads", deps.File("denoise", "rep_seqs").Path,
			"--o-classification", out["taxonomy"].Path,
			"--p-n-jobs", strconv.Itoa(n.jobs),
			"--verbose",
		},
	})
	if err != nil {
		return err
	}

	return out["log"].WriteBytes(res.Stdout)
}

// tabulateStage renders one upstream artifact as a qiime metadata
// visualization. Used for both the denoising stats and the taxonomy.
type tabulateStage struct {
	id      string
	qiime   string
	depKey  string
	dep     Node
	depName string
	out     *target.File
	inv     runner.Invoker
}

func (n *tabulateStage) ID() string                    { return n.id }
func (n *tabulateStage) Dependencies() map[string]Node { return map[string]Node{n.depKey: n.dep} }
func (n *tabulateStage) Outputs() Outputs              { return Outputs{"tabulated": n.out} }

func (n *tabulateStage) Run(ctx context.Context, deps Inputs) error {
	if err := ensureDir(filepath.Dir(n.out.Path)); err != nil {
		return err
	}

	_, err := n.inv.Run(ctx, runner.Command{
		Program: n.qiime,
		Args: []string{
			"metadata", "tabulate",
			"--m-input-file", deps.File(n.depKey, n.depName).Path,
			"--o-visualization", n.out.Path,
		},
	})
	return err
}

// exportStage unpacks one artifact out of its qiime container into the
// export directory. The tool derives the output filename itself, so
// the declared target names the file qiime is known to produce.
type exportStage struct {
	id      string
	qiime   string
	depKey  string
	dep     Node
	depName string
	out     *target.File
	inv     runner.Invoker
}

func (n *exportStage) ID() string                    { return n.id }
func (n *exportStage) Dependencies() map[string]Node { return map[string]Node{n.depKey: n.dep} }
func (n *exportStage) Outputs() Outputs              { return Outputs{n.out.Name: n.out} }

func (n *exportStage) Run(ctx context.Context, deps Inputs) error {
	dir := filepath.Dir(n.out.Path)
	if err := ensureDir(dir); err != nil {
		return err
	}

	_, err := n.inv.Run(ctx, runner.Command{
		Program: n.qiime,
		Args: []string{
			"tools", "export",
			"--input-path", deps.File(n.depKey, n.depName).Path,
			"--output-path", dir,
		},
	})
	return err
}

// convertBiomStage converts the exported biom table to TSV.
type convertBiomStage struct {
	biom   string
	exp    Node
	layout Layout
	inv    runner.Invoker
}

func (n *convertBiomStage) ID() string { return "convert-biom" }
func (n *convertBiomStage) Dependencies() map[string]Node {
	return map[string]Node{"export-table": n.exp}
}

func (n *convertBiomStage) Outputs() Outputs {
	return Outputs{
		"tsv": target.NewFile("tsv", filepath.Join(n.layout.ExportDir(), "feature-table.tsv")),
	}
}

func (n *convertBiomStage) Run(ctx context.Context, deps Inputs) error {
	if err := ensureDir(n.layout.ExportDir()); err != nil {
		return err
	}

	_, err := n.inv.Run(ctx, runner.Command{
		Program: n.biom,
		Args: []string{
			"convert",
			"-i", deps.File("export-table", "biom").Path,
			"-o", n.Outputs()["tsv"].Path,
			"--to-tsv",
		},
	})
	return err
}

// combineStage joins the feature table, representative sequences and
// taxonomy into one combined ASV table.
type combineStage struct {
	script  string
	expTax  Node
	expSeqs Node
	convert Node
	layout  Layout
	inv     runner.Invoker
}

func (n *combineStage) ID() string { return "combine" }

func (n *combineStage) Dependencies() map[string]Node {
	return map[string]Node{
		"export-taxonomy": n.expTax,
		"export-rep-seqs": n.expSeqs,
		"convert-biom":    n.convert,
	}
}

func (n *combineStage) Outputs() Outputs {
	dir := n.layout.ExportDir()
	return Outputs{
		"table": target.NewFile("table", filepath.Join(dir, "ASV_table_combined.tsv")),
		"log":   target.NewBytesFile("log", filepath.Join(dir, "ASV_table_combined.log")),
	}
}

func (n *combineStage) Run(ctx context.Context, deps Inputs) error {
	if err := ensureDir(n.layout.ExportDir()); err != nil {
		return err
	}

	out := n.Outputs()
	res, err := n.inv.Run(ctx, runner.Command{
		Program: n.script,
		Args: []string{
			"-f", deps.File("convert-biom", "tsv").Path,
			"-s", deps.File("export-rep-seqs", "fasta").Path,
			"-t", deps.File("export-taxonomy", "tsv").Path,
			"-o", out["table"].Path,
		},
	})
	if err != nil {
		return err
	}

	return out["log"].WriteBytes(res.Stdout)
}

// allStage is the synthetic terminal node: it depends on every stage
// of interest, declares no outputs of its own, and does nothing.
type allStage struct {
	nodes []Node
}

func (n *allStage) ID() string { return "all" }

func (n *allStage) Dependencies() map[string]Node {
	deps := make(map[string]Node, len(n.nodes))
	for _, node := range n.nodes {
		deps[node.ID()] = node
	}
	return deps
}

func (n *allStage) Outputs() Outputs { return Outputs{} }

func (n *allStage) Run(ctx context.Context, deps Inputs) error { return nil }
