package config

// ToolsConfig names the external binaries the pipeline invokes.
// Commands are program names resolved via PATH, or absolute paths --
// never shell snippets.
type ToolsConfig struct {
	Qiime   string `json:"qiime"`             // QIIME 2 CLI binary
	Biom    string `json:"biom"`              // biom-format CLI binary
	Combine string `json:"combine,omitempty"` // combined-table generator script
}

// ImportConfig holds parameters for the read-import stage.
type ImportConfig struct {
	SampleType  string `json:"sample_type,omitempty"`
	InputFormat string `json:"input_format,omitempty"`
}

// DenoiseConfig holds DADA2 denoising parameters.
type DenoiseConfig struct {
	TrimLeftForward int `json:"trim_left_f,omitempty"`
	TruncLenForward int `json:"trunc_len_f,omitempty"`
	TrimLeftReverse int `json:"trim_left_r,omitempty"`
	TruncLenReverse int `json:"trunc_len_r,omitempty"`
	Threads         int `json:"threads,omitempty"`
}

// TaxonomyConfig holds taxonomic-classification parameters.
type TaxonomyConfig struct {
	Classifier string `json:"classifier,omitempty"` // path to the trained classifier artifact
	Jobs       int    `json:"jobs,omitempty"`
}

// PipelineConfig is the top-level configuration.
// Every stage receives the fields it needs at construction time; no
// stage reads ambient global state.
type PipelineConfig struct {
	OutputDir    string         `json:"output_dir"`
	ManifestFile string         `json:"manifest_file"`
	JournalPath  string         `json:"journal_path,omitempty"` // empty: <output_dir>/ampliconflow.db
	Concurrency  int            `json:"concurrency,omitempty"`  // 1 = sequential depth-first resolution
	Tools        ToolsConfig    `json:"tools"`
	Import       ImportConfig   `json:"import"`
	Denoise      DenoiseConfig  `json:"denoise"`
	Taxonomy     TaxonomyConfig `json:"taxonomy"`
}
