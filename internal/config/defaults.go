package config

// DefaultConfig returns the built-in configuration.
// Stage parameters mirror the defaults of the underlying tools as used
// for paired-end 16S data; paths (manifest, classifier) have no sane
// default and must come from a config file or flags.
func DefaultConfig() *PipelineConfig {
	return &PipelineConfig{
		OutputDir:   "output",
		Concurrency: 1,
		Tools: ToolsConfig{
			Qiime:   "qiime",
			Biom:    "biom",
			Combine: "generate_combined_feature_table.py",
		},
		Import: ImportConfig{
			SampleType:  "SampleData[PairedEndSequencesWithQuality]",
			InputFormat: "PairedEndFastqManifestPhred33",
		},
		Denoise: DenoiseConfig{
			TrimLeftForward: 19,
			TruncLenForward: 250,
			TrimLeftReverse: 20,
			TruncLenReverse: 250,
			Threads:         10,
		},
		Taxonomy: TaxonomyConfig{
			Jobs: 10,
		},
	}
}
