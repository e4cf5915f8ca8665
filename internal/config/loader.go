package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*PipelineConfig, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.ampliconflow/config.json
// Project: .ampliconflow/config.json (relative to cwd)
func LoadDefault() (*PipelineConfig, error) {
	globalPath, projectPath, err := DefaultPaths()
	if err != nil {
		return nil, err
	}
	return Load(globalPath, projectPath)
}

// DefaultPaths returns the conventional global and project config paths.
func DefaultPaths() (globalPath, projectPath string, err error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("getting home directory: %w", err)
	}
	globalPath = filepath.Join(homeDir, ".ampliconflow", "config.json")
	projectPath = filepath.Join(".ampliconflow", "config.json")
	return globalPath, projectPath, nil
}

// MergeFile merges one more config file over an already-loaded config.
// Used for the -config flag, which layers on top of the conventional
// global and project files.
func MergeFile(cfg *PipelineConfig, path string) error {
	return mergeConfigFile(cfg, path)
}

// mergeConfigFile reads a JSON config file and merges it into the base config.
// Missing files are silently skipped. Malformed JSON returns an error.
// Only fields set in the file override the base; zero values are ignored.
func mergeConfigFile(base *PipelineConfig, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded PipelineConfig
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	overrideString(&base.OutputDir, loaded.OutputDir)
	overrideString(&base.ManifestFile, loaded.ManifestFile)
	overrideString(&base.JournalPath, loaded.JournalPath)
	overrideInt(&base.Concurrency, loaded.Concurrency)

	overrideString(&base.Tools.Qiime, loaded.Tools.Qiime)
	overrideString(&base.Tools.Biom, loaded.Tools.Biom)
	overrideString(&base.Tools.Combine, loaded.Tools.Combine)

	overrideString(&base.Import.SampleType, loaded.Import.SampleType)
	overrideString(&base.Import.InputFormat, loaded.Import.InputFormat)

	overrideInt(&base.Denoise.TrimLeftForward, loaded.Denoise.TrimLeftForward)
	overrideInt(&base.Denoise.TruncLenForward, loaded.Denoise.TruncLenForward)
	overrideInt(&base.Denoise.TrimLeftReverse, loaded.Denoise.TrimLeftReverse)
	overrideInt(&base.Denoise.TruncLenReverse, loaded.Denoise.TruncLenReverse)
	overrideInt(&base.Denoise.Threads, loaded.Denoise.Threads)

	overrideString(&base.Taxonomy.Classifier, loaded.Taxonomy.Classifier)
	overrideInt(&base.Taxonomy.Jobs, loaded.Taxonomy.Jobs)

	return nil
}

func overrideString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
