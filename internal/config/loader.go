package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix is the prefix of environment variable overrides.
	EnvPrefix = "WORLDMODEL_"
)

// Load builds the run configuration for the environment named envName.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (WORLDMODEL_RUN_PREFILL, WORLDMODEL_ENV_NUM_ENVS, ...)
//  2. The `envs.<envName>` section of the YAML file
//  3. The `defaults` section of the YAML file
//  4. Hardcoded defaults (Default)
//
// A file without `defaults`/`envs` sections is treated as a flat defaults
// section. An empty configPath skips the file entirely. A non-empty envName
// always wins over env.name from the file.
//
// # Environment Variable Mapping
//
// The prefix is stripped, the rest lowercased and split on the first
// underscore into section and field:
//
//	WORLDMODEL_RUN_ZERO_SHOT -> run.zero_shot
//	WORLDMODEL_ENV_NUM_ENVS  -> env.num_envs
//	WORLDMODEL_DEVICE        -> device
func Load(configPath, envName string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		file := koanf.New(".")
		if err := file.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		sections, err := selectSections(file, envName)
		if err != nil {
			return nil, err
		}
		if err := k.Merge(sections); err != nil {
			return nil, fmt.Errorf("failed to merge config sections: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if envName != "" {
		cfg.Env.Name = envName
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// selectSections merges `defaults` with `envs.<envName>`.
func selectSections(file *koanf.Koanf, envName string) (*koanf.Koanf, error) {
	if !file.Exists("defaults") && !file.Exists("envs") {
		return file, nil
	}
	merged := file.Cut("defaults")
	if envName == "" {
		envName = merged.String("env.name")
	}
	if envName != "" && !strings.Contains(envName, ".") {
		if err := merged.Merge(file.Cut("envs." + envName)); err != nil {
			return nil, fmt.Errorf("failed to merge envs.%s over defaults: %w", envName, err)
		}
	}
	return merged, nil
}

// envKey maps WORLDMODEL_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// readConfigFile reads the YAML document, refusing oversized files.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}
