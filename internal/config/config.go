// Package config handles configuration loading and shared data structures.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config represents the root configuration file structure.
// Root values are defaults for every dataset.
type Config struct {
	Distance   *float64  `yaml:"distance,omitempty"`
	SourceEPSG int       `yaml:"source_epsg,omitempty"`
	QuadSegs   int       `yaml:"quad_segs,omitempty"`
	Format     string    `yaml:"format,omitempty"`
	Datasets   []Dataset `yaml:"datasets"`
}

// Dataset represents a single input to buffer.
type Dataset struct {
	// nil means the root or command line distance applies
	Distance *float64 `yaml:"distance,omitempty"`

	Name       string   `yaml:"name"`
	Input      string   `yaml:"input"`
	Output     string   `yaml:"output"`
	Preview    string   `yaml:"preview,omitempty"`
	Format     string   `yaml:"format,omitempty"`
	Aliases    []string `yaml:"aliases,omitempty"`
	SourceEPSG int      `yaml:"source_epsg,omitempty"`
	QuadSegs   int      `yaml:"quad_segs,omitempty"`
}

// Load reads and parses the YAML configuration file from the specified path.
// Dataset values left empty are filled from the root section.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) normalize() {
	for i := range c.Datasets {
		ds := &c.Datasets[i]

		if ds.Distance == nil {
			ds.Distance = c.Distance
		}
		if ds.SourceEPSG == 0 {
			ds.SourceEPSG = c.SourceEPSG
		}
		if ds.QuadSegs == 0 {
			ds.QuadSegs = c.QuadSegs
		}
		if ds.Format == "" {
			ds.Format = c.Format
		}
		if ds.Output == "" {
			ds.Output = "-"
		}
	}
}

// Validate checks dataset names are unique and every dataset has an input.
func (c *Config) Validate() error {
	seen := make(map[string]bool)

	for _, ds := range c.Datasets {
		if ds.Name == "" {
			return errors.New("dataset without name")
		}
		if ds.Input == "" {
			return fmt.Errorf("dataset %q: input is required", ds.Name)
		}

		for _, name := range append([]string{ds.Name}, ds.Aliases...) {
			if seen[name] {
				return fmt.Errorf("dataset %q: duplicate name or alias %q", ds.Name, name)
			}
			seen[name] = true
		}
	}

	return nil
}

// Select returns the datasets matching names or aliases, in the order requested.
// Unknown names are reported in missing. With no names all datasets are returned.
func (c *Config) Select(names []string) (selected []Dataset, missing []string) {
	if len(names) == 0 {
		return c.Datasets, nil
	}

	resolver := make(map[string]int)
	for i, ds := range c.Datasets {
		resolver[ds.Name] = i
		for _, alias := range ds.Aliases {
			resolver[alias] = i
		}
	}

	picked := make(map[int]bool)
	for _, name := range names {
		i, ok := resolver[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		if picked[i] {
			continue
		}
		picked[i] = true
		selected = append(selected, c.Datasets[i])
	}

	return selected, missing
}

// LoadEnv loads variables from a .env file in the working directory if one exists.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using process environment")
	}
}
