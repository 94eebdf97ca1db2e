package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// namedDatabase describes one database entry in a catalogue config file,
// e.g. a particular world's voxel chunk store.
type namedDatabase struct {
	Name              string `yaml:"name"`
	Path              string `yaml:"path"`
	KeySize           int    `yaml:"keySize"`
	ReservedTableSize int    `yaml:"reservedTableSize"`
	ReservedValueSize int    `yaml:"reservedValueSize"`
}

// catalogueConfig is the top-level shape of a console harness config file.
type catalogueConfig struct {
	Databases []namedDatabase `yaml:"databases"`
}

func loadCatalogueConfig(path string) (catalogueConfig, error) {
	var cfg catalogueConfig

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read catalogue config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse catalogue config %q: %w", path, err)
	}
	for i := range cfg.Databases {
		if cfg.Databases[i].Name == "" {
			return cfg, fmt.Errorf("catalogue config %q: database at index %d has no name", path, i)
		}
	}
	return cfg, nil
}

func (c catalogueConfig) find(name string) (namedDatabase, bool) {
	for _, d := range c.Databases {
		if d.Name == name {
			return d, true
		}
	}
	return namedDatabase{}, false
}
