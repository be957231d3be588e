package main

import (
	"os"

	"gopkg.in/yaml.v3"

	"scriptbox"
)

// fileConfig mirrors scriptbox.Config's yaml tags plus CLI-only knobs.
type fileConfig struct {
	MemoryLimit      uint64 `yaml:"memoryLimit"`
	InstructionLimit uint64 `yaml:"instructionLimit"`
	OutputLimit      int    `yaml:"outputLimit"`
	ModuleRoot       string `yaml:"moduleRoot"`
	PreservationPath string `yaml:"preservationPath"`
	Pretty           bool   `yaml:"pretty"`
}

func loadConfig(path string) (fileConfig, error) {
	if path == "" {
		return fileConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fileConfig{}, nil
		}
		return fileConfig{}, err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fileConfig{}, err
	}
	return fc, nil
}

func (fc fileConfig) sandboxConfig() scriptbox.Config {
	return scriptbox.Config{
		MemoryLimit:      fc.MemoryLimit,
		InstructionLimit: fc.InstructionLimit,
		OutputLimit:      fc.OutputLimit,
		ModuleRoot:       fc.ModuleRoot,
		PreservationPath: fc.PreservationPath,
	}
}
