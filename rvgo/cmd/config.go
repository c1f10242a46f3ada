package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/rv32emu/rv32emu/rvgo/vm"
)

// LoadConfig reads a YAML machine description on top of the default machine.
// Unknown fields are rejected so typos do not silently fall back to defaults.
func LoadConfig(r io.Reader) (vm.Config, error) {
	cfg := vm.DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return vm.Config{}, fmt.Errorf("failed to decode machine config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return vm.Config{}, err
	}
	return cfg, nil
}

func LoadConfigFile(path string) (vm.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return vm.Config{}, fmt.Errorf("failed to open machine config: %w", err)
	}
	defer f.Close()
	return LoadConfig(f)
}

// machineConfig resolves the --config and --bootargs flags.
func machineConfig(ctx *cli.Context) (vm.Config, error) {
	cfg := vm.DefaultConfig()
	if path := ctx.Path(ConfigFlag.Name); path != "" {
		c, err := LoadConfigFile(path)
		if err != nil {
			return vm.Config{}, err
		}
		cfg = c
	}
	if ctx.IsSet(BootargsFlag.Name) {
		cfg.Bootargs = ctx.String(BootargsFlag.Name)
	}
	return cfg, nil
}
