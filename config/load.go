package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/coachpo/eventloop/errs"
)

// Load reads a LoopConfig from a YAML file at path, applying its values on
// top of Default() so a partial document is enough to override just the
// fields an operator cares about.
func Load(path string) (LoopConfig, error) {
	const op = "config/load"
	path = strings.TrimSpace(path)
	if path == "" {
		return LoopConfig{}, errs.New(op, errs.CodeInvalid, errs.WithMessage("load path required"))
	}

	file, err := os.Open(filepath.Clean(path)) // #nosec G304 -- configuration paths are operator-controlled.
	if err != nil {
		return LoopConfig{}, errs.New(op, errs.CodeInvalid, errs.WithMessage("open "+path), errs.WithCause(err))
	}
	defer func() { _ = file.Close() }()

	raw, err := io.ReadAll(file)
	if err != nil {
		return LoopConfig{}, errs.New(op, errs.CodeInvalid, errs.WithMessage("read "+path), errs.WithCause(err))
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return LoopConfig{}, errs.New(op, errs.CodeInvalid, errs.WithMessage("unmarshal "+path), errs.WithCause(err))
	}
	if err := cfg.Validate(); err != nil {
		return LoopConfig{}, errs.New(op, errs.CodeInvalid, errs.WithMessage(path), errs.WithCause(err))
	}
	return cfg, nil
}

// LoadOrDefault loads path if non-empty and present, falling back to
// Default() when path is empty or the file does not exist. It reports
// loadedFromFile so callers can log which source was used, mirroring the
// teacher's LoadOrDefault contract.
func LoadOrDefault(path string) (cfg LoopConfig, loadedFromFile bool, err error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default(), false, nil
	}
	if _, statErr := os.Stat(path); statErr != nil {
		if os.IsNotExist(statErr) {
			return Default(), false, nil
		}
		return LoopConfig{}, false, errs.New("config/load", errs.CodeInvalid, errs.WithMessage("stat "+path), errs.WithCause(statErr))
	}
	cfg, err = Load(path)
	if err != nil {
		return LoopConfig{}, false, err
	}
	return cfg, true, nil
}
