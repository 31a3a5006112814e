package jardb

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// FeatureSet is an integer bitmask of recognized database features.
type FeatureSet uint32

// AppendOnly enables the append-only log: every successful mutation is
// recorded as a replayable command once the database has finished opening.
const AppendOnly FeatureSet = 1 << 0

// Options configures Open. The zero value is not valid on its own; use
// DefaultOptions and override fields, or LoadOptionsFile to read overrides
// from a JSONC file.
type Options struct {
	Path             string     `json:"path"`
	Name             string     `json:"name"`
	FeatureSet       FeatureSet `json:"feature_set"`
	InitialSlotCount int        `json:"initial_slot_count"`
	Diag             Diag       `json:"-"`
}

// DefaultOptions returns the baseline configuration: append-only logging
// enabled, a 4096-slot initial table, diagnostics to stderr.
func DefaultOptions(path, name string) Options {
	return Options{
		Path:             path,
		Name:             name,
		FeatureSet:       AppendOnly,
		InitialSlotCount: defaultInitialSlotCount,
		Diag:             defaultDiag(),
	}
}

const defaultInitialSlotCount = 4096

// fileOptions mirrors the subset of Options that can be expressed in a
// JSONC overrides file; Diag is not serializable and is left untouched.
type fileOptions struct {
	Path             string `json:"path"`
	Name             string `json:"name"`
	AppendOnly       *bool  `json:"append_only,omitempty"`
	InitialSlotCount *int   `json:"initial_slot_count,omitempty"`
}

// LoadOptionsFile reads a JSONC overrides file (comments and trailing
// commas allowed, standardized via hujson) and layers it over base,
// mirroring the precedence model used elsewhere in this codebase: defaults
// first, file overrides on top, any field left unset in the file is kept
// from base.
func LoadOptionsFile(path string, base Options) (Options, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled, same as every config loader in this codebase
	if err != nil {
		return Options{}, fmt.Errorf("reading options file: %w", err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Options{}, fmt.Errorf("invalid JSONC options file: %w", err)
	}

	var fo fileOptions

	if err := json.Unmarshal(standardized, &fo); err != nil {
		return Options{}, fmt.Errorf("invalid JSON in options file: %w", err)
	}

	merged := base
	if fo.Path != "" {
		merged.Path = fo.Path
	}

	if fo.Name != "" {
		merged.Name = fo.Name
	}

	if fo.AppendOnly != nil {
		if *fo.AppendOnly {
			merged.FeatureSet |= AppendOnly
		} else {
			merged.FeatureSet &^= AppendOnly
		}
	}

	if fo.InitialSlotCount != nil {
		merged.InitialSlotCount = *fo.InitialSlotCount
	}

	return merged, validateOptions(merged)
}

func validateOptions(o Options) error {
	if o.Path == "" {
		return fmt.Errorf("jardb: options.path must not be empty")
	}

	if o.Name == "" {
		return fmt.Errorf("jardb: options.name must not be empty")
	}

	if o.InitialSlotCount <= 0 || !isPow2(o.InitialSlotCount) {
		return fmt.Errorf("jardb: options.initial_slot_count must be a positive power of two, got %d", o.InitialSlotCount)
	}

	return nil
}
