// Package pyconfig loads engine configuration from the [tool.clean-arch]
// section of the target project's pyproject.toml.
package pyconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/stellar-eng/excelsior/repository"
)

// ConfigError reports a missing or malformed configuration. It is fatal and
// surfaced before any pass runs.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ContractIntegrity configures the W9201 decision algorithm.
type ContractIntegrity struct {
	RequireProtocol         []string `toml:"require_protocol"`
	InternalImplementation  []string `toml:"internal_implementation"`
	FrameworkBaseClasses    []string `toml:"framework_base_classes"`
	AllowPrivatePrefix      bool     `toml:"allow_private_prefix"`
	AllowInternalDecorator  bool     `toml:"allow_internal_decorator"`
	ServicesRequireProtocol bool     `toml:"services_require_protocol"`
	AdaptersRequireProtocol bool     `toml:"adapters_require_protocol"`
	GatewaysRequireProtocol bool     `toml:"gateways_require_protocol"`
	OtherRequireProtocol    bool     `toml:"other_require_protocol"`
	AutoDetectDI            bool     `toml:"auto_detect_di"`
	AutoDetectImports       bool     `toml:"auto_detect_imports"`
	AutoDetectProtocols     bool     `toml:"auto_detect_protocols"`
}

// Config is the immutable per-run configuration.
type Config struct {
	ProjectType           string            `toml:"project_type"`
	VisibilityEnforcement bool              `toml:"visibility_enforcement"`
	SilentLayers          []string          `toml:"silent_layers"`
	AllowedIOInterfaces   []string          `toml:"allowed_io_interfaces"`
	SharedKernelModules   []string          `toml:"shared_kernel_modules"`
	LayerMap              map[string]string `toml:"layer_map"`
	LayerPatterns         map[string]string `toml:"layer_patterns"`
	InternalModules       []string          `toml:"internal_modules"`
	InfrastructureModules []string          `toml:"infrastructure_modules"`
	RawTypes              []string          `toml:"raw_types"`
	AllowedLodRoots       []string          `toml:"allowed_lod_roots"`
	EntryModules          []string          `toml:"entry_modules"`
	EntropyContexts       []string          `toml:"entropy_contexts"`
	ContractIntegrity     ContractIntegrity `toml:"contract_integrity"`

	ComplexityThreshold       int `toml:"complexity_threshold"`
	InterfaceSegregationLimit int `toml:"interface_segregation_limit"`
	MockLimit                 int `toml:"mock_limit"`

	RuffEnabled         bool `toml:"ruff_enabled"`
	ImportLinterEnabled bool `toml:"import_linter_enabled"`
	MypyEnabled         bool `toml:"mypy_enabled"`
	PatternsBlock       bool `toml:"patterns_block"`

	// Root is the detected project root (directory of pyproject.toml).
	Root string `toml:"-"`
}

// Default returns the built-in configuration used when no pyproject section
// exists.
func Default() *Config {
	return &Config{
		ProjectType:           "generic",
		VisibilityEnforcement: true,
		SilentLayers:          []string{"Domain", "UseCase"},
		AllowedIOInterfaces:   []string{"TelemetryPort", "LoggerPort"},
		AllowedLodRoots:       []string{"builtins", "typing", "importlib", "pathlib", "os", "re", "subprocess", "json", "logging"},
		EntryModules:          []string{"main", "cli", "app", "manage", "wsgi", "asgi", "conftest", "setup", "__main__"},
		EntropyContexts:       []string{"list", "set", "dict"},
		ContractIntegrity: ContractIntegrity{
			AllowPrivatePrefix:      true,
			AllowInternalDecorator:  true,
			ServicesRequireProtocol: true,
			AdaptersRequireProtocol: true,
			GatewaysRequireProtocol: true,
			AutoDetectDI:            true,
			AutoDetectImports:       true,
			AutoDetectProtocols:     true,
		},
		ComplexityThreshold:       10,
		InterfaceSegregationLimit: 7,
		MockLimit:                 4,
		RuffEnabled:               true,
		ImportLinterEnabled:       true,
		MypyEnabled:               true,
	}
}

type pyprojectFile struct {
	Tool struct {
		CleanArch toml.Primitive `toml:"clean-arch"`
	} `toml:"tool"`
}

// FindProjectRoot walks up from start looking for pyproject.toml, then
// requirements.txt, then .git. Returns the starting directory when no marker
// is found.
func FindProjectRoot(start string) string {
	project, err := repository.New().DetectProject(start)
	if err != nil {
		return start
	}
	return project.RootPath
}

// Load finds pyproject.toml upward from target and decodes [tool.clean-arch]
// over the defaults. A missing file or section yields the defaults; a
// malformed file yields a ConfigError.
func Load(target string) (*Config, error) {
	root := FindProjectRoot(target)
	cfg := Default()
	cfg.Root = root

	path := filepath.Join(root, "pyproject.toml")
	if _, err := os.Stat(path); err != nil {
		return cfg, nil
	}
	var file pyprojectFile
	meta, err := toml.DecodeFile(path, &file)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	if !meta.IsDefined("tool", "clean-arch") {
		return cfg, nil
	}
	if err := meta.PrimitiveDecode(file.Tool.CleanArch, cfg); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	cfg.Root = root
	if cfg.ComplexityThreshold <= 0 {
		cfg.ComplexityThreshold = 10
	}
	if cfg.InterfaceSegregationLimit <= 0 {
		cfg.InterfaceSegregationLimit = 7
	}
	if cfg.MockLimit <= 0 {
		cfg.MockLimit = 4
	}
	if len(cfg.SilentLayers) == 0 {
		cfg.SilentLayers = []string{"Domain", "UseCase"}
	}
	return cfg, nil
}

// IsSilentLayer reports whether layer is configured as forbidden to perform
// direct I/O.
func (c *Config) IsSilentLayer(layer string) bool {
	for _, l := range c.SilentLayers {
		if l == layer {
			return true
		}
	}
	return false
}

// IsSharedKernel reports whether module (dotted) belongs to the shared kernel.
func (c *Config) IsSharedKernel(module string) bool {
	for _, m := range c.SharedKernelModules {
		if module == m || len(module) > len(m) && module[:len(m)+1] == m+"." {
			return true
		}
	}
	return false
}

// IsEntryModule reports whether the module basename is an allowlisted entry
// point (exempt from W9011/W9018).
func (c *Config) IsEntryModule(name string) bool {
	base := name
	if idx := lastIndexByte(base, '.'); idx >= 0 {
		base = base[idx+1:]
	}
	for _, m := range c.EntryModules {
		if base == m {
			return true
		}
	}
	return false
}

func lastIndexByte(s string, b byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == b {
			return i
		}
	}
	return -1
}
