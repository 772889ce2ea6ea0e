// Package config loads the shaderjob.hcl project file.
//
// A minimal file:
//
//	output_dir = "internal/kernels"
//	namespace  = "kernels"
//
//	launch {
//	  package = "gpu"
//	}
//
// Every attribute is optional. Environment variables, including those from a
// .env file in the project root, are available as env.NAME.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/joho/godotenv"
	"github.com/zclconf/go-cty/cty"
	"golang.org/x/mod/modfile"

	"github.com/gogpu/shaderjob/internal/discover"
)

// FileName is the project file looked up in the root directory.
const FileName = "shaderjob.hcl"

// Defaults.
const (
	DefaultOutputDir = "shaderjobgen"
	DefaultPackage   = "shaderjobgen"
	DefaultNamespace = "shaderjob"
	DefaultStateDir  = ".shaderjob"
	DefaultImporter  = "source"
)

// Config is the resolved project configuration.
type Config struct {
	// Root is the absolute project directory.
	Root string
	// Prefix starts every location file name. Defaults to the module path.
	Prefix    string
	OutputDir string
	Package   string
	Namespace string
	StateDir  string
	// Importer selects how imports are resolved during type checking:
	// "source" or "none".
	Importer string
	Validate bool
	Launch   discover.Config
}

type file struct {
	Prefix    string  `hcl:"prefix,optional"`
	OutputDir string  `hcl:"output_dir,optional"`
	Package   string  `hcl:"package,optional"`
	Namespace string  `hcl:"namespace,optional"`
	StateDir  string  `hcl:"state_dir,optional"`
	Importer  string  `hcl:"importer,optional"`
	Validate  *bool   `hcl:"validate,optional"`
	Launch    *launch `hcl:"launch,block"`
}

type launch struct {
	Extent string `hcl:"extent,optional"`
	Run    string `hcl:"run,optional"`
	Thread string `hcl:"thread,optional"`
}

// Load reads the configuration of the project rooted at dir. A missing
// project file yields the defaults.
func Load(dir string) (*Config, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	_ = godotenv.Load(filepath.Join(root, ".env"))

	var f file
	path := filepath.Join(root, FileName)
	if _, err := os.Stat(path); err == nil {
		if err := decode(path, &f); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	c := &Config{
		Root:      root,
		Prefix:    f.Prefix,
		OutputDir: or(f.OutputDir, DefaultOutputDir),
		Package:   or(f.Package, DefaultPackage),
		Namespace: or(f.Namespace, DefaultNamespace),
		StateDir:  or(f.StateDir, DefaultStateDir),
		Importer:  or(f.Importer, DefaultImporter),
		Validate:  f.Validate == nil || *f.Validate,
		Launch:    discover.DefaultConfig(),
	}
	if l := f.Launch; l != nil {
		c.Launch = discover.Config{
			Extent: or(l.Extent, c.Launch.Extent),
			Run:    or(l.Run, c.Launch.Run),
			Thread: or(l.Thread, c.Launch.Thread),
		}
	}
	if c.Importer != "source" && c.Importer != "none" {
		return nil, fmt.Errorf("config: %s: importer must be \"source\" or \"none\", got %q", path, c.Importer)
	}
	if c.Prefix == "" {
		c.Prefix = ModulePath(root)
	}
	if c.Prefix == "" {
		c.Prefix = filepath.Base(root)
	}
	c.Prefix = strings.Trim(c.Prefix, "/")
	return c, nil
}

func decode(path string, f *file) error {
	parsed, diags := hclparse.NewParser().ParseHCLFile(path)
	if diags.HasErrors() {
		return fmt.Errorf("config: failed to parse %s: %w", path, diags)
	}
	diags = gohcl.DecodeBody(parsed.Body, evalContext(), f)
	if diags.HasErrors() {
		return fmt.Errorf("config: failed to decode %s: %w", path, diags)
	}
	return nil
}

// evalContext exposes the process environment as the env object.
func evalContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		vars[k] = cty.StringVal(v)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(vars),
		},
	}
}

// ModulePath returns the module path declared in root/go.mod, or "".
func ModulePath(root string) string {
	data, err := os.ReadFile(filepath.Join(root, "go.mod"))
	if err != nil {
		return ""
	}
	return modfile.ModulePath(data)
}

// OutputPath returns the absolute output directory.
func (c *Config) OutputPath() string { return c.abs(c.OutputDir) }

// RegistryPath returns the registry document path.
func (c *Config) RegistryPath() string { return filepath.Join(c.abs(c.StateDir), "registry.json") }

// QueuePath returns the durable queue path.
func (c *Config) QueuePath() string { return filepath.Join(c.abs(c.StateDir), "queue.json") }

func (c *Config) abs(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
