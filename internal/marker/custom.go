package marker

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.schema.json
var catalogSchemaJSON []byte

const catalogSchemaURL = "https://docoutline.local/catalog.schema.json"

// ErrUnknownCatalog is returned by Registry.Lookup for unregistered names.
var ErrUnknownCatalog = errors.New("unknown marker catalog")

type catalogFile struct {
	Name         string  `yaml:"name"`
	Description  string  `yaml:"description"`
	Markers      []Entry `yaml:"markers"`
	HeadingTypes []Type  `yaml:"heading_types"`
	ArticleTypes []Type  `yaml:"article_types"`
}

var catalogSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal(catalogSchemaJSON, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(catalogSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add catalog schema: %w", err)
	}
	return compiler.Compile(catalogSchemaURL)
})

// ParseCatalog decodes a YAML catalog definition, validates it against the
// catalog schema and compiles its patterns.
func ParseCatalog(data []byte) (*PatternCatalog, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	// Round-trip through JSON so the validator sees JSON number and map types.
	js, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	var inst any
	if err := json.Unmarshal(js, &inst); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	schema, err := catalogSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(inst); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}

	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return NewCatalog(f.Name, f.Description, f.Markers, Policy{
		HeadingTypes: f.HeadingTypes,
		ArticleTypes: f.ArticleTypes,
	})
}

// LoadCatalogFile reads and parses one catalog file.
func LoadCatalogFile(path string) (*PatternCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return c, nil
}

// Registry maps catalog names to catalogs. Built-ins are always present.
type Registry struct {
	mu       sync.RWMutex
	catalogs map[string]*PatternCatalog
}

func NewRegistry() *Registry {
	r := &Registry{catalogs: make(map[string]*PatternCatalog)}
	for _, c := range []*PatternCatalog{General, FDA, ICH} {
		r.catalogs[c.Name()] = c
	}
	return r
}

// Register adds or replaces a catalog. Built-in names cannot be replaced.
func (r *Registry) Register(c *PatternCatalog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch c.Name() {
	case General.Name(), FDA.Name(), ICH.Name():
		return fmt.Errorf("catalog %s is built in", c.Name())
	}
	r.catalogs[c.Name()] = c
	return nil
}

// LoadDir registers every *.yaml and *.yml catalog in dir.
func (r *Registry) LoadDir(dir string) (int, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return 0, err
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)

	var errs []error
	n := 0
	for _, p := range paths {
		c, err := LoadCatalogFile(p)
		if err == nil {
			err = r.Register(c)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// Lookup resolves a catalog by name. An empty name selects the general catalog.
func (r *Registry) Lookup(name string) (*PatternCatalog, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return General, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.catalogs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCatalog, name)
	}
	return c, nil
}

// Names lists registered catalogs alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.catalogs))
	for n := range r.catalogs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
