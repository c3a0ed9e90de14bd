package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/slighter12/dataset-mcp-go/logger"
	"github.com/slighter12/dataset-mcp-go/mcp"
	"github.com/slighter12/dataset-mcp-go/tools/types"
)

// ErrDiscoveryDir marks a discovery directory that cannot be scanned. It is
// the only fatal discovery failure.
var ErrDiscoveryDir = errors.New("discovery directory unavailable")

// Load stages recorded on LoadError.
const (
	StageRead       = "read"
	StageDecode     = "decode"
	StageDescriptor = "descriptor"
	StageSchema     = "schema"
	StageHandler    = "handler"
	StageRegister   = "register"
)

// Suffixes of tool-definition files, longest first so the module name strips
// the whole suffix.
var definitionSuffixes = []string{".tool.yaml", ".tool.json", ".tool.yml", ".tool"}

var reservedStems = map[string]struct{}{
	"registry": {},
	"internal": {},
}

// Manifest is the decoded content of one tool-definition file.
type Manifest struct {
	Name        string               `yaml:"name"`
	Title       string               `yaml:"title,omitempty"`
	Description string               `yaml:"description,omitempty"`
	InputSchema map[string]any       `yaml:"input_schema,omitempty"`
	Annotations *mcp.ToolAnnotations `yaml:"annotations,omitempty"`
	Handler     *types.HandlerSpec   `yaml:"handler,omitempty"`
}

// LoadError records why one definition file did not produce a tool.
type LoadError struct {
	Module string
	Path   string
	Stage  string
	Err    error
}

func (e LoadError) Error() string {
	return fmt.Sprintf("%s (%s): %s: %v", e.Module, e.Path, e.Stage, e.Err)
}

func (e LoadError) Unwrap() error {
	return e.Err
}

// Report summarizes one discovery pass.
type Report struct {
	Dir     string
	Loaded  []string
	Skipped []string
	Errors  []LoadError
}

func (r Report) HasErrors() bool {
	return len(r.Errors) > 0
}

// ErrorFor returns the load error recorded for module, if any. A module whose
// stem is shared by several files is keyed by its file name.
func (r Report) ErrorFor(module string) (LoadError, bool) {
	for _, loadErr := range r.Errors {
		if loadErr.Module == module {
			return loadErr, true
		}
	}
	return LoadError{}, false
}

// ModuleName returns the module name for a definition file name and whether
// the file takes part in discovery at all.
func ModuleName(fileName string) (string, bool) {
	if fileName == "" || strings.HasPrefix(fileName, "_") || strings.HasPrefix(fileName, ".") {
		return "", false
	}
	for _, suffix := range definitionSuffixes {
		stem, found := strings.CutSuffix(fileName, suffix)
		if !found {
			continue
		}
		if stem == "" {
			return "", false
		}
		if _, reserved := reservedStems[strings.ToLower(stem)]; reserved {
			return "", false
		}
		return stem, true
	}
	return "", false
}

// CandidateFiles lists the definition files in dir in lexical order. The scan
// is not recursive.
func CandidateFiles(dir string) ([]string, error) {
	dir = expandUser(strings.TrimSpace(dir))
	if dir == "" {
		return nil, fmt.Errorf("%w: path is empty", ErrDiscoveryDir)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiscoveryDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrDiscoveryDir, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiscoveryDir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if _, ok := ModuleName(entry.Name()); !ok {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		// Follow symlinks; only regular files count.
		stat, err := os.Stat(path)
		if err != nil || !stat.Mode().IsRegular() {
			continue
		}
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}

// Discover scans dir, builds a descriptor for every definition file and
// registers it. Per-file failures are collected in the report; only an
// unusable directory returns an error. Cancelling ctx stops the scan early.
func Discover(ctx context.Context, dir string, catalog *Catalog, registry *Registry) (Report, error) {
	report := Report{Dir: dir}
	if catalog == nil || registry == nil {
		return report, errors.New("discover: catalog and registry are required")
	}

	files, err := CandidateFiles(dir)
	if err != nil {
		return report, err
	}

	modules := moduleNames(files)
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		module := modules[path]
		name, skipped, loadErr := loadDefinition(path, module, catalog, registry)
		switch {
		case loadErr != nil:
			report.Errors = append(report.Errors, *loadErr)
			logger.Warn("Tool failed to load", "module", module, "path", path, "stage", loadErr.Stage, "error", loadErr.Err)
		case skipped:
			report.Skipped = append(report.Skipped, module)
			logger.Debug("Definition file declares no tool; skipped", "module", module, "path", path)
		default:
			report.Loaded = append(report.Loaded, name)
		}
	}

	logger.Info("Tool discovery complete",
		"dir", dir,
		"loaded", len(report.Loaded),
		"skipped", len(report.Skipped),
		"errors", len(report.Errors),
	)
	return report, nil
}

// moduleNames maps each file to its module name. Files that share a stem,
// such as echo.tool and echo.tool.yaml, keep their full file name so report
// entries stay distinguishable.
func moduleNames(files []string) map[string]string {
	stems := make(map[string]int, len(files))
	for _, path := range files {
		stem, _ := ModuleName(filepath.Base(path))
		stems[stem]++
	}
	modules := make(map[string]string, len(files))
	for _, path := range files {
		base := filepath.Base(path)
		stem, _ := ModuleName(base)
		if stems[stem] > 1 {
			stem = base
		}
		modules[path] = stem
	}
	return modules
}

// loadDefinition never panics: a panicking factory is reported against the
// stage it was in.
func loadDefinition(path, module string, catalog *Catalog, registry *Registry) (name string, skipped bool, loadErr *LoadError) {
	stage := StageRead
	fail := func(err error) (string, bool, *LoadError) {
		return "", false, &LoadError{Module: module, Path: path, Stage: stage, Err: err}
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Debug("Recovered panic while loading tool", "module", module, "stack", string(debug.Stack()))
			name, skipped = "", false
			loadErr = &LoadError{Module: module, Path: path, Stage: stage, Err: fmt.Errorf("panic: %v", recovered)}
		}
	}()

	data, err := os.ReadFile(path)
	if err != nil {
		return fail(err)
	}

	stage = StageDecode
	manifest, empty, err := decodeManifest(data)
	if err != nil {
		return fail(err)
	}
	if empty || (manifest.Name == "" && manifest.Handler == nil) {
		return "", true, nil
	}

	stage = StageDescriptor
	if manifest.Name == "" {
		return fail(errors.New("name is required"))
	}
	if !types.ValidName(manifest.Name) {
		return fail(fmt.Errorf("%w: %q", types.ErrInvalidName, manifest.Name))
	}
	if manifest.Handler == nil {
		return fail(errors.New("handler is required"))
	}

	stage = StageSchema
	schema, err := schemaFromMap(manifest.InputSchema)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", types.ErrInvalidSchema, err))
	}
	descriptor := types.Descriptor{
		Name:        manifest.Name,
		Title:       manifest.Title,
		Description: strings.TrimSpace(manifest.Description),
		InputSchema: schema,
		Annotations: manifest.Annotations,
		Source:      path,
	}
	if err := descriptor.Prepare(); err != nil {
		return fail(err)
	}

	stage = StageHandler
	handler, err := catalog.Resolve(types.Binding{
		ToolName: manifest.Name,
		Source:   path,
		Dir:      filepath.Dir(path),
		Spec:     *manifest.Handler,
	})
	if err != nil {
		return fail(err)
	}
	descriptor.Handler = handler

	stage = StageRegister
	if err := registry.Register(descriptor); err != nil {
		return fail(err)
	}
	return descriptor.Name, false, nil
}

// decodeManifest decodes YAML or JSON (a YAML subset) with unknown fields
// rejected. empty is true for a file with no document.
func decodeManifest(data []byte) (manifest Manifest, empty bool, err error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&manifest); err != nil {
		if errors.Is(err, io.EOF) {
			return Manifest{}, true, nil
		}
		return Manifest{}, false, err
	}
	return manifest, false, nil
}

// schemaFromMap converts the YAML-decoded schema into a jsonschema.Schema by
// way of its JSON form.
func schemaFromMap(raw map[string]any) (*jsonschema.Schema, error) {
	if raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, err
	}
	return &schema, nil
}

func expandUser(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
