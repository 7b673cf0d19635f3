package templates

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Benny93/mermaid-mcp/internal/diagram"
	"github.com/Benny93/mermaid-mcp/internal/storage"
)

// IgnoreFile lists gitignore-style patterns of files the loader skips.
const IgnoreFile = ".templateignore"

var validate = validator.New(validator.WithRequiredStructEnabled())

// fileTemplate is one entry of a YAML catalog file.
type fileTemplate struct {
	ID          string   `yaml:"id" validate:"required,excludesall=: "`
	Name        string   `yaml:"name" validate:"required"`
	Description string   `yaml:"description"`
	DiagramType string   `yaml:"diagramType"`
	Category    string   `yaml:"category" validate:"required"`
	Code        string   `yaml:"code" validate:"required"`
	Tags        []string `yaml:"tags"`
}

type catalogFile struct {
	Templates []fileTemplate `yaml:"templates"`
}

// IsCatalogFile reports whether path names a YAML catalog file.
func IsCatalogFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadFile reads the templates declared in a YAML catalog file. Each
// template's Source is set to path.
func LoadFile(path string) ([]storage.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	templates, err := Parse(data, path)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return templates, nil
}

// Parse decodes a catalog document. It accepts either a mapping with a
// "templates" list or a bare list of templates.
func Parse(data []byte, source string) ([]storage.Template, error) {
	var entries []fileTemplate

	var doc catalogFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if listErr := yaml.Unmarshal(data, &entries); listErr != nil {
			return nil, err
		}
	} else {
		entries = doc.Templates
	}

	out := make([]storage.Template, 0, len(entries))
	for i, e := range entries {
		t, err := e.template(source)
		if err != nil {
			return nil, fmt.Errorf("template %d (%s): %w", i+1, e.ID, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (e fileTemplate) template(source string) (storage.Template, error) {
	if err := validate.Struct(e); err != nil {
		return storage.Template{}, err
	}

	declared := diagram.Detect(e.Code)
	t := declared
	if e.DiagramType != "" {
		t = diagram.ParseType(e.DiagramType)
		if t == diagram.Unknown {
			return storage.Template{}, fmt.Errorf("unknown diagram type %q", e.DiagramType)
		}
		if declared != diagram.Unknown && declared != t {
			return storage.Template{}, fmt.Errorf("diagramType %q does not match code declaring %q", t, declared)
		}
	}
	if t == diagram.Unknown {
		return storage.Template{}, errors.New("code does not declare a diagram type")
	}

	return storage.Template{
		ID:          e.ID,
		Name:        e.Name,
		Description: e.Description,
		DiagramType: t,
		Category:    strings.ToLower(e.Category),
		Code:        strings.TrimRight(e.Code, "\n"),
		Tags:        e.Tags,
		Source:      source,
	}, nil
}

// LoadDir loads every catalog file under dir, skipping paths matched by the
// directory's ignore file. Files are returned in lexical order so later
// files override earlier ones deterministically.
func LoadDir(dir string) (map[string][]storage.Template, error) {
	matcher, err := loadIgnoreMatcher(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != dir && ignored(matcher, dir, path, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && IsCatalogFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	sort.Strings(files)

	out := make(map[string][]storage.Template, len(files))
	for _, path := range files {
		templates, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		out[path] = templates
	}
	return out, nil
}

// Load replaces the contents of store with the built-in catalog followed by
// the catalog files under dir (if dir is not empty). It returns the number
// of templates stored.
func Load(ctx context.Context, store storage.TemplateStore, dir string) (int, error) {
	if err := store.BulkLoad(ctx, Builtin()); err != nil {
		return 0, fmt.Errorf("loading built-in templates: %w", err)
	}
	if dir == "" {
		return store.Count(), nil
	}

	files, err := LoadDir(dir)
	if err != nil {
		return 0, err
	}

	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if err := store.Put(ctx, files[path]...); err != nil {
			return 0, fmt.Errorf("storing templates from %s: %w", path, err)
		}
	}
	return store.Count(), nil
}

// loadIgnoreMatcher loads the ignore patterns from dir. A missing ignore
// file yields a nil matcher.
func loadIgnoreMatcher(dir string) (gitignore.Matcher, error) {
	content, err := os.ReadFile(filepath.Join(dir, IgnoreFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}

	var patterns []gitignore.Pattern
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	return gitignore.NewMatcher(patterns), nil
}

func ignored(matcher gitignore.Matcher, dir, path string, isDir bool) bool {
	if matcher == nil {
		return false
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return matcher.Match(strings.Split(rel, string(filepath.Separator)), isDir)
}
