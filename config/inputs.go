package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadInputs reads an input list from a YAML or JSON file. A document that is
// not a list becomes a single input.
func LoadInputs(path string) ([]any, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inputs file: %w", err)
	}

	var doc any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(content, &doc); err != nil {
			return nil, fmt.Errorf("invalid inputs file %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(content, &doc); err != nil {
			return nil, fmt.Errorf("invalid inputs file %s: %w", path, err)
		}
	}

	switch v := normalize(doc).(type) {
	case nil:
		return []any{}, nil
	case []any:
		return v, nil
	default:
		return []any{v}, nil
	}
}

// FileInputs expands glob patterns relative to baseDir into file reference
// inputs, sorted by path and without duplicates. Patterns that match nothing
// are an error.
func FileInputs(baseDir string, patterns []string) ([]any, error) {
	seen := make(map[string]struct{})
	var paths []string

	for _, pattern := range patterns {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(baseDir, pattern)
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", pattern)
		}
		for _, m := range matches {
			if info, err := os.Stat(m); err != nil || info.IsDir() {
				continue
			}
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			paths = append(paths, m)
		}
	}
	sort.Strings(paths)

	inputs := make([]any, len(paths))
	for i, p := range paths {
		inputs[i] = FileRef(p)
	}
	return inputs, nil
}

// FileRef describes a file input as seen by scripts.
func FileRef(path string) map[string]any {
	name := filepath.Base(path)
	ext := filepath.Ext(name)
	return map[string]any{
		"path": path,
		"dir":  filepath.Dir(path),
		"name": name,
		"stem": strings.TrimSuffix(name, ext),
		"ext":  ext,
	}
}

// normalize converts YAML specific shapes into the plain values scripts expect.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			t[k] = normalize(item)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[fmt.Sprint(k)] = normalize(item)
		}
		return out
	case []any:
		for i, item := range t {
			t[i] = normalize(item)
		}
		return t
	default:
		return v
	}
}
