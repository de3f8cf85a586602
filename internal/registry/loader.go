package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"elementd/internal/common/fsutil"
	"elementd/pkg/types"
)

// LoadDir reads every *.yaml, *.yml and *.json file in dir as one element.
// An element without an id takes the file name stem. Elements are validated
// and returned sorted by id; duplicate ids are an error.
func LoadDir(dir string) ([]types.Element, error) {
	abs, err := fsutil.ResolveDir(dir)
	if err != nil {
		return nil, fmt.Errorf("elements dir: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	seen := make(map[string]string)
	var out []types.Element
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !fsutil.HasExt(name, ".yaml", ".yml", ".json") {
			continue
		}
		el, err := LoadFile(filepath.Join(abs, name))
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[el.ID]; dup {
			return nil, fmt.Errorf("%s: duplicate element id %q (also in %s)", name, el.ID, prev)
		}
		seen[el.ID] = name
		out = append(out, el)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// LoadFile decodes a single element file.
func LoadFile(path string) (types.Element, error) {
	var el types.Element
	b, err := os.ReadFile(path)
	if err != nil {
		return el, err
	}
	name := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &el)
	case ".json":
		err = json.Unmarshal(b, &el)
	default:
		return el, fmt.Errorf("%s: unsupported element file extension: %s", name, ext)
	}
	if err != nil {
		return el, fmt.Errorf("%s: %w", name, err)
	}
	if el.ID == "" {
		el.ID = strings.TrimSuffix(name, filepath.Ext(name))
	}
	if err := el.Validate(); err != nil {
		return el, fmt.Errorf("%s: %w", name, err)
	}
	return el, nil
}
