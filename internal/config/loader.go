package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// includeKey composes config files: its value names one file or a list
// of files merged beneath the including document.
const includeKey = "$include"

// LoadRaw reads a configuration file into a merged raw map, resolving
// $include directives relative to the including file. Included files
// merge first, so on conflicts the including file wins. Environment
// variables expand before parsing; format is chosen by extension
// (.json/.json5 are JSON5, everything else is YAML).
func LoadRaw(path string) (map[string]any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	return loadMerged(path, map[string]bool{})
}

func loadMerged(path string, visiting map[string]bool) (map[string]any, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if visiting[abs] {
		return nil, fmt.Errorf("config include cycle detected at %s", abs)
	}
	visiting[abs] = true
	defer delete(visiting, abs)

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	doc, err := decodeDocument([]byte(os.ExpandEnv(string(data))), filepath.Ext(abs))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", abs, err)
	}

	includes, err := includePaths(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", abs, err)
	}

	merged := map[string]any{}
	for _, include := range includes {
		if !filepath.IsAbs(include) {
			include = filepath.Join(filepath.Dir(abs), include)
		}
		included, err := loadMerged(include, visiting)
		if err != nil {
			return nil, err
		}
		merged = mergeMaps(merged, included)
	}
	return mergeMaps(merged, doc), nil
}

// decodeDocument parses one config document into a raw map. YAML input
// must hold exactly one document; a second one is a config error, not
// something to silently drop.
func decodeDocument(data []byte, ext string) (map[string]any, error) {
	doc := map[string]any{}
	switch strings.ToLower(ext) {
	case ".json", ".json5":
		if err := json5.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	default:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		if err := decoder.Decode(&doc); err != nil && err != io.EOF {
			return nil, err
		}
		if err := decoder.Decode(&struct{}{}); err != io.EOF {
			return nil, fmt.Errorf("expected a single document")
		}
	}
	return doc, nil
}

// includePaths extracts and removes the $include directive. The value
// must be a non-empty path or a list of them.
func includePaths(doc map[string]any) ([]string, error) {
	value, ok := doc[includeKey]
	if !ok {
		return nil, nil
	}
	delete(doc, includeKey)

	var raw []any
	switch typed := value.(type) {
	case string:
		raw = []any{typed}
	case []any:
		raw = typed
	default:
		return nil, fmt.Errorf("%s must be a path or a list of paths", includeKey)
	}

	paths := make([]string, 0, len(raw))
	for _, entry := range raw {
		path, ok := entry.(string)
		if !ok || strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("%s entries must be non-empty paths", includeKey)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// mergeMaps deep-merges src into dst: nested maps merge recursively,
// anything else in src replaces dst's value.
func mergeMaps(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for key, value := range src {
		srcMap, srcIsMap := value.(map[string]any)
		dstMap, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			dst[key] = mergeMaps(dstMap, srcMap)
			continue
		}
		dst[key] = value
	}
	return dst
}

// decodeRawConfig decodes the merged raw map into the typed Config,
// rejecting keys the schema does not know.
func decodeRawConfig(raw map[string]any) (*Config, error) {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("serialize config: %w", err)
	}
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
