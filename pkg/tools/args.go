package tools

import (
	"fmt"
	"path/filepath"
	"strings"
)

// resolvePath maps a model-supplied relative path onto the workspace
// root, rejecting absolute paths and anything that climbs out of it.
func resolvePath(root, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("path is required")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("path must be relative to the workspace: %s", rel)
	}
	clean := filepath.Clean(rel)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes the workspace: %s", rel)
	}
	return filepath.Join(root, clean), nil
}

// stringArg extracts a required string argument from a tool call.
func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string, got %T", key, v)
	}
	return s, nil
}

// stringArgOr extracts an optional string argument, falling back to def
// when the key is absent or empty.
func stringArgOr(args map[string]any, key, def string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string, got %T", key, v)
	}
	if s == "" {
		return def, nil
	}
	return s, nil
}

// intArg extracts a required integer argument. JSON decoding hands
// numbers to tools as float64, but plain int and int64 show up when
// calls are constructed in tests, so all three are accepted.
func intArg(args map[string]any, key string) (int, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("missing required argument %q", key)
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("argument %q must be an integer, got %T", key, v)
	}
}
