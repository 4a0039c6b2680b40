// Package resources exposes URI-addressable, read-only resources
// (workspace files and captured logs) behind a prefix-dispatched
// registry and a path sandbox.
package resources

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound indicates the requested resource does not exist.
var ErrNotFound = errors.New("resource not found")

// ErrOutOfSandbox indicates a path that resolves outside the workspace
// root or violates the configured allow-rules.
var ErrOutOfSandbox = errors.New("path outside workspace sandbox")

// SandboxRules restricts which files inside the root may be accessed.
// Empty rule sets are permissive.
type SandboxRules struct {
	// AllowedSuffixes lists permitted file suffixes, e.g. ".dart".
	AllowedSuffixes []string `yaml:"allowed_suffixes"`

	// AllowedNames lists permitted exact file names, e.g. "pubspec.yaml".
	AllowedNames []string `yaml:"allowed_names"`
}

// Sandbox resolves requested paths against a workspace root, rejecting
// anything that escapes it via relative segments or symlinks.
type Sandbox struct {
	root  string
	rules SandboxRules
}

// NewSandbox creates a sandbox rooted at the given directory. The root
// is canonicalized up front so later containment checks compare against
// its real location.
func NewSandbox(root string, rules SandboxRules) (*Sandbox, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("workspace root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return &Sandbox{root: abs, rules: rules}, nil
}

// Root returns the canonical workspace root.
func (s *Sandbox) Root() string {
	return s.root
}

// Resolve returns the canonical absolute path for a workspace-relative
// (or absolute) path, or ErrOutOfSandbox when the path escapes the root
// after cleaning and symlink resolution.
func (s *Sandbox) Resolve(path string) (string, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return s.root, nil
	}

	var target string
	if filepath.IsAbs(clean) {
		target = filepath.Clean(clean)
	} else {
		target = filepath.Join(s.root, clean)
	}

	if !s.contains(target) {
		return "", fmt.Errorf("%w: %s", ErrOutOfSandbox, path)
	}

	// A symlink inside the root may still point outside it.
	resolved, err := resolveExisting(target)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if !s.contains(resolved) {
		return "", fmt.Errorf("%w: %s", ErrOutOfSandbox, path)
	}

	return resolved, nil
}

// contains reports whether target is the root or a descendant of it.
func (s *Sandbox) contains(target string) bool {
	rel, err := filepath.Rel(s.root, target)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator)))
}

// AllowedFile reports whether a file name passes the allow-rules.
// Absent rules mean every file is allowed.
func (s *Sandbox) AllowedFile(name string) bool {
	if len(s.rules.AllowedSuffixes) == 0 && len(s.rules.AllowedNames) == 0 {
		return true
	}
	base := filepath.Base(name)
	for _, allowed := range s.rules.AllowedNames {
		if base == allowed {
			return true
		}
	}
	for _, suffix := range s.rules.AllowedSuffixes {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return false
}

// resolveExisting evaluates symlinks for the deepest existing ancestor
// of target and rejoins the non-existing remainder, so containment can
// be checked for paths that are about to be read.
func resolveExisting(target string) (string, error) {
	remainder := ""
	current := target
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			return filepath.Join(resolved, remainder), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return filepath.Join(current, remainder), nil
		}
		remainder = filepath.Join(filepath.Base(current), remainder)
		current = parent
	}
}
