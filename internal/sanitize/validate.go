// Package sanitize validates caller-supplied identifiers and transcript paths
// before they reach the store or the filesystem.
package sanitize

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Validation errors for security checks.
var (
	// ErrPathTraversal indicates a path contains directory traversal sequences
	// or escapes the allowed root.
	ErrPathTraversal = errors.New("path contains directory traversal")

	// ErrEmptyPath indicates an empty path was provided.
	ErrEmptyPath = errors.New("path cannot be empty")

	// ErrInvalidID indicates a chat, project or item id has an unsafe format.
	ErrInvalidID = errors.New("invalid identifier format")
)

// MaxIDLength bounds chat, project and item identifiers.
const MaxIDLength = 128

// idPattern accepts uuids, slugs and dotted or namespaced names.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:@-]*$`)

// ValidatePath cleans path and returns its absolute form.
//
// Paths containing ".." are rejected outright. When allowedRoot is set the
// resolved path must also lie within it.
func ValidatePath(path, allowedRoot string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrEmptyPath
	}
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("%w: contains '..'", ErrPathTraversal)
	}

	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	if allowedRoot == "" {
		return absPath, nil
	}
	absRoot, err := filepath.Abs(allowedRoot)
	if err != nil {
		return "", fmt.Errorf("failed to resolve allowed root: %w", err)
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside %s", ErrPathTraversal, absPath, absRoot)
	}
	return absPath, nil
}

// ValidateID checks a required identifier. field names it in the error.
func ValidateID(field, id string) error {
	if id == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidID, field)
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidID, field, MaxIDLength)
	}
	if strings.Contains(id, "..") || !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %s %q must be alphanumeric with . _ : @ -", ErrInvalidID, field, id)
	}
	return nil
}

// ValidateOptionalID is ValidateID for identifiers that may be empty.
func ValidateOptionalID(field, id string) error {
	if id == "" {
		return nil
	}
	return ValidateID(field, id)
}
