// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fsutil confines request-derived paths to a served directory.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrEscapesRoot reports a path that leaves the root lexically or via symlinks.
	ErrEscapesRoot = errors.New("path escapes root")
	// ErrNotRegular reports a directory, device or other non-file target.
	ErrNotRegular = errors.New("not a regular file")
)

// ConfineRelPath joins root and rel and returns the resolved path, which is
// guaranteed to lie physically under the resolved root. rel must be relative
// and may not contain backslashes.
func ConfineRelPath(root, rel string) (string, error) {
	if strings.Contains(rel, "\\") {
		return "", fmt.Errorf("%w: backslash in %q", ErrEscapesRoot, rel)
	}
	cleanRel := filepath.Clean(rel)
	if filepath.IsAbs(cleanRel) {
		return "", fmt.Errorf("%w: absolute path %q", ErrEscapesRoot, rel)
	}
	if escapes(cleanRel) {
		return "", fmt.Errorf("%w: %q", ErrEscapesRoot, rel)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid root path: %w", err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", err
	}

	full := filepath.Join(realRoot, cleanRel)
	realPath, err := filepath.EvalSymlinks(full)
	if err != nil {
		// Missing targets resolve through their parent so callers get a clean not-exist.
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("resolve path: %w", err)
		}
		parent, perr := filepath.EvalSymlinks(filepath.Dir(full))
		if perr != nil {
			return "", err
		}
		realPath = filepath.Join(parent, filepath.Base(full))
	}

	within, err := filepath.Rel(realRoot, realPath)
	if err != nil || escapes(within) {
		return "", fmt.Errorf("%w: %s", ErrEscapesRoot, realPath)
	}
	return realPath, nil
}

// OpenRegular opens path for reading if it is a regular file.
func OpenRegular(path string) (*os.File, os.FileInfo, error) {
	f, err := os.Open(path) // #nosec G304 -- path was confined by the caller
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, nil, fmt.Errorf("%w: %s", ErrNotRegular, path)
	}
	return f, info, nil
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
