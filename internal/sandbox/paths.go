package sandbox

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// maxSymlinkHops matches the usual kernel limit before ELOOP.
const maxSymlinkHops = 40

// ResolvePath maps a caller-supplied path to an absolute canonical path
// inside root. root must already be absolute and canonical.
//
// Empty p means root. Relative p is joined to root; absolute p is resolved
// as given and must still land inside root. Symlinks are followed and . and
// .. are applied physically, component by component, before the containment
// check, so a link or a parent hop cannot smuggle the result out. Components
// that do not exist yet are kept as-is, which lets callers resolve paths
// they are about to create.
func ResolvePath(root, p string) (string, error) {
	target := root
	if p != "" {
		if filepath.IsAbs(p) {
			target = p
		} else {
			target = root + string(filepath.Separator) + p
		}
	}

	resolved, err := canonicalize(target)
	if err != nil {
		return "", fmt.Errorf("resolving %q: %w", p, err)
	}
	if !within(root, resolved) {
		return "", &PathEscapeError{Root: root, Path: p, Resolved: resolved}
	}
	return resolved, nil
}

// within reports whether path is root or a descendant of it. The test is on
// a separator boundary: /tmp/sb-1 does not contain /tmp/sb-10.
func within(root, path string) bool {
	if path == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

// canonicalize walks an absolute path one component at a time, expanding
// symlinks as the kernel would. Unlike filepath.EvalSymlinks it tolerates
// missing components, including the target of a dangling link.
func canonicalize(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return "", fmt.Errorf("%w: path %q is not absolute", ErrInvalidArgument, path)
	}

	sep := string(filepath.Separator)
	current := sep
	pending := splitPath(path)
	hops := 0

	for len(pending) > 0 {
		comp := pending[0]
		pending = pending[1:]

		switch comp {
		case "", ".":
			continue
		case "..":
			current = filepath.Dir(current)
			continue
		}

		next := filepath.Join(current, comp)
		info, err := os.Lstat(next)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
				current = next
				continue
			}
			return "", err
		}

		if info.Mode()&fs.ModeSymlink == 0 {
			current = next
			continue
		}

		hops++
		if hops > maxSymlinkHops {
			return "", fmt.Errorf("%s: too many levels of symbolic links", next)
		}
		link, err := os.Readlink(next)
		if err != nil {
			return "", err
		}
		if filepath.IsAbs(link) {
			current = sep
		}
		pending = append(splitPath(link), pending...)
	}

	return current, nil
}

func splitPath(p string) []string {
	return strings.Split(p, string(filepath.Separator))
}
