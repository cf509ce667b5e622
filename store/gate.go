package store

import (
	"os"
	"path/filepath"
	"strings"

	"doctrans/fault"
	"doctrans/observability"
)

// ResolveAsset validates a caller-supplied relative asset name against a
// job's asset root and returns the canonical absolute path. Every
// asset-serving and asset-writing operation goes through this gate; there are
// no exceptions. A name that would escape the root (via "..", an absolute
// path, or a symlink) is rejected before any file I/O on the target.
func (s *Store) ResolveAsset(jobID, subdir, name string) (string, error) {
	if name == "" {
		return "", fault.Validation("asset name is empty")
	}
	if filepath.IsAbs(name) || containsTraversal(name) {
		s.denied(jobID, name)
		return "", fault.Traversal(name)
	}

	root := filepath.Join(s.JobDir(jobID), subdir)
	resolved := filepath.Join(root, filepath.Clean(name))

	// Lexical containment: Join+Clean already collapsed any remaining dot
	// segments; verify the result still sits under the root.
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		s.denied(jobID, name)
		return "", fault.Traversal(name)
	}

	// Symlink containment: resolve the deepest existing ancestor and confirm
	// it did not escape the (resolved) root. The target itself may not exist
	// yet for write operations.
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		if os.IsNotExist(err) {
			// Asset root not created yet; lexical checks are sufficient.
			return resolved, nil
		}
		return "", fault.Traversal(name)
	}
	real, err := evalExisting(resolved)
	if err != nil {
		s.denied(jobID, name)
		return "", fault.Traversal(name)
	}
	if real != resolvedRoot && !strings.HasPrefix(real, resolvedRoot+string(filepath.Separator)) {
		s.denied(jobID, name)
		return "", fault.Traversal(name)
	}
	return resolved, nil
}

func (s *Store) denied(jobID, name string) {
	// Security-relevant event: log the request, never the resolution.
	s.log.Warn("asset path traversal rejected",
		observability.String("job_id", jobID),
		observability.String("requested", name),
		observability.Int(observability.MetricTraversalDenials, 1))
}

func containsTraversal(name string) bool {
	for _, part := range strings.Split(filepath.ToSlash(name), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

// evalExisting resolves symlinks for the deepest existing prefix of path and
// rejoins the non-existent remainder.
func evalExisting(path string) (string, error) {
	remainder := ""
	for p := path; ; {
		real, err := filepath.EvalSymlinks(p)
		if err == nil {
			return filepath.Join(real, remainder), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		dir, base := filepath.Split(p)
		dir = strings.TrimSuffix(dir, string(filepath.Separator))
		if dir == "" || dir == p {
			return "", os.ErrNotExist
		}
		remainder = filepath.Join(base, remainder)
		p = dir
	}
}
