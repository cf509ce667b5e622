package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"doctrans/annotation"
	"doctrans/fault"
)

// SaveJSON persists an arbitrary JSON artifact under the job directory using
// the atomic write path. name must be one of the canonical artifact names.
func (s *Store) SaveJSON(jobID, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return s.writeArtifact(filepath.Join(s.JobDir(jobID), name), data)
}

// LoadJSON reads a JSON artifact. required controls the failure mode for
// missing or corrupt data: required artifacts fail with NOT_FOUND or
// CORRUPT_ARTIFACT, optional ones report absence via the second return.
func (s *Store) LoadJSON(jobID, name string, v any, required bool) (bool, error) {
	path := filepath.Join(s.JobDir(jobID), name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if required {
				return false, fault.NotFound(name)
			}
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if err := s.verifyChecksum(path, data); err != nil {
		if required {
			return false, err
		}
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		if required {
			return false, fault.Corrupt(name, err)
		}
		return false, nil
	}
	return true, nil
}

// SaveBytes persists a binary artifact (raster, rendered document) at its
// canonical path.
func (s *Store) SaveBytes(jobID, name string, data []byte) (string, error) {
	path := filepath.Join(s.JobDir(jobID), name)
	if err := s.writeArtifact(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// SaveBoxSets persists the per-image box sets for a job. The whole mapping is
// rewritten on every save: callers send complete sets, never patches.
func (s *Store) SaveBoxSets(jobID string, sets map[string]annotation.BoxSet) error {
	return s.SaveJSON(jobID, BoxesFile, sets)
}

// LoadBoxSets reads the saved per-image box sets. Absence or corruption of
// this optional artifact degrades to an empty map: a fresh job simply has no
// saved edits yet.
func (s *Store) LoadBoxSets(jobID string) (map[string]annotation.BoxSet, error) {
	sets := make(map[string]annotation.BoxSet)
	if _, err := s.LoadJSON(jobID, BoxesFile, &sets, false); err != nil {
		return nil, err
	}
	if sets == nil {
		sets = make(map[string]annotation.BoxSet)
	}
	return sets, nil
}
