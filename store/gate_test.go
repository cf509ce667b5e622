package store

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doctrans/fault"
)

func TestResolveAssetAcceptsPlainNames(t *testing.T) {
	s := newTestStore(t)
	job, err := s.Create()
	require.NoError(t, err)

	got, err := s.ResolveAsset(job.ID, AssetsDir, "page1_img1.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.JobDir(job.ID), AssetsDir, "page1_img1.png"), got)

	// Nested names under the asset root are fine.
	got, err = s.ResolveAsset(job.ID, AssetsDir, "subdir/image.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.JobDir(job.ID), AssetsDir, "subdir", "image.png"), got)
}

func TestResolveAssetRejectsTraversal(t *testing.T) {
	s := newTestStore(t)
	job, err := s.Create()
	require.NoError(t, err)

	for _, name := range []string{
		"../../etc/passwd",
		"..",
		"nested/../../escape.png",
		"/etc/passwd",
	} {
		_, err := s.ResolveAsset(job.ID, AssetsDir, name)
		assert.True(t, fault.IsCode(err, fault.CodePathTraversal), "%q: got %v", name, err)
	}
}

func TestResolveAssetErrorOmitsResolvedPath(t *testing.T) {
	s := newTestStore(t)
	job, err := s.Create()
	require.NoError(t, err)

	_, err = s.ResolveAsset(job.ID, AssetsDir, "../../etc/passwd")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), s.JobDir(job.ID))
	assert.NotContains(t, err.Error(), "jobs")
}

func TestResolveAssetRejectsSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require privileges on windows")
	}
	s := newTestStore(t)
	job, err := s.Create()
	require.NoError(t, err)

	assets := filepath.Join(s.JobDir(job.ID), AssetsDir)
	require.NoError(t, os.MkdirAll(assets, 0o755))
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(assets, "link")))

	_, err = s.ResolveAsset(job.ID, AssetsDir, "link/secret.txt")
	assert.True(t, fault.IsCode(err, fault.CodePathTraversal), "got %v", err)
}
