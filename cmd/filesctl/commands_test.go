package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-files/pkg/filestore"
	"github.com/tendant/simple-files/pkg/filestore/config"
)

func sharedRuntime(t *testing.T) RuntimeBuilder {
	t.Helper()

	serverConfig, err := config.Load(
		config.WithCatalogURL("memory"),
		config.WithStorageURL("memory://"),
	)
	require.NoError(t, err)
	rt, err := serverConfig.Build(context.Background())
	require.NoError(t, err)

	return func(ctx context.Context, cmd *cobra.Command) (*config.Runtime, error) {
		return rt, nil
	}
}

func execute(t *testing.T, build RuntimeBuilder, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(build)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

var fileIDPattern = regexp.MustCompile(`File ID: (\S+)`)

func TestFileLifecycle(t *testing.T) {
	build := sharedRuntime(t)
	dir := t.TempDir()

	src := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("remember the milk"), 0o644))

	out, err := execute(t, build, "upload", src)
	require.NoError(t, err)
	match := fileIDPattern.FindStringSubmatch(out)
	require.Len(t, match, 2, out)
	id := match[1]

	out, err = execute(t, build, "list")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "notes.txt")
	assert.Contains(t, out, "text/plain")

	out, err = execute(t, build, "get", id)
	require.NoError(t, err)
	assert.Contains(t, out, `"size_bytes": 17`)

	dst := filepath.Join(dir, "copy.txt")
	_, err = execute(t, build, "download", id, "-o", dst)
	require.NoError(t, err)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "remember the milk", string(data))

	out, err = execute(t, build, "download", id, "-o", "-")
	require.NoError(t, err)
	assert.Equal(t, "remember the milk", out)

	out, err = execute(t, build, "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted "+id)

	_, err = execute(t, build, "get", id)
	require.Error(t, err)
	assert.ErrorIs(t, err, filestore.ErrNotFound)
}

func TestUploadOverrides(t *testing.T) {
	build := sharedRuntime(t)
	src := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(src, []byte("{}"), 0o644))

	_, err := execute(t, build, "upload", src, "--name", "config.json", "--content-type", "application/json")
	require.NoError(t, err)

	out, err := execute(t, build, "list", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"filename": "config.json"`)
	assert.Contains(t, out, `"content_type": "application/json"`)
}

func TestUploadMissingFile(t *testing.T) {
	_, err := execute(t, sharedRuntime(t), "upload", filepath.Join(t.TempDir(), "absent.txt"))
	require.Error(t, err)
}

func TestSweepCommand(t *testing.T) {
	out, err := execute(t, sharedRuntime(t), "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "Scanned: 0")
	assert.Contains(t, out, "Deleted: 0")
}

func TestEnvCommand(t *testing.T) {
	out, err := execute(t, nil, "env")
	require.NoError(t, err)
	assert.Contains(t, out, "CATALOG_URL")
	assert.Contains(t, out, "STORAGE_URL")
}
