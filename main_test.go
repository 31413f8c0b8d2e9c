package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandeepkandula/drivesync/config"
	"github.com/sandeepkandula/drivesync/sync"
)

const folderID = "1AbC_d-E"

// stubRemote holds a single empty folder and records uploads.
type stubRemote struct {
	folderErr error
	created   []string
}

func (s *stubRemote) Folder(_ context.Context, id string) (*sync.Entry, error) {
	if s.folderErr != nil {
		return nil, s.folderErr
	}
	return &sync.Entry{ID: id, Folder: true}, nil
}

func (s *stubRemote) List(context.Context, string) ([]sync.Entry, error) {
	return nil, nil
}

func (s *stubRemote) CreateFolder(_ context.Context, parentID, name string) (*sync.Entry, error) {
	return &sync.Entry{ID: parentID + "/" + name, Name: name, Folder: true}, nil
}

func (s *stubRemote) Create(_ context.Context, parentID string, obj sync.Object) (*sync.Entry, error) {
	if _, err := io.ReadAll(obj.Body); err != nil {
		return nil, err
	}
	s.created = append(s.created, obj.Name)
	return &sync.Entry{ID: parentID + "/" + obj.Name, Name: obj.Name}, nil
}

func (s *stubRemote) Update(context.Context, string, sync.Object) (*sync.Entry, error) {
	return nil, errors.New("unexpected update")
}

func (s *stubRemote) Delete(context.Context, string) error {
	return errors.New("unexpected delete")
}

// connector returns a factory handing out dst and counting connections.
func connector(dst sync.Remote, calls *int) remoteFactory {
	return func(context.Context, config.Config) (sync.Remote, error) {
		*calls++
		return dst, nil
	}
}

func testConfig() config.Config {
	return config.Config{
		FolderPath:    "/build/out",
		Backend:       config.BackendDrive,
		DriveFolderID: folderID,
		Overwrite:     "changed",
		Delete:        true,
	}
}

func buildTree(t *testing.T) afero.Fs {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/build/out/sub", 0755))
	require.NoError(t, afero.WriteFile(fs, "/build/out/a.txt", []byte("a"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/build/out/sub/b.html", []byte("<b>"), 0644))
	return fs
}

func TestRun_syncs(t *testing.T) {
	dst := &stubRemote{}
	calls := 0
	err := run(context.Background(), testConfig(), buildTree(t), connector(dst, &calls))
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.ElementsMatch(t, []string{"a.txt", "b.html"}, dst.created)
}

func TestRun_invalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.DriveFolderID = "not a folder id"

	calls := 0
	err := run(context.Background(), cfg, buildTree(t), connector(&stubRemote{}, &calls))
	assert.ErrorAs(t, err, &configError{})
	assert.Zero(t, calls, "config errors happen before any network call")
}

func TestRun_missingSrc(t *testing.T) {
	cfg := testConfig()
	cfg.FolderPath = "/nonexistent"

	calls := 0
	err := run(context.Background(), cfg, afero.NewMemMapFs(), connector(&stubRemote{}, &calls))
	assert.Error(t, err)
	assert.Zero(t, calls, "a missing source fails before contacting the remote")
}

func TestRun_noLocalFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/build/out/empty", 0755))

	calls := 0
	err := run(context.Background(), testConfig(), fs, connector(&stubRemote{}, &calls))
	assert.NoError(t, err)
	assert.Zero(t, calls)
}

func TestRun_unknownRemoteFolder(t *testing.T) {
	dst := &stubRemote{folderErr: sync.ErrNotFound}
	calls := 0
	err := run(context.Background(), testConfig(), buildTree(t), connector(dst, &calls))

	assert.ErrorIs(t, err, sync.ErrNotFound)
	assert.Empty(t, dst.created, "nothing is uploaded into an unknown folder")
}

func TestRun_connectFailure(t *testing.T) {
	fail := func(context.Context, config.Config) (sync.Remote, error) {
		return nil, errors.New("bad credentials")
	}
	err := run(context.Background(), testConfig(), buildTree(t), fail)
	assert.Error(t, err)
}

func loadConfig(cfg config.Config) func() (config.Config, error) {
	return func() (config.Config, error) { return cfg, nil }
}

func TestRootCmd_flagsOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0644))

	env := testConfig()
	env.Overwrite = "always"

	var got config.Config
	connect := func(_ context.Context, cfg config.Config) (sync.Remote, error) {
		got = cfg
		return &stubRemote{}, nil
	}
	cmd := newRootCmd(loadConfig(env), connect)
	cmd.SetArgs([]string{"--dry-run", "--delete=false", "--folder-id", "XyZ", "--src", dir})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	assert.True(t, got.DryRun)
	assert.False(t, got.Delete)
	assert.Equal(t, "XyZ", got.DriveFolderID)
	assert.Equal(t, dir, got.FolderPath)
	assert.Equal(t, "always", got.Overwrite, "unset flags keep the environment value")
	assert.Equal(t, config.BackendDrive, got.Backend)
}

func TestRootCmd_helpIgnoresEnvironment(t *testing.T) {
	broken := func() (config.Config, error) {
		return config.Config{}, errors.New("SYNC_DRY_RUN: invalid syntax")
	}

	var out bytes.Buffer
	cmd := newRootCmd(broken, connector(&stubRemote{}, new(int)))
	cmd.SetArgs([]string{"--help"})
	cmd.SetOut(&out)
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "--dry-run")

	cmd = newRootCmd(broken, connector(&stubRemote{}, new(int)))
	cmd.SetArgs([]string{})
	err := cmd.ExecuteContext(context.Background())
	assert.ErrorAs(t, err, &configError{})
}

func TestRootCmd_rejectsArguments(t *testing.T) {
	cmd := newRootCmd(loadConfig(testConfig()), connector(&stubRemote{}, new(int)))
	cmd.SetArgs([]string{"extra"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	assert.Error(t, cmd.ExecuteContext(context.Background()))
}
