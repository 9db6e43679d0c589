package clientconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
[default]
server_url = https://drive.example.com
download_dir = /tmp/dl
page_size = 50

[work]
server_url = https://files.work.example
max_file_size = 2048
token_file = /tmp/work-token.json
log_file = /tmp/work.log
log_level = debug
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	t.Setenv("DRIVEPANE_SERVER", "")
	p, err := Load(filepath.Join(t.TempDir(), "absent"), "")
	require.NoError(t, err)
	assert.Equal(t, DefaultProfile, p.Name)
	assert.Equal(t, defaultServerURL, p.ServerURL)
	assert.Equal(t, int64(10*1024*1024), p.MaxFileSize)
	assert.Equal(t, 30, p.PageSize)
}

func TestLoadProfiles(t *testing.T) {
	t.Setenv("DRIVEPANE_SERVER", "")
	path := writeConfig(t, sample)

	p, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "https://drive.example.com", p.ServerURL)
	assert.Equal(t, "/tmp/dl", p.DownloadDir)
	assert.Equal(t, 50, p.PageSize)

	p, err = Load(path, "work")
	require.NoError(t, err)
	assert.Equal(t, "https://files.work.example", p.ServerURL)
	assert.Equal(t, int64(2048), p.MaxFileSize)
	assert.Equal(t, "/tmp/work-token.json", p.TokenFile)
	assert.Equal(t, "/tmp/work.log", p.LogFile)
	assert.Equal(t, "debug", p.LogLevel)
	assert.Equal(t, 30, p.PageSize)
}

func TestLoadUnknownProfile(t *testing.T) {
	_, err := Load(writeConfig(t, sample), "home")
	assert.ErrorContains(t, err, `profile "home" not found`)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("DRIVEPANE_SERVER", "")
	_, err := Load(writeConfig(t, "[default]\nserver_url = ftp://x\n"), "")
	assert.ErrorContains(t, err, "must be an http(s) URL")

	_, err = Load(writeConfig(t, "[default]\npage_size = 0\n"), "")
	assert.ErrorIs(t, err, ErrInvalidPageSize)
}

func TestEnvOverridesServer(t *testing.T) {
	t.Setenv("DRIVEPANE_SERVER", "https://override.example")
	p, err := Load(writeConfig(t, sample), "")
	require.NoError(t, err)
	assert.Equal(t, "https://override.example", p.ServerURL)
}

func TestSaveKeepsOtherProfiles(t *testing.T) {
	t.Setenv("DRIVEPANE_SERVER", "")
	path := writeConfig(t, sample)

	p := Defaults("home")
	p.ServerURL = "https://home.example"
	require.NoError(t, Save(path, p))

	got, err := Load(path, "home")
	require.NoError(t, err)
	assert.Equal(t, "https://home.example", got.ServerURL)

	work, err := Load(path, "work")
	require.NoError(t, err)
	assert.Equal(t, int64(2048), work.MaxFileSize)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "dl"), ExpandHome("~/dl"))
	assert.Equal(t, "/abs", ExpandHome("/abs"))
}
