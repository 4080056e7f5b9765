package main

import (
	"bytes"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"

	ftp "github.com/gonzalop/resumable-ftp"
)

// isolateHome points the default config path at an empty home directory.
func isolateHome(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "ftpclient.yml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoadConfigFile(t *testing.T) {
	p := writeConfig(t, `
host: ftp.example.com
port: 2121
username: demo
password: secret
path: /incoming
timeout: 45s
verbose: true
idle_timeout: true
limit: 65536
`)

	cfg, err := loadConfigFile(p, true)
	require.NoError(t, err)
	assert.Equal(t, "ftp.example.com", cfg.Host)
	assert.Equal(t, 2121, cfg.Port)
	assert.Equal(t, "demo", cfg.Username)
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, "/incoming", cfg.Path)
	assert.Equal(t, 45*time.Second, cfg.Timeout)
	assert.True(t, cfg.Verbose)
	assert.True(t, cfg.IdleTimeout)
	assert.EqualValues(t, 65536, cfg.Limit)
}

func TestLoadConfigFile_Missing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yml")

	cfg, err := loadConfigFile(missing, false)
	require.NoError(t, err)
	assert.Equal(t, fileConfig{}, cfg)

	_, err = loadConfigFile(missing, true)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadConfigFile_Malformed(t *testing.T) {
	_, err := loadConfigFile(writeConfig(t, "host: [unterminated"), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

// runResolve runs the app with args and returns the config a command would use.
func runResolve(t *testing.T, args ...string) (fileConfig, error) {
	t.Helper()

	var cfg fileConfig
	var resolveErr error

	app := newApp(&bytes.Buffer{}, &bytes.Buffer{})
	app.Commands = append(app.Commands, cli.Command{
		Name: "resolve",
		Action: func(c *cli.Context) error {
			cfg, resolveErr = resolveConfig(c)
			return nil
		},
	})

	require.NoError(t, app.Run(append(append([]string{"ftpclient"}, args...), "resolve")))
	return cfg, resolveErr
}

func TestResolveConfig_FlagsOverrideFile(t *testing.T) {
	p := writeConfig(t, "host: file.example.com\nusername: demo\npath: /from-file\n")

	cfg, err := runResolve(t, "--config", p, "--host", "flag.example.com", "--port", "2121", "--limit", "1024", "--idle-timeout")
	require.NoError(t, err)
	assert.Equal(t, "flag.example.com", cfg.Host)
	assert.Equal(t, 2121, cfg.Port)
	assert.Equal(t, "demo", cfg.Username, "unset flags keep file values")
	assert.Equal(t, "/from-file", cfg.Path)
	assert.EqualValues(t, 1024, cfg.Limit)
	assert.True(t, cfg.IdleTimeout)
}

func TestResolveConfig_AnonymousDefault(t *testing.T) {
	_, err := runResolve(t, "--config", filepath.Join(t.TempDir(), "none.yml"), "--host", "h")
	require.Error(t, err, "an explicit config path must exist")

	isolateHome(t)
	cfg, err := runResolve(t, "--host", "h")
	require.NoError(t, err)
	assert.Equal(t, "anonymous", cfg.Username)
	assert.Equal(t, "h", cfg.Host)
}

func TestCommandFailsWithoutServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	isolateHome(t)
	app := newApp(&bytes.Buffer{}, &bytes.Buffer{})
	err = app.Run([]string{"ftpclient", "--host", "127.0.0.1", "--port", strconv.Itoa(port), "ls"})

	var ce *ftp.ConnectionError
	require.True(t, errors.As(err, &ce), "got %v", err)
}
