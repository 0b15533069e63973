package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, "/var/run/eventstreamd.sock", c.SocketFile)
	assert.Equal(t, uint32(0o600), c.SocketMode)
	assert.Equal(t, 8888, c.HTTPPort)
	assert.Equal(t, 20*time.Second, c.PingInterval)
	assert.False(t, c.WithSSL())
}

func TestLoad_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eventstreamd.conf")
	contents := "[General]\nSocketFile = /tmp/custom.sock\nSocketMode = 0640\nHTTPPort = 9999\nSSLCertificateFile = /etc/cert.pem\nSSLKeyFile = /etc/key.pem\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.sock", c.SocketFile)
	assert.Equal(t, uint32(0o640), c.SocketMode)
	assert.Equal(t, 9999, c.HTTPPort)
	assert.True(t, c.WithSSL())
}

func TestLoad_MissingKeysFallBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eventstreamd.conf")
	require.NoError(t, os.WriteFile(path, []byte("[General]\n"), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/run/eventstreamd.sock", c.SocketFile)
	assert.Equal(t, 8888, c.HTTPPort)
}

func TestLoadDefault_MissingFileFallsBack(t *testing.T) {
	c, err := LoadDefault(filepath.Join(t.TempDir(), "does-not-exist.conf"))
	require.NoError(t, err)
	assert.Equal(t, "/var/run/eventstreamd.sock", c.SocketFile)
}
