package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigPath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{"simple", "desk", []string{"desk"}, false},
		{"nested", "widget.sound.player", []string{"widget", "sound", "player"}, false},
		{"empty", "", nil, true},
		{"empty segment", "widget..sound", nil, true},
		{"trailing dot", "widget.", nil, true},
		{"blocked proto", "__proto__.x", nil, true},
		{"blocked constructor", "a.constructor", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConfigPath(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetValueAtPath(t *testing.T) {
	root := map[string]any{
		"desk": map[string]any{
			"port": 8088,
			"auth": map[string]any{"mode": "token"},
		},
		"flat": "value",
	}

	v, ok := GetValueAtPath(root, []string{"desk", "auth", "mode"})
	require.True(t, ok)
	assert.Equal(t, "token", v)

	_, ok = GetValueAtPath(root, []string{"desk", "missing"})
	assert.False(t, ok)

	_, ok = GetValueAtPath(root, []string{"flat", "deeper"})
	assert.False(t, ok)
}

func TestSetValueAtPath_CreatesIntermediates(t *testing.T) {
	root := map[string]any{}
	SetValueAtPath(root, []string{"a", "b", "c"}, "deep")
	v, ok := GetValueAtPath(root, []string{"a", "b", "c"})
	require.True(t, ok)
	assert.Equal(t, "deep", v)
}

func TestSetValueAtPath_OverwritesNonMap(t *testing.T) {
	root := map[string]any{"a": "scalar"}
	SetValueAtPath(root, []string{"a", "b"}, 1)
	v, ok := GetValueAtPath(root, []string{"a", "b"})
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestUnsetValueAtPath(t *testing.T) {
	root := map[string]any{
		"desk": map[string]any{"port": 1, "bind": "lan"},
	}
	assert.True(t, UnsetValueAtPath(root, []string{"desk", "port"}))
	_, ok := GetValueAtPath(root, []string{"desk", "port"})
	assert.False(t, ok)
	_, ok = GetValueAtPath(root, []string{"desk", "bind"})
	assert.True(t, ok)

	assert.False(t, UnsetValueAtPath(root, []string{"desk", "port"}))
	assert.False(t, UnsetValueAtPath(root, []string{"missing", "x"}))
	assert.False(t, UnsetValueAtPath(root, []string{"desk", "bind", "x"}))
}

func TestResolvePaths(t *testing.T) {
	t.Setenv("LIVECHAT_HOME", "")
	p, err := ResolvePaths()
	require.NoError(t, err)
	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, ".livechat"), p.Base)
	assert.Equal(t, filepath.Join(home, ".livechat", "config.yaml"), p.Config)
}

func TestResolvePathsCustomHome(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LIVECHAT_HOME", dir)
	p, err := ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, dir, p.Base)
	assert.Equal(t, filepath.Join(dir, ".env"), p.Env)
	assert.Equal(t, filepath.Join(dir, "data"), p.Data)
}

func TestEnsureDirs(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LIVECHAT_HOME", filepath.Join(dir, "home"))
	p, err := ResolvePaths()
	require.NoError(t, err)
	require.NoError(t, p.EnsureDirs())
	require.NoError(t, p.EnsureDirs())

	for _, d := range []string{p.Base, p.Logs, p.Data} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestDataFile(t *testing.T) {
	p := Paths{Data: "/var/lib/livechat"}
	assert.Equal(t, "/var/lib/livechat/desk.db", p.DataFile("desk.db"))
	assert.Equal(t, "/tmp/x.db", p.DataFile("/tmp/x.db"))
	assert.Equal(t, ":memory:", p.DataFile(":memory:"))
}
