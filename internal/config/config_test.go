package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFileMissingIsNotError(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	raw, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(err)
	require.Empty(raw)
}

func TestThreeTierMerge(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "disco.yaml")
	require.NoError(os.WriteFile(path, []byte("disco:\n  path: "+dir+"\n  interval: 2\nconsul:\n  prefix: services/\n"), 0644))

	fileCfg, err := LoadFile(path)
	require.NoError(err)

	merged := Merge(Defaults(), fileCfg)
	merged = Merge(merged, ParseEnv("disco.fail_limit=3|consul.prefix=override/"))

	require.Equal(dir, merged.Get("disco.path", nil))
	require.EqualValues(2, merged.Get("disco.interval", nil))
	require.Equal("override/", merged.Get("consul.prefix", nil))

	engine, err := merged.DecodeEngine()
	require.NoError(err)
	require.Equal(dir, engine.Path)
	require.Equal(2.0, engine.Interval)
	require.Equal(3, engine.FailLimit)
	require.Equal(60.0, engine.HandlerTimeout, "unset handler_timeout keeps its default")
}

func TestParseEnvBareKeyIsTrue(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	raw := ParseEnv("disco.debug")
	require.Equal(true, raw.Get("disco.debug", nil))
}

func TestSourceConfigsExcludesDiscoSection(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	raw := Raw{
		"disco":  map[string]interface{}{"path": "."},
		"consul": map[string]interface{}{"prefix": "a/"},
		"flat":   map[string]interface{}{"file": "x.yaml"},
	}
	sources := raw.SourceConfigs()
	require.Len(sources, 2)
	require.Contains(sources, "consul")
	require.Contains(sources, "flat")
	require.NotContains(sources, "disco")
}

func TestEngineSearchPathSplitsOnColon(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	e := Engine{Path: "/a:/b"}
	require.Equal([]string{"/a", "/b"}, e.SearchPath())

	e2 := Engine{}
	require.Equal([]string{"."}, e2.SearchPath())
}
