package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bcsaller/disco/internal/config"
)

func TestBuildWithNoRulesCompletesImmediately(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	dir := t.TempDir()
	raw := config.Merge(config.Defaults(), config.Raw{"disco": map[string]interface{}{
		"path":     dir,
		"interval": 0.01,
	}})

	sup, err := Build(raw, nil)
	require.NoError(err)
	require.Nil(sup.health)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.True(sup.Run(ctx))
}

func TestBuildWiresHealthServerWhenAddrSet(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	dir := t.TempDir()
	raw := config.Merge(config.Defaults(), config.Raw{"disco": map[string]interface{}{
		"path":        dir,
		"health_addr": "127.0.0.1:0",
	}})

	sup, err := Build(raw, nil)
	require.NoError(err)
	require.NotNil(sup.health)
}

func TestBuildWithFlatSourcePopulatesKBBeforeCompletion(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	dir := t.TempDir()
	kvPath := filepath.Join(dir, "kv.yaml")
	require.NoError(os.WriteFile(kvPath, []byte("mysql:\n  host: db1\n"), 0644))
	require.NoError(os.WriteFile(filepath.Join(dir, "mysql.schema"), []byte(
		"name: mysql\ntype: object\nrequired: [host]\nproperties:\n  host:\n    type: string\n"), 0644))
	require.NoError(os.WriteFile(filepath.Join(dir, "provision.rules"), []byte(`
rules:
  - rule:
      when: mysql
      do: /bin/true
`), 0644))

	raw := config.Raw{
		"disco": map[string]interface{}{"path": dir, "interval": 0.01},
		"flat":  map[string]interface{}{"name": "mysql", "file": kvPath},
	}

	sup, err := Build(raw, nil)
	require.NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.True(sup.Run(ctx))
}
