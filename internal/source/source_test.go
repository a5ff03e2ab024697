package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

func TestNewUnknownKindIsConfigError(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	_, err := New("bogus", Config{}, hclog.NewNullLogger())
	var cerr *ConfigError
	require.ErrorAs(err, &cerr)
}

func TestNewDispatchesKnownKinds(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	for _, kind := range []string{"flat", "consul", "beacon", "etcd"} {
		s, err := New(kind, Config{"host": "127.0.0.1", "file": "x.yaml"}, hclog.NewNullLogger())
		require.NoError(err, kind)
		require.NotNil(s, kind)
	}
}

func TestBeaconDefaultsNameToBeacon(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	s, err := New("beacon", Config{"host": "127.0.0.1"}, hclog.NewNullLogger())
	require.NoError(err)
	require.Equal("beacon", s.Name())
}

func TestFlatFileConnectReadsState(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "kv.yaml")
	require.NoError(os.WriteFile(path, []byte("host: db1\nport: 3306\n"), 0644))

	s, err := New("flat", Config{"file": path}, hclog.NewNullLogger())
	require.NoError(err)
	require.NoError(s.Connect(context.Background()))

	state := s.State(context.Background())
	require.Equal("db1", state["host"])
	require.EqualValues(3306, state["port"])
	require.NoError(s.Disconnect(context.Background()))
}

func TestFlatFileStateEmptyBeforeConnect(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	ff := newFlatFile(Config{"file": filepath.Join(t.TempDir(), "missing.yaml")}, hclog.NewNullLogger())
	require.Empty(ff.State(context.Background()))
}

func TestIsAutoJoinString(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	require.True(isAutoJoinString("provider=aws tag_key=consul"))
	require.False(isAutoJoinString("10.0.0.1:8500"))
	require.False(isAutoJoinString(""))
}

func TestNewConsulDefersAutoJoinToConnect(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	c, err := newConsul(Config{"host": "provider=aws tag_key=consul"}, "consul", hclog.NewNullLogger())
	require.NoError(err)
	require.Equal("provider=aws tag_key=consul", c.discover)
}

func TestNewEtcdParsesIntegerAndStringPorts(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	e1, err := newEtcd(Config{"host": "10.0.0.1", "port": 4002}, hclog.NewNullLogger())
	require.NoError(err)
	require.Equal("10.0.0.1:4002", e1.endpoint)

	e2, err := newEtcd(Config{"host": "10.0.0.1", "port": "4003"}, hclog.NewNullLogger())
	require.NoError(err)
	require.Equal("10.0.0.1:4003", e2.endpoint)

	e3, err := newEtcd(Config{}, hclog.NewNullLogger())
	require.NoError(err)
	require.Equal("127.0.0.1:4001", e3.endpoint)
}

func TestSetNestedBuildsHierarchy(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	state := map[string]interface{}{}
	setNested(state, "services/mysql/host", "db1")
	setNested(state, "services/mysql/port", "3306")

	m, ok := state["services"].(map[string]interface{})
	require.True(ok)
	mysql, ok := m["mysql"].(map[string]interface{})
	require.True(ok)
	require.Equal("db1", mysql["host"])
	require.Equal("3306", mysql["port"])
}
