package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bcsaller/disco/internal/kb"
	"github.com/bcsaller/disco/internal/rule"
)

func writeFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0644))
}

func TestFindSchemasAndRulesThenRunToCompletion(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	dir := t.TempDir()
	writeFile(t, dir, "mysql.schema", "name: mysql\ntype: object\nrequired: [host]\nproperties:\n  host:\n    type: string\n")
	writeFile(t, dir, "provision.rules", `
rules:
  - rule:
      when: mysql
      do: /bin/true
`)

	base := kb.New(nil)
	eng := New(Config{Path: []string{dir}, Interval: 10 * time.Millisecond}, base, nil)
	require.NoError(eng.FindSchemas())
	require.NoError(eng.FindRules())
	require.Len(eng.rules, 1)

	complete, err := eng.RunOnce(context.Background())
	require.NoError(err)
	require.False(complete, "rule should still be pending before mysql is known")

	base.Inject(map[string]interface{}{"mysql": map[string]interface{}{"host": "db1"}})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.True(eng.Run(ctx))
}

func TestRunOnceReturnsFatalOnRepeatedFailure(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	dir := t.TempDir()
	writeFile(t, dir, "mysql.schema", "name: mysql\ntype: object\nrequired: [host]\nproperties:\n  host:\n    type: string\n")

	base := kb.New(nil)
	base.Inject(map[string]interface{}{"mysql": map[string]interface{}{"host": "db1"}})
	eng := New(Config{Path: []string{dir}, FailLimit: 1}, base, nil)
	require.NoError(eng.FindSchemas())
	require.NoError(eng.FindRules())

	eng.rules = append(eng.rules, rule.New([]string{"mysql"}, rule.All, "all", "/bin/false", false))

	_, err := eng.RunOnce(context.Background())
	require.Error(err)
}

func TestFindRulesAggregatesMalformedFiles(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	dir := t.TempDir()
	writeFile(t, dir, "bad.rules", "rules:\n  - rule:\n      do: /bin/true\n")
	writeFile(t, dir, "alsobad.rules", "format: 99\nrules: []\n")

	eng := New(Config{Path: []string{dir}}, kb.New(nil), nil)
	err := eng.FindRules()
	require.Error(err)
}
