package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRuleFileStructuredWhen(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	doc := []byte(`
format: 1
rules:
  - rule:
      when: [mysql, redis]
      op: any
      do: /usr/local/bin/provision
`)
	rules, err := parseRuleFile(doc)
	require.NoError(err)
	require.Len(rules, 1)
	require.Equal("/usr/local/bin/provision", rules[0].Cmd)
	require.Equal("any", rules[0].OpName)
	require.Equal([]string{"mysql", "redis"}, rules[0].Deps)
}

func TestParseRuleFileCompactWhen(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	doc := []byte(`
rules:
  - rule:
      when: "any:mysql,redis"
      do: /usr/local/bin/provision
  - rule:
      when: "mysql,redis"
      do: /usr/local/bin/both
`)
	rules, err := parseRuleFile(doc)
	require.NoError(err)
	require.Len(rules, 2)
	require.Equal("any", rules[0].OpName)
	require.Equal("all", rules[1].OpName)
}

func TestParseRuleFileRejectsUnknownFormat(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	_, err := parseRuleFile([]byte("format: 2\nrules: []\n"))
	require.Error(err)
}

func TestParseRuleFileRequiresDo(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	_, err := parseRuleFile([]byte("rules:\n  - rule:\n      when: mysql\n"))
	require.Error(err)
}

func TestParseRuleFileRequiresDeps(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	_, err := parseRuleFile([]byte("rules:\n  - rule:\n      when: \"\"\n      do: /bin/true\n"))
	require.Error(err)
}
