package command

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/mitchellh/cli"
	"github.com/stretchr/testify/require"
)

func TestRunRequiresTrailingCommand(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	var errBuf bytes.Buffer
	c := &Command{UI: &cli.BasicUi{Writer: &bytes.Buffer{}, ErrorWriter: &errBuf}}

	code := c.Run([]string{"-c", "nope.yaml"})
	require.Equal(1, code)
	require.Contains(errBuf.String(), "a command to exec")
}

func TestRunExecsOnCompletionWithNoRules(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "disco.yaml")
	require.NoError(os.WriteFile(cfgPath, []byte("disco:\n  path: "+dir+"\n  interval: 0.01\n"), 0644))

	var execArgv0 string
	var execArgv []string
	c := &Command{
		UI: &cli.BasicUi{Writer: &bytes.Buffer{}, ErrorWriter: &bytes.Buffer{}},
		execFn: func(argv0 string, argv []string, envv []string) error {
			execArgv0 = argv0
			execArgv = argv
			return nil
		},
	}

	code := c.Run([]string{"-c", cfgPath, "/bin/true", "arg1"})
	require.Equal(0, code)
	require.Equal("/bin/true", execArgv0)
	require.Equal([]string{"/bin/true", "arg1"}, execArgv)
}

func TestHelpAndSynopsis(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	c := &Command{UI: &cli.BasicUi{}}
	require.Contains(c.Help(), "Usage: disco")
	require.NotEmpty(c.Synopsis())
}
