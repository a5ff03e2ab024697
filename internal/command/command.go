// Package command implements the disco CLI command: parse flags, merge
// configuration, build a Supervisor, run it to completion, and on
// success hand off the process to the user's command.
package command

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/bcsaller/disco/internal/config"
	"github.com/bcsaller/disco/internal/supervisor"
)

// Command is the single disco entry point: a lazily-initialized
// flag.FlagSet behind a sync.Once, a cli.Ui for user-facing output,
// and a Run that returns a process exit code.
type Command struct {
	UI cli.Ui

	flagLogLevel   string
	flagConfigFile string
	flagHealthAddr string

	flagSet *flag.FlagSet
	once    sync.Once
	help    string

	// execFn replaces syscall.Exec in tests, since the real hand-off
	// never returns to the calling process.
	execFn func(argv0 string, argv []string, envv []string) error
}

func (c *Command) init() {
	c.flagSet = flag.NewFlagSet("disco", flag.ContinueOnError)
	c.flagSet.StringVar(&c.flagLogLevel, "l", "info", "Log level: trace, debug, info, warn, error.")
	c.flagSet.StringVar(&c.flagConfigFile, "c", "", "Path to a YAML configuration file.")
	c.flagSet.StringVar(&c.flagHealthAddr, "health-addr", "", "Address to serve /healthz and /metrics on, e.g. :8080. Disabled if unset.")
	c.help = fmt.Sprintf(
		"Usage: disco [-l LEVEL] [-c CONFIG] [-health-addr ADDR] CMD [ARG ...]\n\n%s",
		strings.TrimSpace(flagsHelp))
	if c.execFn == nil {
		c.execFn = syscall.Exec
	}
}

const flagsHelp = `
  Runs the reactive discovery engine against the rules and schemas
  found on its search path until every rule completes, then execs
  CMD, replacing the disco process, so CMD inherits its environment
  and PID.

  Options:

    -l LEVEL          Log level (default: info)
    -c CONFIG         YAML configuration file
    -health-addr ADDR Serve /healthz and /metrics on ADDR
`

// Run parses args, builds and runs the Supervisor, and on success
// execs the remaining arguments as the hand-off command. It returns a
// process exit code; a successful hand-off never returns here because
// execFn replaces the process image.
func (c *Command) Run(args []string) int {
	c.once.Do(c.init)
	if err := c.flagSet.Parse(args); err != nil {
		return 1
	}

	rest := c.flagSet.Args()
	if len(rest) == 0 {
		c.UI.Error("disco: a command to exec on success is required")
		return 1
	}

	log := hclog.New(&hclog.LoggerOptions{
		Name:   "disco",
		Level:  hclog.LevelFromString(c.flagLogLevel),
		Output: os.Stderr,
	})

	raw, err := c.loadConfig()
	if err != nil {
		c.UI.Error(fmt.Sprintf("disco: %s", err))
		return 1
	}
	if c.flagHealthAddr != "" {
		raw = config.Merge(raw, config.Raw{"disco": map[string]interface{}{"health_addr": c.flagHealthAddr}})
	}

	sup, err := supervisor.Build(raw, log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("disco: %s", err))
		return 1
	}

	ctx := context.Background()
	if !sup.Run(ctx) {
		c.UI.Error("disco: rule set did not complete")
		return 1
	}

	path, err := exec.LookPath(rest[0])
	if err != nil {
		c.UI.Error(fmt.Sprintf("disco: %s", err))
		return 1
	}
	if err := c.execFn(path, rest, os.Environ()); err != nil {
		c.UI.Error(fmt.Sprintf("disco: exec %s: %s", rest[0], err))
		return 1
	}
	return 0
}

func (c *Command) loadConfig() (config.Raw, error) {
	raw := config.Defaults()
	fileCfg, err := config.LoadFile(c.flagConfigFile)
	if err != nil {
		return nil, err
	}
	raw = config.Merge(raw, fileCfg)
	if env := os.Getenv("DISCO_CFG"); env != "" {
		raw = config.Merge(raw, config.ParseEnv(env))
	}
	return raw, nil
}

func (c *Command) Synopsis() string { return synopsis }

func (c *Command) Help() string {
	c.once.Do(c.init)
	return c.help
}

const synopsis = "Run the reactive discovery engine, then exec a command."
