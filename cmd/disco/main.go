package main

import (
	"os"

	"github.com/mitchellh/cli"

	"github.com/bcsaller/disco/internal/command"
)

func main() {
	ui := &cli.BasicUi{Writer: os.Stdout, ErrorWriter: os.Stderr}
	c := &command.Command{UI: ui}
	os.Exit(c.Run(os.Args[1:]))
}
