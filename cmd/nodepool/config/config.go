// Package config is the config subcommand of the nodepool command.
package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/influxtsdb/nodepool/cmd/nodepool/common"
	"github.com/influxtsdb/nodepool/pool"
)

// Command represents the program execution for "nodepool config".
type Command struct {
	Stdout io.Writer
	Stderr io.Writer
	cOpts  *common.Options
}

// NewCommand return a new instance of Command.
func NewCommand(cOpts *common.Options) *Command {
	return &Command{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		cOpts:  cOpts,
	}
}

// Run prints the default configuration, or the loaded one if a config file
// was given, as TOML.
func (cmd *Command) Run(args ...string) error {
	fs := flag.NewFlagSet("", flag.ContinueOnError)
	fs.SetOutput(cmd.Stderr)
	fs.Usage = func() { fmt.Fprintln(cmd.Stderr, strings.TrimSpace(usage)) }
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected extra arguments: %v", fs.Args())
	}

	c := pool.NewConfig()
	if cmd.cOpts != nil && cmd.cOpts.ConfigPath != "" {
		var err error
		if c, err = cmd.cOpts.LoadConfig(); err != nil {
			return err
		}
	}
	return toml.NewEncoder(cmd.Stdout).Encode(&c)
}

const usage = `
Usage: nodepool [options] config
    Displays the default pool configuration, or the one loaded with -config
`
