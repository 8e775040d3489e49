// Package help is the help subcommand of the nodepool command.
package help

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Command displays help for command-line sub-commands.
type Command struct {
	Stdout io.Writer
}

// NewCommand returns a new instance of Command.
func NewCommand() *Command {
	return &Command{
		Stdout: os.Stdout,
	}
}

// Run executes the command.
func (cmd *Command) Run(args ...string) error {
	fmt.Fprintln(cmd.Stdout, strings.TrimSpace(usage))
	return nil
}

const usage = `
Usage: nodepool [options] <command> [options] [<args>]

Available commands are:
   config              Display the default pool configuration
   distribution        Simulate node selection with failing nodes
   sniff               Discover cluster nodes and show the reconciled pool

Options:

  -api-key string
    	API key, as key or id:key
  -config string
    	Config file path
  -k	Skip certificate verification
  -log-level string
    	Log level (debug, info, warn, error)
  -pwd string
    	Password for basic authentication
  -secret string
    	JWT shared secret
  -user string
    	User name for basic or jwt authentication
`
