// Command nodepool inspects and exercises a weighted node pool.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/influxtsdb/nodepool/cmd/nodepool/common"
	"github.com/influxtsdb/nodepool/cmd/nodepool/config"
	"github.com/influxtsdb/nodepool/cmd/nodepool/distribution"
	"github.com/influxtsdb/nodepool/cmd/nodepool/help"
	"github.com/influxtsdb/nodepool/cmd/nodepool/sniff"
)

func main() {
	m := NewMain()
	if err := m.Run(os.Args[1:]...); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Main represents the program execution.
type Main struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewMain return a new instance of Main.
func NewMain() *Main {
	return &Main{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Run determines and runs the command specified by the CLI args.
func (m *Main) Run(args ...string) error {
	cOpts, args, err := m.parseFlags(args)
	if err == flag.ErrHelp {
		return nil
	} else if err != nil {
		return err
	}
	name, args := parseCommandName(args)

	switch name {
	case "", "help":
		cmd := help.NewCommand()
		cmd.Stdout = m.Stdout
		if err := cmd.Run(args...); err != nil {
			return fmt.Errorf("help: %s", err)
		}
	case "config":
		cmd := config.NewCommand(cOpts)
		cmd.Stdout, cmd.Stderr = m.Stdout, m.Stderr
		if err := cmd.Run(args...); err != nil {
			return fmt.Errorf("config: %s", err)
		}
	case "distribution":
		cmd := distribution.NewCommand(cOpts)
		cmd.Stdout, cmd.Stderr = m.Stdout, m.Stderr
		if err := cmd.Run(args...); err != nil {
			return fmt.Errorf("distribution: %s", err)
		}
	case "sniff":
		cmd := sniff.NewCommand(cOpts)
		cmd.Stdout, cmd.Stderr = m.Stdout, m.Stderr
		if err := cmd.Run(args...); err != nil {
			return fmt.Errorf("sniff: %s", err)
		}
	default:
		return fmt.Errorf(`unknown command "%s"`+"\n"+`Run 'nodepool help' for usage`+"\n\n", name)
	}

	return nil
}

func (m *Main) parseFlags(args []string) (*common.Options, []string, error) {
	options := &common.Options{}
	fs := flag.NewFlagSet("", flag.ContinueOnError)
	fs.SetOutput(m.Stderr)
	fs.StringVar(&options.ConfigPath, "config", "", "Config file path")
	fs.StringVar(&options.Username, "user", "", "User name for basic or jwt authentication")
	fs.StringVar(&options.Password, "pwd", "", "Password for basic authentication")
	fs.StringVar(&options.APIKey, "api-key", "", "API key, as key or id:key")
	fs.StringVar(&options.Secret, "secret", "", "JWT shared secret")
	fs.BoolVar(&options.SkipTLS, "k", false, "Skip certificate verification")
	fs.StringVar(&options.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.Usage = func() {
		cmd := help.NewCommand()
		cmd.Stdout = m.Stderr
		cmd.Run()
	}
	if err := fs.Parse(args); err != nil {
		return options, args, err
	}
	return options, fs.Args(), nil
}

// parseCommandName extracts the command name and args from the args list.
func parseCommandName(args []string) (string, []string) {
	// Retrieve command name as first argument.
	var name string
	if len(args) > 0 {
		if !strings.HasPrefix(args[0], "-") {
			name = args[0]
		} else if args[0] == "-h" || args[0] == "-help" || args[0] == "--help" {
			// Special case -h immediately following binary name
			name = "help"
		}
	}

	// If command is "help" and has an argument then rewrite args to use "-h".
	if name == "help" && len(args) > 2 && !strings.HasPrefix(args[1], "-") {
		return args[1], []string{"-h"}
	}

	// If a named command is specified then return it with its arguments.
	if name != "" {
		return name, args[1:]
	}
	return "", args
}
