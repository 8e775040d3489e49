// Package distribution is the distribution subcommand of the nodepool command.
package distribution

import (
	"crypto/tls"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/influxtsdb/nodepool/cmd/nodepool/common"
	"github.com/influxtsdb/nodepool/connection"
	"github.com/influxtsdb/nodepool/pool"
	"github.com/olekukonko/tablewriter"
)

// Command represents the program execution for "nodepool distribution".
type Command struct {
	Stdout io.Writer
	Stderr io.Writer
	cOpts  *common.Options

	nodes    int
	requests int
	dead     string
	decay    string
}

// NewCommand return a new instance of Command.
func NewCommand(cOpts *common.Options) *Command {
	return &Command{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		cOpts:  cOpts,
	}
}

// Run executes the program.
func (cmd *Command) Run(args ...string) error {
	if err := cmd.parseFlags(args); err != nil {
		return err
	}
	return common.OperationExitedError(cmd.simulate())
}

// simulate selects nodes from a pool of offline nodes, marking the nodes
// listed as dead every time they are selected and the others alive.
func (cmd *Command) simulate() error {
	c := pool.NewConfig()
	c.DecayPolicy = cmd.decay
	p, err := pool.New(c)
	if err != nil {
		return err
	}
	defer p.Close()
	p.Transport = func(*url.URL, connection.Config, *tls.Config) (connection.Transport, error) {
		return offline{}, nil
	}

	descriptors := make([]pool.Descriptor, 0, cmd.nodes)
	for i := 0; i < cmd.nodes; i++ {
		d, err := pool.FromURL(fmt.Sprintf("http://localhost:%d", 9200+i))
		if err != nil {
			return err
		}
		d.ID = fmt.Sprintf("node-%d", i)
		descriptors = append(descriptors, d)
	}
	if err := p.Update(descriptors); err != nil {
		return err
	}

	dead := make(map[string]bool)
	for _, id := range strings.Split(cmd.dead, ",") {
		if id = strings.TrimSpace(id); id != "" {
			dead[id] = true
		}
	}

	fmt.Fprintf(cmd.Stdout, "Gradual distribution with %d nodes\n\n", cmd.nodes)

	var rows [][]string
	selected := make(map[string]int)
	for i := 0; i < cmd.requests; i++ {
		n := p.Select(nil)
		if n == nil {
			return fmt.Errorf("no node selected at cycle %d", i)
		}
		selected[n.ID()]++
		if !dead[n.ID()] {
			p.MarkAlive(n)
			continue
		}
		before := n.Weight()
		p.MarkDead(n)
		rows = append(rows, []string{
			strconv.Itoa(i), n.ID(), strconv.Itoa(before), strconv.Itoa(n.Weight()),
		})
	}

	table := newTable(cmd.Stdout)
	table.SetHeader([]string{"CYCLE", "NODE", "BEFORE WEIGHT", "AFTER WEIGHT"})
	table.AppendBulk(rows)
	table.Render()
	fmt.Fprintln(cmd.Stdout)

	table = newTable(cmd.Stdout)
	table.SetHeader([]string{"NODE", "STATUS", "WEIGHT", "DEAD COUNT", "SELECTED"})
	for _, n := range p.Nodes() {
		table.Append([]string{
			n.ID(),
			n.Status().String(),
			strconv.Itoa(n.Weight()),
			strconv.Itoa(n.DeadCount()),
			strconv.Itoa(selected[n.ID()]),
		})
	}
	table.Render()
	return nil
}

func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

// parseFlags parses the command line flags.
func (cmd *Command) parseFlags(args []string) error {
	fs := flag.NewFlagSet("", flag.ContinueOnError)
	fs.SetOutput(cmd.Stderr)
	fs.IntVar(&cmd.nodes, "nodes", 20, "Number of nodes in the pool")
	fs.IntVar(&cmd.requests, "requests", 10000, "Number of selections")
	fs.StringVar(&cmd.dead, "dead", "node-1", "Comma-separated ids of the nodes that always fail")
	fs.StringVar(&cmd.decay, "decay", pool.DefaultDecayPolicy, "Decay policy (log, proportional)")
	fs.Usage = func() { fmt.Fprintln(cmd.Stderr, strings.TrimSpace(usage)) }
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected extra arguments: %v", fs.Args())
	}
	if cmd.nodes <= 0 {
		return fmt.Errorf("-nodes must be positive")
	}
	return nil
}

// offline is the transport of simulated nodes; they are never sent requests.
type offline struct{}

func (offline) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, fmt.Errorf("simulated node")
}

func (offline) Close() error { return nil }

const usage = `
Usage: nodepool [options] distribution [-nodes <n>] [-requests <n>] [-dead <ids>] [-decay <policy>]
    Simulates node selection on a pool where some nodes always fail and
    prints how their weight decays
`
