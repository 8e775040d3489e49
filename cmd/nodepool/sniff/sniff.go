// Package sniff is the sniff subcommand of the nodepool command.
package sniff

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/influxtsdb/nodepool/cmd/nodepool/common"
	"github.com/influxtsdb/nodepool/connection"
	"github.com/influxtsdb/nodepool/pool"
	"github.com/pkg/errors"
	"github.com/xlab/treeprint"
)

// Command represents the program execution for "nodepool sniff".
type Command struct {
	Stdout io.Writer
	Stderr io.Writer
	cOpts  *common.Options

	timeout time.Duration
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
	seeds, err := cmd.parseFlags(args)
	if err != nil {
		return err
	}
	return common.OperationExitedError(cmd.sniff(seeds))
}

func (cmd *Command) sniff(seeds []string) error {
	opts := cmd.cOpts
	if opts == nil {
		opts = &common.Options{}
	}
	c, err := opts.LoadConfig()
	if err != nil {
		return err
	}
	log, err := opts.Logger(cmd.Stderr)
	if err != nil {
		return err
	}

	p, err := pool.New(c)
	if err != nil {
		return err
	}
	p.WithLogger(log)
	defer p.Close()

	descriptors, err := c.Descriptors()
	if err != nil {
		return err
	}
	seedDescriptors, err := pool.FromList(seeds)
	if err != nil {
		return err
	}
	descriptors = append(descriptors, seedDescriptors...)
	if len(descriptors) == 0 {
		return errors.New("no seed nodes: pass node urls or configure [[nodes]]")
	}
	if _, err := p.AddConnections(descriptors); err != nil {
		return err
	}

	resp, n, err := cmd.discover(p)
	if err != nil {
		return err
	}
	protocol := n.URL().Scheme + ":"
	discovered, err := pool.NodesToHost(resp.Nodes, protocol)
	if err != nil {
		return err
	}
	if err := p.Update(discovered); err != nil {
		return err
	}

	fmt.Fprintln(cmd.Stdout, render(p, n.URL().String()))
	return nil
}

// discover asks the pool's nodes for the cluster topology until one answers.
func (cmd *Command) discover(p *pool.Pool) (*pool.NodesResponse, *pool.Node, error) {
	var lastErr error
	for i := 0; i < p.Size(); i++ {
		n := p.Select(nil)
		if n == nil {
			break
		}
		resp, err := cmd.fetch(n)
		if err != nil {
			p.MarkDead(n)
			lastErr = errors.Wrapf(err, "sniff %s", n.ID())
			continue
		}
		p.MarkAlive(n)
		return resp, n, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no node available")
	}
	return nil, nil, lastErr
}

func (cmd *Command) fetch(n *pool.Node) (*pool.NodesResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cmd.timeout)
	defer cancel()

	resp, err := n.Do(ctx, connection.Params{Method: http.MethodGet, Path: pool.SniffPath})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var nodes pool.NodesResponse
	if err := json.NewDecoder(resp.Body).Decode(&nodes); err != nil {
		return nil, errors.Wrap(err, "decode nodes")
	}
	return &nodes, nil
}

// render prints the pool as a tree of nodes with their url, roles and weight.
func render(p *pool.Pool, source string) string {
	s := p.Stats()
	tree := treeprint.New()
	root := tree.AddBranch(fmt.Sprintf("pool (sniffed from %s, max weight %d, gcd %d)", source, s.MaxWeight, s.GCD))
	for _, n := range p.Nodes() {
		branch := root.AddBranch(n.ID())
		branch.AddMetaNode("url", n.URL().String())
		branch.AddMetaNode("weight", n.Weight())
		branch.AddMetaNode("status", n.Status().String())

		var roles []string
		for r, enabled := range n.Roles() {
			if enabled {
				roles = append(roles, string(r))
			}
		}
		sort.Strings(roles)
		branch.AddMetaNode("roles", strings.Join(roles, ","))
	}
	return tree.String()
}

// parseFlags parses the command line flags and returns the seed node urls.
func (cmd *Command) parseFlags(args []string) ([]string, error) {
	fs := flag.NewFlagSet("", flag.ContinueOnError)
	fs.SetOutput(cmd.Stderr)
	fs.DurationVar(&cmd.timeout, "timeout", 10*time.Second, "Timeout of the discovery request")
	fs.Usage = func() { fmt.Fprintln(cmd.Stderr, strings.TrimSpace(usage)) }
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return fs.Args(), nil
}

const usage = `
Usage: nodepool [options] sniff [-timeout <duration>] [<url>...]
    Fetches the cluster topology from the seed nodes, reconciles the pool
    with it and prints the resulting nodes
`
