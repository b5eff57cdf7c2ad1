package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fromager-go/fromager/internal/depgraph"
	"github.com/fromager-go/fromager/internal/flog"
	"github.com/fromager-go/fromager/internal/writer"
)

const graphShortHelp = `Report on a previously written graph.json file`
const graphLongHelp = `
With "to-constraints", renders a graph.json as a pip-compatible constraints
file pinning every install dependency to a single version, reporting
conflicts where no single version satisfies every parent.
`

type graphCommand struct {
	output string
}

func (cmd *graphCommand) Name() string      { return "graph" }
func (cmd *graphCommand) Args() string      { return "<to-constraints> <graph.json>" }
func (cmd *graphCommand) ShortHelp() string { return graphShortHelp }
func (cmd *graphCommand) LongHelp() string  { return graphLongHelp }

func (cmd *graphCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&cmd.output, "output", "", "output file (default: stdout)")
}

func (cmd *graphCommand) Run(args []string) error {
	if len(args) != 2 || args[0] != "to-constraints" {
		return fmt.Errorf("graph requires exactly: to-constraints <graph.json>")
	}

	f, err := os.Open(args[1])
	if err != nil {
		return err
	}
	defer f.Close()
	graph, err := depgraph.FromReader(f)
	if err != nil {
		return fmt.Errorf("reading graph: %w", err)
	}

	out := os.Stdout
	if cmd.output != "" {
		outFile, err := os.Create(cmd.output)
		if err != nil {
			return err
		}
		defer outFile.Close()
		out = outFile
	}

	logger := flog.New(os.Stderr, flog.LevelInfo)
	if *verbose {
		logger = flog.New(os.Stderr, flog.LevelDebug)
	}

	ok, err := writer.WriteConstraintsFile(graph, out, logger)
	if err != nil {
		return fmt.Errorf("writing constraints: %w", err)
	}
	if !ok {
		return fmt.Errorf("constraints file written with unresolved conflicts")
	}
	return nil
}
