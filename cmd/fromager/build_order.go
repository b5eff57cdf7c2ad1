package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fromager-go/fromager/internal/writer"
)

const buildOrderShortHelp = `Report on a previously written build-order.json file`
const buildOrderLongHelp = `
With "as-csv", renders a single build-order.json as a spreadsheet-friendly
CSV. With "summary", cross-references several build-order.json files (one
per argument) and reports whether they agree on the version of every
distribution.
`

type buildOrderCommand struct {
	output string
}

func (cmd *buildOrderCommand) Name() string      { return "build-order" }
func (cmd *buildOrderCommand) Args() string      { return "<as-csv|summary> <file...>" }
func (cmd *buildOrderCommand) ShortHelp() string { return buildOrderShortHelp }
func (cmd *buildOrderCommand) LongHelp() string  { return buildOrderLongHelp }

func (cmd *buildOrderCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&cmd.output, "output", "", "output file (default: stdout)")
}

func (cmd *buildOrderCommand) Run(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("build-order requires a subcommand (as-csv|summary) and at least one file")
	}

	out := os.Stdout
	if cmd.output != "" {
		f, err := os.Create(cmd.output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	switch args[0] {
	case "as-csv":
		if len(args) != 2 {
			return fmt.Errorf("as-csv takes exactly one build-order.json file")
		}
		entries, err := readBuildOrderFile(args[1])
		if err != nil {
			return err
		}
		return writer.WriteCSV(out, entries)
	case "summary":
		filenames := args[1:]
		fileEntries := make(map[string][]writer.BuildOrderEntry, len(filenames))
		for _, name := range filenames {
			entries, err := readBuildOrderFile(name)
			if err != nil {
				return err
			}
			fileEntries[name] = entries
		}
		return writer.Summarize(out, filenames, fileEntries)
	default:
		return fmt.Errorf("unknown build-order subcommand %q", args[0])
	}
}

func readBuildOrderFile(path string) ([]writer.BuildOrderEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return writer.ReadBuildOrder(f)
}
