// Package main is the fromager command-line entry point: a thin
// dispatcher over the bootstrap engine and its build-order/graph
// report writers, in the same style as golang-dep's own CLI.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
)

var verbose = flag.Bool("v", false, "enable verbose logging")

type command interface {
	Name() string
	Args() string
	ShortHelp() string
	LongHelp() string
	Register(*flag.FlagSet)
	Run([]string) error
}

func main() {
	commands := []command{
		&bootstrapCommand{},
		&buildOrderCommand{},
		&graphCommand{},
	}

	usage := func() {
		fmt.Fprintln(os.Stderr, "Usage: fromager <command>")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr)
		w := tabwriter.NewWriter(os.Stderr, 0, 4, 2, ' ', 0)
		for _, c := range commands {
			fmt.Fprintf(w, "\t%s\t%s\n", c.Name(), c.ShortHelp())
		}
		w.Flush()
		fmt.Fprintln(os.Stderr)
	}

	if len(os.Args) <= 1 || len(os.Args) == 2 && (strings.Contains(strings.ToLower(os.Args[1]), "help") || strings.ToLower(os.Args[1]) == "-h") {
		usage()
		os.Exit(1)
	}

	for _, c := range commands {
		if c.Name() != os.Args[1] {
			continue
		}

		fs := flag.NewFlagSet(c.Name(), flag.ExitOnError)
		fs.BoolVar(verbose, "v", false, "enable verbose logging")
		c.Register(fs)
		resetUsage(fs, c.Name(), c.Args(), c.LongHelp())

		if err := fs.Parse(os.Args[2:]); err != nil {
			fs.Usage()
			os.Exit(1)
		}

		if err := c.Run(fs.Args()); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "%s: no such command\n", os.Args[1])
	usage()
	os.Exit(1)
}

func resetUsage(fs *flag.FlagSet, name, args, longHelp string) {
	var (
		hasFlags   bool
		flagBlock  bytes.Buffer
		flagWriter = tabwriter.NewWriter(&flagBlock, 0, 4, 2, ' ', 0)
	)
	fs.VisitAll(func(f *flag.Flag) {
		hasFlags = true
		fmt.Fprintf(flagWriter, "  -%s\t%s\n", f.Name, f.Usage)
	})
	flagWriter.Flush()

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: fromager %s %s\n", name, args)
		fmt.Fprintln(fs.Output())
		fmt.Fprintln(fs.Output(), strings.TrimSpace(longHelp))
		if hasFlags {
			fmt.Fprintln(fs.Output())
			fmt.Fprintln(fs.Output(), "Flags:")
			fmt.Fprint(fs.Output(), flagBlock.String())
		}
	}
}
