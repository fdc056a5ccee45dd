package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/subcommands"

	"secovi/internal/amqp"
	"secovi/internal/core"
	"secovi/internal/impexp"
)

var errNotConfirmed = errors.New("refusing to replace data without -yes")

type summaryCmd struct {
	year   int
	month  string
	noFin  bool
	expand bool
	raw    bool
}

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "print the consolidated totals of a year or month" }
func (*summaryCmd) Usage() string {
	return `secovi-cli summary [-year <y>] [-month <Jan..Dez>] [-no-fin] [-expand] [-raw]

  Prints the consolidated report rendered from markdown.
`
}

func (c *summaryCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.year, "year", 0, "year to aggregate (defaults to DEFAULT_YEAR)")
	f.StringVar(&c.month, "month", "", "month to aggregate, empty for the whole year")
	f.BoolVar(&c.noFin, "no-fin", false, "exclude financial revenue")
	f.BoolVar(&c.expand, "expand", false, "show the per-unit breakdown")
	f.BoolVar(&c.raw, "raw", false, "print markdown without rendering")
}

func (c *summaryCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	var month core.Month
	if c.month != "" {
		m, err := core.ParseMonth(c.month)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitUsageError
		}
		month = m
	}
	return run(ctx, func(a *app) error {
		year := c.year
		if year == 0 {
			year = a.cfg.DefaultYear
		}
		sum := a.ledger.Summary(core.Query{Year: year, Month: month, IncludeFinancial: !c.noFin})
		printMarkdown(summaryMarkdown(sum, c.expand), c.raw)
		return nil
	})
}

type exportCmd struct {
	output string
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "write a JSON backup of the whole ledger" }
func (*exportCmd) Usage() string {
	return `secovi-cli export [-o <file>]

  Writes the backup to <file>, to a dated file in the current directory
  by default, or to stdout with -o -.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.output, "o", "", "output file, - for stdout")
}

func (c *exportCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app) error {
		name := c.output
		if name == "" {
			name = impexp.BackupFilename(time.Now())
		}
		return writeOutput(name, func(w io.Writer) error {
			return impexp.ExportBackup(w, a.ledger.Snapshot())
		})
	})
}

type restoreCmd struct {
	yes bool
}

func (*restoreCmd) Name() string     { return "restore" }
func (*restoreCmd) Synopsis() string { return "replace the whole ledger with a JSON backup" }
func (*restoreCmd) Usage() string {
	return `secovi-cli restore -yes <file>

  Replaces every stored figure with the content of the backup. An invalid
  file changes nothing.
`
}

func (c *restoreCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.yes, "yes", false, "confirm replacing all data")
}

func (c *restoreCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	if !c.yes {
		fmt.Fprintf(os.Stderr, "Error: %v\n", errNotConfirmed)
		return subcommands.ExitUsageError
	}
	file, err := os.Open(f.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer file.Close()
	l, err := impexp.ParseBackup(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return run(ctx, func(a *app) error {
		a.ledger.ReplaceAll(l)
		fmt.Printf("Backup restaurado (%d anos).\n", len(l))
		return nil
	})
}

type templateCmd struct {
	year   int
	output string
}

func (*templateCmd) Name() string     { return "template" }
func (*templateCmd) Synopsis() string { return "write the bulk-entry CSV template" }
func (*templateCmd) Usage() string {
	return `secovi-cli template [-year <y>] [-o <file>]
`
}

func (c *templateCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.year, "year", 0, "year of the template rows (defaults to DEFAULT_YEAR)")
	f.StringVar(&c.output, "o", impexp.TemplateFilename, "output file, - for stdout")
}

func (c *templateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app) error {
		year := c.year
		if year == 0 {
			year = a.cfg.DefaultYear
		}
		return writeOutput(c.output, func(w io.Writer) error {
			return impexp.WriteTemplate(w, year)
		})
	})
}

type importCmd struct{}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "apply a bulk-entry CSV file" }
func (*importCmd) Usage() string {
	return `secovi-cli import <file.csv>

  Sets the figures listed in the file, leaving every other record as is.
`
}

func (*importCmd) SetFlags(*flag.FlagSet) {}

func (*importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	return run(ctx, func(a *app) error {
		file, err := os.Open(f.Arg(0))
		if err != nil {
			return err
		}
		defer file.Close()

		var res impexp.ImportResult
		err = a.ledger.Apply(amqp.EventImported, func(l core.Ledger) error {
			var ierr error
			res, ierr = impexp.ImportCSV(file, l)
			return ierr
		})
		if err != nil {
			return err
		}
		fmt.Printf("%d linhas importadas, %d ignoradas.\n", res.Applied, res.Skipped)
		if res.UnknownPillarLabels > 0 {
			fmt.Printf("%d linhas com pilar desconhecido foram lidas como Secovimed.\n", res.UnknownPillarLabels)
		}
		return nil
	})
}

type clearCmd struct {
	yes bool
}

func (*clearCmd) Name() string     { return "clear" }
func (*clearCmd) Synopsis() string { return "erase the ledger and start over from the empty skeleton" }
func (*clearCmd) Usage() string {
	return `secovi-cli clear -yes
`
}

func (c *clearCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.yes, "yes", false, "confirm erasing all data")
}

func (c *clearCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if !c.yes {
		fmt.Fprintf(os.Stderr, "Error: %v\n", errNotConfirmed)
		return subcommands.ExitUsageError
	}
	return run(ctx, func(a *app) error {
		if err := a.ledger.Clear(ctx); err != nil {
			return err
		}
		fmt.Println("Banco de dados apagado.")
		return nil
	})
}

// writeOutput calls write with name opened for writing, or with stdout
// when name is "-".
func writeOutput(name string, write func(io.Writer) error) error {
	if name == "-" {
		return write(os.Stdout)
	}
	file, err := os.Create(name)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Wrote %s\n", name)
	return nil
}
