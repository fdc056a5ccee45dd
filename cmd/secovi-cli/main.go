// Command secovi-cli administers the dashboard data from a terminal.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"

	"secovi/internal/cli"
)

func main() {
	cli.LoadEnvFile()

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	commander.Register(&summaryCmd{}, "ledger")
	commander.Register(&exportCmd{}, "ledger")
	commander.Register(&restoreCmd{}, "ledger")
	commander.Register(&templateCmd{}, "ledger")
	commander.Register(&importCmd{}, "ledger")
	commander.Register(&clearCmd{}, "ledger")

	commander.Register(&usersCmd{}, "users")
	commander.Register(&addUserCmd{}, "users")
	commander.Register(&delUserCmd{}, "users")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
