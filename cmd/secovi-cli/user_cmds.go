package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
)

type usersCmd struct {
	raw bool
}

func (*usersCmd) Name() string     { return "users" }
func (*usersCmd) Synopsis() string { return "list the operators" }
func (*usersCmd) Usage() string {
	return `secovi-cli users [-raw]
`
}

func (c *usersCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.raw, "raw", false, "print markdown without rendering")
}

func (c *usersCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app) error {
		current, ok := a.users.Current()
		printMarkdown(usersMarkdown(a.users.List(), current, ok), c.raw)
		return nil
	})
}

type addUserCmd struct {
	name     string
	login    string
	password string
}

func (*addUserCmd) Name() string     { return "adduser" }
func (*addUserCmd) Synopsis() string { return "add an operator" }
func (*addUserCmd) Usage() string {
	return `secovi-cli adduser -name <name> -login <login> -password <password>
`
}

func (c *addUserCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "display name")
	f.StringVar(&c.login, "login", "", "login")
	f.StringVar(&c.password, "password", "", "password")
}

func (c *addUserCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app) error {
		u, err := a.users.AddUser(ctx, c.name, c.login, c.password)
		if err != nil {
			return err
		}
		fmt.Printf("Usuário %s adicionado (id %d).\n", u.Login, u.ID)
		return nil
	})
}

type delUserCmd struct {
	id  int64
	yes bool
}

func (*delUserCmd) Name() string     { return "deluser" }
func (*delUserCmd) Synopsis() string { return "remove an operator" }
func (*delUserCmd) Usage() string {
	return `secovi-cli deluser -id <id> -yes

  The last remaining operator and the signed-in operator cannot be removed.
`
}

func (c *delUserCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.id, "id", 0, "id of the operator")
	f.BoolVar(&c.yes, "yes", false, "confirm the removal")
}

func (c *delUserCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.id == 0 || !c.yes {
		fmt.Fprintln(os.Stderr, "Error: -id and -yes are required")
		return subcommands.ExitUsageError
	}
	return run(ctx, func(a *app) error {
		if err := a.users.RemoveUser(ctx, c.id); err != nil {
			return err
		}
		fmt.Println("Usuário removido.")
		return nil
	})
}
