package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"sort"

	"github.com/platinummonkey/hearth/pkg/config"
	"github.com/platinummonkey/hearth/pkg/observability"
	"github.com/platinummonkey/hearth/pkg/storage/postgres"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(ctx context.Context, args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// Env is what commands run against. Tests replace OpenDB with a mock.
type Env struct {
	Out    io.Writer
	Logger *observability.Logger
	Config func() (*config.Config, error)
	OpenDB func(ctx context.Context, cfg *config.Config) (*sql.DB, error)
}

// DefaultEnv reads the configuration from the environment and connects to
// the configured PostgreSQL
func DefaultEnv(out io.Writer, logger *observability.Logger) *Env {
	return &Env{
		Out:    out,
		Logger: logger,
		Config: config.LoadConfig,
		OpenDB: func(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
			return postgres.Open(ctx, postgres.ConnectionConfig{
				URL:         cfg.Database.URL,
				MaxConns:    cfg.Database.MaxConns,
				MinConns:    1,
				Timeout:     cfg.Database.Timeout,
				MaxLifetime: cfg.Database.MaxLifetime,
				MaxIdleTime: cfg.Database.MaxIdleTime,
			})
		},
	}
}

// NewRootCommand creates the hearthctl root command
func NewRootCommand(env *Env) *Command {
	root := &Command{
		Name:        "hearthctl",
		Description: "hearthctl - Hearth operations tool",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("hearthctl", flag.ContinueOnError),
	}

	for _, cmd := range []*Command{
		newMigrateCommand(env),
		newTokenCommand(env),
		newSweepCommand(env),
		newPurgeCommand(env),
		newReconcileCommand(env),
	} {
		root.Subcommands[cmd.Name] = cmd
	}
	return root
}

// Execute runs the subcommand named by args[0]
func (c *Command) Execute(ctx context.Context, out io.Writer, args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		c.usage(out)
		return nil
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(ctx, args[1:])
	}
	return fmt.Errorf("unknown command: %s", args[0])
}

func (c *Command) usage(out io.Writer) {
	fmt.Fprintf(out, "Usage: %s <command> [args]\n\nCommands:\n", c.Name)
	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
}

// connect loads the configuration and opens the database
func (e *Env) connect(ctx context.Context) (*config.Config, *sql.DB, error) {
	cfg, err := e.Config()
	if err != nil {
		return nil, nil, err
	}
	db, err := e.OpenDB(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}
