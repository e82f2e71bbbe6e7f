package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/hearth/pkg/crm"
	"github.com/platinummonkey/hearth/pkg/middleware"
	"github.com/platinummonkey/hearth/pkg/orgs"
	"github.com/platinummonkey/hearth/pkg/rbac"
	"github.com/platinummonkey/hearth/pkg/sequence"
	"github.com/platinummonkey/hearth/pkg/storage"
)

func newMigrateCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "migrate",
		Description: "Apply pending database migrations",
		Flags:       flag.NewFlagSet("migrate", flag.ContinueOnError),
	}
	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		_, db, err := env.connect(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := storage.Migrate(ctx, db, env.Logger); err != nil {
			return err
		}
		fmt.Fprintln(env.Out, "migrations applied")
		return nil
	}
	return cmd
}

func newTokenCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "token",
		Description: "Issue a bearer token for a principal",
		Flags:       flag.NewFlagSet("token", flag.ContinueOnError),
	}
	principal := cmd.Flags.String("principal", "", "Principal ID (required)")
	ttl := cmd.Flags.Duration("ttl", time.Hour, "Token lifetime")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		id, err := uuid.Parse(*principal)
		if err != nil {
			return fmt.Errorf("invalid --principal: %w", err)
		}
		cfg, err := env.Config()
		if err != nil {
			return err
		}

		token, err := middleware.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer).Issue(id, *ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(env.Out, token)
		return nil
	}
	return cmd
}

func newWorkflow(env *Env, db *sql.DB) *orgs.Workflow {
	uow := storage.NewSQLUnitOfWork(db)
	members := rbac.NewPostgresStore(db)
	guard := rbac.NewGuard(members)
	memberships := rbac.NewMemberships(members, rbac.NewCatalog(), guard, uow, env.Logger, nil)
	return orgs.NewWorkflow(orgs.NewPostgresInvitationStore(db), memberships, guard, uow, orgs.WithWorkflowLogger(env.Logger))
}

func newSweepCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "sweep",
		Description: "Expire pending invitations past their expiry",
		Flags:       flag.NewFlagSet("sweep", flag.ContinueOnError),
	}
	tenant := cmd.Flags.String("tenant", "", "Only sweep this tenant")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		var scope *uuid.UUID
		if *tenant != "" {
			id, err := uuid.Parse(*tenant)
			if err != nil {
				return fmt.Errorf("invalid --tenant: %w", err)
			}
			scope = &id
		}

		_, db, err := env.connect(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := newWorkflow(env, db).SweepExpired(ctx, scope)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Out, "expired %d invitation(s)\n", n)
		return nil
	}
	return cmd
}

func newPurgeCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "purge",
		Description: "Delete terminal invitations older than --after",
		Flags:       flag.NewFlagSet("purge", flag.ContinueOnError),
	}
	after := cmd.Flags.Duration("after", 0, "Age threshold; defaults to HEARTH_INVITATION_PURGE_AFTER")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		cfg, db, err := env.connect(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		olderThan := *after
		if olderThan <= 0 {
			olderThan = cfg.Invitations.PurgeAfter
		}
		n, err := newWorkflow(env, db).PurgeTerminal(ctx, olderThan)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Out, "purged %d invitation(s)\n", n)
		return nil
	}
	return cmd
}

func newReconcileCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "reconcile",
		Description: "Raise a tenant's job counter past its highest stored job number",
		Flags:       flag.NewFlagSet("reconcile", flag.ContinueOnError),
	}
	tenant := cmd.Flags.String("tenant", "", "Tenant ID (required)")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		id, err := uuid.Parse(*tenant)
		if err != nil {
			return fmt.Errorf("invalid --tenant: %w", err)
		}

		_, db, err := env.connect(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		numbers := sequence.NewService(sequence.NewPostgresCounter(db), env.Logger, nil)
		floor, err := crm.ReconcileJobNumbers(ctx, crm.NewPostgresJobStore(db), numbers, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Out, "next job number: %s\n", sequence.Format(crm.JobPrefix, floor+1))
		return nil
	}
	return cmd
}
