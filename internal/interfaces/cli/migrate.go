package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/database/postgres"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
)

// schemaMigrator is the part of postgres.Migrator the commands use.
type schemaMigrator interface {
	Up() error
	Down(steps int) error
	Status() (postgres.MigrationStatus, error)
	Force(version int) error
	Close() error
}

// openMigrator is replaced in tests.
var openMigrator = func(cmd *cobra.Command) (schemaMigrator, func(), error) {
	cliCtx, ctx, cancel, err := commandContext(cmd)
	if err != nil {
		return nil, nil, err
	}
	defer cancel()

	conn, err := openDatabase(ctx, cliCtx.Config.Database, cliCtx.Logger)
	if err != nil {
		return nil, nil, err
	}
	mg, err := postgres.NewMigrator(conn.DB(), cliCtx.Logger)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return mg, func() {
		_ = mg.Close()
		_ = conn.Close()
	}, nil
}

// NewMigrateCmd creates the migrate command group.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(
		newMigrateUpCmd(),
		newMigrateDownCmd(),
		newMigrateStatusCmd(),
		newMigrateForceCmd(),
	)
	return cmd
}

type statusView struct{ postgres.MigrationStatus }

func (s statusView) TableHeaders() []string { return []string{"VERSION", "DIRTY"} }

func (s statusView) TableRows() [][]string {
	return [][]string{{fmt.Sprint(s.Version), fmt.Sprint(s.Dirty)}}
}

func (s statusView) WriteText(w io.Writer) {
	state := okColor.Sprint("clean")
	if s.Dirty {
		state = failColor.Sprint("dirty")
	}
	fmt.Fprintf(w, "schema version %d (%s)\n", s.Version, state)
}

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mg, closeFn, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := mg.Up(); err != nil {
				return err
			}
			st, err := mg.Status()
			if err != nil {
				return err
			}
			return PrintResult(cmd, statusView{st})
		},
	}
}

func newMigrateDownCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps <= 0 {
				return errors.InvalidParam("--steps must be greater than 0")
			}
			mg, closeFn, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := mg.Down(steps); err != nil {
				return err
			}
			st, err := mg.Status()
			if err != nil {
				return err
			}
			return PrintResult(cmd, statusView{st})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	return cmd
}

func newMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mg, closeFn, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			st, err := mg.Status()
			if err != nil {
				return err
			}
			return PrintResult(cmd, statusView{st})
		},
	}
}

func newMigrateForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Record a schema version without running migrations",
		Long:  "Force clears the dirty flag after a failed migration has been repaired by hand.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var version int
			if _, err := fmt.Sscan(args[0], &version); err != nil || version < 0 {
				return errors.InvalidParam("version must be a non-negative integer").WithDetail("version=" + args[0])
			}
			mg, closeFn, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := mg.Force(version); err != nil {
				return err
			}
			PrintSuccess(cmd, fmt.Sprintf("schema version forced to %d", version))
			return nil
		},
	}
}
