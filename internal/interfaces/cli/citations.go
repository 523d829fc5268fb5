package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/FCE-Intelligence/internal/application/reporting"
	"github.com/turtacn/FCE-Intelligence/internal/config"
	"github.com/turtacn/FCE-Intelligence/internal/domain/citation"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/database/postgres"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/database/redis"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
)

// openDatabase is replaced in tests.
var openDatabase = func(ctx context.Context, cfg config.DatabaseConfig, log logging.Logger) (*postgres.Connection, error) {
	return postgres.NewConnection(ctx, cfg, log)
}

// NewCitationsCmd creates the citations command group.
func NewCitationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "citations",
		Short: "Inspect and load the literature cited for each test",
	}
	cmd.AddCommand(newCitationsShowCmd(), newCitationsSeedCmd())
	return cmd
}

type citationsView struct {
	TestID    string               `json:"testId"`
	Citations []*citation.Citation `json:"citations"`
}

func (v citationsView) TableHeaders() []string {
	return []string{"ID", "AUTHORS", "YEAR", "TITLE", "SOURCE"}
}

func (v citationsView) TableRows() [][]string {
	rows := make([][]string, len(v.Citations))
	for i, c := range v.Citations {
		rows[i] = []string{c.ID, c.Authors, strconv.Itoa(c.Year), c.Title, c.Source}
	}
	return rows
}

func (v citationsView) WriteText(w io.Writer) {
	if len(v.Citations) == 0 {
		fmt.Fprintf(w, "no citations for %s\n", v.TestID)
		return
	}
	for i, c := range v.Citations {
		fmt.Fprintf(w, "%d. %s\n", i+1, c)
	}
}

func newCitationsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "show <test-id>",
		Short:   "Print the citations attached to a test id",
		Example: `  fcectl citations show grip-strength`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, ctx, cancel, err := commandContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			cites, err := cliCtx.Backend.Citations(ctx, args[0])
			if err != nil {
				return err
			}
			if cites == nil {
				cites = []*citation.Citation{}
			}
			return PrintResult(cmd, citationsView{TestID: args[0], Citations: cites})
		},
	}
}

func newCitationsSeedCmd() *cobra.Command {
	var catalogPath string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert a citation catalog into the database",
		Long: "Seed writes every citation of the built-in catalog, or of --catalog, into the\n" +
			"citations table. Existing rows keep their position and get their\n" +
			"bibliographic fields rewritten, so seeding twice is harmless. With redis\n" +
			"enabled the cached citation lookups are dropped afterwards.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := loadCatalog(catalogPath)
			if err != nil {
				return err
			}
			cliCtx, ctx, cancel, err := commandContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			conn, err := openDatabase(ctx, cliCtx.Config.Database, cliCtx.Logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			n, err := citation.Seed(ctx, repositories.NewPostgresCitationRepo(conn, cliCtx.Logger), cat)
			if err != nil {
				return errors.Wrapf(err, errors.GetCode(err), "seeding stopped after %d citations", n)
			}
			PrintSuccess(cmd, fmt.Sprintf("seeded %d citations for %d tests", n, len(cat.TestIDs())))

			if cliCtx.Config.Redis.Enabled {
				// On failure cached lookups go stale until their ttl runs out.
				if err := invalidateCitationCache(ctx, cliCtx.Config.Redis, cliCtx.Logger); err != nil {
					cliCtx.Logger.Warn("failed to invalidate citation cache", logging.Err(err))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "YAML catalog file (default: built-in catalog)")
	return cmd
}

func invalidateCitationCache(ctx context.Context, cfg config.RedisConfig, log logging.Logger) error {
	client, err := redis.NewClient(cfg, log)
	if err != nil {
		return err
	}
	defer client.Close()

	cache := redis.NewRedisCache(client, log, redis.WithPrefix(cfg.KeyPrefix))
	n, err := cache.DeleteByPrefix(ctx, reporting.CitationKeyPrefix)
	if err != nil {
		return err
	}
	log.Info("citation cache invalidated", logging.Int64("keys", n))
	return nil
}

func loadCatalog(path string) (*citation.Catalog, error) {
	if path == "" {
		return citation.Builtin()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidParam, "cannot read catalog").WithDetail("file=" + path)
	}
	return citation.LoadCatalog(data)
}
