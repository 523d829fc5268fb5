package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/turtacn/FCE-Intelligence/internal/domain/citation"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/database/postgres"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
)

const citationColumns = `id, test_id, authors, title, source, year, volume, pages, updated_at`

type postgresCitationRepo struct {
	db  queryExecutor
	log logging.Logger
}

// NewPostgresCitationRepo stores citations in the citations table. Rows of a
// test keep the order in which they were first inserted.
func NewPostgresCitationRepo(conn *postgres.Connection, log logging.Logger) citation.Repository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &postgresCitationRepo{db: conn.DB(), log: log}
}

func (r *postgresCitationRepo) FindByTestID(ctx context.Context, testID string) ([]*citation.Citation, error) {
	query := `SELECT ` + citationColumns + ` FROM citations WHERE test_id = $1 ORDER BY position, id`
	rows, err := r.db.QueryContext(ctx, query, testID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query citations").WithDetail("test_id=" + testID)
	}
	defer rows.Close()

	out := make([]*citation.Citation, 0, 2)
	for rows.Next() {
		c, err := scanCitation(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan citation").WithDetail("test_id=" + testID)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate citations").WithDetail("test_id=" + testID)
	}
	return out, nil
}

// Upsert inserts c at the end of its test's list, or rewrites the bibliographic
// fields of an existing row in place.
func (r *postgresCitationRepo) Upsert(ctx context.Context, c *citation.Citation) error {
	if err := c.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO citations (test_id, id, position, authors, title, source, year, volume, pages, updated_at)
		VALUES ($1, $2, COALESCE((SELECT MAX(position) + 1 FROM citations WHERE test_id = $1), 0), $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (test_id, id) DO UPDATE SET
			authors = EXCLUDED.authors,
			title = EXCLUDED.title,
			source = EXCLUDED.source,
			year = EXCLUDED.year,
			volume = EXCLUDED.volume,
			pages = EXCLUDED.pages,
			updated_at = NOW()
		RETURNING updated_at
	`
	var updated time.Time
	err := r.db.QueryRowContext(ctx, query,
		c.TestID, c.ID, c.Authors, c.Title, c.Source, c.Year, c.Volume, c.Pages,
	).Scan(&updated)
	if err != nil {
		r.log.Error("failed to upsert citation", logging.TestID(c.TestID), logging.String("citation_id", c.ID), logging.Err(err))
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to upsert citation").WithDetail("id=" + c.ID)
	}
	c.UpdatedAt = updated
	return nil
}

func (r *postgresCitationRepo) Delete(ctx context.Context, testID, citationID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM citations WHERE test_id = $1 AND id = $2`, testID, citationID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete citation").WithDetail("id=" + citationID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read affected rows")
	}
	if n == 0 {
		return errors.New(errors.ErrCodeCitationNotFound, "citation not found").
			WithDetail("test_id=" + testID + " id=" + citationID)
	}
	return nil
}

func (r *postgresCitationRepo) ListTestIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT test_id FROM citations ORDER BY test_id`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list cited tests")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan test id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanCitation(row scanner) (*citation.Citation, error) {
	var (
		c             citation.Citation
		volume, pages sql.NullString
	)
	if err := row.Scan(&c.ID, &c.TestID, &c.Authors, &c.Title, &c.Source, &c.Year, &volume, &pages, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Volume = volume.String
	c.Pages = pages.String
	return &c, nil
}
