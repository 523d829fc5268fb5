package repositories

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/FCE-Intelligence/internal/domain/citation"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/database/postgres"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
)

var citationRowColumns = []string{"id", "test_id", "authors", "title", "source", "year", "volume", "pages", "updated_at"}

type CitationRepoTestSuite struct {
	suite.Suite
	db   *sql.DB
	mock sqlmock.Sqlmock
	repo citation.Repository
}

func (s *CitationRepoTestSuite) SetupTest() {
	var err error
	s.db, s.mock, err = sqlmock.New()
	require.NoError(s.T(), err)

	log := logging.NewNopLogger()
	s.repo = NewPostgresCitationRepo(postgres.NewConnectionWithDB(s.db, log), log)
}

func (s *CitationRepoTestSuite) TearDownTest() {
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
	s.db.Close()
}

func (s *CitationRepoTestSuite) TestFindByTestID_OrdersByPosition() {
	now := time.Now().UTC()
	s.mock.ExpectQuery("SELECT .* FROM citations WHERE test_id = \\$1 ORDER BY position, id").
		WithArgs("grip-strength").
		WillReturnRows(sqlmock.NewRows(citationRowColumns).
			AddRow("mathiowetz-1985", "grip-strength", "Mathiowetz V, Kashman N", "Grip and pinch strength", "Arch Phys Med Rehabil", 1985, "66", "69-74", now).
			AddRow("mathiowetz-1984", "grip-strength", "Mathiowetz V, Weber K", "Reliability and validity", "J Hand Surg Am", 1984, nil, nil, now))

	cites, err := s.repo.FindByTestID(context.Background(), "grip-strength")
	s.Require().NoError(err)
	s.Require().Len(cites, 2)
	s.Equal("mathiowetz-1985", cites[0].ID)
	s.Equal("66", cites[0].Volume)
	s.Equal("mathiowetz-1984", cites[1].ID)
	s.Empty(cites[1].Volume)
	s.Empty(cites[1].Pages)
}

func (s *CitationRepoTestSuite) TestFindByTestID_UnknownIsEmpty() {
	s.mock.ExpectQuery("SELECT .* FROM citations").
		WithArgs("xyz").
		WillReturnRows(sqlmock.NewRows(citationRowColumns))

	cites, err := s.repo.FindByTestID(context.Background(), "xyz")
	s.Require().NoError(err)
	s.NotNil(cites)
	s.Empty(cites)
}

func (s *CitationRepoTestSuite) TestFindByTestID_QueryError() {
	s.mock.ExpectQuery("SELECT .* FROM citations").
		WithArgs("grip-strength").
		WillReturnError(sql.ErrConnDone)

	_, err := s.repo.FindByTestID(context.Background(), "grip-strength")
	s.True(errors.IsCode(err, errors.ErrCodeDatabaseError))
}

func (s *CitationRepoTestSuite) TestUpsert() {
	c := &citation.Citation{
		ID:      "bruce-1973",
		TestID:  "bruce-treadmill",
		Authors: "Bruce RA, Kusumi F, Hosmer D",
		Title:   "Maximal oxygen intake",
		Source:  "Am Heart J",
		Year:    1973,
		Volume:  "85",
		Pages:   "546-62",
	}
	updated := time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC)
	s.mock.ExpectQuery("INSERT INTO citations .* ON CONFLICT \\(test_id, id\\) DO UPDATE").
		WithArgs(c.TestID, c.ID, c.Authors, c.Title, c.Source, c.Year, c.Volume, c.Pages).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(updated))

	s.Require().NoError(s.repo.Upsert(context.Background(), c))
	s.Equal(updated, c.UpdatedAt)
}

func (s *CitationRepoTestSuite) TestUpsert_RejectsInvalid() {
	err := s.repo.Upsert(context.Background(), &citation.Citation{ID: "x"})
	s.True(errors.IsCode(err, errors.ErrCodeCitationInvalid))
}

func (s *CitationRepoTestSuite) TestDelete() {
	s.mock.ExpectExec("DELETE FROM citations WHERE test_id = \\$1 AND id = \\$2").
		WithArgs("bruce-treadmill", "bruce-1973").
		WillReturnResult(sqlmock.NewResult(0, 1))

	s.NoError(s.repo.Delete(context.Background(), "bruce-treadmill", "bruce-1973"))
}

func (s *CitationRepoTestSuite) TestDelete_NotFound() {
	s.mock.ExpectExec("DELETE FROM citations").
		WithArgs("bruce-treadmill", "nope").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.repo.Delete(context.Background(), "bruce-treadmill", "nope")
	s.True(errors.IsNotFound(err))
	s.True(errors.IsCode(err, errors.ErrCodeCitationNotFound))
}

func (s *CitationRepoTestSuite) TestListTestIDs() {
	s.mock.ExpectQuery("SELECT DISTINCT test_id FROM citations").
		WillReturnRows(sqlmock.NewRows([]string{"test_id"}).AddRow("bruce-treadmill").AddRow("grip-strength"))

	ids, err := s.repo.ListTestIDs(context.Background())
	s.Require().NoError(err)
	s.Equal([]string{"bruce-treadmill", "grip-strength"}, ids)
}

func (s *CitationRepoTestSuite) TestSeedFromCatalog() {
	cat := citation.MustBuiltin()
	total := 0
	for _, id := range cat.TestIDs() {
		cites, _ := cat.Resolve(context.Background(), id)
		total += len(cites)
	}
	for i := 0; i < total; i++ {
		s.mock.ExpectQuery("INSERT INTO citations").
			WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
	}

	n, err := citation.Seed(context.Background(), s.repo, cat)
	s.Require().NoError(err)
	s.Equal(total, n)
}

func TestCitationRepoTestSuite(t *testing.T) {
	suite.Run(t, new(CitationRepoTestSuite))
}
