package sagedb

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSageQueries(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T, mock sqlmock.Sqlmock, q *Queries){
		"drivers are derived from flycore projects": testDrivers,
		"releases are split per line":               testReleases,
		"published sample":                          testPublished,
		"unpublished sample":                        testNotPublished,
	} {
		t.Run(scenario, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()
			fn(t, mock, NewQueries(db))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func testDrivers(t *testing.T, mock sqlmock.Sqlmock, q *Queries) {
	mock.ExpectQuery(regexp.QuoteMeta(driversQuery)).WillReturnRows(
		sqlmock.NewRows([]string{"name", "value"}).
			AddRow("JRC_SS12345", "Split_GAL4").
			AddRow("GMR_12A01_LX", "LexA_Collection").
			AddRow("JRC_SS00001", "Split-GAL4_Collection").
			AddRow("VT012345", "GAL4-Collection"))

	drivers, err := q.Drivers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"JRC_SS12345":  "Split_GAL4",
		"GMR_12A01_LX": "LexA",
		"JRC_SS00001":  "Split_GAL4",
		"VT012345":     "GAL4_Collection",
	}, drivers)
}

func testReleases(t *testing.T, mock sqlmock.Sqlmock, q *Queries) {
	mock.ExpectQuery(regexp.QuoteMeta(releasesQuery)).WillReturnRows(
		sqlmock.NewRows([]string{"line", "alps"}).AddRow("JRC_SS12345", "Split-GAL4 Omnibus,Fly Light Gen1"))

	releases, err := q.Releases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Split-GAL4 Omnibus", "Fly Light Gen1"}, releases["JRC_SS12345"])
}

func testPublished(t *testing.T, mock sqlmock.Sqlmock, q *Queries) {
	mock.ExpectQuery(regexp.QuoteMeta(publishedQuery)).WithArgs("2452746188929073250").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(77))

	published, err := q.IsPublished(context.Background(), "2452746188929073250")
	require.NoError(t, err)
	assert.True(t, published)
}

func testNotPublished(t *testing.T, mock sqlmock.Sqlmock, q *Queries) {
	mock.ExpectQuery(regexp.QuoteMeta(publishedQuery)).WithArgs("1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	published, err := q.IsPublished(context.Background(), "1")
	require.NoError(t, err)
	assert.False(t, published)
}
