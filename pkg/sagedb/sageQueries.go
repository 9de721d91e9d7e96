package sagedb

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// DBTX is the query surface shared by *sql.DB and *sql.Tx.
type DBTX interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries are the SAGE lookups an upload run needs.
type Queries struct {
	db DBTX
}

func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

const driversQuery = "SELECT name,value FROM line_property_vw WHERE type='flycore_project'"

// Drivers maps each line to its driver, derived from the line's flycore project.
func (q *Queries) Drivers(ctx context.Context) (map[string]string, error) {
	rows, err := q.db.QueryContext(ctx, driversQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	drivers := map[string]string{}
	for rows.Next() {
		var line, project string
		if err := rows.Scan(&line, &project); err != nil {
			return nil, err
		}
		drivers[line] = DriverFromProject(project)
	}
	return drivers, rows.Err()
}

// DriverFromProject turns a flycore project such as "Split-GAL4_Collection" into a driver name
// ("Split_GAL4").
func DriverFromProject(project string) string {
	return strings.ReplaceAll(strings.ReplaceAll(project, "_Collection", ""), "-", "_")
}

const releasesQuery = "SELECT line,GROUP_CONCAT(DISTINCT alps_release) AS alps " +
	"FROM image_data_mv WHERE alps_release IS NOT NULL GROUP BY 1"

// Releases maps each line to the ALPS releases it appears in.
func (q *Queries) Releases(ctx context.Context) (map[string][]string, error) {
	rows, err := q.db.QueryContext(ctx, releasesQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	releases := map[string][]string{}
	for rows.Next() {
		var line, alps string
		if err := rows.Scan(&line, &alps); err != nil {
			return nil, err
		}
		releases[line] = strings.Split(alps, ",")
	}
	return releases, rows.Err()
}

const publishedQuery = "SELECT id FROM image_data_mv WHERE workstation_sample_id=? " +
	"AND to_publish='Y' AND alps_release IS NOT NULL LIMIT 1"

// IsPublished reports whether any image of the sample is flagged for publishing.
func (q *Queries) IsPublished(ctx context.Context, sampleID string) (bool, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, publishedQuery, sampleID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
