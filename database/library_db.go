package database

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// Querier is satisfied by *sql.DB and *sql.Tx
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// ProjectSummary aggregates one project's frames for the library view
type ProjectSummary struct {
	ProjectID     string `json:"projectId"`
	Name          string `json:"name"`
	LastModified  int64  `json:"lastModified"`
	FrameCount    int    `json:"frameCount"`
	KeeperCount   int    `json:"keeperCount"`
	AnalyzedCount int    `json:"analyzedCount"`
	EnhancedCount int    `json:"enhancedCount"`
}

func summaryQuery() sq.SelectBuilder {
	return psql.Select(
		"p.id", "p.name", "p.updated_at",
		"COUNT(f.id)",
		"COALESCE(SUM(CASE WHEN f.is_keeper = 1 THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN f.analysis IS NOT NULL AND f.analysis != 'null' THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN f.is_enhanced = 1 THEN 1 ELSE 0 END), 0)",
	).
		From("projects p").
		LeftJoin("frames f ON f.project_id = p.id").
		GroupBy("p.id", "p.name", "p.updated_at")
}

// ListProjectSummaries returns per-project frame and keeper counts, newest first.
// When keepersOnly is set, projects without keepers are omitted.
func ListProjectSummaries(ctx context.Context, db Querier, keepersOnly bool) ([]ProjectSummary, error) {
	queryBuilder := summaryQuery().OrderBy("p.updated_at DESC", "p.id ASC")
	if keepersOnly {
		queryBuilder = queryBuilder.Having("SUM(CASE WHEN f.is_keeper = 1 THEN 1 ELSE 0 END) > 0")
	}

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query for ListProjectSummaries: %w", err)
	}

	rows, err := db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query project summaries: %w", err)
	}
	defer rows.Close()

	var summaries []ProjectSummary
	for rows.Next() {
		var s ProjectSummary
		if err := rows.Scan(&s.ProjectID, &s.Name, &s.LastModified, &s.FrameCount, &s.KeeperCount, &s.AnalyzedCount, &s.EnhancedCount); err != nil {
			return nil, fmt.Errorf("failed to scan project summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating project summaries: %w", err)
	}
	return summaries, nil
}

// GetProjectSummary returns the counts for one project, or sql.ErrNoRows
func GetProjectSummary(ctx context.Context, db Querier, projectID string) (ProjectSummary, error) {
	sqlStr, args, err := summaryQuery().Where(sq.Eq{"p.id": projectID}).ToSql()
	if err != nil {
		return ProjectSummary{}, fmt.Errorf("failed to build SQL query for GetProjectSummary: %w", err)
	}

	var s ProjectSummary
	err = db.QueryRowContext(ctx, sqlStr, args...).
		Scan(&s.ProjectID, &s.Name, &s.LastModified, &s.FrameCount, &s.KeeperCount, &s.AnalyzedCount, &s.EnhancedCount)
	if err != nil {
		if err == sql.ErrNoRows {
			return ProjectSummary{}, sql.ErrNoRows
		}
		return ProjectSummary{}, fmt.Errorf("failed to query summary for project %s: %w", projectID, err)
	}
	return s, nil
}
