package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const applicationsTable = "schema_applications"

// Application is one successful schema application
type Application struct {
	ID         string
	Deployment string
	Digest     string
	TypeCount  int
	Document   string
	AppliedAt  time.Time
}

// Tracker records schema applications for a deployment
type Tracker struct {
	db         *DB
	deployment string
	now        func() time.Time
}

// NewTracker creates a new application tracker
func NewTracker(db *DB, deployment string) *Tracker {
	return &Tracker{
		db:         db,
		deployment: deployment,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Record stores an application of the document and returns it
func (t *Tracker) Record(ctx context.Context, digest, document string, typeCount int) (*Application, error) {
	app := &Application{
		ID:         uuid.NewString(),
		Deployment: t.deployment,
		Digest:     digest,
		TypeCount:  typeCount,
		Document:   document,
		AppliedAt:  t.now(),
	}

	query := `
INSERT INTO schema_applications (id, deployment, digest, type_count, document, applied_at)
VALUES ($1, $2, $3, $4, $5, $6)
`
	_, err := t.db.ExecContext(ctx, query, app.ID, app.Deployment, app.Digest, app.TypeCount, app.Document, app.AppliedAt)
	if err != nil {
		return nil, persistError(applicationsTable, app.ID, err)
	}

	return app, nil
}

// Last returns the most recent application, or nil if none exist
func (t *Tracker) Last(ctx context.Context) (*Application, error) {
	query := `
SELECT id, deployment, digest, type_count, document, applied_at
FROM schema_applications
WHERE deployment = $1
ORDER BY applied_at DESC
LIMIT 1
`
	app := &Application{}
	err := t.db.QueryRowContext(ctx, query, t.deployment).
		Scan(&app.ID, &app.Deployment, &app.Digest, &app.TypeCount, &app.Document, &app.AppliedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last schema application: %w", convertDBError(err))
	}

	return app, nil
}

// Count returns the number of recorded applications
func (t *Tracker) Count(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM schema_applications WHERE deployment = $1`

	var n int
	if err := t.db.QueryRowContext(ctx, query, t.deployment).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count schema applications: %w", convertDBError(err))
	}
	return n, nil
}
