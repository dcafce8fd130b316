package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nodegraph/provisioner/internal/credential"
)

const identityTable = "user_auth"

// IdentityStore keeps one credential per username within a deployment
type IdentityStore struct {
	db         *DB
	deployment string
	now        func() time.Time
}

// NewIdentityStore creates an identity store scoped to a deployment
func NewIdentityStore(db *DB, deployment string) *IdentityStore {
	return &IdentityStore{
		db:         db,
		deployment: deployment,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// PutCredential writes the credential, replacing any prior record for the
// same username in this deployment
func (s *IdentityStore) PutCredential(ctx context.Context, cred *credential.Credential) error {
	query := `
INSERT INTO user_auth (deployment, username, salt, password, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (deployment, username)
DO UPDATE SET salt = excluded.salt, password = excluded.password, updated_at = excluded.updated_at
`
	if _, err := s.db.ExecContext(ctx, query, s.deployment, cred.Username, cred.Salt, cred.Hash, s.now()); err != nil {
		return persistError(identityTable, cred.Username, err)
	}
	return nil
}

// GetCredential reads the stored credential of a user
func (s *IdentityStore) GetCredential(ctx context.Context, username string) (*credential.Credential, error) {
	query := `SELECT username, salt, password FROM user_auth WHERE deployment = $1 AND username = $2`

	cred := &credential.Credential{}
	if err := s.db.QueryRowContext(ctx, query, s.deployment, username).Scan(&cred.Username, &cred.Salt, &cred.Hash); err != nil {
		return nil, fmt.Errorf("failed to load credential for %s: %w", username, convertDBError(err))
	}
	return cred, nil
}
