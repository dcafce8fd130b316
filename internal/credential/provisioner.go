// Package credential derives and stores the bootstrap user's password hash.
//
// A run moves through the states init, retrieve_secret, derive_hash, persist
// and done. A failure stops the run in the state it failed in; nothing is
// written unless the hash was derived.
package credential

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// SecretSuffix is appended to the deployment name to form the secret id
const SecretSuffix = "-TestUserPassword"

// ErrEmptySecret is returned when the secret store holds an empty password
var ErrEmptySecret = errors.New("bootstrap secret is empty")

// State is a step of a provisioning run
type State int

// Run states in order
const (
	StateInit State = iota
	StateRetrieveSecret
	StateDeriveHash
	StatePersist
	StateDone
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRetrieveSecret:
		return "retrieve_secret"
	case StateDeriveHash:
		return "derive_hash"
	case StatePersist:
		return "persist"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// SecretStore fetches cleartext secrets by id
type SecretStore interface {
	GetSecret(ctx context.Context, id string) (string, error)
}

// IdentityStore stores credentials keyed by username
type IdentityStore interface {
	PutCredential(ctx context.Context, cred *Credential) error
}

// Error records the state a run failed in
type Error struct {
	State    State
	Username string
	Err      error
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("credential for %s failed in %s: %v", e.Username, e.State, e.Err)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// SecretID returns the secret id of a deployment's bootstrap password
func SecretID(deployment string) string {
	return deployment + SecretSuffix
}

// Provisioner runs the bootstrap credential pipeline
type Provisioner struct {
	secrets    SecretStore
	identities IdentityStore
	deployment string
	username   string
	logger     *zap.Logger
	random     io.Reader
	state      State
}

// Option configures a Provisioner
type Option func(*Provisioner)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *Provisioner) {
		p.logger = logger
	}
}

// WithRandom sets the salt source
func WithRandom(r io.Reader) Option {
	return func(p *Provisioner) {
		p.random = r
	}
}

// NewProvisioner creates a credential provisioner for one deployment and user
func NewProvisioner(secrets SecretStore, identities IdentityStore, deployment, username string, opts ...Option) *Provisioner {
	p := &Provisioner{
		secrets:    secrets,
		identities: identities,
		deployment: deployment,
		username:   username,
		logger:     zap.NewNop(),
		random:     rand.Reader,
		state:      StateInit,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the state the last run reached
func (p *Provisioner) State() State {
	return p.state
}

// Run retrieves the secret, derives a fresh salted hash and overwrites the
// stored credential of the user
func (p *Provisioner) Run(ctx context.Context) (*Credential, error) {
	p.state = StateInit
	if p.username == "" {
		return nil, p.fail(errors.New("username is empty"))
	}

	p.state = StateRetrieveSecret
	cleartext, err := p.secrets.GetSecret(ctx, SecretID(p.deployment))
	if err != nil {
		return nil, p.fail(fmt.Errorf("secret %s: %w", SecretID(p.deployment), err))
	}
	if cleartext == "" {
		return nil, p.fail(ErrEmptySecret)
	}

	p.state = StateDeriveHash
	salt, err := readSalt(p.random)
	if err != nil {
		return nil, p.fail(err)
	}
	hash, err := DeriveHash(cleartext, p.username, salt)
	if err != nil {
		return nil, p.fail(err)
	}
	cred := &Credential{Username: p.username, Salt: salt, Hash: hash}

	p.state = StatePersist
	if err := p.identities.PutCredential(ctx, cred); err != nil {
		return nil, p.fail(err)
	}

	p.state = StateDone
	p.logger.Info("bootstrap credential stored", zap.String("username", p.username))
	return cred, nil
}

func (p *Provisioner) fail(err error) error {
	p.logger.Error("bootstrap credential failed",
		zap.String("username", p.username),
		zap.Stringer("state", p.state),
		zap.Error(err),
	)
	return &Error{State: p.state, Username: p.username, Err: err}
}
