// Package dgraph implements graph.Client on top of the Dgraph gRPC client.
package dgraph

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/dgo/v230"
	"github.com/dgraph-io/dgo/v230/protos/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/nodegraph/provisioner/internal/graph"
)

// Config holds Dgraph connection settings
type Config struct {
	// Addrs are the alpha gRPC endpoints (host:port)
	Addrs []string

	// DialTimeout bounds connection establishment
	DialTimeout time.Duration
}

// Client wraps a dgo client and its gRPC connections
type Client struct {
	dg    *dgo.Dgraph
	conns []*grpc.ClientConn
}

var _ graph.Client = (*Client)(nil)

// Dial connects to every configured alpha. Each connection must be ready
// within DialTimeout.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("no dgraph alpha addresses configured")
	}

	timeout := cfg.DialTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conns := make([]*grpc.ClientConn, 0, len(cfg.Addrs))
	stubs := make([]api.DgraphClient, 0, len(cfg.Addrs))
	for _, addr := range cfg.Addrs {
		conn, err := grpc.DialContext(dialCtx, addr,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithBlock(),
		)
		if err != nil {
			for _, c := range conns {
				c.Close()
			}
			return nil, fmt.Errorf("failed to dial dgraph alpha %s: %w", addr, err)
		}
		conns = append(conns, conn)
		stubs = append(stubs, api.NewDgraphClient(conn))
	}

	return &Client{
		dg:    dgo.NewDgraphClient(stubs...),
		conns: conns,
	}, nil
}

// NewReadOnlyTxn implements graph.Client
func (c *Client) NewReadOnlyTxn() graph.ReadTxn {
	return &readTxn{txn: c.dg.NewReadOnlyTxn()}
}

// Alter implements graph.Client
func (c *Client) Alter(ctx context.Context, schema string) error {
	return c.dg.Alter(ctx, &api.Operation{Schema: schema})
}

// Close closes every gRPC connection
func (c *Client) Close() error {
	var firstErr error
	for _, conn := range c.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type readTxn struct {
	txn *dgo.Txn
}

func (t *readTxn) Query(ctx context.Context, query string) ([]byte, error) {
	resp, err := t.txn.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return resp.Json, nil
}

func (t *readTxn) Discard(ctx context.Context) error {
	return t.txn.Discard(ctx)
}
