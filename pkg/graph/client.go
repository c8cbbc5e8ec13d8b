// Package graph mirrors fusion accounts and their linked source accounts into Neo4j
// over the Bolt protocol
package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fusion/pkg/tracing"
)

// Config holds graph database configuration. Memgraph speaks the same protocol.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// Database is empty for the server default
	Database string
}

func (c Config) uri() string {
	return fmt.Sprintf("bolt://%s:%d", c.Host, c.Port)
}

// Client runs managed transactions against the projection database
type Client struct {
	driver   neo4j.DriverWithContext
	database string
	logger   ectologger.Logger
}

// NewClient opens a driver and verifies the server answers
func NewClient(ctx context.Context, cfg Config, logger ectologger.Logger) (*Client, error) {
	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.uri(), auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create graph driver for %s: %w", cfg.uri(), err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("graph database unreachable at %s: %w", cfg.uri(), err)
	}

	logger.WithField("uri", cfg.uri()).Info("Connected to graph database")
	return &Client{driver: driver, database: cfg.Database, logger: logger}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) VerifyConnectivity(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

// ExecuteWrite runs work in a managed write transaction, retried by the driver on transient errors
func (c *Client) ExecuteWrite(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.ExecuteWrite")
	defer span.End()

	return c.execute(ctx, neo4j.AccessModeWrite, work)
}

// ExecuteRead runs work in a managed read transaction
func (c *Client) ExecuteRead(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.ExecuteRead")
	defer span.End()

	return c.execute(ctx, neo4j.AccessModeRead, work)
}

func (c *Client) execute(ctx context.Context, mode neo4j.AccessMode, work neo4j.ManagedTransactionWork) (any, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: c.database})
	defer session.Close(ctx)

	if mode == neo4j.AccessModeRead {
		return session.ExecuteRead(ctx, work)
	}
	return session.ExecuteWrite(ctx, work)
}
