// Package mongodb connects to the document store and owns its collection
// names and indexes.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names match the ones existing deployments already hold.
const (
	CollectionUsers     = "users"
	CollectionPatients  = "patients"
	CollectionDoseTimes = "dosetimes"
	CollectionDoseLogs  = "doselogs"
)

type Config struct {
	URI         string
	Database    string
	Timeout     time.Duration
	MaxPoolSize uint64
}

// Client wraps a connected *mongo.Client bound to one database.
type Client struct {
	cli *mongo.Client
	db  *mongo.Database
}

var (
	connectMongo = func(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error) {
		return mongo.Connect(ctx, opts)
	}
	pingMongo = func(ctx context.Context, cli *mongo.Client) error {
		return cli.Ping(ctx, readpref.Primary())
	}
	disconnectMongo = func(ctx context.Context, cli *mongo.Client) error {
		return cli.Disconnect(ctx)
	}
)

// Connect dials the store and pings it so failures surface at startup.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Database == "" {
		return nil, errors.New("mongodb: database name is required")
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.Timeout).
		SetServerSelectionTimeout(cfg.Timeout).
		SetTimeout(cfg.Timeout).
		SetRetryWrites(true).
		SetRetryReads(true)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	cli, err := connectMongo(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := pingMongo(ctx, cli); err != nil {
		_ = disconnectMongo(context.Background(), cli)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	return &Client{cli: cli, db: cli.Database(cfg.Database)}, nil
}

func (c *Client) Database() *mongo.Database { return c.db }

// Ping reports whether the primary is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return pingMongo(ctx, c.cli)
}

func (c *Client) Close(ctx context.Context) error {
	return disconnectMongo(ctx, c.cli)
}

// IsDuplicateKey reports whether err is a unique index violation.
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

// IsNoDocuments reports whether err means the query matched nothing.
func IsNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
