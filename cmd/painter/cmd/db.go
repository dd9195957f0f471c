package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/cratelab/painter/internal/config"
	"github.com/cratelab/painter/internal/graph"
)

// dbFlags are the graph store connection flags shared by every command
// that touches the database.
type dbFlags struct {
	addr  string
	user  string
	pass  string
	local string
}

func (f *dbFlags) register(c *cobra.Command) {
	c.Flags().StringVarP(&f.addr, "database", "d", "", "neo4j address (bolt://host:7687)")
	c.Flags().StringVarP(&f.user, "username", "u", "", "neo4j username")
	c.Flags().StringVarP(&f.pass, "password", "p", "", "neo4j password")
	c.Flags().StringVar(&f.local, "local", "", "use an embedded database at this path instead of neo4j")
}

// openStore connects to the backend the flags select. Credentials missing
// from the flags are taken from the environment.
func openStore(ctx context.Context, f dbFlags) (graph.Store, error) {
	if f.local != "" {
		return graph.OpenLocal(f.local)
	}

	creds := config.CredentialsFromEnv(config.Credentials{
		Addr: f.addr, User: f.user, Pass: f.pass,
	})
	if creds.Addr == "" {
		return nil, fmt.Errorf("no database address: pass -d or set PAINTER_DB_ADDR")
	}

	store, err := graph.ConnectNeo4j(ctx, creds.Addr, creds.User, creds.Pass, graph.Neo4jOptions{
		Database:  cfg.Graph.Database,
		BatchSize: cfg.Graph.BatchSize,
		Attempts:  cfg.Graph.RetryAttempts,
		BaseDelay: time.Duration(cfg.Graph.RetryBase),
	}, slog.Default())
	if err != nil {
		return nil, err
	}
	return store, nil
}
