package serve

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/sig-0/p2prates/cmd/env"
	"github.com/sig-0/p2prates/storage/sql"
)

type serveSQLCfg struct {
	rootCfg *serveCfg

	maxConns int
	minConns int
}

// newServeSQLCmd creates the serve sql command
func newServeSQLCmd(rootCfg *serveCfg) *ffcli.Command {
	cfg := &serveSQLCfg{
		rootCfg: rootCfg,
	}

	fs := flag.NewFlagSet("sql", flag.ExitOnError)
	cfg.rootCfg.registerFlags(fs)
	cfg.registerFlags(fs)

	return &ffcli.Command{
		Name:       "sql",
		ShortUsage: "serve sql [flags]",
		LongHelp:   "Serves the p2prates backend, using an SQL datastore",
		FlagSet:    fs,
		Exec:       cfg.exec,
		Options: []ff.Option{
			// Allow using ENV variables
			ff.WithEnvVars(),
			ff.WithEnvVarPrefix(env.Prefix),
		},
	}
}

func (c *serveSQLCfg) registerFlags(fs *flag.FlagSet) {
	fs.IntVar(
		&c.maxConns,
		"db-max-conns",
		0,
		"the maximum number of pooled DB connections (0 uses the pgx default)",
	)

	fs.IntVar(
		&c.minConns,
		"db-min-conns",
		0,
		"the minimum number of idle pooled DB connections",
	)
}

// exec executes the server serve command
func (c *serveSQLCfg) exec(ctx context.Context, _ []string) error {
	if err := c.rootCfg.loadConfig(); err != nil {
		return err
	}

	// Create a new logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	// Load .env
	if err := godotenv.Load(); err != nil {
		logger.Warn("unable to load .env file")
	}

	// DB
	dsn := os.Getenv(env.Prefix + env.DBURLSuffix)
	if dsn == "" {
		return fmt.Errorf("missing %s", env.Prefix+env.DBURLSuffix)
	}

	// Open the DB pool, checking reachability
	pool, err := sql.Connect(ctx, sql.PoolConfig{
		DSN:      dsn,
		MaxConns: int32(c.maxConns), //nolint:gosec // flag value
		MinConns: int32(c.minConns), //nolint:gosec // flag value
	})
	if err != nil {
		return fmt.Errorf("unable to open DB pool: %w", err)
	}

	defer pool.Close()

	logger.Info("DB ping success")

	return c.rootCfg.run(ctx, sql.NewStorage(pool), logger)
}
