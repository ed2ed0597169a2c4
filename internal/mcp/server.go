// Package mcp provides an MCP (Model Context Protocol) server for bfftrace.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/bfftrace/internal/config"
	"github.com/nvandessel/bfftrace/internal/logging"
	"github.com/nvandessel/bfftrace/internal/pathutil"
	"github.com/nvandessel/bfftrace/internal/ratelimit"
	"github.com/nvandessel/bfftrace/internal/runner"
	"github.com/nvandessel/bfftrace/internal/store"
)

// Server wraps the MCP SDK server and provides bfftrace tools.
type Server struct {
	server       *sdk.Server
	store        store.Store
	runner       *runner.Runner
	root         string
	allowedDirs  []string
	logger       *slog.Logger
	auditLogger  *AuditLogger
	toolLimiters ratelimit.ToolLimiters
}

// Config holds server configuration.
type Config struct {
	Name     string         // Server name (e.g., "bfftrace")
	Version  string         // Server version
	Root     string         // Project root directory
	Settings *config.Config // Tracker settings; nil uses config.Default()
	Logger   *slog.Logger   // Operational logger; nil discards

	// AllowedDirs are extra directories the track tool may read snapshots
	// from. Root and the configured snapshot dir are always allowed.
	AllowedDirs []string
}

// NewServer creates a new MCP server with bfftrace tools.
func NewServer(cfg *Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	r, err := runner.New(cfg.Settings, runner.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	dbPath := r.Config().Store.Path
	var st *store.SQLiteStore
	if dbPath != "" {
		st, err = store.OpenSQLiteStore(dbPath)
	} else {
		st, err = store.NewSQLiteStore(cfg.Root)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		server:       mcpServer,
		store:        st,
		runner:       r,
		root:         cfg.Root,
		allowedDirs:  pathutil.AllowedDirs(append([]string{cfg.Root, r.Config().Snapshots.Dir}, cfg.AllowedDirs...)...),
		logger:       logger,
		auditLogger:  NewAuditLogger(store.LocalPath(cfg.Root)),
		toolLimiters: ratelimit.NewToolLimiters(),
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.logger.Info("mcp server started", "root", s.root)
	err := s.server.Run(ctx, &sdk.StdioTransport{})

	if closeErr := s.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// Close closes the server and releases resources.
func (s *Server) Close() error {
	auditErr := s.auditLogger.Close()
	if err := s.store.Close(); err != nil {
		return err
	}
	return auditErr
}
