package command

import (
	"database/sql"
	"strings"

	"github.com/adamavenir/cwthread/internal/analyzer"
	"github.com/adamavenir/cwthread/internal/chatwork"
	"github.com/adamavenir/cwthread/internal/core"
	"github.com/adamavenir/cwthread/internal/db"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// CommandContext provides shared command resources.
type CommandContext struct {
	Config   *core.Config
	Logger   *zap.Logger
	DB       *sql.DB
	Store    *db.Store
	JSONMode bool
}

// newMessageSource builds the remote message source. Tests replace it.
var newMessageSource = func(cfg *core.Config, logger *zap.Logger) (analyzer.MessageSource, error) {
	if err := cfg.RequireToken(); err != nil {
		return nil, err
	}
	client, err := chatwork.NewClient(chatwork.Options{
		BaseURL:           cfg.API.BaseURL,
		Token:             cfg.API.Token,
		Timeout:           cfg.API.Timeout,
		RetryAttempts:     cfg.API.RetryAttempts,
		RetryDelay:        cfg.API.RetryDelay,
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		Burst:             cfg.API.Burst,
	}, logger)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// loadConfig resolves configuration and logging from the global flags.
func loadConfig(cmd *cobra.Command) (*core.Config, *zap.Logger, error) {
	configPath, _ := cmd.Flags().GetString("config")
	dbPath, _ := cmd.Flags().GetString("db")
	debug, _ := cmd.Flags().GetBool("debug")

	cfg, err := core.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(dbPath) != "" {
		cfg.DB.Path = dbPath
	}
	if debug {
		cfg.Log.Level = "debug"
	}

	logger, err := core.NewLogger(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// GetContext loads configuration and opens the database with an up-to-date schema.
func GetContext(cmd *cobra.Command) (*CommandContext, error) {
	jsonMode, _ := cmd.Flags().GetBool("json")

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	conn, err := db.OpenDatabase(cfg.DB.Path)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(cmd.Context(), conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	logger.Debug("database ready", zap.String("path", cfg.DB.Path), zap.String("config", cfg.Source))

	return &CommandContext{
		Config:   cfg,
		Logger:   logger,
		DB:       conn,
		Store:    db.NewStore(conn, db.WithCacheTTL(cfg.DB.CacheTTL)),
		JSONMode: jsonMode,
	}, nil
}

// Assembler builds a thread assembler backed by the remote message source.
func (c *CommandContext) Assembler() (*analyzer.Assembler, error) {
	source, err := newMessageSource(c.Config, c.Logger)
	if err != nil {
		return nil, err
	}
	return analyzer.NewAssembler(source, c.Store, c.Logger), nil
}

// newLocalAssembler builds an assembler for operations that never reach the
// remote source.
func newLocalAssembler(c *CommandContext) *analyzer.Assembler {
	return analyzer.NewAssembler(nil, c.Store, c.Logger)
}

// Close releases the database and flushes the logger.
func (c *CommandContext) Close() error {
	_ = c.Logger.Sync()
	return c.DB.Close()
}
