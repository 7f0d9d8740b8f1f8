package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/creditmarket/internal/httpserver"
	"github.com/MarkoPoloResearchLab/creditmarket/internal/oplog"
	"github.com/MarkoPoloResearchLab/creditmarket/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/creditmarket/pkg/market"
	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	flagDatabaseURL   = "database-url"
	flagListenAddr    = "listen-addr"
	flagOwnerAccount  = "owner-account"
	flagSigningKey    = "signing-key"
	flagAllowedOrigin = "allowed-origin"

	configKeyDatabaseURL   = "database_url"
	configKeyListenAddr    = "listen_addr"
	configKeyOwnerAccount  = "owner_account"
	configKeySigningKey    = "signing_key"
	configKeyAllowedOrigin = "allowed_origin"

	defaultDatabaseURL = "sqlite:///tmp/creditmarket.db"
	defaultListenAddr  = ":8080"
)

type runtimeConfig struct {
	DatabaseURL   string
	ListenAddr    string
	OwnerAccount  string
	SigningKey    string
	AllowedOrigin string
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "marketd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "marketd",
		Short:         "Credit marketplace HTTP server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL connection string or sqlite path")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagOwnerAccount, "", "Account id of the marketplace owner (fee sink)")
	cmd.Flags().String(flagSigningKey, "", "HS256 key used to validate bearer tokens")
	cmd.Flags().String(flagAllowedOrigin, "", "Allowed CORS origin")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		configKeyDatabaseURL:   "DATABASE_URL",
		configKeyListenAddr:    "LISTEN_ADDR",
		configKeyOwnerAccount:  "MARKET_OWNER",
		configKeySigningKey:    "MARKET_SIGNING_KEY",
		configKeyAllowedOrigin: "MARKET_ALLOWED_ORIGIN",
	}
	for configKey, envName := range bindings {
		if err := viper.BindEnv(configKey, envName); err != nil {
			return err
		}
	}
	flagBindings := map[string]string{
		configKeyDatabaseURL:   flagDatabaseURL,
		configKeyListenAddr:    flagListenAddr,
		configKeyOwnerAccount:  flagOwnerAccount,
		configKeySigningKey:    flagSigningKey,
		configKeyAllowedOrigin: flagAllowedOrigin,
	}
	for configKey, flagName := range flagBindings {
		if err := viper.BindPFlag(configKey, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString(configKeyDatabaseURL)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.ListenAddr = viper.GetString(configKeyListenAddr)
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	cfg.OwnerAccount = viper.GetString(configKeyOwnerAccount)
	cfg.SigningKey = viper.GetString(configKeySigningKey)
	cfg.AllowedOrigin = viper.GetString(configKeyAllowedOrigin)

	if cfg.OwnerAccount == "" {
		return fmt.Errorf("owner account is required")
	}
	if cfg.SigningKey == "" {
		return fmt.Errorf("signing key is required")
	}
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer cleanup()

	if err := prepareSchema(gormDB, driver); err != nil {
		return err
	}

	store := gormstore.New(gormDB)
	if err := store.EnsureSeeded(ctx, market.DefaultGlobalConfig()); err != nil {
		return fmt.Errorf("seed market state: %w", err)
	}

	owner, err := market.NewAccountID(cfg.OwnerAccount)
	if err != nil {
		return fmt.Errorf("owner account: %w", err)
	}
	clock := func() int64 { return time.Now().UTC().Unix() }
	engine, err := market.NewEngine(store, owner, clock, market.WithOperationLogger(oplog.New(logger)))
	if err != nil {
		return fmt.Errorf("engine init: %w", err)
	}

	serverConfig := httpserver.Config{
		ListenAddr: cfg.ListenAddr,
		SigningKey: cfg.SigningKey,
	}
	if cfg.AllowedOrigin != "" {
		serverConfig.AllowedOrigins = []string{cfg.AllowedOrigin}
	}
	return httpserver.Run(ctx, serverConfig, engine, logger)
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	var db *gorm.DB
	cfg := &gorm.Config{}
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), cfg)
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, "", err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, driver, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "creditmarket.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

func prepareSchema(db *gorm.DB, driver string) error {
	if driver != "sqlite" {
		return nil
	}
	if err := gormstore.Migrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
