package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"shadowpay/config"
	"shadowpay/core"
	"shadowpay/core/events"
	"shadowpay/core/genesis"
	"shadowpay/crypto"
	"shadowpay/integrations/index"
	"shadowpay/integrations/webhooks"
	"shadowpay/native/payrequest"
	"shadowpay/rpc"
	"shadowpay/rpc/middleware"
	"shadowpay/storage"
)

type lookupEnv func(string) (string, bool)

// node bundles the long-lived components the daemon owns.
type node struct {
	db      storage.Database
	index   *index.Store
	webhook *webhooks.Dispatcher
	hub     *events.Hub
	ledger  *core.Ledger
	server  *rpc.Server
	logger  *slog.Logger
}

func resolveGenesisPath(flagValue, configValue string, lookup lookupEnv) string {
	if trimmed := strings.TrimSpace(flagValue); trimmed != "" {
		return trimmed
	}
	if value, ok := lookup(genesisEnv); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return strings.TrimSpace(configValue)
}

func openStorage(cfg *config.Config) (storage.Database, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return storage.NewMemDB(), nil
	case "leveldb", "":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("prepare data directory: %w", err)
		}
		return storage.NewLevelDBWithOptions(cfg.DataDir, storage.LevelDBOptions{
			CacheMB:      cfg.Storage.CacheMB,
			OpenFiles:    cfg.Storage.OpenFiles,
			WriteBufMB:   cfg.Storage.WriteBufferMB,
			NoSyncWrites: cfg.Storage.NoSyncWrites,
		})
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}
}

// loadGenesis reads the genesis document and reconciles its program id with
// the configured one.
func loadGenesis(cfg *config.Config, path string, logger *slog.Logger) (*genesis.GenesisSpec, error) {
	var spec *genesis.GenesisSpec
	if path != "" {
		loaded, err := genesis.LoadGenesisSpec(path)
		if err != nil {
			return nil, err
		}
		spec = loaded
	}
	configured := strings.TrimSpace(cfg.ProgramID)
	if configured == "" {
		return spec, nil
	}
	if spec == nil {
		spec = &genesis.GenesisSpec{}
	}
	if spec.ProgramID == "" {
		spec.ProgramID = configured
		return spec, nil
	}
	want, err := crypto.ParseAddress(configured)
	if err != nil {
		return nil, fmt.Errorf("config ProgramID: %w", err)
	}
	got, err := spec.Program()
	if err != nil {
		return nil, err
	}
	if want != got {
		return nil, fmt.Errorf("config ProgramID %s does not match genesis %s", configured, spec.ProgramID)
	}
	if spec.Network != "" && spec.Network != cfg.NetworkName {
		logger.Warn("genesis network differs from config",
			slog.String("genesis", spec.Network),
			slog.String("config", cfg.NetworkName))
	}
	return spec, nil
}

func newNode(cfg *config.Config, genesisPath string, lookup lookupEnv, logger *slog.Logger) (_ *node, err error) {
	n := &node{logger: logger}
	defer func() {
		if err != nil {
			n.Close()
		}
	}()

	spec, err := loadGenesis(cfg, genesisPath, logger)
	if err != nil {
		return nil, err
	}
	if n.db, err = openStorage(cfg); err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	opts := []core.Option{
		core.WithLogger(logger),
		core.WithRent(payrequest.Rent{
			LamportsPerByteYear: cfg.Rent.LamportsPerByteYear,
			ExemptionYears:      cfg.Rent.ExemptionYears,
		}),
	}
	n.hub = events.NewHub()
	sinks := events.Multi{n.hub}
	var eventStore rpc.EventStore
	if cfg.Index.Driver != "" {
		db, err := index.Open(cfg.Index.Driver, cfg.Index.DSN)
		if err != nil {
			return nil, fmt.Errorf("open event index: %w", err)
		}
		if n.index, err = index.New(db, logger); err != nil {
			return nil, fmt.Errorf("migrate event index: %w", err)
		}
		eventStore = n.index
		sinks = append(sinks, n.index)
	}
	if endpoint := strings.TrimSpace(cfg.Webhook.Endpoint); endpoint != "" {
		secret, _ := lookup(cfg.Webhook.SecretEnv)
		if strings.TrimSpace(secret) == "" {
			return nil, fmt.Errorf("webhook secret %s is not set", cfg.Webhook.SecretEnv)
		}
		if n.webhook, err = webhooks.NewDispatcher(endpoint, []byte(secret),
			webhooks.WithLogger(logger),
			webhooks.WithRetryPolicy(cfg.Webhook.MaxAttempts, 0, 0)); err != nil {
			return nil, err
		}
		sinks = append(sinks, n.webhook)
	}
	opts = append(opts, core.WithEmitter(sinks))

	if n.ledger, err = core.NewLedger(n.db, spec, opts...); err != nil {
		return nil, err
	}

	auth := middleware.AuthConfig{Enabled: cfg.RPC.RequireAuth}
	if envVar := strings.TrimSpace(cfg.RPC.JWTSecretEnv); envVar != "" {
		if secret, ok := lookup(envVar); ok {
			auth.HMACSecret = strings.TrimSpace(secret)
		}
	}
	if auth.Enabled && auth.HMACSecret == "" {
		return nil, errors.New("rpc RequireAuth is set but no JWT secret is available")
	}

	n.server, err = rpc.New(rpc.Config{
		Ledger:      n.ledger,
		Events:      eventStore,
		Stream:      n.hub,
		Logger:      logger,
		Auth:        auth,
		RateLimit:   middleware.RateLimit{RatePerSecond: cfg.RPC.RateLimitPerSecond, Burst: cfg.RPC.RateLimitBurst},
		CORSOrigins: cfg.RPC.CORSOrigins,

		ReadHeaderTimeout: seconds(cfg.RPC.ReadHeaderTimeout),
		ReadTimeout:       seconds(cfg.RPC.ReadTimeout),
		WriteTimeout:      seconds(cfg.RPC.WriteTimeout),
		IdleTimeout:       seconds(cfg.RPC.IdleTimeout),
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

func seconds(v int) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v) * time.Second
}

func (n *node) programID() string {
	if n == nil || n.ledger == nil {
		return ""
	}
	return crypto.FormatAddress(n.ledger.ProgramID())
}

// Close releases the event sinks and the state database.
func (n *node) Close() {
	if n == nil {
		return
	}
	if n.hub != nil {
		n.hub.Close()
		n.hub = nil
	}
	if n.webhook != nil {
		n.webhook.Close()
		n.webhook = nil
	}
	if n.index != nil {
		if err := n.index.Close(); err != nil && n.logger != nil {
			n.logger.Warn("close event index", slog.Any("error", err))
		}
		n.index = nil
	}
	if n.db != nil {
		n.db.Close()
		n.db = nil
	}
}
