// Package main implements gqlclients, a command line runner that executes
// GraphQL operations through the clients declared in a configuration file.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/c360/gqlclients/client"
	"github.com/c360/gqlclients/config"
	"github.com/c360/gqlclients/errors"
	"github.com/c360/gqlclients/link"
	"github.com/c360/gqlclients/metric"
	"github.com/c360/gqlclients/registry"
	"github.com/c360/gqlclients/storage"
	"github.com/c360/gqlclients/storage/boltstore"
	"github.com/c360/gqlclients/storage/redisstore"
	"github.com/c360/gqlclients/transfer"
	"github.com/c360/gqlclients/types"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "gqlclients"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		slog.Error("gqlclients failed", "error", err, "exit_code", 1)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cli, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("invalid flags: %w", err)
	}
	if err := validateFlags(cli); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cli.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s\n", appName, Version)
		return nil
	}

	logger := setupLogger(stderr, cli.LogLevel, cli.LogFormat)
	slog.SetDefault(logger)

	cfg, err := config.Load(cli.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cli.Validate {
		logger.Info("Configuration is valid", "clients", cfg.Clients.Keys())
		return nil
	}

	metrics := metric.NewMetricsRegistry()

	session := registry.Session{Exec: types.Client(), ClientVersion: Version}
	closeStore, err := openTokenStore(ctx, cli, cfg, &session)
	if err != nil {
		return err
	}
	defer closeStore()
	if cli.CacheFile != "" {
		if session.Payload, err = loadCacheFile(cli.CacheFile); err != nil {
			return err
		}
	}

	reg, err := registry.New(registry.Options{
		Config:  cfg,
		Session: session,
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer reg.Close()

	if cli.MetricsAddr != "" {
		srv := metric.NewServer(cli.MetricsAddr, "", metrics)
		srv.SetHealthCheck(reg.Health)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Stop(stopCtx)
		}()
		logger.Info("Serving metrics", "address", srv.Address())
	}

	if _, err := reg.BuildAll(ctx); err != nil {
		return fmt.Errorf("build clients: %w", err)
	}
	if cli.Token != "" {
		if err := reg.Helpers().SetToken(ctx, cli.Client, cli.Token); err != nil {
			return fmt.Errorf("store token: %w", err)
		}
	}
	c, err := reg.Client(cli.Client)
	if err != nil {
		return err
	}

	op, err := buildOperation(cli)
	if err != nil {
		return err
	}

	if cli.Subscribe {
		return subscribe(ctx, c, op, stdout)
	}
	if cli.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cli.Timeout)
		defer cancel()
	}
	policy := client.NetworkOnly
	if cli.CacheFile != "" {
		policy = client.CacheFirst
	}
	if err := execute(ctx, c, op, policy, stdout); err != nil {
		return err
	}
	if cli.CacheFile != "" {
		return saveCacheFile(cli.CacheFile, reg, logger)
	}
	return nil
}

// openTokenStore installs the token backend named by --token-store into
// session. "jar" keeps cookie tokens in a cookie jar shared with the HTTP
// transport, scoped to the selected client's endpoint. A redis:// or
// rediss:// URL shares tokens through Redis; anything else is a bbolt file.
func openTokenStore(ctx context.Context, cli *CLIConfig, cfg *config.Config, session *registry.Session) (func(), error) {
	switch {
	case strings.HasPrefix(cli.TokenStore, "redis://"), strings.HasPrefix(cli.TokenStore, "rediss://"):
		opt, err := redis.ParseURL(cli.TokenStore)
		if err != nil {
			return nil, fmt.Errorf("parse token store url: %w", err)
		}
		rc := redis.NewClient(opt)
		if err := rc.Ping(ctx).Err(); err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("open token store: %w",
				errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err), "redis", "Ping", opt.Addr))
		}
		store := redisstore.New(rc, "")
		session.Cookies, session.Local = store, store
		return func() { _ = rc.Close() }, nil
	}

	switch cli.TokenStore {
	case "", "memory":
		store := storage.NewMemory()
		session.Cookies, session.Local = store, store
		return func() {}, nil

	case "jar":
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		cc, _ := cfg.Clients.Get(selectedKey(cfg, cli.Client))
		cookies, err := storage.NewJarCookies(jar, cc.HTTPEndpoint)
		if err != nil {
			return nil, fmt.Errorf("scope cookie jar: %w", err)
		}
		session.Cookies = cookies
		session.HTTPClient = &http.Client{Jar: jar}
		return func() {}, nil

	default:
		db, err := boltstore.Open(ctx, cli.TokenStore, boltstore.Options{})
		if err != nil {
			return nil, fmt.Errorf("open token store: %w", err)
		}
		session.Cookies, session.Local = db, db
		return func() { _ = db.Close() }, nil
	}
}

// loadCacheFile reads a payload saved by saveCacheFile. A missing file is an
// empty payload.
func loadCacheFile(path string) (*transfer.Payload, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return transfer.NewPayload(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache file: %w", err)
	}
	payload, err := transfer.DecodeCompact(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decode cache file: %w", err)
	}
	return payload, nil
}

// saveCacheFile extracts every client's cache into path so the next run
// restores it before its first operation
func saveCacheFile(path string, reg *registry.Registry, logger *slog.Logger) error {
	payload := transfer.NewPayload()
	producer := transfer.NewProducer(payload, transfer.Options{Logger: logger})
	for _, key := range reg.Keys() {
		c, err := reg.Client(key)
		if err != nil {
			return err
		}
		if err := producer.Write(key, c.Cache()); err != nil {
			return fmt.Errorf("extract cache: %w", err)
		}
	}
	encoded, err := payload.EncodeCompact()
	if err != nil {
		return fmt.Errorf("encode cache file: %w", err)
	}
	if err := os.WriteFile(path, []byte(encoded), 0o600); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}
	logger.Debug("Cache file written", "path", path, "clients", payload.Len(), "bytes", len(encoded))
	return nil
}

// selectedKey maps the default alias onto a declared key before the
// registry is built
func selectedKey(cfg *config.Config, key string) string {
	if _, ok := cfg.Clients.Get(key); ok {
		return key
	}
	if cfg.DefaultClient != "" {
		return cfg.DefaultClient
	}
	if keys := cfg.Clients.Keys(); len(keys) > 0 {
		return keys[0]
	}
	return key
}

func buildOperation(cli *CLIConfig) (*link.Operation, error) {
	query := cli.Query
	if path, ok := strings.CutPrefix(query, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read query: %w", err)
		}
		query = string(data)
	}
	op := &link.Operation{Query: query}
	if cli.Variables != "" {
		if err := json.Unmarshal([]byte(cli.Variables), &op.Variables); err != nil {
			return nil, fmt.Errorf("parse variables: %w", err)
		}
	}
	return op, nil
}

func execute(ctx context.Context, c *client.Client, op *link.Operation, policy client.FetchPolicy, w io.Writer) error {
	var (
		resp *link.Response
		err  error
	)
	if op.Kind() == "mutation" {
		resp, err = c.Mutate(ctx, op)
	} else {
		resp, err = c.Query(ctx, op, policy)
	}
	if resp != nil {
		if perr := printJSON(w, resp); perr != nil {
			return perr
		}
	}
	if err != nil {
		return fmt.Errorf("execute operation: %w", err)
	}
	if resp.HasErrors() {
		return fmt.Errorf("operation returned %d GraphQL errors", len(resp.Errors))
	}
	return nil
}

func subscribe(ctx context.Context, c *client.Client, op *link.Operation, w io.Writer) error {
	results, err := c.Subscribe(ctx, op)
	if err != nil {
		return err
	}
	for r := range results {
		if r.Response != nil {
			if err := printJSON(w, r.Response); err != nil {
				return err
			}
		}
		if r.Err != nil {
			return fmt.Errorf("subscription: %w", r.Err)
		}
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
