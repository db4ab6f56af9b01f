package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	admindomain "github.com/pendergraft/revealer/internal/admin/domain"
	"github.com/pendergraft/revealer/internal/config"
	"github.com/pendergraft/revealer/internal/queue"
	"github.com/pendergraft/revealer/internal/server"
	"github.com/pendergraft/revealer/internal/storage"
	"github.com/pendergraft/revealer/internal/token"
	"github.com/pendergraft/revealer/internal/validation"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "revealer-server",
		Short:   "Revealer server - identity verification oracle consumer",
		Version: version,
	}

	// Default behavior (no subcommand) is to serve
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runServe()
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newKeysCmd())
	rootCmd.AddCommand(newAdminCmd())

	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys",
	}

	cmd.AddCommand(newKeysCreateCmd())
	cmd.AddCommand(newKeysListCmd())
	cmd.AddCommand(newKeysRevokeCmd())

	return cmd
}

func newKeysCreateCmd() *cobra.Command {
	var name, address, outputFile string
	var quiet, show bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long: `Create a new API key bound to an account address.

Every write made with the key is attributed to that address: it becomes
the requester of verification requests and is checked against the owner
for configuration changes.

By default, the key is written to a file in the current directory.
The key is only shown once - it cannot be retrieved later.

EXAMPLES:
  # Create key, write to file (default)
  revealer-server keys create --name "dapp" --address 0x00000000000000000000000000000000000a11ce

  # Create key, print only (for piping to secrets manager)
  revealer-server keys create --name "dapp" --address 0x... --quiet
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeysCreate(name, address, outputFile, quiet, show)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "name/label for the key (required)")
	cmd.Flags().StringVar(&address, "address", "", "account address the key acts as (required)")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "write key to file (default: ./revealer-key-{name}.txt)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only the key (for piping)")
	cmd.Flags().BoolVar(&show, "show", false, "display key on screen")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("address")

	return cmd
}

func newKeysListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeysList()
		},
	}
}

func newKeysRevokeCmd() *cobra.Command {
	var keyID string

	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke an API key",
		Long: `Revoke an API key to prevent further use.

Use 'revealer-server keys list' to find the key ID.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeysRevoke(keyID)
		},
	}

	cmd.Flags().StringVar(&keyID, "id", "", "key ID to revoke (required)")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Inspect and recover the deployment settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminShow()
		},
	})

	var newOwner string
	transfer := &cobra.Command{
		Use:   "transfer-ownership",
		Short: "Hand ownership to another address",
		Long: `Hand ownership to another address on behalf of the current owner.

This talks to the database directly and is meant for recovering a
deployment whose owner key is lost.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminTransfer(newOwner)
		},
	}
	transfer.Flags().StringVar(&newOwner, "to", "", "new owner address (required)")
	_ = transfer.MarkFlagRequired("to")
	cmd.AddCommand(transfer)

	return cmd
}

// openStore loads the config and opens migrated storage for the one-shot
// commands. Storage logs only errors.
func openStore(ctx context.Context) (storage.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	store, err := storage.New(cfg.Storage, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return store, nil
}

// Key management commands

func runKeysCreate(name, address, outputFile string, quiet, show bool) error {
	addr, err := validation.ParseNonZeroAddress(address)
	if err != nil {
		return fmt.Errorf("--address: %w", err)
	}

	ctx := context.Background()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	key, err := store.CreateAPIKey(ctx, name, addr.Hex())
	if err != nil {
		return fmt.Errorf("creating API key: %w", err)
	}

	if quiet {
		fmt.Println(key)
		return nil
	}

	if show {
		fmt.Println("⚠️  API key (save this - it cannot be retrieved later):")
		fmt.Println()
		fmt.Println("   ", key)
		fmt.Println()
		return nil
	}

	if outputFile == "" {
		outputFile = fmt.Sprintf("./revealer-key-%s.txt", name)
	}

	dir := filepath.Dir(outputFile)
	if dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating directory: %w", err)
		}
	}

	if err := os.WriteFile(outputFile, []byte(key+"\n"), 0600); err != nil {
		return fmt.Errorf("writing key to file: %w", err)
	}

	fmt.Printf("✅ API key created: %s (acts as %s)\n", name, addr.Hex())
	fmt.Printf("   Written to: %s (mode 0600)\n", outputFile)
	fmt.Println()
	fmt.Println("   ⚠️  This key cannot be retrieved later. Keep it safe!")
	fmt.Println()
	fmt.Println("   Usage:")
	fmt.Println("     curl -H \"X-API-Key: $(cat", outputFile+")\" ...")

	return nil
}

func runKeysList() error {
	ctx := context.Background()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	keys, err := store.ListAPIKeys(ctx)
	if err != nil {
		return fmt.Errorf("listing API keys: %w", err)
	}

	if len(keys) == 0 {
		fmt.Println("No API keys found")
		fmt.Println()
		fmt.Println("Create one with: revealer-server keys create --name \"my-key\" --address 0x...")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tADDRESS\tCREATED\tLAST USED")
	for _, k := range keys {
		lastUsed := "never"
		if k.LastUsedAt != "" {
			lastUsed = k.LastUsedAt
		}
		idDisplay := k.ID
		if len(k.ID) > 8 {
			idDisplay = k.ID[:8] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", idDisplay, k.Name, k.Address, k.CreatedAt, lastUsed)
	}
	w.Flush()

	return nil
}

func runKeysRevoke(keyID string) error {
	ctx := context.Background()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	// Find the full key ID if partial was provided
	keys, err := store.ListAPIKeys(ctx)
	if err != nil {
		return fmt.Errorf("listing API keys: %w", err)
	}

	var fullKeyID string
	for _, k := range keys {
		if k.ID == keyID || (len(keyID) >= 8 && len(k.ID) >= 8 && k.ID[:8] == keyID[:8]) {
			fullKeyID = k.ID
			break
		}
	}

	if fullKeyID == "" {
		return fmt.Errorf("key not found: %s", keyID)
	}

	if err := store.RevokeAPIKey(ctx, fullKeyID); err != nil {
		return fmt.Errorf("revoking API key: %w", err)
	}

	fmt.Printf("✅ API key revoked: %s\n", keyID)
	return nil
}

// Admin commands

func runAdminShow() error {
	ctx := context.Background()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	s, err := admindomain.NewService(store).Get(ctx)
	if err != nil {
		return fmt.Errorf("reading settings: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "OWNER\t%s\n", s.Owner.Hex())
	fmt.Fprintf(w, "ORACLE\t%s\n", s.Oracle.Hex())
	fmt.Fprintf(w, "LINK\t%s\n", s.Link.Hex())
	fmt.Fprintf(w, "PAYMENT\t%s\n", s.Payment.String())
	fmt.Fprintf(w, "JOB ID\t%s\n", s.JobID.String())
	fmt.Fprintf(w, "SIGN UP URL\t%s\n", s.SignUpURL)
	fmt.Fprintf(w, "UPDATED\t%s\n", s.UpdatedAt.UTC().Format(time.RFC3339))
	return w.Flush()
}

func runAdminTransfer(to string) error {
	newOwner, err := validation.ParseNonZeroAddress(to)
	if err != nil {
		return fmt.Errorf("--to: %w", err)
	}

	ctx := context.Background()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := admindomain.NewService(store)
	current, err := svc.Get(ctx)
	if err != nil {
		return fmt.Errorf("reading settings: %w", err)
	}
	if err := svc.TransferOwnership(ctx, current.Owner, newOwner); err != nil {
		return fmt.Errorf("transferring ownership: %w", err)
	}

	fmt.Printf("✅ Ownership transferred: %s -> %s\n", current.Owner.Hex(), newOwner.Hex())
	return nil
}

// Server command

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg)
	logger.Info("starting revealer-server", "version", version, "chain_id", cfg.Chain.ChainID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	backends, cleanup, err := setupBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	srv, err := server.New(ctx, cfg, store, logger, backends)
	if err != nil {
		return fmt.Errorf("initializing server: %w", err)
	}
	logger.Info("consumer ready", "consumer", srv.Consumer().Hex(), "token_backend", cfg.Chain.TokenBackend, "dispatcher", cfg.Oracle.Dispatcher)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// setupBackends connects the token network and the broker the config asks
// for. The returned cleanup closes whatever was opened.
func setupBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger) (server.Backends, func(), error) {
	var b server.Backends
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Chain.TokenBackend == "erc20" {
		erc, err := token.NewERC20(ctx, token.ERC20Config{
			RPCURL:        cfg.Chain.RPCURL,
			PrivateKeyHex: cfg.Chain.PrivateKey,
		})
		if err != nil {
			return b, cleanup, fmt.Errorf("connecting token network: %w", err)
		}
		closers = append(closers, erc.Close)
		if err := erc.Ping(ctx); err != nil {
			cleanup()
			return b, func() {}, fmt.Errorf("token network unreachable: %w", err)
		}
		b.Token = erc
		b.Signer = erc.Signer()
		logger.Info("token network connected", "signer", b.Signer.Hex())
	}

	if cfg.Oracle.Dispatcher == "amqp" || cfg.AMQP.PublishEvents {
		pub, err := queue.Dial(ctx, queue.DialConfig{URL: cfg.AMQP.URL, Exchange: cfg.AMQP.Exchange}, logger)
		if err != nil {
			cleanup()
			return b, func() {}, fmt.Errorf("connecting broker: %w", err)
		}
		closers = append(closers, func() {
			if err := pub.Close(); err != nil {
				logger.Warn("closing broker connection", "error", err)
			}
		})
		b.Broker = pub
	}

	return b, cleanup, nil
}

func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
