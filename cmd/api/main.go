package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "github.com/redmonkez12/todo-api/docs" // Swagger docs
	"github.com/redmonkez12/todo-api/internal/config"
	"github.com/redmonkez12/todo-api/internal/database"
	"github.com/redmonkez12/todo-api/internal/logging"
	"github.com/redmonkez12/todo-api/internal/user"
)

// @title           Todo API
// @version         1.0
// @description     Users, credentials and sessions for the todo API.

// @contact.name   API Support
// @contact.email  support@example.com

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the access token.

func main() {
	rootCmd := &cobra.Command{
		Use:           "api",
		Short:         "Todo API server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE:  runServe,
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations to Postgres",
		RunE:  runMigrate,
	}

	createAdminCmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin user, or promote an existing one",
		RunE:  runCreateAdmin,
	}
	createAdminCmd.Flags().String("email", "", "Admin email")
	createAdminCmd.Flags().String("password", "", "Admin password (used only when the user is created)")
	_ = createAdminCmd.MarkFlagRequired("email")

	pruneCmd := &cobra.Command{
		Use:   "prune-tokens",
		Short: "Delete expired refresh tokens",
		RunE:  runPruneTokens,
	}

	rootCmd.AddCommand(serveCmd, migrateCmd, createAdminCmd, pruneCmd)

	// Allow running without subcommand (default to serve)
	rootCmd.RunE = serveCmd.RunE

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration and connects to the configured stores.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	logger.Info("starting application",
		"env", cfg.Server.Env,
		"store", cfg.Store.Driver,
		"ledger", cfg.Store.LedgerDriver,
		"token_format", cfg.Auth.TokenFormat,
	)

	return newApp(ctx, cfg, logger)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	server := a.server()

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		a.logger.Info("received shutdown signal")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.NewLogger(cfg.Server.IsDevelopment())

	db, err := database.OpenPostgres(cmd.Context(), cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(cmd.Context(), db.DB, database.DialectPostgres); err != nil {
		return err
	}

	logger.Info("migrations applied")
	return nil
}

func runCreateAdmin(cmd *cobra.Command, args []string) error {
	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")

	ctx := cmd.Context()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	existing, err := a.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		u, err := a.users.Promote(ctx, existing.ID)
		if err != nil {
			return fmt.Errorf("failed to promote user: %w", err)
		}
		a.logger.Info("user promoted to admin", "user_id", u.ID)
		return nil
	case !errors.Is(err, user.ErrNotFound):
		return fmt.Errorf("failed to look up user: %w", err)
	}

	if password == "" {
		return errors.New("--password is required to create a new admin")
	}

	u, err := a.users.Create(ctx, user.CreateInput{Email: email, Password: password, Role: user.RoleAdmin})
	if err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}

	a.logger.Info("admin created", "user_id", u.ID)
	return nil
}

func runPruneTokens(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.ledger.Prune(ctx)
	if err != nil {
		return fmt.Errorf("failed to prune refresh tokens: %w", err)
	}

	a.logger.WithComponent("ledger").Info("expired refresh tokens deleted", "count", n)
	return nil
}
