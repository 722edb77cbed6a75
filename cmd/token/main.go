package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"geoattend/internal/auth"
	"geoattend/internal/config"
	"geoattend/internal/store"
)

// token mints instructor access/refresh pairs. Instructors come from the
// institution's directory, so the operator hands out the first pair and the
// instructor rotates it through /v1/auth/refresh from then on.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "token",
		Short:        "Manage instructor API tokens",
		SilenceUsage: true,
	}
	root.AddCommand(newIssueCmd(loadSessions))
	return root
}

// sessionsFunc opens the session store; the returned func releases it.
type sessionsFunc func(ctx context.Context) (auth.Sessions, func(), error)

func newIssueCmd(open sessionsFunc) *cobra.Command {
	var instructor string
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a fresh access/refresh pair for an instructor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			sessions, closeFn, err := open(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			pair, err := sessions.Start(ctx, instructor)
			if err != nil {
				return fmt.Errorf("issue: %w", err)
			}
			return writePair(cmd.OutOrStdout(), pair)
		},
	}
	cmd.Flags().StringVar(&instructor, "instructor", "", "instructor id to issue tokens for")
	_ = cmd.MarkFlagRequired("instructor")
	return cmd
}

func writePair(w io.Writer, pair auth.TokenPair) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(pair)
}

func loadSessions(ctx context.Context) (auth.Sessions, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return auth.Sessions{}, nil, fmt.Errorf("config: %w", err)
	}
	db, err := store.NewDB(ctx, cfg.StoreDriver, cfg.DatabaseURL)
	if err != nil {
		return auth.Sessions{}, nil, fmt.Errorf("db: %w", err)
	}
	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return auth.Sessions{}, nil, fmt.Errorf("migrate: %w", err)
		}
	}
	sessions := auth.Sessions{
		Issuer: auth.Issuer{
			Name:       cfg.JWTIssuer,
			Key:        []byte(cfg.JWTSigningKey),
			AccessTTL:  cfg.AccessTTL,
			RefreshTTL: cfg.RefreshTTL,
		},
		Store: auth.NewTokenStore(db.Client),
	}
	return sessions, func() { _ = db.Close() }, nil
}
