package admin

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cloo-solutions/coursetutor/internal/domain"
	"github.com/spf13/cobra"
)

func APIKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
		Long:  "Issue, list and revoke the bearer tokens users pass to the API",
	}
	cmd.AddCommand(APIKeyCreateCmd(), APIKeyListCmd(), APIKeyRevokeCmd())
	return cmd
}

type apiKeyView struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	UserID    string     `json:"user_id"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	Revoked   bool       `json:"revoked"`
}

func renderAPIKeys(w io.Writer, userID string, keys []*domain.APIKey, asJSON bool) error {
	views := make([]apiKeyView, len(keys))
	for i, k := range keys {
		views[i] = apiKeyView{ID: k.ID, Name: k.Name, UserID: k.UserID, CreatedAt: k.CreatedAt, RevokedAt: k.RevokedAt, Revoked: k.IsRevoked()}
	}
	if asJSON {
		return writeJSON(w, views)
	}
	if len(views) == 0 {
		_, err := fmt.Fprintf(w, "No API keys found for user %s\n", userID)
		return err
	}
	fmt.Fprintf(w, "API keys for user %s:\n", userID)
	for _, v := range views {
		state := "active"
		if v.Revoked {
			state = "revoked " + v.RevokedAt.Format(timeLayout)
		}
		if _, err := fmt.Fprintf(w, "  %s  %-16s %s (created %s)\n", v.ID, v.Name, state, v.CreatedAt.Format(timeLayout)); err != nil {
			return err
		}
	}
	return nil
}

func APIKeyCreateCmd() *cobra.Command {
	var userRef, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a new API key for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, func(ctx context.Context, env adminEnv) error {
				userID, err := resolveUserID(ctx, env.users, userRef)
				if err != nil {
					return err
				}
				token, err := env.auth.CreateAPIKey(ctx, userID, name)
				if err != nil {
					return fmt.Errorf("failed to create API key: %w", err)
				}
				if env.json {
					return writeJSON(env.out, map[string]string{"name": name, "user_id": userID, "token": token})
				}
				_, err = fmt.Fprintf(env.out, "API key %q created for user %s\nToken: %s\n\nThe token is shown only once.\n", name, userID, token)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&userRef, "user", "u", "", "User ID or username (required)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Key name (required)")
	addOutputFlag(cmd)
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func APIKeyListCmd() *cobra.Command {
	var userRef string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, func(ctx context.Context, env adminEnv) error {
				userID, err := resolveUserID(ctx, env.users, userRef)
				if err != nil {
					return err
				}
				keys, err := env.auth.ListAPIKeys(ctx, userID)
				if err != nil {
					return fmt.Errorf("failed to list API keys: %w", err)
				}
				return renderAPIKeys(env.out, userID, keys, env.json)
			})
		},
	}
	cmd.Flags().StringVarP(&userRef, "user", "u", "", "User ID or username (required)")
	addOutputFlag(cmd)
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func APIKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, func(ctx context.Context, env adminEnv) error {
				if err := env.auth.RevokeAPIKey(ctx, args[0]); err != nil {
					return fmt.Errorf("failed to revoke API key: %w", err)
				}
				if env.json {
					return writeJSON(env.out, map[string]any{"id": args[0], "revoked": true})
				}
				_, err := fmt.Fprintf(env.out, "API key %s revoked\n", args[0])
				return err
			})
		},
	}
	addOutputFlag(cmd)
	return cmd
}
