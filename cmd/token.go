package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/payment-gate/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token [user-id]",
	Short: "Issue a development access token and its sesskey",
	Long:  `Issue a signed access token for local testing. In production tokens come from the LMS identity provider.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}

		tokens := auth.NewJWTTokenGenerator(cfg.Security.JWTSecret, cfg.Security.AccessTokenDuration)
		claims, token, err := issueToken(tokens, args[0], tokenSessionID, tokenPermissions)
		if err != nil {
			return err
		}

		sesskeys := auth.NewSesskeyIssuer(cfg.Security.SessionSecret)
		return printJSON(map[string]any{
			"access_token": token,
			"session_id":   claims.SessionID,
			"sesskey":      sesskeys.Issue(claims.UserID, claims.SessionID),
			"permissions":  claims.Permissions,
		})
	},
}

var (
	tokenSessionID   string
	tokenPermissions string
)

func issueToken(tokens *auth.JWTTokenGenerator, userID, sessionID, permissions string) (*auth.Claims, string, error) {
	var perms []string
	for _, p := range strings.Split(permissions, ",") {
		if p = strings.TrimSpace(p); p != "" {
			perms = append(perms, p)
		}
	}

	token, err := tokens.GenerateAccessToken(userID, sessionID, perms)
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue token: %w", err)
	}
	claims, err := tokens.ValidateToken(token)
	if err != nil {
		return nil, "", fmt.Errorf("issued token does not validate: %w", err)
	}
	return claims, token, nil
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSessionID, "session", "", "session id (a new one is generated when empty)")
	tokenCmd.Flags().StringVar(&tokenPermissions, "permissions", auth.PermissionUseRecovery, "comma separated permissions")

	rootCmd.AddCommand(tokenCmd)
}
