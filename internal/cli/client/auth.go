package client

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func AuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage authentication credentials",
		Long:  "Login, logout, and check authentication status for the tutor CLI",
	}

	cmd.AddCommand(AuthLoginCmd())
	cmd.AddCommand(AuthLogoutCmd())
	cmd.AddCommand(AuthStatusCmd())

	return cmd
}

func AuthLoginCmd() *cobra.Command {
	var (
		username string
		apiKey   string
		apiURL   string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with a username and password, or store an API key",
		Long: `Log in with a username and password. The password is read from
TUTOR_PASSWORD or prompted for. With --with-key an existing API key is
stored instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if apiKey != "" {
				return storeAPIKey(apiKey, apiURL)
			}
			password := os.Getenv("TUTOR_PASSWORD")
			if username == "" || password == "" {
				reader := bufio.NewReader(os.Stdin)
				if username == "" {
					username = prompt(reader, "Username: ")
				}
				if password == "" {
					password = prompt(reader, "Password: ")
				}
			}
			return runAuthLogin(apiURL, username, password)
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	cmd.Flags().StringVar(&apiKey, "with-key", "", "Store an existing API key (ctu_...)")
	cmd.Flags().StringVar(&apiURL, "url", defaultAPIURL, "API URL")

	return cmd
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Fprint(stdout, label)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

type loginResponse struct {
	Token string `json:"token"`
	User  struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Role     string `json:"role"`
	} `json:"user"`
}

func runAuthLogin(apiURL, username, password string) error {
	c := NewAPIClientWithConfig("", apiURL)
	resp, err := c.Post("/auth/login", map[string]string{"username": username, "password": password})
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	var login loginResponse
	if err := resp.Decode(&login); err != nil {
		return err
	}

	if err := SaveGlobalConfig(&GlobalConfig{
		APIKey:   login.Token,
		APIURL:   apiURL,
		Username: login.User.Username,
		Role:     login.User.Role,
	}); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Fprintf(stdout, "Logged in as %s (%s)\n", login.User.Username, login.User.Role)
	return nil
}

func storeAPIKey(apiKey, apiURL string) error {
	if !IsValidAPIKey(apiKey) {
		return fmt.Errorf("invalid API key format (expected: ctu_ + 64 hex characters)")
	}
	if err := SaveGlobalConfig(&GlobalConfig{APIKey: apiKey, APIURL: apiURL}); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	fmt.Fprintln(stdout, "API key stored")
	return nil
}

func AuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Logout and clear credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := DeleteGlobalConfig(); err != nil {
				return fmt.Errorf("failed to logout: %w", err)
			}
			fmt.Fprintln(stdout, "Successfully logged out")
			return nil
		},
	}
}

func AuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		Long:  "Display the active credential source and ask the server who the key belongs to",
		RunE: func(cmd *cobra.Command, args []string) error {
			flagKey, _ := cmd.Flags().GetString("api-key")
			flagURL, _ := cmd.Flags().GetString("api-url")
			creds, err := ResolveCredentials(flagKey, flagURL)
			if err != nil {
				return err
			}
			return runAuthStatus(creds, wantJSON(cmd))
		},
	}
}

func runAuthStatus(creds Credentials, asJSON bool) error {
	status := map[string]interface{}{
		"authenticated": creds.Source != SourceNone,
		"source":        string(creds.Source),
		"api_url":       creds.APIURL,
	}
	if creds.Source != SourceNone {
		status["api_key"] = maskAPIKey(creds.APIKey)

		resp, err := NewAPIClientWithConfig(creds.APIKey, creds.APIURL).Get("/auth/me")
		if err != nil {
			status["error"] = err.Error()
		} else {
			var me struct {
				UserID string `json:"user_id"`
				Role   string `json:"role"`
			}
			if err := resp.Decode(&me); err == nil {
				status["user_id"] = me.UserID
				status["role"] = me.Role
			}
		}
	}

	if asJSON {
		return printJSON(status)
	}

	if creds.Source == SourceNone {
		fmt.Fprintln(stdout, "Not authenticated")
		fmt.Fprintln(stdout, "Run 'tutor auth login' to authenticate")
		return nil
	}
	fmt.Fprintf(stdout, "Source: %s\n", creds.Source)
	fmt.Fprintf(stdout, "API Key: %s\n", status["api_key"])
	fmt.Fprintf(stdout, "API URL: %s\n", creds.APIURL)
	if errMsg, ok := status["error"]; ok {
		fmt.Fprintf(stdout, "Server check failed: %s\n", errMsg)
	} else {
		fmt.Fprintf(stdout, "User: %s (%s)\n", status["user_id"], status["role"])
	}
	return nil
}

func maskAPIKey(key string) string {
	if len(key) < 12 {
		return "***"
	}
	return key[:8] + "..." + key[len(key)-4:]
}
