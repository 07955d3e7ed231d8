package admin

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloo-solutions/coursetutor/internal/domain"
	"github.com/cloo-solutions/coursetutor/internal/repository"
	"github.com/cloo-solutions/coursetutor/internal/service"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const timeLayout = "2006-01-02 15:04:05"

// adminEnv is what every account command needs once the database is open.
type adminEnv struct {
	auth  *service.AuthService
	users *repository.UserRepository
	out   io.Writer
	json  bool
}

// withAdmin opens a short-lived pool, builds the auth service and runs fn.
func withAdmin(cmd *cobra.Command, fn func(ctx context.Context, env adminEnv) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	pool, err := openAdminPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	users := repository.NewUserRepository(pool)
	format, _ := cmd.Flags().GetString("output")
	return fn(ctx, adminEnv{
		auth:  service.NewAuthService(users, repository.NewAPIKeyRepository(pool), &service.DefaultUUIDGenerator{}),
		users: users,
		out:   cmd.OutOrStdout(),
		json:  format == "json",
	})
}

func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// resolveUserID accepts a user id or a username.
func resolveUserID(ctx context.Context, users *repository.UserRepository, ref string) (string, error) {
	var (
		user *domain.User
		err  error
	)
	if _, parseErr := uuid.Parse(ref); parseErr == nil {
		user, err = users.GetByID(ctx, ref)
	} else {
		user, err = users.GetByUsername(ctx, ref)
	}
	if errors.Is(err, domain.ErrUserNotFound) {
		return "", fmt.Errorf("user not found: %s", ref)
	}
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

type userView struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserView(u *domain.User) userView {
	return userView{ID: u.ID, Username: u.Username, Role: string(u.Role), CreatedAt: u.CreatedAt}
}

func renderUsers(w io.Writer, users []*domain.User, asJSON bool) error {
	views := make([]userView, len(users))
	for i, u := range users {
		views[i] = newUserView(u)
	}
	if asJSON {
		return writeJSON(w, views)
	}
	if len(views) == 0 {
		_, err := fmt.Fprintln(w, "No users found")
		return err
	}
	for _, v := range views {
		if _, err := fmt.Fprintf(w, "  %s  %-10s %s (created %s)\n", v.ID, v.Role, v.Username, v.CreatedAt.Format(timeLayout)); err != nil {
			return err
		}
	}
	return nil
}

func UserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
		Long:  "Create and list instructor and student accounts",
	}
	cmd.AddCommand(UserCreateCmd(), UserListCmd())
	return cmd
}

func UserCreateCmd() *cobra.Command {
	var (
		username, password, role string
		passwordStdin            bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		Long:  "Create a user with a password. Students and instructors log in with POST /auth/login.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !domain.IsValidUserRole(domain.UserRole(role)) {
				return fmt.Errorf("invalid role %q (expected instructor or student)", role)
			}
			if passwordStdin {
				p, err := readPassword(cmd.InOrStdin())
				if err != nil {
					return err
				}
				password = p
			}
			if password == "" {
				return errors.New("a password is required (--password or --password-stdin)")
			}

			return withAdmin(cmd, func(ctx context.Context, env adminEnv) error {
				user, err := env.auth.CreateUser(ctx, username, password, domain.UserRole(role))
				if err != nil {
					return fmt.Errorf("failed to create user: %w", err)
				}
				if env.json {
					return writeJSON(env.out, newUserView(user))
				}
				_, err = fmt.Fprintf(env.out, "User created: %s (%s)\nID: %s\n", user.Username, user.Role, user.ID)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username (required)")
	cmd.Flags().StringVar(&password, "password", "", "Password")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from the first line of stdin")
	cmd.Flags().StringVarP(&role, "role", "r", string(domain.UserRoleStudent), "Role: instructor or student")
	addOutputFlag(cmd)
	_ = cmd.MarkFlagRequired("username")
	cmd.MarkFlagsMutuallyExclusive("password", "password-stdin")
	return cmd
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func UserListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, func(ctx context.Context, env adminEnv) error {
				users, err := env.auth.ListUsers(ctx)
				if err != nil {
					return fmt.Errorf("failed to list users: %w", err)
				}
				return renderUsers(env.out, users, env.json)
			})
		},
	}
	addOutputFlag(cmd)
	return cmd
}
