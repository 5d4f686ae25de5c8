package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/your-username/ehr-console/internal/auth"
)

var loginFlags struct {
	email    string
	password string
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the access and refresh tokens",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, password, err := credentials(cmd.InOrStdin(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		store, backend := newSession()
		resp, err := backend.Login(ctx, email, password)
		if err != nil {
			var statusErr *auth.StatusError
			if errors.As(err, &statusErr) && statusErr.Code == http.StatusUnauthorized {
				return errors.New("login failed: invalid email or password")
			}
			return fmt.Errorf("login failed: %w", err)
		}
		if err := store.Set(resp.Token); err != nil {
			log.Warn().Err(err).Msg("Failed to persist access token")
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", displayName(resp.User))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored access and refresh tokens",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, backend := newSession()
		if err := store.Clear(); err != nil {
			return fmt.Errorf("failed to remove access token: %w", err)
		}
		if err := backend.Logout(); err != nil {
			return fmt.Errorf("failed to remove refresh token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the identity and expiry of the stored access token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, backend := newSession()
		return printIdentity(cmd.OutOrStdout(), store.Get(), backend.HasSession(), time.Now())
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginFlags.email, "email", "", "operator email")
	loginCmd.Flags().StringVar(&loginFlags.password, "password", "", "operator password (prompted when omitted)")

	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
}

// credentials takes the flags, prompting for whatever is missing
func credentials(in io.Reader, out io.Writer) (string, string, error) {
	email, password := loginFlags.email, loginFlags.password
	reader := bufio.NewReader(in)

	if email == "" {
		fmt.Fprint(out, "Email: ")
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return "", "", fmt.Errorf("failed to read email: %w", err)
		}
		email = strings.TrimSpace(line)
	}

	if password == "" {
		fmt.Fprint(out, "Password: ")
		if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			b, err := term.ReadPassword(int(f.Fd()))
			fmt.Fprintln(out)
			if err != nil {
				return "", "", fmt.Errorf("failed to read password: %w", err)
			}
			password = string(b)
		} else {
			line, err := reader.ReadString('\n')
			if err != nil && line == "" {
				return "", "", fmt.Errorf("failed to read password: %w", err)
			}
			password = strings.TrimRight(line, "\r\n")
		}
	}

	if email == "" || password == "" {
		return "", "", errors.New("email and password are required")
	}
	return email, password, nil
}

func printIdentity(w io.Writer, token string, hasRefresh bool, now time.Time) error {
	if token == "" {
		if hasRefresh {
			fmt.Fprintln(w, "No access token stored; a refresh token is available and will be used on the next request")
			return nil
		}
		return errors.New("not signed in, run `ehr-console login`")
	}

	claims, err := auth.ParseClaims(token)
	if err != nil {
		return err
	}

	if claims.Email != "" {
		fmt.Fprintf(w, "Email:   %s\n", claims.Email)
	}
	if claims.Subject != "" {
		fmt.Fprintf(w, "Subject: %s\n", claims.Subject)
	}
	if len(claims.Roles) > 0 {
		fmt.Fprintf(w, "Roles:   %s\n", strings.Join(claims.Roles, ", "))
	}
	if left, ok := claims.ExpiresIn(now); ok {
		if left > 0 {
			fmt.Fprintf(w, "Expires: in %s\n", left.Truncate(time.Second))
		} else {
			fmt.Fprintf(w, "Expires: expired %s ago\n", (-left).Truncate(time.Second))
		}
	}
	fmt.Fprintf(w, "Refresh: %t\n", hasRefresh)
	return nil
}

func displayName(u auth.User) string {
	name := strings.TrimSpace(u.Firstname + " " + u.Lastname)
	if name == "" {
		return u.Email
	}
	if u.Email == "" {
		return name
	}
	return fmt.Sprintf("%s <%s>", name, u.Email)
}
