package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drivepane/drivepane/internal/logging"
	"github.com/drivepane/drivepane/pkg/client"
	"github.com/drivepane/drivepane/pkg/models"
)

func newLoginCmd() *cobra.Command {
	var username, token string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and save the session token",
		Long: `Sign in to the server of the selected profile.

With --username the password is read from stdin (static login mode).
With --token a session token copied from the web app is verified and saved
(Google sign-in mode).`,
		Example: `  echo "$PASSWORD" | drivepane login --username alice
  drivepane login --token eyJhbGciOi...`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (username == "") == (token == "") {
				return errors.New("exactly one of --username or --token is required")
			}
			s, err := loadSession()
			if err != nil {
				return err
			}
			defer logging.Sync()

			var tf *client.TokenFile
			if token != "" {
				tf, err = s.client.Session(cmd.Context(), strings.TrimSpace(token))
			} else {
				var password string
				password, err = readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				tf, err = s.client.Login(cmd.Context(), username, password)
			}
			if err != nil {
				if models.IsAuth(err) {
					return fmt.Errorf("login failed: %w", err)
				}
				return err
			}
			if err := s.store.Save(tf); err != nil {
				return fmt.Errorf("save token: %w", err)
			}

			logging.Info("logged in", zap.String("server", tf.Server), zap.String("user", tf.Username))
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in to %s as %s\n", tf.Server, tf.Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username for static login (password from stdin)")
	cmd.Flags().StringVar(&token, "token", "", "session token copied from the web app")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session and delete the saved token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSession()
			if err != nil {
				return err
			}
			defer logging.Sync()

			tf, err := s.store.Load()
			if err != nil {
				return err
			}
			if tf != nil && tf.Token != "" {
				// An already expired or revoked session is fine here.
				if err := s.client.Logout(cmd.Context(), tf.Credential()); err != nil && !models.IsAuth(err) {
					logging.Warn("server logout failed", zap.Error(err))
					fmt.Fprintln(cmd.ErrOrStderr(), "Warning: could not revoke session on server:", err)
				}
			}
			if err := s.store.Delete(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

// readPassword reads the first line of in. The prompt only goes out when in
// is an interactive terminal.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok {
		if fi, err := f.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
			fmt.Fprint(prompt, "Password: ")
		}
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("empty password on stdin")
	}
	return password, nil
}
