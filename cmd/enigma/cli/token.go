package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/npnl/enigma-request/internal/middleware"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <email>",
	Short: "Sign a bearer token with the server secret",
	Long:  "Signs a token for email using auth.jwt_secret. Intended for operators with access to the server configuration, e.g. to script against the API.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
			return errors.New("auth.jwt_secret is not set (ENIGMA_AUTH_JWT_SECRET)")
		}
		ttl := tokenTTL
		if ttl <= 0 {
			ttl = cfg.Auth.TokenTTL
		}
		tok, err := middleware.NewJWT(cfg.Auth.JWTSecret, cfg.Auth.Issuer).Sign(args[0], ttl)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
		return err
	},
}

var (
	loginEmail    string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Exchange directory credentials for a bearer token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(loginEmail) == "" {
			return errors.New("--email is required")
		}
		password := loginPassword
		if password == "" {
			fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return errors.New("--password is required when no password is piped on stdin")
			}
			password = strings.TrimRight(line, "\r\n")
		}
		res, err := apiClient().Login(cmd.Context(), loginEmail, password)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), checkMark()+" "+keyValue("Signed in", res.Email))
		_, err = fmt.Fprintln(cmd.OutOrStdout(), res.Token)
		return err
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default auth.token_ttl)")
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "directory email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "password (read from stdin when omitted)")
}
