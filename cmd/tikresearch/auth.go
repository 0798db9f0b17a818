package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"tikresearch/pkg/auth"
)

// authCmd groups credential management subcommands
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Research API credentials",
	Long: `Manage the client key and secret used to obtain access tokens.

Credentials are stored in the system keychain when available, falling
back to an encrypted file under ~/.config/tikresearch/.`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store API credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		reader := bufio.NewReader(os.Stdin)
		fmt.Print("Client key: ")
		key, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read client key: %w", err)
		}
		key = strings.TrimSpace(key)

		fmt.Print("Client secret: ")
		secretBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read client secret: %w", err)
		}
		secret := strings.TrimSpace(string(secretBytes))

		if key == "" || secret == "" {
			return errors.New("client key and secret must not be empty")
		}

		mgr, err := auth.NewManager()
		if err != nil {
			return err
		}
		if err := mgr.Save(&auth.Credentials{ClientKey: key, ClientSecret: secret}); err != nil {
			return err
		}

		fmt.Println("Credentials stored.")
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether credentials are configured",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		mgr, err := auth.NewManager()
		if err != nil {
			return err
		}

		creds, err := mgr.Load()
		if err != nil {
			if errors.Is(err, auth.ErrCredentialsNotFound) {
				fmt.Println("No credentials configured.")
				return nil
			}
			return err
		}

		fmt.Printf("Credentials configured (client key %s).\n", maskKey(creds.ClientKey))
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		mgr, err := auth.NewManager()
		if err != nil {
			return err
		}
		if err := mgr.Delete(); err != nil {
			if errors.Is(err, auth.ErrCredentialsNotFound) {
				fmt.Println("No stored credentials to remove.")
				return nil
			}
			return err
		}

		fmt.Println("Credentials removed.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authLogoutCmd)
}

// maskKey shows just enough of a key to identify it
func maskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + strings.Repeat("*", len(key)-4)
}
