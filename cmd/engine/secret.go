package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"jobmatch-engine/internal/secrets"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Store provider credentials in the OS keychain",
}

var secretSetCmd = &cobra.Command{
	Use:       "set NAME",
	Short:     "Store a credential (imap, adzuna or headhunter); the value is read from stdin",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"imap", "adzuna", "headhunter"},
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := lookupSecret(args[0])
		if err != nil {
			return err
		}
		value, _ := cmd.Flags().GetString("value")
		if value == "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: ", s.Name)
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("failed to read %s: %w", s.Name, err)
			}
			value = strings.TrimSpace(line)
		}
		if err := secrets.Set(s, value); err != nil {
			return fmt.Errorf("failed to store %s: %w", s.Name, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", s.Name)
		return nil
	},
}

var secretDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Remove a credential from the keychain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := lookupSecret(args[0])
		if err != nil {
			return err
		}
		if err := secrets.Delete(s); err != nil {
			return fmt.Errorf("failed to delete %s: %w", s.Name, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", s.Name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(secretCmd)
	secretCmd.AddCommand(secretSetCmd, secretDeleteCmd)

	secretSetCmd.Flags().String("value", "", "the credential; read from stdin when empty")
}

// lookupSecret needs the config because IMAP and Adzuna keys are stored per
// account.
func lookupSecret(name string) (secrets.Secret, error) {
	e, err := loadEnv()
	if err != nil {
		return secrets.Secret{}, err
	}
	c := e.cfg.Sources
	s, ok := secrets.ByName(name, c.Email.Username, c.Email.IMAPHost, c.Adzuna.AppID)
	if !ok {
		return secrets.Secret{}, fmt.Errorf("unknown secret %q", name)
	}
	if strings.HasSuffix(s.Account, ":") || strings.Contains(s.Account, ":@") {
		return s, errors.New("configure the account for this secret first (sources.email.username or sources.adzuna.app_id)")
	}
	return s, nil
}
