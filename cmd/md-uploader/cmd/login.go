package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session for later runs",
	Long: `Logs in with the stored session when it is still valid, refreshes it when
it is not, and falls back to the username and password from the config file.
The resulting tokens are stored in the local database.`,
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().Bool("fresh", false, "Ignore the stored session and log in with username and password")
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	svc, err := openServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	fresh, _ := cmd.Flags().GetBool("fresh")
	if fresh {
		err = svc.session.CredentialLogin(ctx)
	} else {
		err = svc.session.EnsureLoggedIn(ctx, true)
	}
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in to %s.\n", globalConfig.ApiUrl)
	return nil
}
