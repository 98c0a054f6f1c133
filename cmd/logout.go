package cmd

import (
	"finvault/e2ee/core"
	"finvault/e2ee/middleware"

	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clears the cached session key",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := newVault(cmd.Context())
		if err != nil {
			// Without a schema or database the cache can still be cleared.
			if err = core.ClearStorage(newKeyStore(conf)); err != nil {
				return err
			}
			cmd.PrintErrln(succeeded("Logged out"))
			return nil
		}
		defer v.Close()

		v.dispatch(cmd.Context(), &middleware.Message{Type: middleware.Logout})
		cmd.PrintErrln(succeeded("Logged out"))
		return nil
	},
}
