package cmd

import (
	"bytes"
	"errors"

	"finvault/e2ee/consts/errs"
	"finvault/e2ee/core"
	"finvault/e2ee/logger"
	"finvault/e2ee/store"
	"finvault/e2ee/utils"

	"github.com/spf13/cobra"
)

var passwdEmail string

var passwdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Changes the account password",
	Long: `Rewraps the data key under a new password. The data key itself does not
change, so existing records stay readable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.Open(conf.Storage.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		user, err := db.FindByEmail(passwdEmail)
		if errors.Is(err, errs.ErrUserNotFound) {
			cmd.PrintErrln(failed("No account for " + passwdEmail))
			return nil
		}
		if err != nil {
			return err
		}

		oldPwd, err := readPassword("Current password: ")
		if err != nil {
			return err
		}
		defer utils.Clear(oldPwd)
		newPwd, err := readPassword("New password: ")
		if err != nil {
			return err
		}
		defer utils.Clear(newPwd)
		if recommendation := utils.VerifyPassFormat(newPwd); recommendation != "" {
			cmd.PrintErrln(failed(recommendation))
			return nil
		}
		confirm, err := readPassword("Repeat new password: ")
		if err != nil {
			return err
		}
		defer utils.Clear(confirm)
		if !bytes.Equal(newPwd, confirm) {
			cmd.PrintErrln(failed("Passwords do not match"))
			return nil
		}

		spinner, cleanup := startSpinner(cmd.ErrOrStderr(), "Rewrapping keys...")
		defer cleanup()

		keys, err := core.ChangeKeysForUser(newCipher(conf), oldPwd, newPwd, user.Keys())
		if errors.Is(err, errs.ErrInvalidPassword) {
			spinner.FinalMSG = failed("Invalid password")
			return nil
		}
		if err != nil {
			Log.Log(logger.ErrorLevel, "password change failed: %v", err)
			spinner.FinalMSG = failed("Failed to change the password")
			return nil
		}
		if err = db.UpdateKeys(user.ID, keys); err != nil {
			Log.Log(logger.ErrorLevel, "storing new keys failed: %v", err)
			spinner.FinalMSG = failed("Failed to store the new keys")
			return nil
		}

		Log.Log(logger.InfoLevel, "password changed for user %s", user.ID)
		spinner.FinalMSG = succeeded("Password changed")
		return nil
	},
}

func init() {
	passwdCmd.Flags().StringVarP(&passwdEmail, "email", "e", "", "account email")
	_ = passwdCmd.MarkFlagRequired("email")
}
