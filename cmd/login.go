package cmd

import (
	"errors"

	"finvault/e2ee/consts/errs"
	"finvault/e2ee/logger"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var loginEmail string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Unlocks the data key and caches the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := newVault(cmd.Context())
		if err != nil {
			return err
		}
		defer v.Close()

		user, err := v.db.FindByEmail(loginEmail)
		if errors.Is(err, errs.ErrUserNotFound) {
			cmd.PrintErrln(failed("No account for " + color.YellowString(loginEmail)))
			return nil
		}
		if err != nil {
			return err
		}
		pwd, err := readPassword("Password: ")
		if err != nil {
			return err
		}

		spinner, cleanup := startSpinner(cmd.ErrOrStderr(), "Unlocking keys...")
		defer cleanup()

		if err = v.login(cmd.Context(), user, pwd); err != nil {
			spinner.FinalMSG = failed("Invalid password")
			return nil
		}

		msg := succeeded("Logged in as " + color.YellowString(user.Email))
		if !persistsSessions(conf, v.keys) {
			Log.Log(logger.WarnLevel, "session cache %q is not persistent", conf.Storage.SessionCache)
			msg += "\n" + color.CyanString("→") + " No persistent session cache, pass " +
				color.YellowString("--email") + " to encrypt and decrypt"
		}
		spinner.FinalMSG = msg
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "account email")
	_ = loginCmd.MarkFlagRequired("email")
}
