package cmd

import (
	"bytes"

	"finvault/e2ee/core"
	"finvault/e2ee/logger"
	"finvault/e2ee/store"
	"finvault/e2ee/utils"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var signupEmail string

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Creates an account and its data key",
	Long: `Creates an account for --email. A fresh data key is generated and stored
wrapped by a key derived from your password; the password itself is never
stored.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pwd, err := readPassword("Password: ")
		if err != nil {
			return err
		}
		defer utils.Clear(pwd)
		if recommendation := utils.VerifyPassFormat(pwd); recommendation != "" {
			cmd.PrintErrln(failed(recommendation))
			return nil
		}
		confirm, err := readPassword("Repeat password: ")
		if err != nil {
			return err
		}
		defer utils.Clear(confirm)
		if !bytes.Equal(pwd, confirm) {
			cmd.PrintErrln(failed("Passwords do not match"))
			return nil
		}

		db, err := store.Open(conf.Storage.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		spinner, cleanup := startSpinner(cmd.ErrOrStderr(), "Generating keys...")
		defer cleanup()

		keys, err := core.GenerateKeysForNewUser(newCipher(conf), pwd)
		if err != nil {
			Log.Log(logger.ErrorLevel, "key generation failed: %v", err)
			spinner.FinalMSG = failed("Failed to generate keys")
			return nil
		}
		user, err := db.CreateUser(signupEmail, keys)
		if err != nil {
			Log.Log(logger.ErrorLevel, "signup failed: %v", err)
			spinner.FinalMSG = failed("Could not create the account for " + color.YellowString(signupEmail))
			return nil
		}

		Log.Log(logger.InfoLevel, "user %s created", user.ID)
		spinner.FinalMSG = succeeded("Account created for "+color.YellowString(user.Email)) + "\n" +
			color.CyanString("→") + " Run " + color.YellowString("finvault login --email "+user.Email) + " to start a session"
		return nil
	},
}

func init() {
	signupCmd.Flags().StringVarP(&signupEmail, "email", "e", "", "account email")
	_ = signupCmd.MarkFlagRequired("email")
}
