package cmd

import (
	"finvault/e2ee/consts"
	"finvault/e2ee/logger"
	"finvault/e2ee/logger/console"
	"finvault/e2ee/logger/native"
	"finvault/e2ee/pool"
	"finvault/e2ee/settings"

	"github.com/spf13/cobra"
	"github.com/zoobzio/capitan"
)

var (
	verbose      bool
	debug        bool
	settingsPath string

	Log     logger.Logger = logger.Nop()
	conf    *settings.Settings
	signals *capitan.Observer

	rootCmd = &cobra.Command{
		Use:   "finvault",
		Short: "End-to-end encryption for finance records",
		Long: `finvault keeps financial records encrypted on the client. The server only
ever stores the wrapped data key and ciphertexts.

Fields are encrypted per model, as declared in the schema file, and payloads
are split across a pool of workers.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if signals != nil {
				signals.Close()
				signals = nil
			}
			Log.Stop()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug output")
	rootCmd.PersistentFlags().StringVarP(&settingsPath, "config", "c", consts.SETTINGS_FILE_PATH, "settings file")

	rootCmd.AddCommand(signupCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(passwdCmd)
	rootCmd.AddCommand(encryptCmd)
	rootCmd.AddCommand(decryptCmd)
	rootCmd.AddCommand(logoutCmd)
}

func Execute() error {
	return rootCmd.Execute()
}

// setup loads the settings and starts the loggers. The file logger is
// skipped when no log file is configured.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	conf, err = settings.NewSettings(settingsPath)
	if err != nil {
		return err
	}

	loggers := []logger.Logger{console.New(verbose, debug).WithWriter(cmd.ErrOrStderr())}
	if conf.Logs.File != "" {
		file, err := native.New(conf.Logs.File, conf.Logs.MaxSize, conf.LogMaxAge(), conf.LogLevel())
		if err != nil {
			return err
		}
		if err = file.Rotate(); err != nil {
			loggers[0].Log(logger.WarnLevel, "could not rotate logs: %v", err)
		}
		loggers = append(loggers, file)
	}
	Log = logger.Multi(loggers...)
	if signals != nil {
		signals.Close()
	}
	signals = pool.LogSignals(Log)

	Log.Log(logger.DebugLevel, "settings loaded from %s", settingsPath)
	return nil
}
