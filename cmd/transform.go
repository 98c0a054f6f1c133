package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"finvault/e2ee/logger"
	"finvault/e2ee/middleware"

	"github.com/spf13/cobra"
)

var (
	transformFormat string
	transformInput  string
	transformEmail  string
	encryptSave     bool
	decryptRecords  bool
)

var encryptCmd = &cobra.Command{
	Use:   "encrypt",
	Short: "Encrypts a JSON payload with the session key",
	Long: `Reads a JSON payload from --in (stdin by default) and encrypts every field
that the schema declares for the --format model. The format is
<single|array|map>-<model>, for example array-transaction.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := newVault(cmd.Context())
		if err != nil {
			return err
		}
		defer v.Close()

		user, err := v.unlock(cmd.Context(), transformEmail)
		if err != nil {
			cmd.PrintErrln(failed(err.Error()))
			return nil
		}
		payload, err := readPayload(cmd.InOrStdin(), transformInput)
		if err != nil {
			return err
		}

		out := v.dispatch(cmd.Context(), &middleware.Message{
			Type:    "cli/encrypt",
			Payload: payload,
			Meta:    map[string]any{middleware.MetaEncrypt: transformFormat},
		})
		if out.Error {
			cmd.PrintErrln(failed(fmt.Sprint(out.Payload)))
			return nil
		}

		data, err := json.Marshal(out.Payload)
		if err != nil {
			return err
		}
		if encryptSave {
			record, err := v.db.SaveRecord(user.ID, transformFormat, data)
			if err != nil {
				return err
			}
			Log.Log(logger.InfoLevel, "record %s saved", record.ID)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var decryptCmd = &cobra.Command{
	Use:   "decrypt",
	Short: "Decrypts a JSON payload with the session key",
	Long: `Reads an encrypted JSON payload from --in (stdin by default) and decrypts
it as --format. With --records the saved records of that format are
decrypted instead, one JSON document per line.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := newVault(cmd.Context())
		if err != nil {
			return err
		}
		defer v.Close()

		user, err := v.unlock(cmd.Context(), transformEmail)
		if err != nil {
			cmd.PrintErrln(failed(err.Error()))
			return nil
		}

		var payloads []any
		if decryptRecords {
			records, err := v.db.Records(user.ID, transformFormat)
			if err != nil {
				return err
			}
			for _, record := range records {
				var payload any
				if err = json.Unmarshal([]byte(record.Payload), &payload); err != nil {
					return fmt.Errorf("record %s is not valid JSON: %w", record.ID, err)
				}
				payloads = append(payloads, payload)
			}
		} else {
			payload, err := readPayload(cmd.InOrStdin(), transformInput)
			if err != nil {
				return err
			}
			payloads = append(payloads, payload)
		}

		for _, payload := range payloads {
			out := v.dispatch(cmd.Context(), &middleware.Message{
				Type:    "cli/decrypt",
				Payload: payload,
				Meta:    map[string]any{middleware.MetaDecrypt: transformFormat},
			})
			if out.Error {
				cmd.PrintErrln(failed(fmt.Sprint(out.Payload)))
				return nil
			}
			data, err := json.Marshal(out.Payload)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{encryptCmd, decryptCmd} {
		c.Flags().StringVarP(&transformFormat, "format", "f", "", "payload format, <shape>-<model>")
		c.Flags().StringVarP(&transformInput, "in", "i", "-", "input JSON file, - for stdin")
		c.Flags().StringVarP(&transformEmail, "email", "e", "", "log in as this account when there is no cached session")
		_ = c.MarkFlagRequired("format")
	}
	encryptCmd.Flags().BoolVar(&encryptSave, "save", false, "also save the encrypted payload as a record")
	decryptCmd.Flags().BoolVar(&decryptRecords, "records", false, "decrypt the saved records of this format")
}

func readPayload(stdin io.Reader, path string) (any, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" || path == "" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}

	var payload any
	if err = json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("payload is not valid JSON: %w", err)
	}
	return payload, nil
}
