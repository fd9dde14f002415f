package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/chukul/webidctl/internal"
	"github.com/spf13/cobra"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print temporary credentials as shell exports or credential_process JSON",
	Long: `Exchanges the web identity token once and prints the credentials.

  --format env   export AWS_ACCESS_KEY_ID=... lines for eval
  --format json  the credential_process payload, for use in ~/.aws/config`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportFormat != "env" && exportFormat != "json" {
			return fmt.Errorf("unsupported format %q (want env or json)", exportFormat)
		}

		cache, _, err := newCache(cmd.Context(), nil)
		if err != nil {
			return err
		}

		creds, deadline, err := cache.GetWithDeadline(cmd.Context())
		if err != nil {
			return err
		}

		return writeExport(cmd.OutOrStdout(), exportFormat, creds, deadline)
	},
}

func writeExport(out io.Writer, format string, creds internal.AWSCredential, deadline time.Time) error {
	if format == "json" {
		return json.NewEncoder(out).Encode(internal.NewProcessCredentials(creds, deadline))
	}

	// Output shell-compatible export commands
	fmt.Fprintf(out, "export AWS_ACCESS_KEY_ID=%s\n", creds.AccessKeyID)
	fmt.Fprintf(out, "export AWS_SECRET_ACCESS_KEY=%s\n", creds.SecretAccessKey)
	fmt.Fprintf(out, "export AWS_SESSION_TOKEN=%s\n", creds.SessionToken)
	return nil
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "env", "Output format: env or json")
	rootCmd.AddCommand(exportCmd)
}
