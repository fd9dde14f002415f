package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chukul/webidctl/internal"
	"github.com/chukul/webidctl/internal/ui"
	"github.com/spf13/cobra"
)

var outputJSON bool

type statusReport struct {
	RoleARN     string             `json:"role_arn"`
	SessionName string             `json:"session_name"`
	TokenFile   string             `json:"token_file"`
	TokenAge    string             `json:"token_age,omitempty"`
	AccessKeyID string             `json:"access_key_id"`
	Expiration  time.Time          `json:"expiration"`
	RefreshAt   time.Time          `json:"refresh_at"`
	Identity    *internal.Identity `json:"identity"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Exchange the token once and show who the credentials belong to",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cache, awsCfg, err := newCache(ctx, nil)
		if err != nil {
			return err
		}

		report, err := ui.Spin("Assuming role with web identity...", func() (*statusReport, error) {
			return buildStatusReport(ctx, cache, func(cred internal.AWSCredential) internal.CallerIdentityGetter {
				return internal.NewIdentityClient(awsCfg, cred)
			})
		})
		if err != nil {
			return err
		}

		if outputJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}

		now := time.Now()
		rows := []ui.Row{
			{Key: "ROLE ARN", Value: report.RoleARN},
			{Key: "SESSION", Value: report.SessionName},
			{Key: "TOKEN FILE", Value: report.TokenFile},
		}
		if report.TokenAge != "" {
			rows = append(rows, ui.Row{Key: "TOKEN AGE", Value: report.TokenAge})
		} else {
			rows = append(rows, ui.Row{Key: "TOKEN AGE", Value: "unknown", Warn: true})
		}
		rows = append(rows,
			ui.Row{Key: "ACCESS KEY", Value: report.AccessKeyID},
			ui.Row{Key: "EXPIRES", Value: internal.FormatLocal(report.Expiration)},
			ui.Row{Key: "REMAINING", Value: internal.FormatRemaining(report.Expiration, now)},
			ui.Row{Key: "REFRESH AT", Value: internal.FormatLocal(report.RefreshAt)},
			ui.Row{Key: "CALLER ARN", Value: report.Identity.ARN},
			ui.Row{Key: "ACCOUNT", Value: report.Identity.Account},
		)

		fmt.Fprint(cmd.OutOrStdout(), ui.RenderTable(rows))
		fmt.Fprintln(cmd.OutOrStdout(), ui.OK("✅ credentials are valid"))
		return nil
	},
}

// buildStatusReport fetches credentials from cache and checks them with
// GetCallerIdentity using the client newClient builds for them.
func buildStatusReport(ctx context.Context, cache *internal.CredentialCache, newClient func(internal.AWSCredential) internal.CallerIdentityGetter) (*statusReport, error) {
	cfg := cache.Config()
	creds, deadline, err := cache.GetWithDeadline(ctx)
	if err != nil {
		return nil, err
	}

	identity, err := internal.WhoAmI(ctx, newClient(creds))
	if err != nil {
		return nil, err
	}

	report := &statusReport{
		RoleARN:     cfg.RoleARN,
		SessionName: cfg.SessionName,
		TokenFile:   cfg.TokenFile,
		AccessKeyID: creds.AccessKeyID,
		Expiration:  deadline.Add(cache.ExpiryWindow()),
		RefreshAt:   deadline,
		Identity:    identity,
	}
	if age, err := internal.TokenFileAge(cfg.TokenFile, time.Now()); err == nil {
		report.TokenAge = age.Round(time.Second).String()
	}
	return report, nil
}

func init() {
	statusCmd.Flags().BoolVar(&outputJSON, "json", false, "Output results in JSON format for automation")
	rootCmd.AddCommand(statusCmd)
}
