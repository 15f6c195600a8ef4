package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kumasuke/remedy/internal/quota"
)

var quotaUser string

// NewQuotaCmd creates the quota command.
func NewQuotaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Show current upload usage",
		Long:  "Query the usage endpoint for the current quota state without consuming a slot.",
		RunE:  runQuota,
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "config file path")
	cmd.Flags().StringVarP(&quotaUser, "user", "u", "", "quota subject")
	cmd.Flags().StringVar(&authToken, "token", "", "identity provider token (or REMEDY_AUTH_TOKEN)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	return cmd
}

func runQuota(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Quota.APIURL == "" {
		return fmt.Errorf("no quota.api_url configured")
	}

	gate := quota.NewGate(cfg.Quota.APIURL)
	state, err := gate.Check(cmd.Context(), quotaUser, authToken)
	if err != nil {
		return err
	}

	fmt.Printf("Uploads used:    %d of %d\n", state.CurrentUsage, state.MaxFilesAllowed)
	fmt.Printf("Max pages:       %d\n", state.MaxPagesAllowed)
	fmt.Printf("Max size:        %d MB\n", state.MaxSizeAllowedMB)
	return nil
}
