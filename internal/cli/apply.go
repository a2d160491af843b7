package cli

import (
	"fmt"

	"codeberg.org/mutker/ventilator/internal/daemon"
	"codeberg.org/mutker/ventilator/internal/logger"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(applyCmd)
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Write the stored fan settings to the hardware once",
	Args:  cobra.NoArgs,
	RunE:  runApply,
}

func runApply(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	hw, err := daemon.NewController(cfg, logger.Default())
	if err != nil {
		return err
	}

	store, err := daemon.OpenStore(ctx, cfg, logger.Default())
	if err != nil {
		return err
	}
	defer store.Close()

	applied, err := daemon.New(hw, store, logger.Default()).Apply(ctx)
	if err != nil {
		return err
	}

	if !applied {
		fmt.Fprintln(cmd.OutOrStdout(), "No fan settings configured")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Fan settings applied")
	return nil
}
