package cli

import (
	"fmt"

	"codeberg.org/mutker/ventilator/internal/bus"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(setCmd)
}

var setCmd = &cobra.Command{
	Use:   "set KEY=VALUE...",
	Short: "Announce new preference values to the daemon",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSet,
}

func runSet(cmd *cobra.Command, args []string) error {
	payload, err := parseAssignments(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	conn, err := bus.Connect(cfg.Bus.Type)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := bus.Post(conn, cfg.Namespace, payload); err != nil {
		return err
	}

	for _, key := range payload.Keys() {
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, payload[key])
	}
	return nil
}
