package cli

import (
	"fmt"
	"sort"

	"codeberg.org/mutker/ventilator/internal/daemon"
	"codeberg.org/mutker/ventilator/internal/logger"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(getCmd)
}

var getCmd = &cobra.Command{
	Use:   "get [KEY]",
	Short: "Show stored preferences",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := daemon.OpenStore(ctx, cfg, logger.Default())
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()

	if len(args) == 1 {
		value, ok, err := store.Read(ctx, args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s is not set", args[0])
		}
		fmt.Fprintln(out, formatValue(value))
		return nil
	}

	all, err := store.All(ctx)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(out, "%s = %s\n", k, formatValue(all[k]))
	}
	return nil
}
