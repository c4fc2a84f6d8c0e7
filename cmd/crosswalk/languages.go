package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/crosswalk"
)

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List the supported alert languages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		device := make(map[crosswalk.Language]bool)
		for _, l := range cfg.GetDeviceLanguages() {
			device[l] = true
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CODE\tNAME\tVOICE\tDEVICE")
		for _, info := range crosswalk.Languages() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", info.Code, info.Name, info.Speech, device[info.Code])
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(languagesCmd)
}
