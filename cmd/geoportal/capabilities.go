package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/geoportal/internal/wms"
)

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities URL",
	Short: "Describe the queryable layers of a WMS server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := wms.NewClient(wms.Options{Timeout: cfg.WMSTimeout, Version: cfg.WMSVersion, Logger: appLog})
		info, err := c.Info(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	},
}

func init() {
	capabilitiesCmd.Flags().DurationVar(&cfg.WMSTimeout, "timeout", cfg.WMSTimeout, "request timeout")
	rootCmd.AddCommand(capabilitiesCmd)
}
