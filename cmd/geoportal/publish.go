package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/geoportal/internal/publish"
)

var (
	publishName        string
	publishDescription string
)

var publishCmd = &cobra.Command{
	Use:   "publish CODE ARCHIVE.zip",
	Short: "Publish a zipped shapefile bundle as a layer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := buildApp(ctx, cfg, appLog)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		f, err := os.Open(filepath.Clean(args[1]))
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer func() { _ = f.Close() }()

		layer, err := a.orch.Publish(ctx, publish.Request{
			Code:        args[0],
			Name:        publishName,
			Description: publishDescription,
			Archive:     f,
			ContentType: "application/zip",
		})
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(layer)
	},
}

func init() {
	publishCmd.Flags().StringVar(&publishName, "name", "", "display name")
	publishCmd.Flags().StringVar(&publishDescription, "description", "", "layer description")
	rootCmd.AddCommand(publishCmd)
}
