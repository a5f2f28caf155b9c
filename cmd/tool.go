package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newToolCmd groups maintenance commands for the extraction binary.
func newToolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tool",
		Short: "Inspects or installs the extraction tool",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "probe",
		Short: "Reports the path of a working extraction tool, installing it if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			path, err := appInstance.Tool().Ensure(cmd.Context())
			if err != nil {
				return fmt.Errorf("ensure tool: %w", err)
			}
			info, err := appInstance.Tool().Probe(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("probe tool: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", info.Path, info.Version)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Downloads the latest release into the install directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			path, err := appInstance.Tool().Install(cmd.Context())
			if err != nil {
				return fmt.Errorf("install tool: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})
	return cmd
}
