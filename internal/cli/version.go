package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cellar/pkg/cells"
)

const modulePath = "github.com/mesh-intelligence/cellar"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the cellar version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "cellar v%s\nmodule: %s\n", cells.Version, modulePath)
			return nil
		},
	}
}
