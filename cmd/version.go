package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/job-crawler/internal/server"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Prints the build version",
		Annotations: map[string]string{"skipApp": "true"},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), server.Version)
		},
	}
}
