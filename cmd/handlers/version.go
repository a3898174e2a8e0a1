package handlers

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// version is overridden by the release build with -ldflags.
var version = "0.1.0-dev"

// NewVersionCmd creates the version command
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("veille %s (%s, %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
