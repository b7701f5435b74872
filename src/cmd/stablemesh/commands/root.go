package commands

import (
	"github.com/spf13/cobra"

	"github.com/stablemesh/stablemesh/src/config"
)

var (
	_config = config.NewDefaultConfig()
)

//RootCmd is the root command for stablemesh
var RootCmd = &cobra.Command{
	Use:              "stablemesh",
	Short:            "stablemesh section control plane",
	TraverseChildren: true,
}
