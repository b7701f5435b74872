package stablemesh

import (
	"os"

	"github.com/stablemesh/stablemesh/src/config"
)

// This example bootstraps the genesis section of a new network and runs a
// node in it. Subsequent nodes would instead set JoinAddr to the address of a
// running member and go through the admission flow.
func Example() {
	// Start from default configuration.
	conf := config.NewDefaultConfig()

	// The genesis section rules the empty prefix.
	conf.SectionPrefix = "0b"

	// Instantiate the engine.
	engine := NewStablemesh(conf)

	// Read in the configuration and initialise the node accordingly.
	if err := engine.Init(); err != nil {
		conf.Logger().Error("Cannot initialize stablemesh:", err)
		os.Exit(1)
	}

	// Run the node asynchronously.
	go engine.Run()

	// Instruct the node to politely leave the section upon stopping.
	defer engine.Node.Leave()
}
