package main

import (
	"fmt"
	"os"

	"github.com/lydakis/wcfx/internal/cli"
	"github.com/lydakis/wcfx/internal/daemon"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "__daemon" {
		if err := daemon.Run(daemon.Options{}); err != nil {
			fmt.Fprintf(os.Stderr, "wcfx daemon: %v\n", err)
			os.Exit(1)
		}
		return
	}

	code := cli.Run(os.Args[1:])
	os.Exit(code)
}
