// Command ncm-device runs a software CDC-NCM Ethernet function.
//
// Usage:
//
//	ncm-device selftest [-config file.hcl] [-v] [-frames n] [-frame-size n] [-mps n]
//	ncm-device descriptors [-config file.hcl] [-mps n]
//
// selftest attaches the function to an in-memory bus, enumerates it with a
// simulated host driver and echoes test frames through it. descriptors
// prints the descriptor set the function presents during enumeration.
package main

import (
	"os"

	"github.com/mitchellh/cli"

	"github.com/ardnew/usbncm/pkg"
)

const version = "0.1.0"

const component = pkg.ComponentDevice

func main() {
	c := cli.NewCLI("ncm-device", version)
	c.Args = os.Args[1:]
	c.Commands = map[string]cli.CommandFactory{
		"selftest": func() (cli.Command, error) {
			return &selftestCommand{}, nil
		},
		"descriptors": func() (cli.Command, error) {
			return &descriptorsCommand{out: os.Stdout}, nil
		},
	}

	code, err := c.Run()
	if err != nil {
		pkg.LogError(component, "error running command", "error", err)
		os.Exit(1)
	}
	os.Exit(code)
}
