package main

import (
	"os"

	"github.com/moolen/faultline/cmd/faultline/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
