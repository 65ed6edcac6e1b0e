package main

import (
	"os"

	"github.com/banshee-data/rumble/cmd/rumblectl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
