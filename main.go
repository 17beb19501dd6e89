package main

import (
	"os"

	"github.com/homegrid/homegrid/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
