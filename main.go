package main

import (
	"os"

	"finvault/e2ee/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
