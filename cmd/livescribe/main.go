package main

import (
	"os"

	"livescribe/cmd/livescribe/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
