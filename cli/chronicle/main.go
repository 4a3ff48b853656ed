package main

import (
	"os"

	chroniclecmder "github.com/emberworks/chronicle/cmd/chronicle"
)

func main() {
	cmd := chroniclecmder.NewChronicleCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
