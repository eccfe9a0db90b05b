package main

import (
	"os"

	"github.com/brelli/genrepl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
