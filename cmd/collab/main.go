package main

import (
	"fmt"
	"os"

	"github.com/vasc-collab/collab/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "collab: %v\n", err)
		os.Exit(1)
	}
}
