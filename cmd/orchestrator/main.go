package main

import (
	"os"

	"go.uber.org/automaxprocs/maxprocs"
)

func main() {
	_, _ = maxprocs.Set()

	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
