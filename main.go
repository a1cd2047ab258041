package main

import (
	"os"

	"github.com/ikonnect/agency-chat/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
