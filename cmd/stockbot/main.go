package main

import (
	"os"

	"github.com/IvanHuYY/Stockbot/cmd/stockbot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
