package main

import (
	"os"

	"github.com/faelwyn/busmq/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		cmd.Error(err)

		if exit, ok := err.(*cmd.ExitError); ok {
			os.Exit(exit.Code)
		}

		cmd.Usage()
		os.Exit(1)
	}
}
