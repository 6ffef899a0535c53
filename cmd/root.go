// Package cmd implements the busmq command line interface.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/faelwyn/busmq/internal/build"
	"github.com/faelwyn/busmq/log"
)

type CleanupFunc func() error

var cleanup []CleanupFunc

// AddCleanup registers a function to run after any command finishes.
func AddCleanup(f CleanupFunc) {
	cleanup = append(cleanup, f)
}

var RootCommand = &cobra.Command{
	Use:     build.Name + " [-c config]",
	Short:   "Bridge a heating bus to MQTT",
	Version: build.Version(),
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		for _, f := range cleanup {
			f()
		}
	},
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
}

func init() {
	RootCommand.AddGroup(
		&cobra.Group{ID: "commands", Title: "Commands:"},
	)
}

// Execute runs the root command.
func Execute() error {
	return RootCommand.Execute()
}

// Error logs a command error.
func Error(err error) {
	log.Error("Command failed", err)
}

// Usage prints the root command's usage.
func Usage() {
	RootCommand.Usage()
}
