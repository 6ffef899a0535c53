package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/faelwyn/busmq/bridge"
	"github.com/faelwyn/busmq/bus"
	"github.com/faelwyn/busmq/config"
	"github.com/faelwyn/busmq/log"
)

// Flags for [RunCommand]
var (
	ConfigPath    string // Path to config file (default is first of $BUSMQ_CONFIG_PATH, $XDG_CONFIG_HOME/busmq.yaml, $HOME/.config/busmq.yaml)
	Broker        string // MQTT broker address
	Port          int    // MQTT broker port
	ClientID      string // MQTT client identifier
	Username      string // MQTT broker username
	Password      string // MQTT broker password
	CAFile        string // MQTT TLS CA file or directory
	CertFile      string // MQTT TLS certificate file (PEM encoded)
	KeyFile       string // MQTT TLS private key file (PEM encoded)
	Insecure      bool   // Skip TLS certificate verification
	Topic         string // Topic template
	Retain        bool   // Retain all published values
	JSON          bool   // Publish values as JSON objects
	Verbose       bool   // Include attributes in JSON payloads
	OnlyChanges   bool   // Only publish changed values
	Integration   string // Path to integration file
	Messages      string // Path to message catalog file
	AccessLevel   string // Access level for inbound requests
	IgnoreInvalid bool   // Tolerate invalid connection parameters at startup
	LogLevel      string // Log level
)

var cfg *config.Config

// RunCommand is the main [cobra.Command] used for running the bridge.
var RunCommand = &cobra.Command{
	Use:     "run [--config <path>] [flags]",
	Aliases: []string{"start"},
	Short:   "Run the bus-to-MQTT bridge",
	Long: `Run a bridge between the heating bus and the MQTT broker.

A connection to the MQTT broker will be established and the bridge will run in the foreground until a signal is received.

	- SIGINT or SIGTERM will gracefully shut down the bridge.

If no config file is specified, the default path will be determined by the first defined value of $BUSMQ_CONFIG_PATH, $XDG_CONFIG_HOME/busmq.yaml, or $HOME/.config/busmq.yaml. If none of these files exist, the default configuration will be used, which looks for the following environment variables:

	- broker:   $BUSMQ_BROKER_ADDRESS
	- username: $BUSMQ_BROKER_USERNAME
	- password: $BUSMQ_BROKER_PASSWORD

All of the flags, if specified, will override the equivalent values in the config. The format of --broker should be scheme://host:port where "scheme" is one of "tcp", "ssl", or "ws", "host" is the ip-address (or hostname) and "port" is the port on which the broker is accepting connections. If "scheme" is not defined, it defaults to "tcp" and if "port" is not defined, it will use the value of --port (default 1883).`,
	Example: `  busmq run --config config.yaml
  busmq run --broker 127.0.0.1:1883 --messages catalog.yaml
  busmq run --broker 127.0.0.1:1883 --topic "heat/%circuit/%name" --json`,
	GroupID: "commands",
	Args:    cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, _ []string) (err error) {
		findConfig()

		cfg, err = config.Load(ConfigPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}

		if err = flagsToConfig(cfg); err != nil {
			return err
		}

		log.Info("Config loaded")
		setLogHandler(cfg)
		log.Debug("MQTT broker", "addr", cfg.MQTT.Broker)

		return nil
	},
	RunE: runBridge,

	DisableFlagsInUseLine: true,
}

func init() {
	RunCommand.Flags().SortFlags = false
	RunCommand.Flags().StringVarP(&ConfigPath, "config", "c", "", "Path to config file")
	RunCommand.Flags().StringVarP(&Broker, "broker", "b", "", "MQTT broker address")
	RunCommand.Flags().IntVarP(&Port, "port", "p", 1883, "MQTT broker port")
	RunCommand.Flags().StringVar(&ClientID, "client-id", "", "MQTT client identifier")
	RunCommand.Flags().StringVar(&Username, "username", "", "MQTT client username")
	RunCommand.Flags().StringVar(&Password, "password", "", "MQTT client password")
	RunCommand.Flags().StringVar(&CAFile, "ca", "", "MQTT TLS CA file or directory")
	RunCommand.Flags().StringVar(&CertFile, "cert", "", "MQTT TLS certificate file (PEM encoded)")
	RunCommand.Flags().StringVar(&KeyFile, "key", "", "MQTT TLS private key file (PEM encoded)")
	RunCommand.Flags().BoolVar(&Insecure, "insecure", false, "Skip TLS certificate verification")
	RunCommand.Flags().StringVarP(&Topic, "topic", "t", "", "Topic template")
	RunCommand.Flags().BoolVar(&Retain, "retain", false, "Retain all published values")
	RunCommand.Flags().BoolVar(&JSON, "json", false, "Publish values as JSON objects")
	RunCommand.Flags().BoolVar(&Verbose, "verbose", false, "Include attributes in JSON payloads")
	RunCommand.Flags().BoolVar(&OnlyChanges, "changes", false, "Only publish changed values")
	RunCommand.Flags().StringVarP(&Integration, "integration", "i", "", "Path to integration file")
	RunCommand.Flags().StringVarP(&Messages, "messages", "m", "", "Path to message catalog file")
	RunCommand.Flags().StringVar(&AccessLevel, "access-level", "", "Access level for inbound requests")
	RunCommand.Flags().BoolVar(&IgnoreInvalid, "ignore-invalid", false, "Tolerate invalid connection parameters at startup")
	RunCommand.Flags().StringVarP(&LogLevel, "log", "l", "", "Log level")

	RunCommand.MarkFlagFilename("config", "yaml", "yml")
	RunCommand.MarkFlagFilename("messages", "yaml", "yml")
	RunCommand.MarkFlagFilename("integration", "cfg")

	RunCommand.SetHelpTemplate(RunCommand.HelpTemplate() + "\n" + fullDocsFooter + "\n")

	RootCommand.AddCommand(RunCommand)
}

func runBridge(cmd *cobra.Command, _ []string) error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reg := bus.NewRegistry()
	if cfg.Messages != "" {
		if err := bus.LoadCatalog(cfg.Messages, reg); err != nil {
			log.Error("Unable to load message catalog", err, "path", cfg.Messages)
			return &ExitError{err, 1}
		}
		log.Info("Message catalog loaded", "path", cfg.Messages, "messages", reg.Len())
	}

	b, err := bridge.New(cfg, bridge.WithRegistry(reg))
	if err != nil {
		return &ExitError{err, 1}
	}

	if err := b.Start(ctx); err != nil {
		log.Error("Not connected.", err)
		return &ExitError{err, 1}
	}
	defer func() {
		b.Stop()
		log.Info("Done")
	}()

	select {
	case <-b.Done():
	case <-c:
		log.Debug("Received signal")
	}

	return nil
}
