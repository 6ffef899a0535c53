package cmd

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/faelwyn/busmq/config"
	"github.com/faelwyn/busmq/internal/build"
	"github.com/faelwyn/busmq/log"
)

const fullDocsFooter = `Full documentation is available at:
https://pkg.go.dev/github.com/faelwyn/busmq`

// ExitError is an error that should cause the program to exit with the
// given code.
type ExitError struct {
	Err  error
	Code int
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func findConfig() {
	const defaultConfigFile = build.Name + ".yaml"

	if ConfigPath != "" {
		return
	}

	if env, ok := os.LookupEnv("BUSMQ_CONFIG_PATH"); ok {
		ConfigPath = env
		return
	}

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		ConfigPath = filepath.Join(xdg, defaultConfigFile)
		return
	}

	home, err := os.UserHomeDir()
	cobra.CheckErr(err)

	ConfigPath = filepath.Join(home, ".config", defaultConfigFile)
}

func maybeWithPort(addr string, port int) string {
	var hasPort bool

	if last := addr[len(addr)-1]; '0' <= last && last <= '9' {
		for _, c := range addr {
			switch {
			case c == ':':
				hasPort = true
			case '0' <= c && c <= '9':
				hasPort = hasPort && true
			default:
				hasPort = false
			}
		}
	}

	if hasPort || port < 0 {
		return addr
	}

	return addr + ":" + strconv.Itoa(port)
}

func flagsToConfig(cfg *config.Config) error {
	if LogLevel != "" {
		var level log.Level

		if err := level.UnmarshalText([]byte(LogLevel)); err != nil {
			return err
		}

		cfg.Log.Level = level
	}

	if Broker != "" {
		cfg.MQTT.Broker = maybeWithPort(Broker, Port)
	}

	if ClientID != "" {
		cfg.MQTT.ClientID = ClientID
	}

	if Username != "" {
		cfg.MQTT.Username = Username
	}

	if Password != "" {
		cfg.MQTT.Password = Password
	}

	if CAFile != "" {
		cfg.MQTT.CAFile = CAFile
	}

	if CertFile != "" {
		cfg.MQTT.CertFile = CertFile
	}

	if KeyFile != "" {
		cfg.MQTT.KeyFile = KeyFile
	}

	if Insecure {
		cfg.MQTT.Insecure = true
	}

	if Topic != "" {
		cfg.Topic = Topic
	}

	if Retain {
		cfg.Retain = true
	}

	if JSON {
		cfg.JSON = true
	}

	if Verbose {
		cfg.Verbose = true
	}

	if OnlyChanges {
		cfg.OnlyChanges = true
	}

	if Integration != "" {
		cfg.Integration = Integration
	}

	if Messages != "" {
		cfg.Messages = Messages
	}

	if AccessLevel != "" {
		cfg.AccessLevel = AccessLevel
	}

	if IgnoreInvalid {
		cfg.IgnoreInvalid = true
	}

	return nil
}

func setLogHandler(cfg *config.Config) {
	var w io.Writer

	switch strings.ToLower(cfg.Log.Output) {
	case "", "stderr":
	case "stdout":
		w = os.Stdout
	case "discard":
		log.SetHandler(log.DiscardHandler)
		return
	default:
		f, err := os.OpenFile(cfg.Log.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Error(
				"Unable to open log file, deferring to stderr",
				err,
			)

			return
		}

		w = f

		AddCleanup(func() error { return f.Close() })
	}

	log.SetLogLevel(cfg.Log.Level)

	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		if w == nil {
			w = os.Stderr
		}

		log.SetJSONHandler(w)
	default:
		if w != nil {
			log.SetOutput(w)
		}
	}
}
