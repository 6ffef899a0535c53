package bus

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/faelwyn/busmq/log"
)

// A Catalog is the yaml form of a message catalog file.
type Catalog struct {
	Messages []*Message `yaml:"messages"`
}

// ReadCatalog decodes a yaml message catalog from r and registers
// every valid entry. Entries without a circuit or name are logged and
// skipped.
func ReadCatalog(r io.Reader, reg *Registry) error {
	var c Catalog
	if err := yaml.NewDecoder(r).Decode(&c); err != nil {
		return fmt.Errorf("bus: decoding catalog: %w", err)
	}

	for _, m := range c.Messages {
		if m.Circuit == "" || m.Name == "" {
			log.Warn("Skipping catalog entry without circuit or name")
			continue
		}

		reg.Add(m)
	}

	return nil
}

// LoadCatalog reads the message catalog file at path into reg.
func LoadCatalog(path string, reg *Registry) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	log.Info("Loading message catalog", "path", path)

	return ReadCatalog(f, reg)
}
