package common

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/sTensor/lib/storage"
)

// --------------------------------------------------------------------------
// Configuration struct
// --------------------------------------------------------------------------

// Config holds the storage configuration shared by all commands
type Config struct {
	// Backend selects the storage engine of every tensor
	Backend storage.Implementation

	// Order is the branching factor of the B+ tree (even, >= 4)
	Order int

	// Overprovision is the ratio of hash table capacity to expected entries (> 1)
	Overprovision float64

	// Logging configuration
	LogLevel string
}

// Validate checks the configuration for values the engines would reject
func (c *Config) Validate() error {
	if _, err := storage.ParseImplementation(string(c.Backend)); err != nil {
		return err
	}
	if c.Order < 4 || c.Order%2 != 0 {
		return fmt.Errorf("invalid order %d: must be even and at least 4", c.Order)
	}
	if c.Overprovision <= 1 {
		return fmt.Errorf("invalid overprovision factor %.2f: must be greater than 1", c.Overprovision)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Storage")
	addField("Backend", string(c.Backend))
	addField("B+ Tree Order", fmt.Sprintf("%d", c.Order))
	addField("Overprovision Factor", fmt.Sprintf("%.2f", c.Overprovision))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
