package config

import (
	"net"
	"os"
	"strconv"
)

// EnsureDirectories creates the directories the node writes into.
func (c *Config) EnsureDirectories() error {
	return os.MkdirAll(c.Storage.DataDir, 0o755)
}

// ServerAddress is the host:port the HTTP API listens on.
func (c *Config) ServerAddress() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.HTTPPort))
}

// Table returns the definition of the named table, if configured.
func (c *Config) Table(name string) (*TableConfig, bool) {
	for i := range c.Tables {
		if c.Tables[i].Name == name {
			return &c.Tables[i], true
		}
	}
	return nil, false
}
