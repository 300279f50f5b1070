package env

import (
	"net"
	"os"
	"strings"
)

// Get returns the value of the given environment variable or a fallback.
func Get(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

// ListenAddr builds the HTTP listen address. Platform-assigned HOST and PORT
// take precedence over the configured port.
func ListenAddr(configuredPort string) string {
	return net.JoinHostPort(Get("HOST", ""), Get("PORT", configuredPort))
}
