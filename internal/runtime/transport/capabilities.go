// Package transport builds the publisher/subscriber pair a page session runs
// on. Backends live in github.com/drblury/viewbridge/transport/*.
package transport

import (
	newtransport "github.com/drblury/viewbridge/transport"
)

// Capabilities is an alias for the modular transport Capabilities.
type Capabilities = newtransport.Capabilities

// GetCapabilities returns the capabilities for a transport by name.
func GetCapabilities(transportName string) Capabilities {
	return newtransport.GetCapabilities(transportName)
}
