// Package transports imports all built-in transports for auto-registration.
// Import this package to have every transport registered with the default registry.
package transports

import (
	_ "github.com/drblury/viewbridge/transport/aws"
	_ "github.com/drblury/viewbridge/transport/channel"
	_ "github.com/drblury/viewbridge/transport/http"
	_ "github.com/drblury/viewbridge/transport/kafka"
	_ "github.com/drblury/viewbridge/transport/nats"
	_ "github.com/drblury/viewbridge/transport/rabbitmq"
)
