package bus

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// New builds the event bus named by cfg.Type: "channel" for the in-process
// Community bus, "nats" for the Pro deployment.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil
	case "nats":
		return NewNATSBus(cfg)
	}
	return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
}
