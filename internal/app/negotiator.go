package app

import (
	"fmt"
	"sync"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Negotiator loads the router capabilities into a device exactly once.
type Negotiator struct {
	mu  sync.Mutex
	dev core.Device
}

func NewNegotiator(dev core.Device) *Negotiator {
	return &Negotiator{dev: dev}
}

// Load is idempotent. Only the first call validates and negotiates.
func (n *Negotiator) Load(caps core.RTPCapabilities) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.dev.Loaded() {
		return nil
	}
	if err := validate.Struct(caps); err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidCapabilities, err)
	}
	if err := n.dev.Load(caps); err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidCapabilities, err)
	}
	log.Info().Str("module", "app.negotiator").Int("codecs", len(caps.Codecs)).Msg("capabilities loaded")
	return nil
}

func (n *Negotiator) Loaded() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dev.Loaded()
}

func (n *Negotiator) Capabilities() core.RTPCapabilities {
	return n.dev.RTPCapabilities()
}

// CanProduce reports whether the loaded router accepts media of kind. It is
// false until Load succeeds.
func (n *Negotiator) CanProduce(kind domain.MediaKind) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dev.Loaded() && n.dev.CanProduce(kind)
}
