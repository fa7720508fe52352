package bus

import (
	"context"
	"strings"

	"github.com/dipteshhh/learnease-backend/internal/platform/logger"
	"github.com/dipteshhh/learnease-backend/internal/realtime"
)

// Bus carries flow status messages between API instances.
type Bus interface {
	Publish(ctx context.Context, msg realtime.Message) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.Message)) error
	Close() error
}

// New returns a Redis bus when cfg names an address and an in-process bus otherwise.
func New(log *logger.Logger, cfg RedisConfig) (Bus, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return NewLocalBus(), nil
	}
	return NewRedisBus(log, cfg)
}
