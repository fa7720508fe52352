package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dipteshhh/learnease-backend/internal/realtime"
)

type localBus struct {
	mu       sync.RWMutex
	handlers []func(m realtime.Message)
}

// NewLocalBus delivers messages to forwarders in this process only.
// Payloads round-trip through JSON so subscribers see what Redis would deliver.
func NewLocalBus() Bus {
	return &localBus{}
}

func (b *localBus) Publish(_ context.Context, msg realtime.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	var decoded realtime.Message
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	b.mu.RLock()
	handlers := append([]func(realtime.Message){}, b.handlers...)
	b.mu.RUnlock()
	for _, h := range handlers {
		h(decoded)
	}
	return nil
}

func (b *localBus) StartForwarder(ctx context.Context, onMsg func(m realtime.Message)) error {
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}
	b.mu.Lock()
	b.handlers = append(b.handlers, onMsg)
	idx := len(b.handlers) - 1
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		b.handlers[idx] = func(realtime.Message) {}
		b.mu.Unlock()
	}()
	return nil
}

func (b *localBus) Close() error { return nil }
