package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nodefold/nodefold/internal/streaming"
)

// Notifier forwards engine events to every connected MCP client as
// notifications/message pushes, so agents see the flow move without polling.
// Delivery is best-effort.
type Notifier struct {
	srv    *FoldServer
	logger *slog.Logger

	mu     sync.Mutex
	cancel func()
	done   chan struct{}
}

// NewNotifier creates a Notifier for the given server.
func NewNotifier(srv *FoldServer, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = srv.logger
	}
	return &Notifier{srv: srv, logger: logger}
}

// Start subscribes to the hub and begins forwarding events.
func (n *Notifier) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.done != nil {
		return fmt.Errorf("notifier already started")
	}

	subCtx, cancel := context.WithCancel(ctx)
	ch, unsubscribe, err := n.srv.hub.Subscribe(subCtx, streaming.EventFilter{})
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe to hub: %w", err)
	}

	n.cancel = cancel
	n.done = make(chan struct{})
	n.logger.Debug("mcp notifier started")

	go func() {
		defer close(n.done)
		defer unsubscribe()
		for {
			select {
			case <-subCtx.Done():
				return
			case event, ok := <-ch:
				if !ok {
					return
				}
				n.forward(event)
			}
		}
	}()
	return nil
}

func (n *Notifier) forward(event streaming.StreamEvent) {
	n.srv.mcpServer.SendNotificationToAllClients("notifications/message", map[string]any{
		"event_type": event.EventType,
		"node_id":    event.NodeID,
		"batch_id":   event.BatchID,
		"payload":    event.Payload,
	})
}

// Stop halts forwarding and waits for the drain goroutine to exit.
func (n *Notifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cancel == nil {
		return
	}
	n.cancel()
	<-n.done
	n.cancel = nil
	n.done = nil
}
