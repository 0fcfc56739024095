package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/fastygo/taskbot/domain"
)

type CommandHandler func(ctx context.Context, msg domain.Inbound) ([]domain.Reply, error)
type CallbackHandler func(ctx context.Context, cb domain.Callback) ([]domain.Reply, error)

type callbackRoute struct {
	prefix  string
	handler CallbackHandler
}

// Dispatcher maps chat commands and callback data to handlers. Callbacks
// match exactly first, then by the longest registered prefix.
type Dispatcher struct {
	commands  map[string]CommandHandler
	callbacks map[string]CallbackHandler
	prefixes  []callbackRoute
	mu        sync.RWMutex
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		commands:  make(map[string]CommandHandler),
		callbacks: make(map[string]CallbackHandler),
	}
}

func (d *Dispatcher) RegisterCommand(name string, handler CommandHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands[name] = handler
}

func (d *Dispatcher) RegisterCallback(data string, handler CallbackHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callbacks[data] = handler
}

func (d *Dispatcher) RegisterCallbackPrefix(prefix string, handler CallbackHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prefixes = append(d.prefixes, callbackRoute{prefix: prefix, handler: handler})
}

// HasCommand reports whether name is registered.
func (d *Dispatcher) HasCommand(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.commands[name]
	return ok
}

func (d *Dispatcher) ExecuteCommand(ctx context.Context, name string, msg domain.Inbound) ([]domain.Reply, error) {
	d.mu.RLock()
	handler, ok := d.commands[name]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("command handler %s not registered", name)
	}
	return handler(ctx, msg)
}

func (d *Dispatcher) ExecuteCallback(ctx context.Context, cb domain.Callback) ([]domain.Reply, error) {
	d.mu.RLock()
	handler, ok := d.callbacks[cb.Data]
	if !ok {
		best := -1
		for _, route := range d.prefixes {
			if strings.HasPrefix(cb.Data, route.prefix) && len(route.prefix) > best {
				handler, best = route.handler, len(route.prefix)
			}
		}
		ok = best >= 0
	}
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("callback handler for %q not registered", cb.Data)
	}
	return handler(ctx, cb)
}
