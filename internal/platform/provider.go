package platform

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mj1618/web-bridge/internal/bridgeerr"
	"github.com/mj1618/web-bridge/internal/config"
)

// Provider bundles the capabilities of one host.
type Provider struct {
	Tabs          TabManager
	Frames        FrameEnumerator
	Screenshotter Screenshotter
	Mutations     MutationNotifier
	// Close releases the host. May be nil.
	Close func() error
}

// Factory builds a host from configuration.
type Factory func(cfg config.Config) (*Provider, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a host available by name. Host packages call it from init.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = f
}

// Hosts lists registered host names.
func Hosts() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// NewProvider builds the named host.
func NewProvider(name string, cfg config.Config) (*Provider, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, bridgeerr.New(bridgeerr.CodeUnsupported,
			fmt.Sprintf("unknown host %q; registered: %v", name, Hosts()), bridgeerr.ErrUnsupported)
	}
	return f(cfg)
}
