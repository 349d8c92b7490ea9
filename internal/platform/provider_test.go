package platform

import (
	"errors"
	"testing"

	"github.com/mj1618/web-bridge/internal/bridgeerr"
	"github.com/mj1618/web-bridge/internal/config"
)

func TestNewProvider_Registered(t *testing.T) {
	Register("test-host", func(config.Config) (*Provider, error) {
		return &Provider{}, nil
	})
	p, err := NewProvider("test-host", config.Default())
	if err != nil {
		t.Fatal(err)
	}
	if p == nil {
		t.Fatal("expected a provider")
	}
	found := false
	for _, h := range Hosts() {
		found = found || h == "test-host"
	}
	if !found {
		t.Errorf("expected test-host in %v", Hosts())
	}
}

func TestNewProvider_Unknown(t *testing.T) {
	_, err := NewProvider("no-such-host", config.Default())
	if !errors.Is(err, bridgeerr.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}
