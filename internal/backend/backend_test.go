package backend

import (
	"testing"

	"stemprep/internal/config"
)

func TestBuildKeepsOrder(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Backends = []string{"spectral", "aubio", "keyfinder"}

	bs, err := Build(&cfg, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(bs) != 3 {
		t.Fatalf("got %d backends", len(bs))
	}
	for i, want := range cfg.Backends {
		if bs[i].Name() != want {
			t.Errorf("backend %d = %s, want %s", i, bs[i].Name(), want)
		}
	}
}

func TestBuildAllKnown(t *testing.T) {
	cfg := config.DefaultConfig()
	bs, err := Build(&cfg, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(bs) != len(config.KnownBackends) {
		t.Errorf("got %d backends, want %d", len(bs), len(config.KnownBackends))
	}
}

func TestBuildErrors(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Backends = nil
	if _, err := Build(&cfg, ""); err == nil {
		t.Error("empty backend list should fail")
	}

	cfg.Backends = []string{"aubio", "vamp"}
	if _, err := Build(&cfg, ""); err == nil {
		t.Error("unknown backend should fail")
	}
}
