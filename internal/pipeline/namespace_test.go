package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"stemprep/internal/canonical"
	"stemprep/internal/metadata"
	"stemprep/internal/musickey"
)

func testName() canonical.Name {
	return canonical.New("Daft Punk", "Around the World", 121, &musickey.Key{Tonic: 9, Mode: musickey.Minor})
}

func TestClaimSuffixes(t *testing.T) {
	dir := t.TempDir()
	ns := NewNamespace(dir)

	var got []string
	for _, own := range []string{"/in/a.wav", "/in/b.wav", "/in/c.wav"} {
		p, err := ns.Claim(testName(), own, "", nil)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, filepath.Base(p))
	}

	want := []string{
		"daft_punk_around_the_world_121_am.wav",
		"daft_punk_around_the_world_121_am_2.wav",
		"daft_punk_around_the_world_121_am_3.wav",
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("claim %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestClaimRespectsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "daft_punk_around_the_world_121_am")
	if err := os.WriteFile(base+".wav", []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	// an orphaned sidecar still holds its name
	if err := os.WriteFile(base+"_2.json", []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := NewNamespace(dir).Claim(testName(), "/in/a.wav", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(p) != "daft_punk_around_the_world_121_am_3.wav" {
		t.Errorf("Claim() = %s", p)
	}
}

func TestClaimOwnName(t *testing.T) {
	dir := t.TempDir()
	own := filepath.Join(dir, "daft_punk_around_the_world_121_am.wav")
	if err := os.WriteFile(own, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(metadata.SidecarPath(own), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := NewNamespace(dir).Claim(testName(), own, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if p != own {
		t.Errorf("Claim() = %s, want the file to keep its name", p)
	}
}

func TestClaimReplacesEarlierOutputOfSameSource(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "daft_punk_around_the_world_121_am")
	if err := os.WriteFile(base+".wav", []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	data, err := metadata.Marshal(&metadata.Record{Processing: metadata.Processing{Source: "/in/a.wav", Checksum: "abc"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(base+".json", data, 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		own      string
		checksum string
		want     string
	}{
		{"same source and audio", "/in/a.wav", "abc", "daft_punk_around_the_world_121_am.wav"},
		{"changed audio", "/in/a.wav", "def", "daft_punk_around_the_world_121_am_2.wav"},
		{"no checksum", "/in/a.wav", "", "daft_punk_around_the_world_121_am_2.wav"},
		{"duplicate audio from another source", "/in/b.wav", "abc", "daft_punk_around_the_world_121_am_2.wav"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewNamespace(dir).Claim(testName(), tt.own, tt.checksum, nil)
			if err != nil {
				t.Fatal(err)
			}
			if filepath.Base(p) != tt.want {
				t.Errorf("Claim() = %s, want %s", filepath.Base(p), tt.want)
			}
		})
	}
}

func TestClaimFailedCommitReleasesName(t *testing.T) {
	ns := NewNamespace(t.TempDir())
	boom := errors.New("disk full")

	if _, err := ns.Claim(testName(), "/in/a.wav", "", func(string) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("error = %v, want commit error", err)
	}

	p, err := ns.Claim(testName(), "/in/b.wav", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(p) != "daft_punk_around_the_world_121_am.wav" {
		t.Errorf("name should be free after a failed commit, got %s", p)
	}
}

func TestClaimExhausted(t *testing.T) {
	ns := NewNamespace(t.TempDir())
	name := testName()
	for i := 1; i <= maxSuffix; i++ {
		ns.reserved[filepath.Join(ns.dir, name.WithSuffix(i).String())] = "/in/other.wav"
	}

	_, err := ns.Claim(name, "/in/a.wav", "", nil)
	if !errors.Is(err, metadata.ErrCollisionExhausted) {
		t.Errorf("error = %v, want ErrCollisionExhausted", err)
	}
}

func TestClaimConcurrent(t *testing.T) {
	ns := NewNamespace(t.TempDir())

	const n = 20
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[string]bool{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := ns.Claim(testName(), filepath.Join("/in", string(rune('a'+i))+".wav"), "", nil)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			seen[p] = true
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if len(seen) != n {
		t.Errorf("got %d distinct names for %d files", len(seen), n)
	}
}
