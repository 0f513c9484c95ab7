package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"stemprep/internal/canonical"
	"stemprep/internal/metadata"
	"stemprep/pkg/utils"
)

// maxSuffix bounds the collision counter.
const maxSuffix = 999

// Namespace serializes name reservation in the output directory. A name is
// taken when a reservation, a file or a sidecar already holds it, unless the
// holder is an earlier output of the same source and audio.
type Namespace struct {
	mu       sync.Mutex
	dir      string
	reserved map[string]string
}

func NewNamespace(dir string) *Namespace {
	return &Namespace{dir: dir, reserved: make(map[string]string)}
}

// Claim picks the first free variant of name and runs commit with its path
// while holding the namespace. own is the source file, which may keep its
// current name. checksum identifies its audio; an existing output whose
// sidecar records both own as its source and the same checksum is replaced
// rather than suffixed around.
// The name is reserved only if commit succeeds; a nil commit just reserves it.
func (n *Namespace) Claim(name canonical.Name, own, checksum string, commit func(path string) error) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i := 1; i <= maxSuffix; i++ {
		path := filepath.Join(n.dir, name.WithSuffix(i).String())
		if n.taken(path, own, checksum) {
			continue
		}
		if commit != nil {
			if err := commit(path); err != nil {
				return "", err
			}
		}
		n.reserved[path] = own
		return path, nil
	}

	return "", fmt.Errorf("%w: %s_2 through _%d are taken", metadata.ErrCollisionExhausted, name.Base(), maxSuffix)
}

func (n *Namespace) taken(path, own, checksum string) bool {
	if holder, ok := n.reserved[path]; ok {
		return holder != own
	}
	sidecar := metadata.SidecarPath(path)
	if _, err := os.Lstat(path); err == nil {
		if own != "" && utils.SameFile(path, own) {
			return false
		}
		return !priorOutput(sidecar, own, checksum)
	}
	if _, err := os.Lstat(sidecar); err == nil {
		if own != "" && sidecar == metadata.SidecarPath(own) {
			return false
		}
		return !priorOutput(sidecar, own, checksum)
	}
	return false
}

// priorOutput reports whether the sidecar at path was written for own with
// audio matching checksum. Outputs of other sources are never replaced, even
// when their audio is identical.
func priorOutput(sidecar, own, checksum string) bool {
	if own == "" || checksum == "" {
		return false
	}
	rec, err := metadata.ReadSidecar(sidecar)
	if err != nil {
		return false
	}
	return rec.Processing.Checksum == checksum && filepath.Clean(rec.Processing.Source) == filepath.Clean(own)
}
