//go:build !llamacpp

package embed

import (
	"context"
	"errors"
)

// errLocalUnavailable is returned by every Local method when annstore
// was built without the llamacpp tag (the default build).
var errLocalUnavailable = errors.New("embed: local embedder requires building with -tags llamacpp")

// LocalConfig configures the local embedder. Present in the default
// build so callers can construct configuration without a build-tagged
// import, even though Local itself cannot actually embed anything.
type LocalConfig struct {
	ModelPath   string
	GPULayers   int
	ContextSize int
	Dimension   int
}

// Local on a default build is a stub: the llama-go cgo binding is heavy
// enough that it isn't worth forcing on every caller. Build with
// -tags llamacpp for the real implementation in local.go.
type Local struct {
	dim int
}

var _ Embedder = (*Local)(nil)

// NewLocal creates a stub Local embedder.
func NewLocal(cfg LocalConfig) *Local {
	return &Local{dim: cfg.Dimension}
}

// Available always reports false in the default build.
func (l *Local) Available() bool { return false }

func (l *Local) Embed(context.Context, string) ([]float32, error) {
	return nil, errLocalUnavailable
}

func (l *Local) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errLocalUnavailable
}

func (l *Local) Dimension() int { return l.dim }

func (l *Local) Close() error { return nil }
