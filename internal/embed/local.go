//go:build llamacpp

package embed

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"

	llama "github.com/tcpipuk/llama-go"
)

// Local implements [Embedder] using an embedded GGUF model via
// llama-go, avoiding any external API dependency. Thread-safe: all
// model/context access is serialized via mu, since llama contexts are
// not themselves safe for concurrent use.
type Local struct {
	modelPath   string
	gpuLayers   int
	contextSize int
	dim         int

	mu      sync.Mutex
	model   *llama.Model
	embCtx  *llama.Context
	loadErr error
	once    sync.Once
}

var _ Embedder = (*Local)(nil)

// LocalConfig configures the local embedder.
type LocalConfig struct {
	// ModelPath is the path to the GGUF model file.
	ModelPath string

	// GPULayers is the number of layers to offload to GPU (0 = CPU only).
	GPULayers int

	// ContextSize is the context window size in tokens.
	ContextSize int

	// Dimension is the embedding dimensionality the model produces.
	Dimension int
}

// NewLocal creates a new Local embedder. The model is not loaded until
// first use.
func NewLocal(cfg LocalConfig) *Local {
	ctxSize := cfg.ContextSize
	if ctxSize <= 0 {
		ctxSize = 512
	}
	return &Local{
		modelPath:   cfg.ModelPath,
		gpuLayers:   cfg.GPULayers,
		contextSize: ctxSize,
		dim:         cfg.Dimension,
	}
}

// Available returns true if the model file exists on disk. Cheap check,
// does not load the model.
func (l *Local) Available() bool {
	if l.modelPath == "" {
		return false
	}
	_, err := os.Stat(l.modelPath)
	return err == nil
}

func (l *Local) loadModel() error {
	l.once.Do(func() {
		if l.modelPath == "" {
			l.loadErr = fmt.Errorf("no model path configured")
			return
		}

		model, err := llama.LoadModel(l.modelPath,
			llama.WithGPULayers(l.gpuLayers),
			llama.WithMMap(true),
			llama.WithSilentLoading(),
		)
		if err != nil {
			l.loadErr = fmt.Errorf("loading model %s: %w", l.modelPath, err)
			return
		}
		l.model = model

		ctx, err := model.NewContext(
			llama.WithEmbeddings(),
			llama.WithContext(l.contextSize),
			llama.WithThreads(runtime.NumCPU()),
		)
		if err != nil {
			model.Close()
			l.model = nil
			l.loadErr = fmt.Errorf("creating embedding context: %w", err)
			return
		}
		l.embCtx = ctx
	})
	return l.loadErr
}

// Embed returns a dense vector embedding for text.
func (l *Local) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	if err := l.loadModel(); err != nil {
		return nil, fmt.Errorf("local embed: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	emb, err := l.embCtx.GetEmbeddings(text)
	if err != nil {
		return nil, fmt.Errorf("getting embeddings: %w", err)
	}
	return emb, nil
}

// EmbedBatch embeds each text sequentially; llama-go's embedding context
// is not safe for concurrent calls, so there is no batching win here
// beyond amortizing model load.
func (l *Local) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := l.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

// Dimension returns the configured embedding dimensionality.
func (l *Local) Dimension() int { return l.dim }

// Close releases the model and context resources. Safe to call multiple
// times.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.embCtx != nil {
		l.embCtx.Close()
		l.embCtx = nil
	}
	if l.model != nil {
		l.model.Close()
		l.model = nil
	}
	return nil
}
