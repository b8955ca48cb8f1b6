// Package index is the local retrieval index the assistant grounds its
// answers on. Documents are chunked, embedded once, and persisted so later
// runs load the index instead of re-embedding the corpus.
package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// FileName is the index file inside the storage directory.
const FileName = "index.cbor.zst"

const embedBatchSize = 64

// Embedder turns texts into vectors; provider.OpenAIEmbedder implements it.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Chunk is one embedded piece of a document.
type Chunk struct {
	ID     string    `cbor:"id"`
	Source string    `cbor:"source"`
	Text   string    `cbor:"text"`
	Vector []float32 `cbor:"vector"`
}

type indexFile struct {
	Version     int       `cbor:"version"`
	EmbedModel  string    `cbor:"embed_model"`
	Fingerprint string    `cbor:"fingerprint"`
	CreatedAt   time.Time `cbor:"created_at"`
	Documents   int       `cbor:"documents"`
	Chunks      []Chunk   `cbor:"chunks"`
}

// Index is an in-memory vector index.
type Index struct {
	EmbedModel  string
	Fingerprint string
	CreatedAt   time.Time
	Documents   int
	Chunks      []Chunk
}

// Options configures building and loading.
type Options struct {
	DataDir      string
	StorageDir   string
	EmbedModel   string
	ChunkSize    int
	ChunkOverlap int
	Logger       logrus.FieldLogger
}

func (o Options) logger() logrus.FieldLogger {
	if o.Logger != nil {
		return o.Logger
	}
	return logrus.StandardLogger()
}

// Path returns the index file location for storageDir.
func Path(storageDir string) string {
	return filepath.Join(storageDir, FileName)
}

// Load reads a persisted index. A missing file yields an error wrapping
// fs.ErrNotExist.
func Load(storageDir string) (*Index, error) {
	f, err := os.Open(Path(storageDir))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	raw, err := readIndex(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", Path(storageDir), err)
	}
	return &Index{
		EmbedModel:  raw.EmbedModel,
		Fingerprint: raw.Fingerprint,
		CreatedAt:   raw.CreatedAt,
		Documents:   raw.Documents,
		Chunks:      raw.Chunks,
	}, nil
}

// Save writes the index to storageDir atomically (temp file + rename).
func (ix *Index) Save(storageDir string) error {
	if err := os.MkdirAll(storageDir, 0755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}
	tmp, err := os.CreateTemp(storageDir, ".index-*")
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	defer os.Remove(tmp.Name())

	err = writeIndex(tmp, &indexFile{
		Version:     formatVersion,
		EmbedModel:  ix.EmbedModel,
		Fingerprint: ix.Fingerprint,
		CreatedAt:   ix.CreatedAt,
		Documents:   ix.Documents,
		Chunks:      ix.Chunks,
	})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	return os.Rename(tmp.Name(), Path(storageDir))
}

// Build reads, chunks and embeds every document under opts.DataDir.
func Build(ctx context.Context, opts Options, emb Embedder) (*Index, error) {
	docs, err := LoadDocuments(opts.DataDir)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no documents found in %s", opts.DataDir)
	}

	var chunks []Chunk
	for _, d := range docs {
		for _, text := range SplitText(d.Text, opts.ChunkSize, opts.ChunkOverlap) {
			chunks = append(chunks, Chunk{ID: chunkID(d.Path, text), Source: d.Path, Text: text})
		}
	}

	log := opts.logger()
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}
		vecs, err := emb.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start, end, err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(texts))
		}
		for i, v := range vecs {
			chunks[start+i].Vector = v
		}
		log.WithFields(logrus.Fields{"done": end, "total": len(chunks)}).Debug("embedded chunks")
	}

	return &Index{
		EmbedModel:  opts.EmbedModel,
		Fingerprint: Fingerprint(docs),
		CreatedAt:   time.Now().UTC(),
		Documents:   len(docs),
		Chunks:      chunks,
	}, nil
}

// Stale reports whether the documents under dataDir differ from the ones
// the index was built from.
func (ix *Index) Stale(dataDir string) (bool, error) {
	docs, err := LoadDocuments(dataDir)
	if err != nil {
		return false, err
	}
	return Fingerprint(docs) != ix.Fingerprint, nil
}

// Hit is a search result.
type Hit struct {
	Chunk
	Score float64
}

// Search returns the topK chunks most similar to vec, best first.
func (ix *Index) Search(vec []float32, topK int) []Hit {
	if topK <= 0 || len(ix.Chunks) == 0 {
		return nil
	}
	hits := make([]Hit, 0, len(ix.Chunks))
	for _, c := range ix.Chunks {
		hits = append(hits, Hit{Chunk: c, Score: cosine(vec, c.Vector)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Retriever answers queries against an index.
type Retriever struct {
	index *Index
	emb   Embedder
}

// NewRetriever returns a Retriever that embeds queries with emb and searches ix.
func NewRetriever(ix *Index, emb Embedder) *Retriever {
	return &Retriever{index: ix, emb: emb}
}

// Retrieve embeds query and returns the topK closest chunks.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]Hit, error) {
	vecs, err := r.emb.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, errors.New("embed query: no vector returned")
	}
	return r.index.Search(vecs[0], topK), nil
}

// ── Bootstrap ───────────────────────────────────────────────────────────────

// Status is the result kind of LoadOrInitialize.
type Status int

const (
	StatusFailed Status = iota
	StatusLoaded
	StatusInitialized
)

func (s Status) String() string {
	switch s {
	case StatusLoaded:
		return "loaded"
	case StatusInitialized:
		return "initialized"
	default:
		return "failed"
	}
}

// Outcome is the typed result of LoadOrInitialize.
type Outcome struct {
	Status Status
	Index  *Index
	Err    error // set when Status == StatusFailed

	// PersistErr is set when a freshly built index could not be written.
	// The index is still usable for this run.
	PersistErr error
}

// LoadOrInitialize loads the persisted index from opts.StorageDir, or builds
// it from opts.DataDir when none is usable, and persists the new one.
// A stored index built with a different embedding model is rebuilt.
func LoadOrInitialize(ctx context.Context, opts Options, emb Embedder) Outcome {
	log := opts.logger().WithField("storage", opts.StorageDir)

	ix, err := Load(opts.StorageDir)
	switch {
	case err == nil && (opts.EmbedModel == "" || ix.EmbedModel == opts.EmbedModel):
		log.WithField("chunks", len(ix.Chunks)).Debug("index loaded")
		return Outcome{Status: StatusLoaded, Index: ix}
	case err == nil:
		log.WithFields(logrus.Fields{"stored": ix.EmbedModel, "want": opts.EmbedModel}).
			Warn("stored index uses a different embedding model, rebuilding")
	case errors.Is(err, fs.ErrNotExist):
		log.Info("no stored index, building from documents")
	default:
		log.WithError(err).Warn("stored index unreadable, rebuilding")
	}

	return initialize(ctx, opts, emb, log)
}

// Rebuild always builds a fresh index and persists it.
func Rebuild(ctx context.Context, opts Options, emb Embedder) Outcome {
	return initialize(ctx, opts, emb, opts.logger().WithField("storage", opts.StorageDir))
}

func initialize(ctx context.Context, opts Options, emb Embedder, log logrus.FieldLogger) Outcome {
	ix, err := Build(ctx, opts, emb)
	if err != nil {
		return Outcome{Status: StatusFailed, Err: err}
	}
	out := Outcome{Status: StatusInitialized, Index: ix}
	if err := ix.Save(opts.StorageDir); err != nil {
		log.WithError(err).Warn("could not persist index")
		out.PersistErr = err
	}
	log.WithFields(logrus.Fields{"documents": ix.Documents, "chunks": len(ix.Chunks)}).Info("index built")
	return out
}
