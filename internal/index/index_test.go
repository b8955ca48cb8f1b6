package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var vocab = []string{"git", "branch", "commit", "chmod", "permission", "ls", "directory", "rebase"}

// bagEmbedder maps text onto vocabulary counts.
type bagEmbedder struct {
	calls int
	err   error
}

func (b *bagEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, len(vocab))
		for _, w := range strings.Fields(strings.ToLower(t)) {
			w = strings.Trim(w, ".,:;!?`")
			for j, k := range vocab {
				if w == k {
					v[j]++
				}
			}
		}
		out[i] = v
	}
	return out, nil
}

func writeDocs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"git.md":          "Use git branch to list branches.\n\nUse git commit to record changes.",
		"linux/chmod.txt": "chmod changes the permission bits of a file.",
		"linux/ls.rst":    "ls lists a directory.",
		"image.png":       "not text",
		".hidden/x.md":    "git rebase secrets",
	}
	for name, body := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0644))
	}
	return dir
}

func quietOptions(t *testing.T, dataDir string) Options {
	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return Options{
		DataDir:      dataDir,
		StorageDir:   t.TempDir(),
		EmbedModel:   "bag",
		ChunkSize:    40,
		ChunkOverlap: 0,
		Logger:       logger,
	}
}

func TestLoadDocumentsFiltersAndSorts(t *testing.T) {
	docs, err := LoadDocuments(writeDocs(t))
	require.NoError(t, err)

	var paths []string
	for _, d := range docs {
		paths = append(paths, d.Path)
	}
	assert.Equal(t, []string{"git.md", "linux/chmod.txt", "linux/ls.rst"}, paths)
}

func TestSplitTextKeepsParagraphsTogether(t *testing.T) {
	chunks := SplitText("alpha\n\nbeta\n\ngamma", 100, 10)
	assert.Equal(t, []string{"alpha\n\nbeta\n\ngamma"}, chunks)

	chunks = SplitText("alpha\n\nbeta", 6, 0)
	assert.Equal(t, []string{"alpha", "beta"}, chunks)
}

func TestSplitTextLongParagraphOverlaps(t *testing.T) {
	chunks := SplitText("abcdefghij", 4, 2)
	assert.Equal(t, []string{"abcd", "cdef", "efgh", "ghij"}, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 4)
	}
}

func TestSplitTextMultibyte(t *testing.T) {
	chunks := SplitText("日本語のテキスト", 3, 0)
	assert.Equal(t, []string{"日本語", "のテキ", "スト"}, chunks)
}

func TestFingerprintChangesWithContent(t *testing.T) {
	a := []Document{{Path: "a.md", Text: "one"}}
	b := []Document{{Path: "a.md", Text: "two"}}
	c := []Document{{Path: "b.md", Text: "one"}}

	assert.Equal(t, Fingerprint(a), Fingerprint([]Document{{Path: "a.md", Text: "one"}}))
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))
}

func TestLoadOrInitializeBuildsThenLoads(t *testing.T) {
	opts := quietOptions(t, writeDocs(t))
	emb := &bagEmbedder{}

	first := LoadOrInitialize(context.Background(), opts, emb)
	require.Equal(t, StatusInitialized, first.Status, "err: %v", first.Err)
	require.NoError(t, first.PersistErr)
	assert.Equal(t, 3, first.Index.Documents)
	assert.NotEmpty(t, first.Index.Chunks)
	assert.FileExists(t, Path(opts.StorageDir))

	calls := emb.calls
	second := LoadOrInitialize(context.Background(), opts, emb)
	require.Equal(t, StatusLoaded, second.Status)
	assert.Equal(t, calls, emb.calls, "loading must not re-embed")
	assert.Equal(t, first.Index.Fingerprint, second.Index.Fingerprint)
	assert.Equal(t, first.Index.Chunks, second.Index.Chunks)
	assert.True(t, first.Index.CreatedAt.Equal(second.Index.CreatedAt))
}

func TestLoadOrInitializeFailsWithoutDocuments(t *testing.T) {
	opts := quietOptions(t, t.TempDir())
	out := LoadOrInitialize(context.Background(), opts, &bagEmbedder{})

	assert.Equal(t, StatusFailed, out.Status)
	assert.Nil(t, out.Index)
	assert.ErrorContains(t, out.Err, "no documents")
}

func TestLoadOrInitializeFailsOnEmbedError(t *testing.T) {
	opts := quietOptions(t, writeDocs(t))
	out := LoadOrInitialize(context.Background(), opts, &bagEmbedder{err: errors.New("quota")})

	assert.Equal(t, StatusFailed, out.Status)
	assert.ErrorContains(t, out.Err, "quota")
	assert.NoFileExists(t, Path(opts.StorageDir))
}

func TestLoadOrInitializeRebuildsCorruptIndex(t *testing.T) {
	opts := quietOptions(t, writeDocs(t))
	require.NoError(t, os.WriteFile(Path(opts.StorageDir), []byte("garbage"), 0644))

	out := LoadOrInitialize(context.Background(), opts, &bagEmbedder{})
	assert.Equal(t, StatusInitialized, out.Status)
}

func TestLoadOrInitializeRebuildsOnModelChange(t *testing.T) {
	opts := quietOptions(t, writeDocs(t))
	require.Equal(t, StatusInitialized, LoadOrInitialize(context.Background(), opts, &bagEmbedder{}).Status)

	opts.EmbedModel = "other"
	out := LoadOrInitialize(context.Background(), opts, &bagEmbedder{})
	assert.Equal(t, StatusInitialized, out.Status)
	assert.Equal(t, "other", out.Index.EmbedModel)
}

func TestStale(t *testing.T) {
	dataDir := writeDocs(t)
	opts := quietOptions(t, dataDir)
	out := Rebuild(context.Background(), opts, &bagEmbedder{})
	require.Equal(t, StatusInitialized, out.Status)

	stale, err := out.Index.Stale(dataDir)
	require.NoError(t, err)
	assert.False(t, stale)

	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "new.md"), []byte("git rebase"), 0644))
	stale, err = out.Index.Stale(dataDir)
	require.NoError(t, err)
	assert.True(t, stale)
}

func TestRetrieveRanksBySimilarity(t *testing.T) {
	opts := quietOptions(t, writeDocs(t))
	emb := &bagEmbedder{}
	out := LoadOrInitialize(context.Background(), opts, emb)
	require.Equal(t, StatusInitialized, out.Status)

	hits, err := NewRetriever(out.Index, emb).Retrieve(context.Background(), "how do I chmod a permission", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "linux/chmod.txt", hits[0].Source)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
}

func TestSearchEdgeCases(t *testing.T) {
	ix := &Index{Chunks: []Chunk{{ID: "a", Vector: []float32{1, 0}}}}
	assert.Nil(t, ix.Search([]float32{1, 0}, 0))
	assert.Nil(t, (&Index{}).Search([]float32{1, 0}, 3))

	hits := ix.Search([]float32{0, 0}, 3)
	require.Len(t, hits, 1)
	assert.Zero(t, hits[0].Score)
}
