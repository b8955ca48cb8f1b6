package index

import (
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/zeebo/blake3"
)

// Document is a source file read from the data directory.
type Document struct {
	Path string // relative to the data directory, slash-separated
	Text string
}

var documentExts = map[string]bool{
	".txt": true, ".text": true, ".md": true, ".markdown": true, ".rst": true, ".man": true,
}

// LoadDocuments reads every supported text file under dir, sorted by path.
// Hidden files and directories are skipped.
func LoadDocuments(dir string) ([]Document, error) {
	var docs []Document
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if path != dir && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !documentExts[strings.ToLower(filepath.Ext(name))] {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if !utf8.Valid(data) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		docs = append(docs, Document{Path: filepath.ToSlash(rel), Text: string(data)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

// Fingerprint hashes document paths and contents. Any added, removed or
// edited document changes it.
func Fingerprint(docs []Document) string {
	h := blake3.New()
	for _, d := range docs {
		sum := blake3.Sum256([]byte(d.Text))
		fmt.Fprintf(h, "%s\x00%x\n", d.Path, sum)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func chunkID(source, text string) string {
	sum := blake3.Sum256([]byte(source + "\x00" + text))
	return hex.EncodeToString(sum[:16])
}

// SplitText breaks text into chunks of at most size runes. Paragraphs are
// kept together when they fit; longer paragraphs are cut into windows that
// share overlap runes with the previous window.
func SplitText(text string, size, overlap int) []string {
	if size <= 0 {
		size = 1024
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
		curLen = 0
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		n := utf8.RuneCountInString(para)
		if n > size {
			flush()
			runes := []rune(para)
			step := size - overlap
			for start := 0; start < len(runes); start += step {
				end := min(start+size, len(runes))
				chunks = append(chunks, strings.TrimSpace(string(runes[start:end])))
				if end == len(runes) {
					break
				}
			}
			continue
		}
		if curLen > 0 && curLen+2+n > size {
			flush()
		}
		if curLen > 0 {
			cur.WriteString("\n\n")
			curLen += 2
		}
		cur.WriteString(para)
		curLen += n
	}
	flush()
	return chunks
}
