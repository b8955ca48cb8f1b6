package index

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// On-disk layout: a zstd stream wrapping one CBOR-encoded indexFile.
// Deterministic encoding keeps the file byte-identical for identical input.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("index: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("index: CBOR decoder initialization failed: " + err.Error())
	}
}

// formatVersion is bumped whenever indexFile changes incompatibly.
const formatVersion = 1

func writeIndex(w io.Writer, f *indexFile) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	if err := encMode.NewEncoder(zw).Encode(f); err != nil {
		zw.Close()
		return fmt.Errorf("encode index: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flush index: %w", err)
	}
	return nil
}

func readIndex(r io.Reader) (*indexFile, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer zr.Close()

	var f indexFile
	if err := decMode.NewDecoder(zr).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	if f.Version != formatVersion {
		return nil, fmt.Errorf("index format version %d, want %d", f.Version, formatVersion)
	}
	return &f, nil
}
