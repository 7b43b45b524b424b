// Package snapshot persists agent parameters and replay contents between runs.
//
// A snapshot file is a 4-byte magic, a big-endian uint16 format version and a
// zstd-compressed gob stream holding a kind tag followed by the payload. The
// kind tag keeps a replay snapshot from being loaded as agent parameters.
package snapshot

import (
	"bufio"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Version is the current on-disk format version.
const Version uint16 = 1

var magic = [4]byte{'W', 'M', 'S', 'N'}

var (
	// ErrBadMagic means the input is not a snapshot.
	ErrBadMagic = errors.New("not a snapshot")
	// ErrVersion means the snapshot was written by an incompatible version.
	ErrVersion = errors.New("unsupported snapshot version")
	// ErrKind means the snapshot holds a different kind of payload.
	ErrKind = errors.New("snapshot kind mismatch")
)

// Encode writes v as a snapshot of the given kind.
func Encode(w io.Writer, kind string, v any) error {
	if _, err := w.Write(magic[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, Version); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create compressor: %w", err)
	}
	enc := gob.NewEncoder(zw)
	if err := enc.Encode(kind); err != nil {
		zw.Close()
		return fmt.Errorf("encode kind: %w", err)
	}
	if err := enc.Encode(v); err != nil {
		zw.Close()
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	return zw.Close()
}

// Decode reads a snapshot of the given kind into v.
func Decode(r io.Reader, kind string, v any) error {
	var got [4]byte
	if _, err := io.ReadFull(r, got[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrBadMagic
		}
		return fmt.Errorf("read header: %w", err)
	}
	if got != magic {
		return ErrBadMagic
	}
	var version uint16
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if version != Version {
		return fmt.Errorf("%w: %d (want %d)", ErrVersion, version, Version)
	}

	zr, err := zstd.NewReader(r)
	if err != nil {
		return fmt.Errorf("create decompressor: %w", err)
	}
	defer zr.Close()

	dec := gob.NewDecoder(zr)
	var gotKind string
	if err := dec.Decode(&gotKind); err != nil {
		return fmt.Errorf("decode kind: %w", err)
	}
	if gotKind != kind {
		return fmt.Errorf("%w: file holds %q, want %q", ErrKind, gotKind, kind)
	}
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", kind, err)
	}
	return nil
}

// WriteFile writes the snapshot atomically: it is encoded to a temporary
// file in the same directory, synced, then renamed over path.
func WriteFile(path, kind string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	if err := Encode(bw, kind, v); err != nil {
		tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// ReadFile reads a snapshot of the given kind from path into v.
func ReadFile(path, kind string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	if err := Decode(bufio.NewReader(f), kind, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
