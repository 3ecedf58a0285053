package save

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Header is the first line of a compressed save file.
type Header struct {
	Version int    `json:"version"`
	Key     string `json:"key"`
	SavedAt string `json:"saved_at"`
	Size    int    `json:"size"`
}

// FileStore keeps one file per key under Dir. With Compress the file is zstd
// holding a JSON header line followed by the blob.
type FileStore struct {
	Dir      string
	Compress bool
}

func (s FileStore) Path(key string) string {
	name := sanitizeKey(key) + ".json"
	if s.Compress {
		name += ".zst"
	}
	return filepath.Join(s.Dir, name)
}

func (s FileStore) Load(key string) ([]byte, error) {
	path := s.Path(key)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if !s.Compress {
		return io.ReadAll(f)
	}
	_, blob, err := ReadCompressed(f)
	return blob, err
}

func (s FileStore) Save(key string, blob []byte) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	path := s.Path(key)
	tmp, err := os.CreateTemp(s.Dir, ".save-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if s.Compress {
		h := Header{Version: 1, Key: key, SavedAt: time.Now().UTC().Format(time.RFC3339Nano), Size: len(blob)}
		err = WriteCompressed(tmp, h, blob)
	} else {
		_, err = tmp.Write(blob)
	}
	if err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (s FileStore) Delete(key string) error {
	err := os.Remove(s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func WriteCompressed(w io.Writer, h Header, blob []byte) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(enc)
	hb, _ := json.Marshal(h)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if _, err := bw.Write(blob); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func ReadCompressed(r io.Reader) (Header, []byte, error) {
	var h Header
	dec, err := zstd.NewReader(r)
	if err != nil {
		return h, nil, err
	}
	defer dec.Close()

	br := bufio.NewReader(dec)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, nil, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, nil, fmt.Errorf("decode header: %w", err)
	}
	blob, err := io.ReadAll(br)
	if err != nil {
		return h, nil, err
	}
	return h, blob, nil
}

func sanitizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "save"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, key)
}
