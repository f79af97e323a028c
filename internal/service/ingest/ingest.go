// Package ingest recovers transcript text from an upload: a plain export or
// a zip archive holding one, in UTF-8 or UTF-16 with or without a BOM.
package ingest

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	// ErrUnsupportedFile is returned for file names other than .txt or .zip.
	ErrUnsupportedFile = errors.New("unsupported file type, only .txt and .zip are accepted")
	// ErrNoTranscript is returned for an archive without a .txt entry.
	ErrNoTranscript = errors.New("no .txt transcript found in archive")
	// ErrTooLarge is returned when the decoded transcript exceeds the limit.
	ErrTooLarge = errors.New("transcript too large")
)

var zipMagic = []byte("PK\x03\x04")

// Decode returns the transcript text held in data. name is the uploaded file
// name and may be empty for a raw body, in which case zip content is
// detected by its signature. maxBytes bounds the decoded size; zero means
// no bound.
func Decode(name string, data []byte, maxBytes int64) (string, error) {
	ext := strings.ToLower(path.Ext(strings.TrimSpace(name)))
	switch {
	case ext == ".zip", ext == "" && bytes.HasPrefix(data, zipMagic):
		raw, err := fromArchive(data, maxBytes)
		if err != nil {
			return "", err
		}
		return decodeText(raw)
	case ext == ".txt", ext == "":
		if maxBytes > 0 && int64(len(data)) > maxBytes {
			return "", ErrTooLarge
		}
		return decodeText(data)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFile, ext)
	}
}

func fromArchive(data []byte, maxBytes int64) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	entry := pickTranscript(zr.File)
	if entry == nil {
		return nil, ErrNoTranscript
	}
	if maxBytes > 0 && entry.UncompressedSize64 > uint64(maxBytes) {
		return nil, ErrTooLarge
	}

	rc, err := entry.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", entry.Name, err)
	}
	defer rc.Close()

	var r io.Reader = rc
	if maxBytes > 0 {
		r = io.LimitReader(rc, maxBytes+1)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", entry.Name, err)
	}
	if maxBytes > 0 && int64(len(out)) > maxBytes {
		return nil, ErrTooLarge
	}
	return out, nil
}

// pickTranscript prefers the export's own _chat.txt, then the first .txt
// entry in archive order. macOS resource forks are skipped.
func pickTranscript(files []*zip.File) *zip.File {
	var first *zip.File
	for _, f := range files {
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX/") {
			continue
		}
		base := path.Base(f.Name)
		if strings.HasPrefix(base, "._") || !strings.EqualFold(path.Ext(base), ".txt") {
			continue
		}
		if strings.EqualFold(base, "_chat.txt") {
			return f
		}
		if first == nil {
			first = f
		}
	}
	return first
}

// decodeText honours a UTF-8 or UTF-16 BOM, guesses BOM-less UTF-16 from NUL
// bytes, and replaces invalid UTF-8 sequences.
func decodeText(data []byte) (string, error) {
	var fallback transform.Transformer = unicode.UTF8.NewDecoder()
	if enc := sniffUTF16(data); enc != nil {
		fallback = enc.NewDecoder()
	}
	out, _, err := transform.Bytes(unicode.BOMOverride(fallback), data)
	if err != nil {
		return "", fmt.Errorf("decode transcript: %w", err)
	}
	return string(out), nil
}

const sniffWindow = 512

// sniffUTF16 spots BOM-less UTF-16 by the NUL high bytes of ASCII text.
func sniffUTF16(data []byte) encoding.Encoding {
	if len(data) > sniffWindow {
		data = data[:sniffWindow]
	}
	if len(data) < 4 {
		return nil
	}
	even, odd := 0, 0
	for i, b := range data {
		if b != 0 {
			continue
		}
		if i%2 == 0 {
			even++
		} else {
			odd++
		}
	}
	half := len(data) / 2
	switch {
	case odd > half/2 && even == 0:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	case even > half/2 && odd == 0:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	}
	return nil
}
