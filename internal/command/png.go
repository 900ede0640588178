package command

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	exif "github.com/dsoprea/go-exif/v3"
)

var pngSignature = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}

// pngMetadata is what a PNG carries besides pixels.
type pngMetadata struct {
	TextChunks int
	HasTime    bool
	// ExifTags counts the tags of an eXIf chunk.
	ExifTags int
	HasExif  bool
}

func (m pngMetadata) Empty() bool {
	return m.TextChunks == 0 && !m.HasTime && !m.HasExif
}

// pngChunk reads one chunk header. It returns io.EOF at a clean end.
func pngChunk(br *bufio.Reader) (length uint32, name string, header []byte, err error) {
	header = make([]byte, 8)
	if _, err := io.ReadFull(br, header[:4]); err != nil {
		return 0, "", nil, err
	}
	if _, err := io.ReadFull(br, header[4:]); err != nil {
		return 0, "", nil, err
	}
	return binary.BigEndian.Uint32(header[:4]), string(header[4:]), header, nil
}

func readPNGSignature(br *bufio.Reader) ([]byte, error) {
	sig := make([]byte, len(pngSignature))
	if _, err := io.ReadFull(br, sig); err != nil {
		return nil, err
	}
	if !bytes.Equal(sig, pngSignature) {
		return nil, errors.New("invalid PNG signature")
	}
	return sig, nil
}

func scanPNG(r io.Reader) (pngMetadata, error) {
	var meta pngMetadata
	br := bufio.NewReader(r)
	if _, err := readPNGSignature(br); err != nil {
		return meta, err
	}

	for {
		length, name, _, err := pngChunk(br)
		if err != nil {
			if err == io.EOF {
				return meta, nil
			}
			return meta, err
		}

		switch name {
		case "tEXt", "zTXt", "iTXt":
			meta.TextChunks++
		case "tIME":
			meta.HasTime = true
		case "eXIf":
			data := make([]byte, length)
			if _, err := io.ReadFull(br, data); err != nil {
				return meta, err
			}
			if _, err := io.CopyN(io.Discard, br, 4); err != nil {
				return meta, err
			}
			meta.HasExif = true
			// A broken EXIF block is dropped all the same.
			if tags, err := countExifTags(data); err == nil {
				meta.ExifTags = tags
			}
			continue
		}

		if _, err := io.CopyN(io.Discard, br, int64(length)+4); err != nil {
			return meta, err
		}
		if name == "IEND" {
			return meta, nil
		}
	}
}

// stripPNG copies r to w without text, time and EXIF chunks. Color profiles
// are kept since they change how the texture renders.
func stripPNG(r io.Reader, w io.Writer) error {
	br := bufio.NewReader(r)
	bw := bufio.NewWriter(w)

	sig, err := readPNGSignature(br)
	if err != nil {
		return err
	}
	if _, err := bw.Write(sig); err != nil {
		return err
	}

	for {
		length, name, header, err := pngChunk(br)
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}

		if dropPNGChunk(name) {
			if _, err := io.CopyN(io.Discard, br, int64(length)+4); err != nil {
				return err
			}
			continue
		}

		if _, err := bw.Write(header); err != nil {
			return err
		}
		if _, err := io.CopyN(bw, br, int64(length)+4); err != nil {
			return err
		}
		if name == "IEND" {
			break
		}
	}

	return bw.Flush()
}

func dropPNGChunk(name string) bool {
	switch name {
	case "tEXt", "zTXt", "iTXt", "eXIf", "tIME":
		return true
	default:
		return false
	}
}

func countExifTags(data []byte) (int, error) {
	tags, _, err := exif.GetFlatExifDataUniversalSearchWithReadSeeker(bytes.NewReader(data), nil, true)
	if err != nil {
		if isNoExif(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("exif: %w", err)
	}
	return len(tags), nil
}

func isNoExif(err error) bool {
	return errors.Is(err, exif.ErrNoExif) || strings.Contains(strings.ToLower(err.Error()), "no exif")
}
