package assetutil

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Packed NIF versions.
const (
	NifVersion20207 uint32 = 0x14020007

	nifVersion20003 uint32 = 0x14000003
	nifVersion10018 uint32 = 0x0A000108
	nifVersion5001  uint32 = 0x05000001
)

// Bethesda stream versions for the two Skyrim editions.
const (
	StreamLegacy = 83
	StreamNative = 100
	UserSkyrim   = 12
)

const (
	maxHeaderLine = 128
	maxBlockTypes = 4096
	maxBlockName  = 256
)

// ErrNotNif is returned when the header line is not a Gamebryo header.
var ErrNotNif = errors.New("not a NIF file")

// NifHeader is the leading part of a NIF file: versions and the block type table.
type NifHeader struct {
	Version       uint32
	UserVersion   uint32
	StreamVersion uint32
	NumBlocks     uint32
	BlockTypes    []string
}

// IsNative reports whether the mesh is already in the target SSE representation.
func (h NifHeader) IsNative() bool {
	return h.Version == NifVersion20207 && h.UserVersion == UserSkyrim && h.StreamVersion == StreamNative
}

// IsLegacy reports whether the mesh was authored for the original Skyrim.
func (h NifHeader) IsLegacy() bool {
	return h.UserVersion == UserSkyrim && h.StreamVersion == StreamLegacy
}

// HasBlockType reports whether any of names appears in the block type table.
func (h NifHeader) HasBlockType(names ...string) bool {
	for _, block := range h.BlockTypes {
		for _, name := range names {
			if block == name {
				return true
			}
		}
	}
	return false
}

// HasBlockPrefix reports whether a block type starts with prefix.
func (h NifHeader) HasBlockPrefix(prefix string) bool {
	for _, block := range h.BlockTypes {
		if strings.HasPrefix(block, prefix) {
			return true
		}
	}
	return false
}

// VersionString renders the packed file version as a dotted string.
func (h NifHeader) VersionString() string {
	v := h.Version
	return fmt.Sprintf("%d.%d.%d.%d", v>>24, (v>>16)&0xff, (v>>8)&0xff, v&0xff)
}

// ReadNifFile parses the header of the NIF at path.
func ReadNifFile(path string) (NifHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return NifHeader{}, err
	}
	defer f.Close()

	return ReadNifHeader(f)
}

// ReadNifHeader parses a little-endian NIF header up to the block type table.
func ReadNifHeader(r io.Reader) (NifHeader, error) {
	br := bufio.NewReader(r)
	h := NifHeader{}

	line, err := readHeaderLine(br)
	if err != nil {
		return h, err
	}
	if !strings.HasPrefix(line, string(nifSig)) && !strings.HasPrefix(line, string(oldSig)) {
		return h, ErrNotNif
	}

	if h.Version, err = readU32(br); err != nil {
		return h, err
	}
	if h.Version >= nifVersion20003 {
		endian, err := br.ReadByte()
		if err != nil {
			return h, err
		}
		if endian != 1 {
			return h, errors.New("big-endian NIF files are not supported")
		}
	}
	if h.Version >= nifVersion10018 {
		if h.UserVersion, err = readU32(br); err != nil {
			return h, err
		}
	}
	if h.NumBlocks, err = readU32(br); err != nil {
		return h, err
	}

	if h.UserVersion >= 10 {
		if h.StreamVersion, err = readU32(br); err != nil {
			return h, err
		}
		if err := skipExportInfo(br, h.StreamVersion); err != nil {
			return h, err
		}
	}

	if h.Version < nifVersion5001 {
		return h, nil
	}

	var count uint16
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return h, err
	}
	if int(count) > maxBlockTypes {
		return h, fmt.Errorf("block type table too large: %d", count)
	}
	h.BlockTypes = make([]string, 0, count)
	for i := 0; i < int(count); i++ {
		size, err := readU32(br)
		if err != nil {
			return h, err
		}
		if size > maxBlockName {
			return h, fmt.Errorf("block type name too long: %d", size)
		}
		name := make([]byte, size)
		if _, err := io.ReadFull(br, name); err != nil {
			return h, err
		}
		h.BlockTypes = append(h.BlockTypes, string(name))
	}

	return h, nil
}

func skipExportInfo(br *bufio.Reader, stream uint32) error {
	// author
	if err := skipShortString(br); err != nil {
		return err
	}
	if stream > 130 {
		if _, err := readU32(br); err != nil {
			return err
		}
	} else {
		// process script
		if err := skipShortString(br); err != nil {
			return err
		}
	}
	// export script
	if err := skipShortString(br); err != nil {
		return err
	}
	if stream >= 103 {
		return skipShortString(br)
	}
	return nil
}

func skipShortString(br *bufio.Reader) error {
	size, err := br.ReadByte()
	if err != nil {
		return err
	}
	_, err = io.CopyN(io.Discard, br, int64(size))
	return err
}

func readHeaderLine(br *bufio.Reader) (string, error) {
	var sb strings.Builder
	for sb.Len() < maxHeaderLine {
		b, err := br.ReadByte()
		if err != nil {
			return "", err
		}
		if b == '\n' {
			return sb.String(), nil
		}
		sb.WriteByte(b)
	}
	return "", ErrNotNif
}

func readU32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

// NifHeaderBytes encodes h in the layout ReadNifHeader understands. Export
// info strings are written empty.
func NifHeaderBytes(h NifHeader) []byte {
	var buf []byte
	buf = append(buf, fmt.Sprintf("Gamebryo File Format, Version %s\n", h.VersionString())...)
	buf = binary.LittleEndian.AppendUint32(buf, h.Version)
	if h.Version >= nifVersion20003 {
		buf = append(buf, 1)
	}
	if h.Version >= nifVersion10018 {
		buf = binary.LittleEndian.AppendUint32(buf, h.UserVersion)
	}
	buf = binary.LittleEndian.AppendUint32(buf, h.NumBlocks)
	if h.UserVersion >= 10 {
		buf = binary.LittleEndian.AppendUint32(buf, h.StreamVersion)
		buf = append(buf, 0)
		if h.StreamVersion > 130 {
			buf = binary.LittleEndian.AppendUint32(buf, 0)
		} else {
			buf = append(buf, 0)
		}
		buf = append(buf, 0)
		if h.StreamVersion >= 103 {
			buf = append(buf, 0)
		}
	}
	if h.Version < nifVersion5001 {
		return buf
	}
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(h.BlockTypes)))
	for _, name := range h.BlockTypes {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(name)))
		buf = append(buf, name...)
	}
	return buf
}
