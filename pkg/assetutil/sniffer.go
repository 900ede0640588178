package assetutil

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Kind identifies the resource kind of a mod file.
type Kind int

const (
	KindOther Kind = iota
	KindMesh
	KindTexture
	KindAnimation
	KindArchive
	KindPlugin
)

func (k Kind) String() string {
	switch k {
	case KindMesh:
		return "mesh"
	case KindTexture:
		return "texture"
	case KindAnimation:
		return "animation"
	case KindArchive:
		return "archive"
	case KindPlugin:
		return "plugin"
	default:
		return "other"
	}
}

// Format is the container format found in a file header.
type Format int

const (
	FormatUnknown Format = iota
	FormatNIF
	FormatDDS
	FormatPNG
	FormatTGA
	FormatBSA
	FormatHKX
)

func (f Format) String() string {
	switch f {
	case FormatNIF:
		return "nif"
	case FormatDDS:
		return "dds"
	case FormatPNG:
		return "png"
	case FormatTGA:
		return "tga"
	case FormatBSA:
		return "bsa"
	case FormatHKX:
		return "hkx"
	default:
		return "unknown"
	}
}

var (
	pngSig = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}
	ddsSig = []byte("DDS ")
	bsaSig = []byte("BSA\x00")
	hkxSig = []byte{0x57, 0xe0, 0xe0, 0x57, 0x10, 0xc0, 0xc0, 0x10}
	nifSig = []byte("Gamebryo File Format")
	oldSig = []byte("NetImmerse File Format")
)

var kindsByExt = map[string]Kind{
	".nif": KindMesh,
	".bto": KindMesh,
	".btr": KindMesh,
	".dds": KindTexture,
	".tga": KindTexture,
	".png": KindTexture,
	".hkx": KindAnimation,
	".bsa": KindArchive,
	".esp": KindPlugin,
	".esm": KindPlugin,
	".esl": KindPlugin,
}

// Ext returns the lowercased extension of path.
func Ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// KindOf classifies path by its extension.
func KindOf(path string) Kind {
	if kind, ok := kindsByExt[Ext(path)]; ok {
		return kind
	}
	return KindOther
}

// SwapExt replaces the extension of path with ext.
func SwapExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

// DetectHeader inspects the first bytes of a file for known signatures.
// TGA has no magic and is never reported.
func DetectHeader(header []byte) (Format, error) {
	if len(header) < 8 {
		return FormatUnknown, errors.New("header too short")
	}

	switch {
	case hasPrefix(header, pngSig):
		return FormatPNG, nil
	case hasPrefix(header, ddsSig):
		return FormatDDS, nil
	case hasPrefix(header, bsaSig):
		return FormatBSA, nil
	case hasPrefix(header, hkxSig):
		return FormatHKX, nil
	case hasPrefix(header, nifSig), hasPrefix(header, oldSig):
		return FormatNIF, nil
	}

	return FormatUnknown, nil
}

// SniffFile reads the header of a file to determine its format.
func SniffFile(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, err
	}
	defer f.Close()

	return SniffReader(f)
}

// SniffReader reads up to 32 bytes from r and determines its format.
func SniffReader(r io.Reader) (Format, error) {
	header := make([]byte, 32)
	n, err := io.ReadFull(r, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return FormatUnknown, err
	}

	return DetectHeader(header[:n])
}

func hasPrefix(buf, prefix []byte) bool {
	if len(buf) < len(prefix) {
		return false
	}
	for i := range prefix {
		if buf[i] != prefix[i] {
			return false
		}
	}
	return true
}

// HKXPointerSize returns the pointer size of a Havok packfile layout, 4 for
// the legacy 32-bit layout and 8 for amd64, or 0 when header is no packfile.
func HKXPointerSize(header []byte) int {
	if len(header) < 17 || !hasPrefix(header, hkxSig) {
		return 0
	}
	return int(header[16])
}

// HKXHeader builds a packfile header with the given pointer size.
func HKXHeader(pointerSize byte) []byte {
	header := make([]byte, 32)
	copy(header, hkxSig)
	header[12] = 8
	header[16] = pointerSize
	header[17] = 1
	return header
}
