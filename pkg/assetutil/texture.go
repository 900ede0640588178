package assetutil

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// TextureHeader is what can be learned about a texture without decoding it.
type TextureHeader struct {
	Width      int
	Height     int
	MipLevels  int
	Format     string
	Compressed bool
}

const (
	ddsHeaderSize = 128
	dx10Size      = 20

	ddpfAlphaPixels = 0x1
	ddpfFourCC      = 0x4
	ddpfRGB         = 0x40
	ddpfLuminance   = 0x20000
)

var fourCCFormats = map[string]string{
	"DXT1": "BC1_UNORM",
	"DXT2": "BC2_UNORM",
	"DXT3": "BC2_UNORM",
	"DXT4": "BC3_UNORM",
	"DXT5": "BC3_UNORM",
	"ATI1": "BC4_UNORM",
	"BC4U": "BC4_UNORM",
	"BC4S": "BC4_SNORM",
	"ATI2": "BC5_UNORM",
	"BC5U": "BC5_UNORM",
	"BC5S": "BC5_SNORM",
}

var dxgiFormats = map[uint32]string{
	2:  "R32G32B32A32_FLOAT",
	10: "R16G16B16A16_FLOAT",
	24: "R10G10B10A2_UNORM",
	28: "R8G8B8A8_UNORM",
	29: "R8G8B8A8_UNORM_SRGB",
	49: "R8G8_UNORM",
	61: "R8_UNORM",
	71: "BC1_UNORM",
	72: "BC1_UNORM_SRGB",
	74: "BC2_UNORM",
	75: "BC2_UNORM_SRGB",
	77: "BC3_UNORM",
	78: "BC3_UNORM_SRGB",
	80: "BC4_UNORM",
	81: "BC4_SNORM",
	83: "BC5_UNORM",
	84: "BC5_SNORM",
	87: "B8G8R8A8_UNORM",
	88: "B8G8R8X8_UNORM",
	95: "BC6H_UF16",
	96: "BC6H_SF16",
	98: "BC7_UNORM",
	99: "BC7_UNORM_SRGB",
}

// IsBlockCompressed reports whether a DXGI format name is one of the BCn formats.
func IsBlockCompressed(format string) bool {
	return len(format) > 2 && format[0] == 'B' && format[1] == 'C'
}

// ReadTextureFile reads the header of a DDS or TGA file.
func ReadTextureFile(path string) (TextureHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return TextureHeader{}, err
	}
	defer f.Close()

	switch Ext(path) {
	case ".dds":
		return ReadDDSHeader(f)
	case ".tga":
		return ReadTGAHeader(f)
	default:
		return TextureHeader{}, fmt.Errorf("no header reader for %s", Ext(path))
	}
}

// ReadDDSHeader parses the DDS header and the optional DX10 extension.
func ReadDDSHeader(r io.Reader) (TextureHeader, error) {
	buf := make([]byte, ddsHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return TextureHeader{}, err
	}
	if !hasPrefix(buf, ddsSig) {
		return TextureHeader{}, errors.New("invalid DDS signature")
	}

	le := binary.LittleEndian
	h := TextureHeader{
		Height:    int(le.Uint32(buf[12:])),
		Width:     int(le.Uint32(buf[16:])),
		MipLevels: int(le.Uint32(buf[28:])),
	}
	if h.MipLevels == 0 {
		h.MipLevels = 1
	}

	flags := le.Uint32(buf[80:])
	fourCC := string(buf[84:88])
	switch {
	case flags&ddpfFourCC != 0 && fourCC == "DX10":
		ext := make([]byte, dx10Size)
		if _, err := io.ReadFull(r, ext); err != nil {
			return h, err
		}
		code := le.Uint32(ext)
		name, ok := dxgiFormats[code]
		if !ok {
			name = fmt.Sprintf("DXGI_%d", code)
		}
		h.Format = name
		h.Compressed = IsBlockCompressed(name)
	case flags&ddpfFourCC != 0:
		name, ok := fourCCFormats[fourCC]
		if !ok {
			name = fourCC
		}
		h.Format = name
		h.Compressed = IsBlockCompressed(name)
	case flags&ddpfRGB != 0:
		bits := le.Uint32(buf[88:])
		redMask := le.Uint32(buf[92:])
		switch {
		case bits == 32 && redMask == 0x000000ff:
			h.Format = "R8G8B8A8_UNORM"
		case bits == 32 && flags&ddpfAlphaPixels != 0:
			h.Format = "B8G8R8A8_UNORM"
		case bits == 32:
			h.Format = "B8G8R8X8_UNORM"
		default:
			h.Format = fmt.Sprintf("RGB%d", bits)
		}
	case flags&ddpfLuminance != 0:
		h.Format = "R8_UNORM"
	default:
		h.Format = "UNKNOWN"
	}

	return h, nil
}

// ReadTGAHeader parses the 18 byte TGA header. TGA files are never compressed
// in the block sense.
func ReadTGAHeader(r io.Reader) (TextureHeader, error) {
	buf := make([]byte, 18)
	if _, err := io.ReadFull(r, buf); err != nil {
		return TextureHeader{}, err
	}
	imageType := buf[2]
	switch imageType {
	case 1, 2, 3, 9, 10, 11:
	default:
		return TextureHeader{}, fmt.Errorf("unsupported TGA image type %d", imageType)
	}

	return TextureHeader{
		Width:     int(binary.LittleEndian.Uint16(buf[12:])),
		Height:    int(binary.LittleEndian.Uint16(buf[14:])),
		MipLevels: 1,
		Format:    fmt.Sprintf("TGA%d", buf[16]),
	}, nil
}
