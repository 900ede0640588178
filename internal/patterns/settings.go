package patterns

import (
	"bytes"
	"encoding/json"
)

// FileSettings is the typed view of the merged JSON for one file.
// The zero value disables every transform.
type FileSettings struct {
	Meshes     MeshSettings      `json:"meshes"`
	Textures   TextureSettings   `json:"textures"`
	Animations AnimationSettings `json:"animations"`
}

type MeshSettings struct {
	OptimizationLevel int  `json:"optimization_level"`
	Headparts         bool `json:"headparts"`
}

type TextureSettings struct {
	OptimizationLevel int      `json:"optimization_level"`
	Format            string   `json:"format"`
	Mipmaps           bool     `json:"mipmaps"`
	Resizing          Resizing `json:"resizing"`
	UnwantedFormats   []string `json:"unwanted_formats"`
	ForceConvert      bool     `json:"force_convert"`
	StripMetadata     bool     `json:"strip_metadata"`
	// Textures matching any of these wildcards are left alone.
	Landscape []string `json:"landscape"`
}

// ResizeMode selects how Width and Height are interpreted.
type ResizeMode string

const (
	ResizeNone  ResizeMode = ""
	ResizeRatio ResizeMode = "ratio"
	ResizeFixed ResizeMode = "fixed"
)

type Resizing struct {
	Mode          ResizeMode `json:"mode"`
	Width         int        `json:"width"`
	Height        int        `json:"height"`
	MinimumWidth  int        `json:"minimum_width"`
	MinimumHeight int        `json:"minimum_height"`
}

type AnimationSettings struct {
	OptimizationLevel int `json:"optimization_level"`
}

// DefaultTextureFormat is used when no pattern names a target format.
const DefaultTextureFormat = "BC7_UNORM"

// Effective is the merged JSON of every pattern matching one path.
type Effective struct {
	raw []byte
}

// JSON returns the merged document. An empty match yields "{}".
func (e Effective) JSON() []byte {
	if len(e.raw) == 0 {
		return []byte("{}")
	}
	return e.raw
}

// IsEmpty reports whether no pattern contributed any key.
func (e Effective) IsEmpty() bool {
	trimmed := bytes.TrimSpace(e.JSON())
	return bytes.Equal(trimmed, []byte("{}"))
}

// Decode converts the merged JSON into FileSettings.
func (e Effective) Decode() (FileSettings, error) {
	var fs FileSettings
	if err := json.Unmarshal(e.JSON(), &fs); err != nil {
		return FileSettings{}, err
	}
	if fs.Textures.Format == "" {
		fs.Textures.Format = DefaultTextureFormat
	}
	return fs, nil
}
