package archive

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"cao/internal/config"
	"cao/pkg/assetutil"
)

// TempPrefix marks working copies left next to assets while they are being
// transformed. They are never archived.
const TempPrefix = ".cao-"

var textureExts = map[string]bool{
	".dds": true,
	".png": true,
}

// Extensions that may go into the non-texture archive.
var otherExts = map[string]bool{
	".nif": true, ".seq": true, ".pex": true, ".psc": true, ".lod": true,
	".fuz": true, ".waw": true, ".xwm": true, ".swf": true, ".hkx": true,
	".wav": true, ".tri": true, ".btr": true, ".bto": true, ".btt": true,
	".lip": true,
}

var incompressibleDirs = map[string]bool{
	"sound":   true,
	"music":   true,
	"strings": true,
}

var incompressibleExts = map[string]bool{
	".wav": true,
	".xwm": true,
	".fuz": true,
}

// Bucket is the content of one archive to be created.
type Bucket struct {
	// Name is the folder the files are gathered in before packing.
	Name     string
	Textures bool
	// Files are slash separated paths relative to the mod root.
	Files []string
	Size  int64
	// Incompressible buckets are packed without compression.
	Incompressible bool
}

// ArchiveName is the file name of the packed archive.
func (b Bucket) ArchiveName() string {
	return strings.TrimSuffix(b.Name, ".extracted")
}

// Splitter partitions the loose assets of a mod into archive buckets.
type Splitter struct {
	settings config.ArchiveSettings
}

func NewSplitter(settings config.ArchiveSettings) *Splitter {
	return &Splitter{settings: settings}
}

type asset struct {
	rel  string
	size int64
}

// Split returns the texture buckets followed by the other buckets. Each
// stream gets the fewest buckets that keep its total under the budget, and
// files are dealt round-robin. A destination path longer than the limit
// aborts the split.
func (s *Splitter) Split(modRoot, plugin string) ([]Bucket, error) {
	textures, others, err := s.collect(modRoot)
	if err != nil {
		return nil, err
	}

	var buckets []Bucket
	for _, stream := range []struct {
		assets   []asset
		budget   int64
		textures bool
	}{
		{textures, s.settings.TextureBudget, true},
		{others, s.settings.OtherBudget, false},
	} {
		if len(stream.assets) == 0 {
			continue
		}
		out := deal(stream.assets, bucketCount(stream.assets, stream.budget))
		for i := range out {
			out[i].Textures = stream.textures
			out[i].Name = s.bucketName(plugin, i, stream.textures)
			out[i].Incompressible = incompressible(out[i].Files)
			if err := s.checkPaths(modRoot, out[i]); err != nil {
				return nil, err
			}
		}
		buckets = append(buckets, out...)
	}
	return buckets, nil
}

func (s *Splitter) collect(modRoot string) (textures, others []asset, err error) {
	suffix := s.settings.ExtractedSuffix()
	err = filepath.WalkDir(modRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == modRoot {
			return nil
		}
		if d.IsDir() {
			if strings.HasSuffix(d.Name(), suffix) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), TempPrefix) {
			return nil
		}

		rel, err := filepath.Rel(modRoot, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		// Files at the mod root are plugins and documents, not assets.
		if !strings.Contains(rel, "/") {
			return nil
		}

		ext := assetutil.Ext(path)
		if !textureExts[ext] && !otherExts[ext] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		a := asset{rel: rel, size: info.Size()}
		if textureExts[ext] {
			textures = append(textures, a)
		} else {
			others = append(others, a)
		}
		return nil
	})
	return textures, others, err
}

func bucketCount(assets []asset, budget int64) int {
	var total int64
	for _, a := range assets {
		total += a.size
	}
	if budget <= 0 || total <= budget {
		return 1
	}
	n := total / budget
	if total%budget != 0 {
		n++
	}
	return int(n)
}

// deal assigns files round-robin, which balances counts and not sizes.
func deal(assets []asset, n int) []Bucket {
	buckets := make([]Bucket, n)
	for i, a := range assets {
		b := &buckets[i%n]
		b.Files = append(b.Files, a.rel)
		b.Size += a.size
	}
	for i := range buckets {
		sort.Strings(buckets[i].Files)
	}
	return buckets
}

func (s *Splitter) bucketName(plugin string, index int, textures bool) string {
	name := plugin
	if index > 0 {
		name += strconv.Itoa(index)
	}
	if textures {
		name += " - Textures"
	}
	return name + s.settings.ExtractedSuffix()
}

func (s *Splitter) checkPaths(modRoot string, b Bucket) error {
	if s.settings.MaxPathLength <= 0 {
		return nil
	}
	for _, rel := range b.Files {
		dest := filepath.Join(modRoot, b.Name, filepath.FromSlash(rel))
		if len(dest) > s.settings.MaxPathLength {
			return &ModError{Kind: PathTooLong, Path: dest}
		}
	}
	return nil
}

func incompressible(files []string) bool {
	for _, rel := range files {
		parts := strings.Split(strings.ToLower(rel), "/")
		for _, dir := range parts[:len(parts)-1] {
			if incompressibleDirs[dir] {
				return true
			}
		}
		if incompressibleExts[assetutil.Ext(rel)] {
			return true
		}
	}
	return false
}

// PluginName is the base name archives of the mod are named after: the
// first plugin at the mod root, or the mod folder name.
func PluginName(modRoot string) string {
	entries, err := os.ReadDir(modRoot)
	if err == nil {
		for _, e := range entries {
			if !e.IsDir() && assetutil.KindOf(e.Name()) == assetutil.KindPlugin {
				return strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
			}
		}
	}
	return filepath.Base(modRoot)
}
