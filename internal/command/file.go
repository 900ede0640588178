package command

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"cao/internal/archive"
	"cao/internal/decision"
	"cao/internal/patterns"
	"cao/pkg/assetutil"
)

// File is one unit of work for the pipeline. Commands never touch Path
// directly: they work on a copy that is swapped in only when every command
// succeeded.
type File struct {
	Path     string
	RelPath  string
	Resource Resource
	Settings patterns.FileSettings

	work     string
	modified bool
	temps    []string
}

func NewFile(path, relPath string, res Resource, settings patterns.FileSettings) *File {
	return &File{Path: path, RelPath: relPath, Resource: res, Settings: settings}
}

// NewFolder returns the synthetic file an archive step runs on.
func NewFolder(root string, op decision.ArchiveOp) *File {
	return &File{Path: root, RelPath: filepath.Base(root), Resource: ArchiveFolder{Root: root, Op: op}}
}

// WorkPath is the path commands read and write.
func (f *File) WorkPath() string {
	if f.work != "" {
		return f.work
	}
	return f.Path
}

func (f *File) MarkModified() {
	f.modified = true
}

func (f *File) Modified() bool {
	return f.modified
}

// Replace makes path the working copy, for tools that write their result
// to a new file.
func (f *File) Replace(path string) {
	if path != f.work {
		f.temps = append(f.temps, path)
		f.work = path
	}
	f.modified = true
}

// Scratch creates an empty file next to the working copy, with the same
// extension, and returns its path. It is cleaned up with the working copy.
func (f *File) Scratch() (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(f.Path), archive.TempPrefix+"*-"+filepath.Base(f.WorkPath()))
	if err != nil {
		return "", err
	}
	f.temps = append(f.temps, tmp.Name())
	if info, err := os.Stat(f.Path); err == nil {
		if err := tmp.Chmod(info.Mode()); err != nil {
			_ = tmp.Close()
			return "", err
		}
	}
	return tmp.Name(), tmp.Close()
}

func (f *File) isFolder() bool {
	_, ok := f.Resource.(ArchiveFolder)
	return ok
}

// load copies the file to a working copy in the same directory so the
// final rename stays on one volume.
func (f *File) load() error {
	if f.isFolder() {
		return nil
	}

	src, err := os.Open(f.Path)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.Path), archive.TempPrefix+"*-"+filepath.Base(f.Path))
	if err != nil {
		return err
	}
	f.temps = append(f.temps, tmp.Name())
	f.work = tmp.Name()

	if err := tmp.Chmod(info.Mode()); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		return err
	}
	return tmp.Close()
}

// save moves the working copy over the original. When a command changed
// the extension the file is saved under the new name and the original is
// removed. It returns the saved path.
func (f *File) save() (string, error) {
	if f.isFolder() {
		return f.Path, nil
	}

	target := f.Path
	if ext := filepath.Ext(f.work); !strings.EqualFold(ext, filepath.Ext(f.Path)) {
		target = assetutil.SwapExt(f.Path, ext)
	}

	if err := replaceFile(f.work, target); err != nil {
		return "", err
	}
	for i, tmp := range f.temps {
		if tmp == f.work {
			f.temps = append(f.temps[:i], f.temps[i+1:]...)
			break
		}
	}
	f.work = ""

	if target != f.Path {
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			return target, err
		}
	}
	return target, nil
}

// discard removes every working copy left behind.
func (f *File) discard() {
	for _, tmp := range f.temps {
		_ = os.Remove(tmp)
	}
	f.temps = nil
	f.work = ""
}

func replaceFile(tmpPath, destPath string) error {
	if err := os.Rename(tmpPath, destPath); err == nil {
		return nil
	}
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Rename(tmpPath, destPath)
}
