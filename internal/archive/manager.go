// Package archive extracts the archives of a mod and packs its loose assets
// back into archives that fit the size limits of the game.
package archive

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"cao/internal/config"
	"cao/internal/logging"
	"cao/internal/tools"
	"cao/pkg/assetutil"
)

// BackupExt is appended to extracted archives that are kept.
const BackupExt = ".bak"

// Packer is the part of the toolbox archive operations need.
type Packer interface {
	UnpackArchive(ctx context.Context, archive, dest string) error
	PackArchive(ctx context.Context, opts tools.PackOptions) error
}

type Manager struct {
	packer      Packer
	settings    config.ArchiveSettings
	blankPlugin string
	splitter    *Splitter
	log         logrus.FieldLogger
}

func NewManager(packer Packer, settings config.Settings, log logrus.FieldLogger) *Manager {
	blank := ""
	if settings.Tools.BlankPlugin != "" {
		blank = settings.ToolPath(settings.Tools.BlankPlugin)
	}
	return &Manager{
		packer:      packer,
		settings:    settings.Archive,
		blankPlugin: blank,
		splitter:    NewSplitter(settings.Archive),
		log:         log,
	}
}

// Archives lists the archives at the mod root.
func (m *Manager) Archives(modRoot string) ([]string, error) {
	entries, err := os.ReadDir(modRoot)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), m.settings.Extension) {
			continue
		}
		out = append(out, filepath.Join(modRoot, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// Extract unpacks every archive of the mod and moves its files to the mod
// root, where loose files already present win. The archive is renamed to a
// backup, or deleted when backups are off. The first failure stops the step.
func (m *Manager) Extract(ctx context.Context, modRoot string) error {
	archives, err := m.Archives(modRoot)
	if err != nil {
		return err
	}
	for _, archive := range archives {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.extractOne(ctx, modRoot, archive); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) extractOne(ctx context.Context, modRoot, archive string) error {
	log := m.log.WithField(logging.FieldFile, filepath.Base(archive))
	dest := archive + ".extracted"
	logging.Step(log, "Extracting %s", filepath.Base(archive))

	if err := m.packer.UnpackArchive(ctx, archive, dest); err != nil {
		_ = os.RemoveAll(dest)
		return &ModError{Kind: ExtractFailed, Path: archive, Err: err}
	}

	if m.settings.DeleteBackup {
		if err := os.Remove(archive); err != nil {
			return &ModError{Kind: ExtractFailed, Path: archive, Err: err}
		}
	} else if err := os.Rename(archive, archive+BackupExt); err != nil {
		return &ModError{Kind: ExtractFailed, Path: archive, Err: err}
	}

	if err := MoveFiles(dest, modRoot); err != nil {
		return &ModError{Kind: ExtractFailed, Path: dest, Err: err}
	}
	return nil
}

// Create packs the loose assets of the mod into archives. Folders left by an
// earlier extraction are flattened first. An archive that already exists
// leaves its files loose; an archive above the size limit is deleted and its
// files are moved back. Both are logged and do not fail the step.
func (m *Manager) Create(ctx context.Context, modRoot string) error {
	if err := m.flatten(modRoot); err != nil {
		return err
	}

	plugin := PluginName(modRoot)
	buckets, err := m.splitter.Split(modRoot, plugin)
	if err != nil {
		return err
	}

	var errs []error
	var created []string
	for _, b := range buckets {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := m.pack(ctx, modRoot, b)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			created = append(created, b.ArchiveName())
		}
	}

	if m.settings.DummyPlugins && len(created) > 0 {
		if err := m.dummyPlugins(modRoot, created); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) flatten(modRoot string) error {
	entries, err := os.ReadDir(modRoot)
	if err != nil {
		return err
	}
	suffix := m.settings.ExtractedSuffix()
	for _, e := range entries {
		if e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			if err := MoveFiles(filepath.Join(modRoot, e.Name()), modRoot); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Manager) pack(ctx context.Context, modRoot string, b Bucket) (bool, error) {
	archive := filepath.Join(modRoot, b.ArchiveName())
	log := m.log.WithField(logging.FieldFile, b.ArchiveName())

	if _, err := os.Stat(archive); err == nil {
		log.WithError(&ModError{Kind: ArchiveExists, Path: archive}).
			Error("An archive with this name already exists, the files are left loose")
		return false, nil
	}

	dir := filepath.Join(modRoot, b.Name)
	if err := gather(modRoot, dir, b.Files); err != nil {
		_ = MoveFiles(dir, modRoot)
		return false, &ModError{Kind: PackFailed, Path: dir, Err: err}
	}

	logging.Step(log, "Creating %s (%d files, %s)", b.ArchiveName(), len(b.Files), humanize.Bytes(uint64(b.Size)))
	err := m.packer.PackArchive(ctx, tools.PackOptions{
		InputDir:  dir,
		Output:    archive,
		Compress:  m.settings.Compress && !b.Incompressible,
		ShareData: true,
	})
	if err != nil {
		_ = os.Remove(archive)
		if moveErr := MoveFiles(dir, modRoot); moveErr != nil {
			err = errors.Join(err, moveErr)
		}
		return false, &ModError{Kind: PackFailed, Path: archive, Err: err}
	}

	info, err := os.Stat(archive)
	if err != nil {
		_ = MoveFiles(dir, modRoot)
		return false, &ModError{Kind: PackFailed, Path: archive, Err: err}
	}
	if m.settings.MaxSize > 0 && info.Size() > m.settings.MaxSize {
		log.WithError(&ModError{Kind: TooLarge, Path: archive}).WithField("size", info.Size()).
			Errorf("The archive is %s, above the %s limit. It was deleted and its files were moved back",
				humanize.Bytes(uint64(info.Size())), humanize.Bytes(uint64(m.settings.MaxSize)))
		if err := os.Remove(archive); err != nil {
			return false, &ModError{Kind: TooLarge, Path: archive, Err: err}
		}
		if err := MoveFiles(dir, modRoot); err != nil {
			return false, &ModError{Kind: TooLarge, Path: dir, Err: err}
		}
		return false, nil
	}

	return true, os.RemoveAll(dir)
}

// dummyPlugins copies the blank plugin for every archive name that has no
// plugin loading it.
func (m *Manager) dummyPlugins(modRoot string, archives []string) error {
	if m.blankPlugin == "" {
		return nil
	}
	plugins := map[string]bool{}
	entries, err := os.ReadDir(modRoot)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() && assetutil.KindOf(e.Name()) == assetutil.KindPlugin {
			plugins[strings.ToLower(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))] = true
		}
	}

	for _, archive := range archives {
		base := strings.TrimSuffix(archive, filepath.Ext(archive))
		base = strings.TrimSuffix(base, " - Textures")
		if plugins[strings.ToLower(base)] {
			continue
		}
		if err := copyFile(m.blankPlugin, filepath.Join(modRoot, base+".esp")); err != nil {
			return err
		}
		plugins[strings.ToLower(base)] = true
		logging.Note(m.log, "Created dummy plugin %s.esp", base)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if _, err := os.Stat(dst); err == nil {
		return &fs.PathError{Op: "copy", Path: dst, Err: fs.ErrExist}
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
