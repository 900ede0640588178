package command

import (
	"context"

	"cao/internal/decision"
	"cao/internal/logging"
)

// ArchiveExtract unpacks the archives of a mod.
type ArchiveExtract struct {
	env *Env
}

func (c *ArchiveExtract) Name() string       { return "Extract archives" }
func (c *ArchiveExtract) Priority() Priority { return High }

func (c *ArchiveExtract) IsApplicable(ctx context.Context, f *File) bool {
	folder, ok := f.Resource.(ArchiveFolder)
	if !ok || folder.Op != decision.ArchiveExtract || c.env.Archives == nil {
		return false
	}
	if decision.Archive(decision.ArchiveExtract, c.env.Archive, false) != decision.Transform {
		return false
	}
	archives, err := c.env.Archives.Archives(folder.Root)
	return err == nil && len(archives) > 0
}

func (c *ArchiveExtract) Process(ctx context.Context, f *File) Result {
	folder := f.Resource.(ArchiveFolder)
	logging.Step(c.env.Log, "Extracting archives")
	if err := c.env.Archives.Extract(ctx, folder.Root); err != nil {
		return failed(err)
	}
	return done()
}

// ArchiveCreate packs the loose assets of a mod into archives.
type ArchiveCreate struct {
	env *Env
}

func (c *ArchiveCreate) Name() string       { return "Create archives" }
func (c *ArchiveCreate) Priority() Priority { return High }

func (c *ArchiveCreate) IsApplicable(ctx context.Context, f *File) bool {
	folder, ok := f.Resource.(ArchiveFolder)
	if !ok || folder.Op != decision.ArchiveCreate || c.env.Archives == nil {
		return false
	}
	return decision.Archive(decision.ArchiveCreate, c.env.Archive, false) == decision.Transform
}

func (c *ArchiveCreate) Process(ctx context.Context, f *File) Result {
	folder := f.Resource.(ArchiveFolder)
	logging.Step(c.env.Log, "Creating archives")
	if err := c.env.Archives.Create(ctx, folder.Root); err != nil {
		return failed(err)
	}
	return done()
}
