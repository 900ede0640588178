package classify

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"cao/pkg/assetutil"
)

// Scanner is the part of the toolbox the classifier needs.
type Scanner interface {
	ScanMeshes(ctx context.Context, dir string, line func(string)) error
	ListHeadparts(ctx context.Context, dir string) ([]string, error)
}

type Classifier struct {
	scanner Scanner
	custom  []string
	timeout time.Duration
	log     logrus.FieldLogger
}

// New returns a classifier. custom holds relative headpart paths that are
// merged into every mod.
func New(scanner Scanner, custom []string, timeout time.Duration, log logrus.FieldLogger) *Classifier {
	return &Classifier{scanner: scanner, custom: custom, timeout: timeout, log: log}
}

// Classify builds the reconciled lists for one mod. Scanner timeouts and
// failures are logged and the partial result is kept; only cancellation of
// ctx is returned as an error.
func (c *Classifier) Classify(ctx context.Context, modRoot string) (*Lists, error) {
	lists := NewLists(modRoot)
	parser := &reportParser{root: modRoot, lists: lists}

	scanCtx, cancel := context.WithTimeout(ctx, c.timeout)
	err := c.scanner.ScanMeshes(scanCtx, modRoot, parser.line)
	cancel()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch {
	case errors.Is(scanCtx.Err(), context.DeadlineExceeded):
		c.log.WithField("timeout", c.timeout).Warn("mesh scan timed out, continuing with partial results")
	case err != nil:
		c.log.WithError(err).Warn("mesh scan failed, continuing with partial results")
	}

	listCtx, cancel := context.WithTimeout(ctx, c.timeout)
	headparts, err := c.scanner.ListHeadparts(listCtx, modRoot)
	cancel()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err != nil {
		c.log.WithError(err).Warn("listing headparts failed")
	}
	for _, hp := range headparts {
		lists.Headparts.Add(joinRelative(modRoot, hp))
	}
	for _, hp := range c.custom {
		lists.Headparts.Add(joinRelative(modRoot, hp))
	}

	lists.Reconcile()
	c.log.WithFields(logrus.Fields{
		"headparts": lists.Headparts.Len(),
		"risky":     lists.Risky.Len(),
		"other":     lists.Other.Len(),
	}).Debug("meshes classified")
	return lists, nil
}

type reportParser struct {
	root    string
	lists   *Lists
	current string
}

func (p *reportParser) line(raw string) {
	normalized := strings.ReplaceAll(raw, "/", `\`)
	lower := strings.ToLower(normalized)

	if idx := strings.Index(lower, `meshes\`); idx >= 0 {
		rel := strings.TrimSpace(normalized[idx:])
		path := joinRelative(p.root, rel)
		p.current = path
		if strings.Contains(lower, "facegendata") {
			p.lists.Headparts.Add(path)
		} else {
			p.lists.Other.Add(path)
		}
		return
	}

	if p.current == "" {
		return
	}
	if strings.Contains(lower, "unsupported") || strings.Contains(lower, "not supported") {
		p.lists.Risky.Add(p.current)
		p.lists.Other.Remove(p.current)
	}
}

// joinRelative joins a tool-reported relative path, in either separator
// style, to the mod root.
func joinRelative(root, rel string) string {
	rel = strings.TrimSpace(rel)
	if rel == "" {
		return ""
	}
	rel = filepath.FromSlash(strings.ReplaceAll(rel, `\`, "/"))
	if filepath.IsAbs(rel) {
		return filepath.Clean(rel)
	}
	return filepath.Join(root, rel)
}

// LoadCustomHeadparts reads one relative mesh path per line; blank lines and
// lines starting with '#' are skipped.
func LoadCustomHeadparts(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}

// Particle block types are never touched by the mesh optimizer.
var particleBlocks = []string{
	"NiParticles",
	"NiParticlesData",
	"NiParticleSystem",
	"NiPSysData",
	"BSStripParticleSystem",
	"NiMeshParticleSystem",
	"BSMasterParticleSystem",
}

// Block types the target engine cannot load.
var unsupportedBlocks = []string{
	"NiTriStrips",
	"NiTriStripsData",
	"bhkMultiSphereShape",
	"NiSkinPartition",
}

// InspectMesh reads the NIF header at path and derives its risk. An
// unreadable file is DoNotProcess. native is true only for Good meshes already
// in the target representation.
func InspectMesh(path string) (risk RiskCategory, native bool) {
	h, err := assetutil.ReadNifFile(path)
	if err != nil {
		return DoNotProcess, false
	}
	return HeaderRisk(h)
}

// HeaderRisk maps a parsed header to a risk category.
func HeaderRisk(h assetutil.NifHeader) (RiskCategory, bool) {
	switch {
	case h.HasBlockType(particleBlocks...):
		return DoNotProcess, false
	case h.IsLegacy():
		return CriticalIssue, false
	case h.HasBlockType(unsupportedBlocks...):
		return CriticalIssue, false
	default:
		return Good, h.IsNative()
	}
}
