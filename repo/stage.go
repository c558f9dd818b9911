package repo

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/sitedag/sitedag"
	"github.com/sitedag/sitedag/anchor"
	"github.com/sitedag/sitedag/remote"
	"github.com/sitedag/sitedag/stage"
	"github.com/sitedag/sitedag/tree"
)

// Derived artifacts, rewritten on every commit.
const (
	ManifestFile   = "manifest.cbor"
	RedirectsFile  = "redirects.txt"
	StylesheetFile = "site.css"
)

// Commit is the result of a successful Stage call.
// Root is the new version's computed root (already accepted by the
// remote); Prepared is the registry update the caller must submit and
// confirm before calling FinalizeCommit.
type Commit struct {
	Root     sitedag.Ref
	Prepared anchor.PreparedUpdate
	Records  []stage.Change
	Sent     int // blocks transmitted
}

// ManifestEntry is one page in the site manifest.
type ManifestEntry struct {
	Path     string `cbor:"1,keyasint"`
	Rendered string `cbor:"2,keyasint"`
	Size     uint64 `cbor:"3,keyasint"`
}

// Stage builds, uploads, and prepares a new site version.
//
// The previous version is embedded whole under _prev/0 of the new root
// (displacing the new root's own _prev first), staged deltas are merged at
// their mounts, derived artifacts are regenerated, pages are (re)rendered
// per their change records, and only the blocks the remote counterpart
// cannot already have are transmitted. The returned commit is not yet
// final: persisted roots move only in FinalizeCommit, and any failure here
// leaves no partial state visible.
func (r *Repo) Stage(ctx context.Context, targetName string, wantTemplateUpdate bool) (*Commit, error) {
	if r.root.IsZero() {
		return nil, ErrNoRoot
	}
	ok, err := sitedag.Has(ctx, r.store, r.root)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(ErrNoRoot, "root %s not present locally", r.root.Short())
	}

	doc, err := r.SettingsDoc(ctx)
	if err != nil {
		return nil, err
	}
	templateUpdate := wantTemplateUpdate && r.templateAvailable(doc)

	if !r.HasChanges() && !templateUpdate {
		return nil, ErrNothingToStage
	}

	records, err := r.pages.Changes(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "deriving page change records")
	}

	// Snapshot: the new version grows from the current root, or from the
	// template's root when updating, with the full previous version
	// embedded under _prev/0. The previous version keeps its own _prev,
	// which is what makes the whole lineage reachable from any root.
	base := r.root
	if templateUpdate {
		base = r.template.Root
	}
	base, err = r.snapshotPrev(ctx, base)
	if err != nil {
		return nil, err
	}

	// Merge each staging tree at its mount and union the unchanged sets.
	unchanged := make(map[sitedag.Ref]bool)
	for _, tr := range []*stage.Tree{r.pages, r.files, r.settings} {
		chRoot, treeUnchanged, err := tr.Stage(ctx)
		if err != nil {
			return nil, err
		}
		base, err = r.mount(ctx, base, tr.Name(), chRoot)
		if err != nil {
			return nil, err
		}
		for ref := range treeUnchanged {
			unchanged[ref] = true
		}
	}

	if templateUpdate {
		err = SetKey(doc, "template", r.template.Version)
		if err != nil {
			return nil, err
		}
		b, err := sitedag.Marshal(doc)
		if err != nil {
			return nil, errors.Wrap(err, "encoding settings document")
		}
		base, err = tree.AddFile(ctx, r.store, base, SettingsMount+"/"+SettingsFile, b)
		if err != nil {
			return nil, errors.Wrap(err, "recording template version")
		}
	}

	base, err = r.writeArtifacts(ctx, base, doc)
	if err != nil {
		return nil, err
	}

	if templateUpdate {
		records, err = r.addUpgradeRecords(ctx, base, records)
		if err != nil {
			return nil, err
		}
	}

	base, err = r.applyRecords(ctx, base, doc, records)
	if err != nil {
		return nil, err
	}

	final := base

	blocks, err := r.collectBlocks(ctx, final, unchanged)
	if err != nil {
		return nil, err
	}

	returned, err := r.resolver.UploadArchive(ctx, &remote.Archive{
		Roots:  []sitedag.Ref{final},
		Blocks: blocks,
	})
	if err != nil {
		return nil, errors.Wrap(err, "uploading commit archive")
	}
	if returned != final {
		return nil, errors.Wrapf(ErrRootMismatch, "remote %s, computed %s", returned, final)
	}

	return &Commit{
		Root:     final,
		Prepared: r.PrepareUpdate(targetName, final),
		Records:  records,
		Sent:     len(blocks),
	}, nil
}

// templateAvailable tells whether a template update can apply:
// a template is configured and the site was last rendered with a
// different version of it.
func (r *Repo) templateAvailable(doc map[string]interface{}) bool {
	if r.template == nil {
		return false
	}
	cur, _ := GetKey(doc, "template")
	curStr, _ := cur.(string)
	return curStr != r.template.Version
}

// snapshotPrev embeds the full current root under _prev/0 of base,
// removing any _prev already in base first.
func (r *Repo) snapshotPrev(ctx context.Context, base sitedag.Ref) (sitedag.Ref, error) {
	existing, err := tree.Lookup(ctx, r.store, base, PrevMount)
	if err != nil {
		return sitedag.Zero, err
	}
	if existing != nil {
		base, err = tree.Remove(ctx, r.store, base, PrevMount)
		if err != nil {
			return sitedag.Zero, errors.Wrap(err, "displacing previous snapshot")
		}
	}
	base, err = tree.Mkdir(ctx, r.store, base, PrevMount)
	if err != nil {
		return sitedag.Zero, errors.Wrap(err, "creating snapshot directory")
	}

	oldDir, err := tree.Load(ctx, r.store, r.root)
	if err != nil {
		return sitedag.Zero, errors.Wrap(err, "loading previous version")
	}
	return tree.SetEntry(ctx, r.store, base, PrevMount+"/0", &tree.Entry{
		Ref:  r.root,
		Size: oldDir.Size(),
		Dir:  true,
	})
}

// mount writes a staged change root at its mount path under base.
func (r *Repo) mount(ctx context.Context, base sitedag.Ref, name string, subRoot sitedag.Ref) (sitedag.Ref, error) {
	d, err := tree.Load(ctx, r.store, subRoot)
	if err != nil {
		return sitedag.Zero, errors.Wrapf(err, "loading staged tree %s", name)
	}
	newBase, err := tree.SetEntry(ctx, r.store, base, name, &tree.Entry{
		Ref:  subRoot,
		Size: d.Size(),
		Dir:  true,
	})
	return newBase, errors.Wrapf(err, "mounting %s", name)
}

// writeArtifacts regenerates the derived artifacts.
// They are pure functions of the merged state and are always rewritten.
func (r *Repo) writeArtifacts(ctx context.Context, base sitedag.Ref, doc map[string]interface{}) (sitedag.Ref, error) {
	pages, err := r.listPages(ctx, base)
	if err != nil {
		return sitedag.Zero, err
	}
	manifest, err := sitedag.Marshal(pages)
	if err != nil {
		return sitedag.Zero, errors.Wrap(err, "encoding manifest")
	}
	base, err = tree.AddFile(ctx, r.store, base, ManifestFile, manifest)
	if err != nil {
		return sitedag.Zero, errors.Wrap(err, "writing manifest")
	}

	base, err = tree.AddFile(ctx, r.store, base, RedirectsFile, redirects(doc))
	if err != nil {
		return sitedag.Zero, errors.Wrap(err, "writing redirects")
	}

	css, err := r.renderer.Stylesheet(doc)
	if err != nil {
		return sitedag.Zero, errors.Wrap(err, "generating stylesheet")
	}
	base, err = tree.AddFile(ctx, r.store, base, StylesheetFile, css)
	return base, errors.Wrap(err, "writing stylesheet")
}

func redirects(doc map[string]interface{}) []byte {
	buf := new(bytes.Buffer)
	raw, _ := GetKey(doc, "redirects")
	if m, ok := raw.(map[string]interface{}); ok {
		froms := make([]string, 0, len(m))
		for from := range m {
			froms = append(froms, from)
		}
		sort.Strings(froms)
		for _, from := range froms {
			fmt.Fprintf(buf, "%s\t%v\n", from, m[from])
		}
	}
	return buf.Bytes()
}

// listPages lists every page source in base's pages mount, with its
// rendered path.
func (r *Repo) listPages(ctx context.Context, base sitedag.Ref) ([]ManifestEntry, error) {
	e, err := tree.Lookup(ctx, r.store, base, PagesMount)
	if err != nil || e == nil {
		return nil, err
	}
	var out []ManifestEntry
	err = listFiles(ctx, r.store, e.Ref, "", func(p string, size uint64) {
		out = append(out, ManifestEntry{Path: p, Rendered: renderedPath(p), Size: size})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, err
}

func listFiles(ctx context.Context, g sitedag.Getter, root sitedag.Ref, prefix string, f func(string, uint64)) error {
	d, err := tree.Load(ctx, g, root)
	if err != nil {
		return err
	}
	for _, e := range d.Entries {
		if e.Dir {
			err = listFiles(ctx, g, e.Ref, prefix+e.Name+"/", f)
			if err != nil {
				return err
			}
			continue
		}
		f(prefix+e.Name, e.Size)
	}
	return nil
}

// addUpgradeRecords records an UPGRADE for every page the template swap
// touches that has no change record of its own, so that no page is left
// referencing the old template.
func (r *Repo) addUpgradeRecords(ctx context.Context, base sitedag.Ref, records []stage.Change) ([]stage.Change, error) {
	recorded := make(map[string]bool, len(records))
	for _, rec := range records {
		recorded[rec.Path] = true
	}
	e, err := tree.Lookup(ctx, r.store, base, PagesMount)
	if err != nil || e == nil {
		return records, err
	}
	err = listFiles(ctx, r.store, e.Ref, "", func(p string, _ uint64) {
		if !recorded[p] {
			records = append(records, stage.Change{Path: p, Kind: stage.StatusUpgrade})
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	return records, nil
}

// applyRecords applies each pending change record to base.
// A page has two canonical files: its source under the pages mount and its
// rendered form at the top level. DELETE removes both (each a no-op when
// already absent, as after a template swap); NEW, EDIT, and UPGRADE
// rewrite both, rendering the second from the first.
func (r *Repo) applyRecords(ctx context.Context, base sitedag.Ref, doc map[string]interface{}, records []stage.Change) (sitedag.Ref, error) {
	for _, rec := range records {
		var (
			srcPath = PagesMount + "/" + rec.Path
			outPath = renderedPath(rec.Path)
			err     error
		)
		if rec.Kind == stage.StatusDelete {
			base, err = removeIfPresent(ctx, r.store, base, srcPath)
			if err != nil {
				return sitedag.Zero, errors.Wrapf(err, "deleting page source %s", rec.Path)
			}
			base, err = removeIfPresent(ctx, r.store, base, outPath)
			if err != nil {
				return sitedag.Zero, errors.Wrapf(err, "deleting rendered page %s", rec.Path)
			}
			continue
		}

		source, err := tree.ReadFile(ctx, r.store, base, srcPath)
		if err != nil {
			return sitedag.Zero, errors.Wrapf(err, "reading page source %s", rec.Path)
		}
		rendered, err := r.renderer.RenderPage(source, doc)
		if err != nil {
			return sitedag.Zero, errors.Wrapf(err, "rendering page %s", rec.Path)
		}
		base, err = ensureDirs(ctx, r.store, base, outPath)
		if err != nil {
			return sitedag.Zero, err
		}
		base, err = tree.AddFile(ctx, r.store, base, outPath, rendered)
		if err != nil {
			return sitedag.Zero, errors.Wrapf(err, "writing rendered page %s", rec.Path)
		}
	}
	return base, nil
}

// renderedPath maps a page source path to its rendered path:
// the source extension replaced with .html.
func renderedPath(p string) string {
	if ext := path.Ext(p); ext != "" {
		p = strings.TrimSuffix(p, ext)
	}
	return p + ".html"
}

func removeIfPresent(ctx context.Context, s sitedag.Store, root sitedag.Ref, p string) (sitedag.Ref, error) {
	e, err := tree.Lookup(ctx, s, root, p)
	if err != nil || e == nil {
		return root, err
	}
	return tree.Remove(ctx, s, root, p)
}

// ensureDirs creates any missing parent directories for p under root.
func ensureDirs(ctx context.Context, s sitedag.Store, root sitedag.Ref, p string) (sitedag.Ref, error) {
	segs, err := tree.SplitPath(p)
	if err != nil {
		return sitedag.Zero, err
	}
	for i := 1; i < len(segs); i++ {
		dir := strings.Join(segs[:i], "/")
		e, err := tree.Lookup(ctx, s, root, dir)
		if err != nil {
			return sitedag.Zero, err
		}
		if e == nil {
			root, err = tree.Mkdir(ctx, s, root, dir)
			if err != nil {
				return sitedag.Zero, errors.Wrapf(err, "creating directory %s", dir)
			}
		}
	}
	return root, nil
}

// collectBlocks walks the new version and gathers exactly the blocks the
// remote counterpart cannot already have: everything reachable from final
// minus the previous root's subtree, minus the unchanged sets, minus
// top-level entries identical to the previous version's.
func (r *Repo) collectBlocks(ctx context.Context, final sitedag.Ref, unchanged map[sitedag.Ref]bool) ([]sitedag.Blob, error) {
	exclude := make(map[sitedag.Ref]bool)

	// The exclusions assume a previous publish put the old version on the
	// remote. A remote that cannot serve the old root block never saw that
	// version, so the whole tree goes.
	if _, err := r.resolver.FetchBlock(ctx, r.root); err == nil {
		exclude[r.root] = true
		for ref := range unchanged {
			exclude[ref] = true
		}

		oldDir, err := tree.Load(ctx, r.store, r.root)
		if err != nil {
			return nil, errors.Wrap(err, "loading previous version")
		}
		newDir, err := tree.Load(ctx, r.store, final)
		if err != nil {
			return nil, errors.Wrap(err, "loading new version")
		}
		for _, e := range newDir.Entries {
			if old := oldDir.Lookup(e.Name); old != nil && old.Ref == e.Ref {
				exclude[e.Ref] = true
			}
		}
	}

	var (
		blocks []sitedag.Blob
		seen   = make(map[sitedag.Ref]bool)
	)
	err := tree.Walk(ctx, r.store, final, func(ref sitedag.Ref) (bool, error) {
		if exclude[ref] || seen[ref] {
			return false, nil
		}
		seen[ref] = true
		b, err := r.store.Get(ctx, ref)
		if err != nil {
			return false, errors.Wrapf(err, "collecting block %s", ref.Short())
		}
		blocks = append(blocks, b)
		return true, nil
	})
	return blocks, err
}
