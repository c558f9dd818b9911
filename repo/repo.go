// Package repo orchestrates a site's commit lifecycle.
//
// A repo owns a persisted site root and one staging tree per logical
// resource (pages, auxiliary files, the settings document). Staging a
// commit snapshots the previous version under the reserved _prev child,
// merges the staged deltas, regenerates the derived artifacts, computes
// the minimal block set a remote counterpart is missing, submits it, and
// prepares - but never submits - the registry update pointing the site
// name at the new root. Only after the caller independently confirms that
// update does FinalizeCommit advance the persisted roots.
package repo

import (
	"context"

	"github.com/pkg/errors"

	"github.com/sitedag/sitedag"
	"github.com/sitedag/sitedag/anchor"
	"github.com/sitedag/sitedag/remote"
	"github.com/sitedag/sitedag/stage"
	"github.com/sitedag/sitedag/tree"
)

// Reserved paths in a site root.
const (
	PagesMount    = "pages"    // page sources
	FilesMount    = "files"    // auxiliary files
	SettingsMount = "settings" // the settings document
	PrevMount     = "_prev"    // embedded previous version(s)

	// rootStateName keys the repo's own persisted root in the state store.
	rootStateName = "site"
)

var mounts = []string{PagesMount, FilesMount, SettingsMount}

// Errors returned by the orchestrator.
var (
	ErrNoRoot         = errors.New("no persisted root")
	ErrNothingToStage = errors.New("nothing to stage")
	ErrRootMismatch   = errors.New("remote root does not match computed root")
)

// Template is an available site template: a tree of template assets plus a
// version string recorded in the settings document of any site rendered
// with it.
type Template struct {
	Root    sitedag.Ref
	Version string
}

// Config assembles a Repo's collaborators.
type Config struct {
	Store    sitedag.Store
	States   stage.StateStore
	Resolver remote.Resolver
	Renderer Renderer // nil means PlainRenderer
	Template *Template

	// RegistryResolver is the resolver address named in prepared updates.
	RegistryResolver string
}

// Repo is the orchestrator for one site.
type Repo struct {
	store            sitedag.Store
	states           stage.StateStore
	resolver         remote.Resolver
	renderer         Renderer
	template         *Template
	registryResolver string

	root     sitedag.Ref
	pages    *stage.Tree
	files    *stage.Tree
	settings *stage.Tree
}

// New produces a Repo with unbound staging trees.
// Call Init for a brand-new site or Open to bind to an existing root.
func New(cfg Config) *Repo {
	r := &Repo{
		store:            cfg.Store,
		states:           cfg.States,
		resolver:         cfg.Resolver,
		renderer:         cfg.Renderer,
		template:         cfg.Template,
		registryResolver: cfg.RegistryResolver,
	}
	if r.renderer == nil {
		r.renderer = PlainRenderer{}
	}
	r.pages = stage.New(PagesMount, cfg.Store, cfg.States, cfg.Resolver)
	r.files = stage.New(FilesMount, cfg.Store, cfg.States, cfg.Resolver)
	r.settings = stage.New(SettingsMount, cfg.Store, cfg.States, cfg.Resolver)
	return r
}

// Pages is the staging tree for page sources.
func (r *Repo) Pages() *stage.Tree { return r.pages }

// Files is the staging tree for auxiliary files.
func (r *Repo) Files() *stage.Tree { return r.files }

// Settings is the staging tree for the settings document.
func (r *Repo) Settings() *stage.Tree { return r.settings }

// Root is the persisted site root.
func (r *Repo) Root() sitedag.Ref { return r.root }

// Resolver is the remote counterpart commits are transmitted to.
func (r *Repo) Resolver() remote.Resolver { return r.resolver }

// HasChanges tells whether any staging tree has pending edits.
func (r *Repo) HasChanges() bool {
	return r.pages.HasChanges() || r.files.HasChanges() || r.settings.HasChanges()
}

// Init creates a brand-new site: empty mounts, a settings document holding
// the site name, and a persisted root recording them. The repo is left
// bound to the new root.
func (r *Repo) Init(ctx context.Context, siteName string) (sitedag.Ref, error) {
	root, err := tree.Empty(ctx, r.store)
	if err != nil {
		return sitedag.Zero, err
	}
	for _, mount := range mounts {
		root, err = tree.Mkdir(ctx, r.store, root, mount)
		if err != nil {
			return sitedag.Zero, errors.Wrapf(err, "creating mount %s", mount)
		}
	}

	doc := map[string]interface{}{"name": siteName}
	b, err := sitedag.Marshal(doc)
	if err != nil {
		return sitedag.Zero, errors.Wrap(err, "encoding settings document")
	}
	root, err = tree.AddFile(ctx, r.store, root, SettingsMount+"/"+SettingsFile, b)
	if err != nil {
		return sitedag.Zero, errors.Wrap(err, "writing settings document")
	}

	err = r.bind(ctx, root)
	if err != nil {
		return sitedag.Zero, err
	}
	return root, r.saveRoot(ctx)
}

// Open binds the repo to its durably recorded persisted root.
func (r *Repo) Open(ctx context.Context) error {
	state, err := r.states.LoadState(ctx, rootStateName)
	if err != nil {
		return errors.Wrap(err, "loading site root")
	}
	return r.bind(ctx, state.Persisted)
}

// OpenAt binds the repo to the given persisted root,
// recording it durably.
func (r *Repo) OpenAt(ctx context.Context, root sitedag.Ref) error {
	err := r.bind(ctx, root)
	if err != nil {
		return err
	}
	return r.saveRoot(ctx)
}

func (r *Repo) bind(ctx context.Context, root sitedag.Ref) error {
	r.root = root
	for _, tr := range []*stage.Tree{r.pages, r.files, r.settings} {
		sub, err := r.mountRef(ctx, root, tr.Name())
		if err != nil {
			return err
		}
		err = tr.SetRoot(ctx, sub)
		if err != nil {
			return errors.Wrapf(err, "binding staging tree %s", tr.Name())
		}
	}
	return nil
}

// mountRef resolves the subtree ref for a mount under root,
// substituting an empty directory when the mount is absent.
func (r *Repo) mountRef(ctx context.Context, root sitedag.Ref, mount string) (sitedag.Ref, error) {
	e, err := tree.Lookup(ctx, r.store, root, mount)
	if err != nil {
		return sitedag.Zero, errors.Wrapf(err, "resolving mount %s", mount)
	}
	if e == nil {
		return tree.Empty(ctx, r.store)
	}
	return e.Ref, nil
}

func (r *Repo) saveRoot(ctx context.Context) error {
	err := r.states.SaveState(ctx, &stage.State{
		Name:      rootStateName,
		Persisted: r.root,
		Change:    r.root,
	})
	return errors.Wrap(err, "saving site root")
}

// FinalizeCommit advances every persisted root to the committed version.
// Callers must have independently confirmed that the prepared registry
// update for newRoot succeeded; the orchestrator never submits it.
func (r *Repo) FinalizeCommit(ctx context.Context, newRoot sitedag.Ref) error {
	for _, tr := range []*stage.Tree{r.pages, r.files, r.settings} {
		sub, err := r.mountRef(ctx, newRoot, tr.Name())
		if err != nil {
			return err
		}
		err = tr.FinalizeCommit(ctx, sub)
		if err != nil {
			return errors.Wrapf(err, "finalizing staging tree %s", tr.Name())
		}
	}
	r.root = newRoot
	return r.saveRoot(ctx)
}

// PrepareUpdate builds the registry call pointing targetName at root.
func (r *Repo) PrepareUpdate(targetName string, root sitedag.Ref) anchor.PreparedUpdate {
	return anchor.PrepareSetContenthash(
		r.registryResolver,
		anchor.NameHash(targetName),
		anchor.EncodeContenthash(root),
	)
}
