// Command sitedag is a CLI for editing and publishing versioned sites.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/bobg/subcmd"
	"github.com/pkg/errors"

	"github.com/sitedag/sitedag"
	"github.com/sitedag/sitedag/remote"
	"github.com/sitedag/sitedag/repo"
	"github.com/sitedag/sitedag/stage"
	"github.com/sitedag/sitedag/store"
	_ "github.com/sitedag/sitedag/store/logging"
	_ "github.com/sitedag/sitedag/store/lru"
	"github.com/sitedag/sitedag/store/mem"
	_ "github.com/sitedag/sitedag/store/sqlite3"
)

type maincmd struct {
	repo *repo.Repo
}

func main() {
	config := flag.String("config", "sitedag.json", "path to config file")
	flag.Parse()

	if *config == "" {
		log.Fatal("Config value not set")
	}

	var conf map[string]interface{}
	f, err := os.Open(*config)
	if err != nil {
		log.Fatalf("Opening config file %s: %s", *config, err)
	}
	defer f.Close()

	err = json.NewDecoder(f).Decode(&conf)
	if err != nil {
		log.Fatalf("Decoding config file %s: %s", *config, err)
	}

	ctx := context.Background()

	s, err := createStore(ctx, conf, "store")
	if err != nil {
		log.Fatalf("Creating store: %s", err)
	}

	states, ok := s.(stage.StateStore)
	if !ok {
		states = stage.NewMemStates()
	}

	resolver, err := makeResolver(ctx, conf)
	if err != nil {
		log.Fatalf("Creating remote resolver: %s", err)
	}

	template, err := parseTemplate(conf)
	if err != nil {
		log.Fatalf("Parsing template config: %s", err)
	}

	registryResolver, _ := conf["resolver"].(string)

	r := repo.New(repo.Config{
		Store:            s,
		States:           states,
		Resolver:         resolver,
		Template:         template,
		RegistryResolver: registryResolver,
	})

	err = subcmd.Run(ctx, maincmd{repo: r}, flag.Args())
	if err != nil {
		log.Fatal(err)
	}
}

func (c maincmd) Subcmds() subcmd.Map {
	return subcmd.Commands(
		"init", c.init, nil,
		"ls", c.ls, nil,
		"cat", c.cat, nil,
		"add", c.add, subcmd.Params(
			"f", subcmd.String, "", "file to read content from (default: stdin)",
		),
		"rm", c.rm, nil,
		"mkdir", c.mkdir, nil,
		"restore", c.restore, subcmd.Params(
			"all", subcmd.Bool, false, "discard every pending change",
		),
		"avatar", c.avatar, subcmd.Params(
			"f", subcmd.String, "", "file to read the avatar from (default: stdin)",
		),
		"set", c.set, nil,
		"changes", c.changes, nil,
		"stage", c.stage, subcmd.Params(
			"name", subcmd.String, "", "registry name to point at the new version",
			"template", subcmd.Bool, false, "also re-render with the newest available template",
		),
		"finalize", c.finalize, subcmd.Params(
			"root", subcmd.String, "", "confirmed version root",
		),
		"history", c.history, subcmd.Params(
			"name", subcmd.String, "", "site name to verify the history of",
			"root", subcmd.String, "", "version root to fetch the lineage of (default: the persisted root)",
			"receipts", subcmd.String, "", "path to a JSON file of transaction receipts",
		),
	)
}

func createStore(ctx context.Context, conf map[string]interface{}, key string) (sitedag.Store, error) {
	sub, ok := conf[key].(map[string]interface{})
	if !ok {
		return nil, errors.Errorf("config missing %q section", key)
	}
	typ, ok := sub["type"].(string)
	if !ok {
		return nil, errors.Errorf("config section %q missing `type` parameter", key)
	}
	s, err := store.Create(ctx, typ, sub)
	return s, errors.Wrapf(err, "creating %s-type store", typ)
}

// makeResolver builds the remote counterpart from the "remote" config
// section, an in-memory one if the section is absent.
func makeResolver(ctx context.Context, conf map[string]interface{}) (remote.Resolver, error) {
	if _, ok := conf["remote"]; !ok {
		return remote.NewStorePeer(mem.New()), nil
	}
	rs, err := createStore(ctx, conf, "remote")
	if err != nil {
		return nil, err
	}
	return remote.NewStorePeer(rs), nil
}

func parseTemplate(conf map[string]interface{}) (*repo.Template, error) {
	sub, ok := conf["template"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	rootstr, ok := sub["root"].(string)
	if !ok {
		return nil, errors.New(`template config missing "root" parameter`)
	}
	version, ok := sub["version"].(string)
	if !ok {
		return nil, errors.New(`template config missing "version" parameter`)
	}
	root, err := sitedag.RefFromHex(rootstr)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding template root %s", rootstr)
	}
	return &repo.Template{Root: root, Version: version}, nil
}

// treeFor maps a site-relative path to the staging tree owning it
// and the path's remainder within that tree.
func (c maincmd) treeFor(p string) (*stage.Tree, string, error) {
	segs := strings.SplitN(strings.Trim(p, "/"), "/", 2)
	var t *stage.Tree
	switch segs[0] {
	case repo.PagesMount:
		t = c.repo.Pages()
	case repo.FilesMount:
		t = c.repo.Files()
	case repo.SettingsMount:
		t = c.repo.Settings()
	default:
		return nil, "", errors.Errorf("path must start with %s/, %s/, or %s/", repo.PagesMount, repo.FilesMount, repo.SettingsMount)
	}
	if len(segs) == 1 {
		return t, "", nil
	}
	return t, segs[1], nil
}
