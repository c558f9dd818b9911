package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/sitedag/sitedag/repo"
	"github.com/sitedag/sitedag/stage"
)

func (c maincmd) ls(ctx context.Context, args []string) error {
	err := c.repo.Open(ctx)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		for _, mount := range []string{repo.PagesMount, repo.FilesMount, repo.SettingsMount} {
			fmt.Printf("%s/\n", mount)
		}
		return nil
	}

	t, rest, err := c.treeFor(args[0])
	if err != nil {
		return err
	}
	items, err := t.List(ctx, rest)
	if err != nil {
		return errors.Wrapf(err, "listing %s", args[0])
	}
	for _, item := range items {
		name := item.Entry.Name
		if item.Entry.Dir {
			name += "/"
		}
		if item.Status == stage.StatusNone {
			fmt.Printf("%s\n", name)
		} else {
			fmt.Printf("%s [%s]\n", name, item.Status)
		}
	}
	return nil
}

func (c maincmd) cat(ctx context.Context, args []string) error {
	err := c.repo.Open(ctx)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		return errors.New("missing path")
	}
	t, rest, err := c.treeFor(args[0])
	if err != nil {
		return err
	}
	b, err := t.Read(ctx, rest)
	if err != nil {
		return errors.Wrapf(err, "reading %s", args[0])
	}
	_, err = os.Stdout.Write(b)
	return errors.Wrap(err, "writing to stdout")
}

func (c maincmd) add(ctx context.Context, from string, args []string) error {
	err := c.repo.Open(ctx)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		return errors.New("missing path")
	}
	t, rest, err := c.treeFor(args[0])
	if err != nil {
		return err
	}

	data, err := readContent(from)
	if err != nil {
		return err
	}
	return errors.Wrapf(t.Add(ctx, rest, data), "adding %s", args[0])
}

func readContent(from string) ([]byte, error) {
	if from == "" {
		data, err := io.ReadAll(os.Stdin)
		return data, errors.Wrap(err, "reading stdin")
	}
	f, err := os.Open(from)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", from)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	return data, errors.Wrapf(err, "reading %s", from)
}

func (c maincmd) rm(ctx context.Context, args []string) error {
	err := c.repo.Open(ctx)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		return errors.New("missing path")
	}
	t, rest, err := c.treeFor(args[0])
	if err != nil {
		return err
	}
	return errors.Wrapf(t.Remove(ctx, rest), "removing %s", args[0])
}

func (c maincmd) mkdir(ctx context.Context, args []string) error {
	err := c.repo.Open(ctx)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		return errors.New("missing path")
	}
	t, rest, err := c.treeFor(args[0])
	if err != nil {
		return err
	}
	return errors.Wrapf(t.Mkdir(ctx, rest), "creating %s", args[0])
}

func (c maincmd) restore(ctx context.Context, all bool, args []string) error {
	err := c.repo.Open(ctx)
	if err != nil {
		return err
	}

	if all {
		for _, t := range []*stage.Tree{c.repo.Pages(), c.repo.Files(), c.repo.Settings()} {
			err = t.ClearChanges(ctx)
			if err != nil {
				return errors.Wrapf(err, "clearing changes in %s", t.Name())
			}
		}
		return nil
	}
	if len(args) == 0 {
		return errors.New("missing path (or -all)")
	}
	t, rest, err := c.treeFor(args[0])
	if err != nil {
		return err
	}
	return errors.Wrapf(t.Restore(ctx, rest), "restoring %s", args[0])
}

func (c maincmd) avatar(ctx context.Context, from string, _ []string) error {
	err := c.repo.Open(ctx)
	if err != nil {
		return err
	}

	data, err := readContent(from)
	if err != nil {
		return err
	}
	return errors.Wrap(c.repo.Files().SetAvatar(ctx, data), "setting avatar")
}
