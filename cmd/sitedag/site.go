package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

func (c maincmd) init(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("missing site name")
	}

	root, err := c.repo.Init(ctx, args[0])
	if err != nil {
		return errors.Wrapf(err, "initializing site %s", args[0])
	}
	fmt.Printf("%s\n", root)
	return nil
}

func (c maincmd) set(ctx context.Context, args []string) error {
	err := c.repo.Open(ctx)
	if err != nil {
		return err
	}

	if len(args) < 2 {
		return errors.New("usage: set KEY VALUE")
	}
	return errors.Wrapf(c.repo.SetSetting(ctx, args[0], args[1]), "setting %s", args[0])
}

func (c maincmd) changes(ctx context.Context, args []string) error {
	err := c.repo.Open(ctx)
	if err != nil {
		return err
	}

	recs, err := c.repo.Pages().Changes(ctx)
	if err != nil {
		return errors.Wrap(err, "deriving change records")
	}
	for _, rec := range recs {
		fmt.Printf("%-7s %s\n", rec.Kind, rec.Path)
	}
	return nil
}
