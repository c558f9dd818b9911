package main

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"

	"github.com/sitedag/sitedag"
)

func (c maincmd) stage(ctx context.Context, name string, template bool, _ []string) error {
	if name == "" {
		return errors.New("missing -name")
	}
	err := c.repo.Open(ctx)
	if err != nil {
		return err
	}

	commit, err := c.repo.Stage(ctx, name, template)
	if err != nil {
		return errors.Wrap(err, "staging commit")
	}

	for _, rec := range commit.Records {
		fmt.Printf("%-7s %s\n", rec.Kind, rec.Path)
	}
	fmt.Printf("root %s (%d blocks sent)\n", commit.Root, commit.Sent)
	fmt.Printf("prepared %s via %s:\n", commit.Prepared.Method, commit.Prepared.Resolver)
	fmt.Printf("  node        %s\n", hex.EncodeToString(commit.Prepared.Node[:]))
	fmt.Printf("  contenthash %s\n", hex.EncodeToString(commit.Prepared.Contenthash))
	return nil
}

func (c maincmd) finalize(ctx context.Context, rootstr string, _ []string) error {
	if rootstr == "" {
		return errors.New("missing -root")
	}
	err := c.repo.Open(ctx)
	if err != nil {
		return err
	}

	root, err := sitedag.RefFromHex(rootstr)
	if err != nil {
		return errors.Wrapf(err, "decoding root %s", rootstr)
	}
	return errors.Wrapf(c.repo.FinalizeCommit(ctx, root), "finalizing commit %s", root.Short())
}
