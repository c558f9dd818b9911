package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/sitedag/sitedag"
	"github.com/sitedag/sitedag/anchor"
	"github.com/sitedag/sitedag/history"
)

func (c maincmd) history(ctx context.Context, name, rootstr, receipts string, _ []string) error {
	if name == "" {
		return errors.New("missing -name")
	}
	err := c.repo.Open(ctx)
	if err != nil {
		return err
	}

	root := c.repo.Root()
	if rootstr != "" {
		root, err = sitedag.RefFromHex(rootstr)
		if err != nil {
			return errors.Wrapf(err, "decoding root %s", rootstr)
		}
	}

	client, err := loadReceipts(receipts)
	if err != nil {
		return err
	}

	archive, err := c.repo.Resolver().DownloadArchive(ctx, root)
	if err != nil {
		return errors.Wrapf(err, "downloading archive for %s", root.Short())
	}

	entries, err := history.Get(ctx, client, archive, name)
	if err != nil {
		return errors.Wrapf(err, "verifying history of %s", name)
	}

	for _, e := range entries {
		status := "unconfirmed"
		if e.Confirmed {
			status = fmt.Sprintf("block %d, tx %s", e.BlockNumber, e.Tx)
		}
		fmt.Printf("%s  %s  (%s)\n", e.Ref, e.SiteName, status)
	}
	return nil
}

// receiptJSON is the exported form of a transaction receipt.
// Binary fields are hex-encoded.
type receiptJSON struct {
	Status      uint64 `json:"status"`
	BlockNumber uint64 `json:"blockNumber"`
	Logs        []struct {
		Address string   `json:"address"`
		Topics  []string `json:"topics"`
		Data    string   `json:"data"`
	} `json:"logs"`
}

func loadReceipts(path string) (anchor.StaticClient, error) {
	client := make(anchor.StaticClient)
	if path == "" {
		return client, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening receipts file %s", path)
	}
	defer f.Close()

	var raw map[string]receiptJSON
	err = json.NewDecoder(f).Decode(&raw)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding receipts file %s", path)
	}

	for tx, rj := range raw {
		r := &anchor.Receipt{
			Tx:          tx,
			Status:      rj.Status,
			BlockNumber: rj.BlockNumber,
		}
		for _, lj := range rj.Logs {
			l := anchor.Log{Address: lj.Address}
			for _, topic := range lj.Topics {
				t, err := hex.DecodeString(topic)
				if err != nil {
					return nil, errors.Wrapf(err, "decoding topic in receipt %s", tx)
				}
				l.Topics = append(l.Topics, t)
			}
			l.Data, err = hex.DecodeString(lj.Data)
			if err != nil {
				return nil, errors.Wrapf(err, "decoding event data in receipt %s", tx)
			}
			r.Logs = append(r.Logs, l)
		}
		client[tx] = r
	}
	return client, nil
}
