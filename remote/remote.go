// Package remote defines the transport to a remote service that accepts
// archives of site versions and serves missing blocks.
//
// The transport itself (network, retries, timeouts) is the collaborator's
// concern; this package only fixes the contracts and provides an
// in-process peer backed by any blob store, which the CLI uses for
// local-to-local publishing and tests use as a fake.
package remote

import (
	"context"

	"github.com/sitedag/sitedag"
)

// VersionMeta is the anchoring side-channel for one site version:
// at minimum the transaction that anchored it.
type VersionMeta struct {
	Tx string `cbor:"1,keyasint"`
}

// Archive is a bundle of site versions:
// ordered roots, the blocks that make them up, and a root-scoped metadata
// side-table consumed only by the history verifier.
type Archive struct {
	Roots  []sitedag.Ref               `cbor:"1,keyasint"`
	Blocks []sitedag.Blob              `cbor:"2,keyasint"`
	Meta   map[sitedag.Ref]VersionMeta `cbor:"3,keyasint,omitempty"`
}

// Resolver is the remote counterpart of a site repo.
type Resolver interface {
	// FetchBlock fetches a single missing block by ref.
	FetchBlock(ctx context.Context, ref sitedag.Ref) (sitedag.Blob, error)

	// UploadArchive transmits an archive and returns the root ref the
	// remote computed from the received blocks. The caller must check it
	// against the locally computed root.
	UploadArchive(ctx context.Context, a *Archive) (sitedag.Ref, error)

	// DownloadArchive fetches the archive of every version reachable from
	// root, along with the metadata side-table for those versions.
	DownloadArchive(ctx context.Context, root sitedag.Ref) (*Archive, error)
}
