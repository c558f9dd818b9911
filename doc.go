// Package sitedag stores a versioned static site as a content-addressed
// merkle directory tree.
//
// A site's canonical form is a tree of blobs - arbitrary byte sequences -
// indexed by their sha2-256 hash. This key is called the blob's reference,
// or _ref_. Identical bytes always produce identical refs, so identical
// subtrees are stored (and transmitted) exactly once.
//
// Editing never mutates a node in place. Every change produces a new node
// and a new ref, all the way up to a new root ref for the whole site.
// The tree subpackage implements the directory nodes and path operations;
// the stage subpackage accumulates local edits against a committed root the
// way a git index does; the diff subpackage finds the subtrees of a new
// root that are provably identical to the previous root, so a commit
// transmits only the remainder; and the repo subpackage binds all of that
// into the commit lifecycle, embedding each version's predecessor under a
// reserved child so that full history is reachable from the latest root.
//
// A root ref is bound to a human-readable name through an external
// name-resolution registry. The anchor subpackage prepares (but never
// submits) those registry updates and decodes the registry's
// "content hash changed" events; the history subpackage reconstructs and
// audits a name's full version graph from the embedded parent pointers,
// cross-checking every version against its anchoring transaction.
package sitedag
