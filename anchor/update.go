package anchor

// PreparedUpdate is a "set content hash" call against a resolver,
// ready for submission by the caller.
// Nothing in this module ever submits one: the orchestrator prepares the
// update and the caller confirms its outcome out of band before finalizing
// a commit.
type PreparedUpdate struct {
	Resolver    string   // resolver address to call
	Method      string   // always SetContenthashMethod
	Node        [32]byte // NameHash of the target name
	Contenthash []byte   // EncodeContenthash of the new root
}

// SetContenthashMethod is the registry method a PreparedUpdate targets.
const SetContenthashMethod = "setContenthash(bytes32,bytes)"

// PrepareSetContenthash builds the registry call that points the name with
// hash node at the given contenthash via the given resolver.
func PrepareSetContenthash(resolver string, node [32]byte, contenthash []byte) PreparedUpdate {
	return PreparedUpdate{
		Resolver:    resolver,
		Method:      SetContenthashMethod,
		Node:        node,
		Contenthash: contenthash,
	}
}
