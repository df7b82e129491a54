// file: pkg/consensus/commit.go
package consensus

// applyCommitLocked performs every side effect of finalizing block, in a
// fixed order: durable append, world state application and save, the
// committed height and ring advance, queue pruning, the commit-changed
// broadcast, then the onCommit hook. The
// caller must hold f.mu; this never releases or re-acquires it, since the
// collaborators it calls (store, world, queue) are all safe to invoke while
// holding the follower lock per the follower-state -> world-state ordering.
func (f *Follower) applyCommitLocked(block Block) error {
	height := block.Body.Height

	if err := f.store.Append(block); err != nil {
		return err
	}

	if err := f.world.Apply(block); err != nil {
		return err
	}
	if err := f.world.Save(); err != nil {
		return err
	}

	f.committed = height
	f.lastHash = block.Hash()
	f.window.AdvanceAfterCommit(height)

	f.queue.Remove(block.Body.Transactions)

	old := f.commitCh
	f.commitCh = make(chan struct{})
	close(old)

	if f.onCommit != nil {
		f.onCommit(block)
	}

	return nil
}
