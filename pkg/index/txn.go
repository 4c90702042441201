package index

// Txn batches multiple key inserts/deletes against one Index into a
// single atomic commit. It does not span several Index files.
type Txn struct {
	ix   *Index
	meta []byte
}

// Begin starts a new transaction against ix.
func (ix *Index) Begin() *Txn {
	return &Txn{ix: ix, meta: ix.saveMeta()}
}

// Get looks up key within the transaction's in-progress state.
func (tx *Txn) Get(key []byte) (Entry, bool) {
	v, ok := tx.ix.tree.Get(key)
	if !ok {
		return Entry{}, false
	}
	return decodeEntry(v), true
}

// Set stages an insert/update of key within the transaction.
func (tx *Txn) Set(key []byte, e Entry) {
	tx.ix.tree.Insert(key, encodeEntry(e))
}

// Del stages a delete of key within the transaction.
func (tx *Txn) Del(key []byte) bool {
	return tx.ix.tree.Delete(key)
}

// Commit durably applies every staged change.
func (tx *Txn) Commit() error {
	return tx.ix.updateOrRevert(tx.meta)
}

// Abort discards every staged change.
func (tx *Txn) Abort() {
	tx.ix.loadMeta(tx.meta)
	tx.ix.temp = tx.ix.temp[:0]
	tx.ix.updates = make(map[uint64][]byte)
}
