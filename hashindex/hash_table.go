// Package hashindex implements an on-disk extendible hash table over the
// buffer pool, following the header/directory/bucket page hierarchy and
// split/merge algorithm of a classic disk-backed extendible hash index.
package hashindex

import (
	"github.com/kestrel-db/kestrel/buffer"
	"github.com/kestrel-db/kestrel/diskio"
	"github.com/kestrel-db/kestrel/pagecodec"
)

// Table is a generic extendible hash index. Hash function and key
// equality are injected so it can index arbitrary key/value types;
// Encode/Decode pairs give the on-disk representation, which must be a
// fixed size per type (KeySize/ValSize bytes).
type Table[K any, V any] struct {
	pool *buffer.Manager

	hash    func(K) uint32
	equal   func(K, K) bool
	encKey  func(K) []byte
	decKey  func([]byte) K
	encVal  func(V) []byte
	decVal  func([]byte) V
	keySize int
	valSize int

	bucketMaxSize     uint32
	directoryMaxDepth uint32

	headerPageID diskio.PageID

	header    pagecodec.HashHeaderCodec
	directory pagecodec.HashDirectoryCodec
	bucket    pagecodec.HashBucketCodec
}

// Config bundles the type-specific parameters a Table needs.
type Config[K any, V any] struct {
	Hash    func(K) uint32
	Equal   func(K, K) bool
	EncKey  func(K) []byte
	DecKey  func([]byte) K
	EncVal  func(V) []byte
	DecVal  func([]byte) V
	KeySize int
	ValSize int

	HeaderMaxDepth    uint32
	DirectoryMaxDepth uint32
	BucketMaxSize     uint32
}

// New creates a fresh hash table backed by a newly allocated header page.
func New[K any, V any](pool *buffer.Manager, cfg Config[K, V]) (*Table[K, V], bool) {
	pageID, guard, ok := pool.NewPageGuarded()
	if !ok {
		return nil, false
	}
	header := pagecodec.DefaultHashHeaderCodec()
	header.Init(guard.Data(), cfg.HeaderMaxDepth)
	guard.Drop()

	return &Table[K, V]{
		pool:              pool,
		hash:              cfg.Hash,
		equal:             cfg.Equal,
		encKey:            cfg.EncKey,
		decKey:            cfg.DecKey,
		encVal:            cfg.EncVal,
		decVal:            cfg.DecVal,
		keySize:           cfg.KeySize,
		valSize:           cfg.ValSize,
		bucketMaxSize:     cfg.BucketMaxSize,
		directoryMaxDepth: cfg.DirectoryMaxDepth,
		headerPageID:      pageID,
		header:            pagecodec.DefaultHashHeaderCodec(),
		directory:         pagecodec.DefaultHashDirectoryCodec(),
		bucket:            pagecodec.DefaultHashBucketCodec(),
	}, true
}

// Open attaches to an existing hash table rooted at headerPageID, e.g.
// after restarting the engine and reading the root id back out of the
// catalog.
func Open[K any, V any](pool *buffer.Manager, headerPageID diskio.PageID, cfg Config[K, V]) *Table[K, V] {
	return &Table[K, V]{
		pool:              pool,
		hash:              cfg.Hash,
		equal:             cfg.Equal,
		encKey:            cfg.EncKey,
		decKey:            cfg.DecKey,
		encVal:            cfg.EncVal,
		decVal:            cfg.DecVal,
		keySize:           cfg.KeySize,
		valSize:           cfg.ValSize,
		bucketMaxSize:     cfg.BucketMaxSize,
		directoryMaxDepth: cfg.DirectoryMaxDepth,
		headerPageID:      headerPageID,
		header:            pagecodec.DefaultHashHeaderCodec(),
		directory:         pagecodec.DefaultHashDirectoryCodec(),
		bucket:            pagecodec.DefaultHashBucketCodec(),
	}
}

// HeaderPageID returns the root page id, for persisting in a catalog.
func (t *Table[K, V]) HeaderPageID() diskio.PageID { return t.headerPageID }

func (t *Table[K, V]) findEntry(data []byte, key K) (idx uint32, found bool) {
	size := t.bucket.Size(data)
	for i := uint32(0); i < size; i++ {
		kb, _ := t.bucket.EntryAt(data, i, t.keySize, t.valSize)
		if t.equal(t.decKey(kb), key) {
			return i, true
		}
	}
	return 0, false
}

// Lookup returns the value stored for key, if any.
func (t *Table[K, V]) Lookup(key K) (V, bool) {
	var zero V
	hash := t.hash(key)

	headerGuard, ok := t.pool.FetchPageRead(t.headerPageID)
	if !ok {
		return zero, false
	}
	dirIdx := t.header.HashToDirectoryIndex(headerGuard.Data(), hash)
	dirPageID := diskio.PageID(t.header.GetDirectoryPageID(headerGuard.Data(), dirIdx))
	headerGuard.Drop()
	if dirPageID == diskio.InvalidPageID {
		return zero, false
	}

	dirGuard, ok := t.pool.FetchPageRead(dirPageID)
	if !ok {
		return zero, false
	}
	bucketIdx := t.directory.HashToBucketIndex(dirGuard.Data(), hash)
	bucketPageID := diskio.PageID(t.directory.GetBucketPageID(dirGuard.Data(), bucketIdx))
	dirGuard.Drop()
	if bucketPageID == diskio.InvalidPageID {
		return zero, false
	}

	bucketGuard, ok := t.pool.FetchPageRead(bucketPageID)
	if !ok {
		return zero, false
	}
	defer bucketGuard.Drop()

	idx, found := t.findEntry(bucketGuard.Data(), key)
	if !found {
		return zero, false
	}
	_, vb := t.bucket.EntryAt(bucketGuard.Data(), idx, t.keySize, t.valSize)
	return t.decVal(vb), true
}

// Insert adds key/value, splitting buckets and growing the directory as
// needed. Returns false if key already exists or capacity is exhausted.
func (t *Table[K, V]) Insert(key K, value V) bool {
	hash := t.hash(key)

	headerGuard, ok := t.pool.FetchPageWrite(t.headerPageID)
	if !ok {
		return false
	}
	defer headerGuard.Drop()

	dirIdx := t.header.HashToDirectoryIndex(headerGuard.Data(), hash)
	dirPageID := diskio.PageID(t.header.GetDirectoryPageID(headerGuard.Data(), dirIdx))

	if dirPageID == diskio.InvalidPageID {
		newDirPageID, dirGuard, ok := t.pool.NewPageGuarded()
		if !ok {
			return false
		}
		t.directory.Init(dirGuard.Data(), t.directoryMaxDepth)
		dirGuard.Drop()
		t.header.SetDirectoryPageID(headerGuard.Data(), dirIdx, int64(newDirPageID))
		dirPageID = newDirPageID
	}

	dirGuard, ok := t.pool.FetchPageWrite(dirPageID)
	if !ok {
		return false
	}
	defer dirGuard.Drop()

	return t.insertToBucket(dirGuard, hash, key, value)
}

func (t *Table[K, V]) insertToBucket(dirGuard *buffer.WritePageGuard, hash uint32, key K, value V) bool {
	dirData := dirGuard.Data()
	bucketIdx := t.directory.HashToBucketIndex(dirData, hash)
	bucketPageID := diskio.PageID(t.directory.GetBucketPageID(dirData, bucketIdx))

	if bucketPageID == diskio.InvalidPageID {
		newBucketPageID, bucketGuard, ok := t.pool.NewPageGuarded()
		if !ok {
			return false
		}
		t.bucket.Init(bucketGuard.Data(), t.bucketMaxSize)
		bucketGuard.Drop()
		t.directory.SetBucketPageID(dirData, bucketIdx, int64(newBucketPageID))
		t.directory.SetLocalDepth(dirData, bucketIdx, 0)
		bucketPageID = newBucketPageID
	}

	bucketGuard, ok := t.pool.FetchPageWrite(bucketPageID)
	if !ok {
		return false
	}

	if _, found := t.findEntry(bucketGuard.Data(), key); found {
		bucketGuard.Drop()
		return false
	}

	for t.bucket.IsFull(bucketGuard.Data()) {
		localDepth := t.directory.GetLocalDepth(dirData, bucketIdx)
		globalDepth := t.directory.GlobalDepth(dirData)

		if uint32(localDepth) == globalDepth {
			if t.directory.Size(dirData) == t.directory.MaxSize(dirData) {
				bucketGuard.Drop()
				return false
			}
			t.directory.IncrGlobalDepth(dirData)
		}

		localDepth++
		oldMask := t.directory.GetLocalDepthMask(dirData, bucketIdx)
		t.updateLocalDepthMapping(dirData, bucketIdx, localDepth, oldMask)

		newBucketPageID, newBucketGuard, ok := t.pool.NewPageGuarded()
		if !ok {
			bucketGuard.Drop()
			return false
		}
		t.bucket.Init(newBucketGuard.Data(), t.bucketMaxSize)

		newBucketIdx := t.directory.GetSplitImageIndex(dirData, bucketIdx)
		newMask := oldMask | (uint32(1) << (localDepth - 1))
		t.updatePageIDMapping(dirData, newBucketIdx, newBucketPageID, newMask)
		t.updateLocalDepthMapping(dirData, newBucketIdx, localDepth, newMask)

		t.migrateEntries(bucketGuard.Data(), newBucketGuard.Data(), newBucketIdx, newMask)
		newBucketGuard.Drop()
		bucketGuard.Drop()

		bucketIdx = t.directory.HashToBucketIndex(dirData, hash)
		bucketPageID = diskio.PageID(t.directory.GetBucketPageID(dirData, bucketIdx))
		bucketGuard, ok = t.pool.FetchPageWrite(bucketPageID)
		if !ok {
			return false
		}
	}

	kb, vb := t.encKey(key), t.encVal(value)
	t.bucket.Append(bucketGuard.Data(), kb, vb)
	bucketGuard.Drop()
	return true
}

func (t *Table[K, V]) migrateEntries(oldData, newData []byte, newBucketIdx uint32, mask uint32) {
	lowerBits := newBucketIdx & mask
	size := t.bucket.Size(oldData)
	for i := int(size) - 1; i >= 0; i-- {
		kb, vb := t.bucket.EntryAt(oldData, uint32(i), t.keySize, t.valSize)
		if (t.hash(t.decKey(kb)) & mask) == lowerBits {
			t.bucket.Append(newData, kb, vb)
			t.bucket.RemoveAt(oldData, uint32(i), t.keySize, t.valSize)
		}
	}
}

func (t *Table[K, V]) updatePageIDMapping(dirData []byte, bucketIdx uint32, pageID diskio.PageID, mask uint32) {
	lowerBits := bucketIdx & mask
	size := t.directory.Size(dirData)
	for idx := uint32(0); idx < size; idx++ {
		if (idx & mask) == lowerBits {
			t.directory.SetBucketPageID(dirData, idx, int64(pageID))
		}
	}
}

func (t *Table[K, V]) updateLocalDepthMapping(dirData []byte, bucketIdx uint32, depth uint8, mask uint32) {
	lowerBits := bucketIdx & mask
	size := t.directory.Size(dirData)
	for idx := uint32(0); idx < size; idx++ {
		if (idx & mask) == lowerBits {
			t.directory.SetLocalDepth(dirData, idx, depth)
		}
	}
}

// Remove deletes key. When that empties the bucket, the bucket is merged
// into its sibling (the index differing in the top bit of its local
// depth) only if the sibling has the same local depth; otherwise the
// empty bucket stays in place. After a merge the directory shrinks while
// every bucket's local depth allows it.
func (t *Table[K, V]) Remove(key K) bool {
	hash := t.hash(key)

	headerGuard, ok := t.pool.FetchPageWrite(t.headerPageID)
	if !ok {
		return false
	}
	defer headerGuard.Drop()

	dirIdx := t.header.HashToDirectoryIndex(headerGuard.Data(), hash)
	dirPageID := diskio.PageID(t.header.GetDirectoryPageID(headerGuard.Data(), dirIdx))
	if dirPageID == diskio.InvalidPageID {
		return false
	}

	dirGuard, ok := t.pool.FetchPageWrite(dirPageID)
	if !ok {
		return false
	}
	defer dirGuard.Drop()
	dirData := dirGuard.Data()

	bucketIdx := t.directory.HashToBucketIndex(dirData, hash)
	bucketPageID := diskio.PageID(t.directory.GetBucketPageID(dirData, bucketIdx))
	if bucketPageID == diskio.InvalidPageID {
		return false
	}

	bucketGuard, ok := t.pool.FetchPageWrite(bucketPageID)
	if !ok {
		return false
	}

	idx, found := t.findEntry(bucketGuard.Data(), key)
	if !found {
		bucketGuard.Drop()
		return false
	}
	t.bucket.RemoveAt(bucketGuard.Data(), idx, t.keySize, t.valSize)
	empty := t.bucket.IsEmpty(bucketGuard.Data())
	bucketGuard.Drop()

	if !empty {
		return true
	}

	localDepth := t.directory.GetLocalDepth(dirData, bucketIdx)
	mergedIdx := bucketIdx
	if localDepth > 0 {
		mergedIdx = bucketIdx ^ (uint32(1) << (localDepth - 1))
	}
	if mergedIdx != bucketIdx && t.directory.GetLocalDepth(dirData, mergedIdx) != localDepth {
		return true
	}

	t.pool.DeletePage(bucketPageID)

	if mergedIdx == bucketIdx {
		t.header.SetDirectoryPageID(headerGuard.Data(), dirIdx, int64(diskio.InvalidPageID))
		t.pool.DeletePage(dirPageID)
		return true
	}

	mergedPageID := t.directory.GetBucketPageID(dirData, mergedIdx)
	mergedLocalDepth := t.directory.GetLocalDepth(dirData, bucketIdx) - 1
	newMask := t.directory.GetLocalDepthMask(dirData, bucketIdx) >> 1
	t.updatePageIDMapping(dirData, mergedIdx, diskio.PageID(mergedPageID), newMask)
	t.updateLocalDepthMapping(dirData, mergedIdx, mergedLocalDepth, newMask)

	for t.directory.CanShrink(dirData) {
		before := t.directory.GlobalDepth(dirData)
		t.directory.DecrGlobalDepth(dirData)
		if t.directory.GlobalDepth(dirData) == before {
			break
		}
	}

	return true
}
