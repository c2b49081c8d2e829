package namespace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/facebookgo/clock"
	"github.com/golang/glog"
	"github.com/karlseguin/ccache/v2"

	"github.com/seaweedfs/ramtier/weed/sequence"
	"github.com/seaweedfs/ramtier/weed/storage/types"
	"github.com/seaweedfs/ramtier/weed/util"
)

// first generation stamp handed out to a new block
const InitialGenerationStamp = types.GenerationStamp(1001)

const entryCacheTtl = 5 * time.Minute

var (
	ErrNotUnderConstruction = errors.New("namespace: file is not under construction")
	ErrUnderConstruction    = errors.New("namespace: file is under construction")
	ErrBlockNotInFile       = errors.New("namespace: block does not belong to file")
	ErrInvalidPath          = errors.New("namespace: invalid path")
)

// BlockManager tracks where blocks live and which need re-replication.
type BlockManager interface {
	AddBlock(id types.BlockId, owner util.FullPath, expectedReplicas int, lazyPersist bool)
	RemoveBlock(id types.BlockId)
	UnderReplicatedCount() int
	RemoveFromUnderReplicated(id types.BlockId) bool
}

type CreateOption struct {
	LazyPersist bool
	Replication int
}

// Namesystem owns the files and their block lists. Operations on one path
// are serialized; different paths proceed in parallel.
type Namesystem struct {
	store        FileStore
	blockManager BlockManager
	sequencer    sequence.Sequencer
	gate         WriteGate
	clock        clock.Clock
	fileLocks    *util.LockTable[util.FullPath]
	entryCache   *ccache.Cache
}

func NewNamesystem(store FileStore, blockManager BlockManager, sequencer sequence.Sequencer, clk clock.Clock) *Namesystem {
	if clk == nil {
		clk = clock.New()
	}
	return &Namesystem{
		store:        store,
		blockManager: blockManager,
		sequencer:    sequencer,
		clock:        clk,
		fileLocks:    util.NewLockTable[util.FullPath](),
		entryCache:   ccache.New(ccache.Configure().MaxSize(1000).ItemsToPrune(100)),
	}
}

func (ns *Namesystem) Shutdown() {
	ns.entryCache.Stop()
}

// LoadBlocks registers the blocks of all stored files with the block manager.
func (ns *Namesystem) LoadBlocks(ctx context.Context) error {
	var maxId types.BlockId
	count := 0
	err := ns.store.ListEntries(ctx, func(entry *FileMetadata) bool {
		for _, b := range entry.Blocks {
			ns.blockManager.AddBlock(b.Id, entry.Path, entry.Replication, entry.LazyPersist)
			if b.Id > maxId {
				maxId = b.Id
			}
		}
		count++
		return true
	})
	if err != nil {
		return err
	}
	ns.sequencer.SetMax(uint64(maxId))
	glog.V(0).Infof("loaded %d files from %s file store", count, ns.store.GetName())
	return nil
}

// lock returns the cleaned path together with the release function.
// The cached entry of the path is dropped before the lock is released.
func (ns *Namesystem) lock(intention string, fullpath util.FullPath) (util.FullPath, func()) {
	fullpath = util.NewFullPath(string(fullpath))
	lock := ns.fileLocks.AcquireLock(intention, fullpath, util.ExclusiveLock)
	return fullpath, func() {
		ns.entryCache.Delete(string(fullpath))
		ns.fileLocks.ReleaseLock(fullpath, lock)
	}
}

func (ns *Namesystem) Create(ctx context.Context, fullpath util.FullPath, option CreateOption) (*FileMetadata, error) {
	if fullpath.IsRoot() {
		return nil, fmt.Errorf("create %s: %w", fullpath, ErrInvalidPath)
	}
	fullpath, unlock := ns.lock("create", fullpath)
	defer unlock()

	if option.Replication <= 0 {
		option.Replication = 1
	}
	now := ns.clock.Now()
	entry := &FileMetadata{
		Path:              fullpath,
		LazyPersist:       option.LazyPersist,
		Replication:       option.Replication,
		UnderConstruction: true,
		Crtime:            now,
		Mtime:             now,
	}
	if err := ns.gate.Authorize(OpCreate, entry); err != nil {
		return nil, err
	}
	if err := ns.store.InsertEntry(ctx, entry); err != nil {
		return nil, err
	}
	glog.V(2).Infof("created %s", entry)
	return entry, nil
}

// AddBlock allocates the next block of a file under construction.
func (ns *Namesystem) AddBlock(ctx context.Context, fullpath util.FullPath) (BlockMeta, error) {
	fullpath, unlock := ns.lock("addBlock", fullpath)
	defer unlock()

	entry, err := ns.store.FindEntry(ctx, fullpath)
	if err != nil {
		return BlockMeta{}, err
	}
	if err = ns.gate.Authorize(OpWrite, entry); err != nil {
		return BlockMeta{}, err
	}
	if !entry.UnderConstruction {
		return BlockMeta{}, fmt.Errorf("add block to %s: %w", fullpath, ErrNotUnderConstruction)
	}
	block := BlockMeta{
		Id:  types.BlockId(ns.sequencer.NextBlockId(1)),
		Gen: InitialGenerationStamp,
	}
	entry.Blocks = append(entry.Blocks, block)
	entry.Mtime = ns.clock.Now()
	if err = ns.store.UpdateEntry(ctx, entry); err != nil {
		return BlockMeta{}, err
	}
	ns.blockManager.AddBlock(block.Id, fullpath, entry.Replication, entry.LazyPersist)
	return block, nil
}

// CommitBlock records the final size of a block written by a client.
func (ns *Namesystem) CommitBlock(ctx context.Context, fullpath util.FullPath, id types.BlockId, size uint64) error {
	fullpath, unlock := ns.lock("commitBlock", fullpath)
	defer unlock()

	entry, err := ns.store.FindEntry(ctx, fullpath)
	if err != nil {
		return err
	}
	i := entry.findBlock(id)
	if i < 0 {
		return fmt.Errorf("commit block %s to %s: %w", id, fullpath, ErrBlockNotInFile)
	}
	if entry.Blocks[i].Committed {
		entry.Length -= entry.Blocks[i].Size
	}
	entry.Blocks[i].Size = size
	entry.Blocks[i].Committed = true
	entry.Length += size
	entry.Mtime = ns.clock.Now()
	return ns.store.UpdateEntry(ctx, entry)
}

func (ns *Namesystem) Complete(ctx context.Context, fullpath util.FullPath) error {
	fullpath, unlock := ns.lock("complete", fullpath)
	defer unlock()

	entry, err := ns.store.FindEntry(ctx, fullpath)
	if err != nil {
		return err
	}
	if !entry.UnderConstruction {
		return nil
	}
	entry.UnderConstruction = false
	entry.Mtime = ns.clock.Now()
	return ns.store.UpdateEntry(ctx, entry)
}

// Append reopens a completed file for writing. Lazy persist files refuse it.
func (ns *Namesystem) Append(ctx context.Context, fullpath util.FullPath) (*FileMetadata, error) {
	fullpath, unlock := ns.lock("append", fullpath)
	defer unlock()

	entry, err := ns.store.FindEntry(ctx, fullpath)
	if err != nil {
		return nil, err
	}
	if err = ns.gate.Authorize(OpAppend, entry); err != nil {
		return nil, err
	}
	if entry.UnderConstruction {
		return nil, fmt.Errorf("append %s: %w", fullpath, ErrUnderConstruction)
	}
	entry.UnderConstruction = true
	entry.Mtime = ns.clock.Now()
	if err = ns.store.UpdateEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Truncate cuts the file to newLength. Blocks past the new end are dropped;
// a block cut in the middle gets a new generation stamp. Lazy persist files
// refuse it.
func (ns *Namesystem) Truncate(ctx context.Context, fullpath util.FullPath, newLength uint64) error {
	fullpath, unlock := ns.lock("truncate", fullpath)
	defer unlock()

	entry, err := ns.store.FindEntry(ctx, fullpath)
	if err != nil {
		return err
	}
	if err = ns.gate.Authorize(OpTruncate, entry); err != nil {
		return err
	}
	if entry.UnderConstruction {
		return fmt.Errorf("truncate %s: %w", fullpath, ErrUnderConstruction)
	}
	if newLength >= entry.Length {
		return nil
	}

	var kept []BlockMeta
	var dropped []types.BlockId
	var offset uint64
	for _, b := range entry.Blocks {
		switch {
		case offset >= newLength:
			dropped = append(dropped, b.Id)
		case offset+b.Size > newLength:
			b.Size = newLength - offset
			b.Gen++
			kept = append(kept, b)
		default:
			kept = append(kept, b)
		}
		offset += b.Size
	}
	entry.Blocks = kept
	entry.Length = newLength
	entry.Mtime = ns.clock.Now()
	if err = ns.store.UpdateEntry(ctx, entry); err != nil {
		return err
	}
	for _, id := range dropped {
		ns.blockManager.RemoveBlock(id)
	}
	return nil
}

// DeleteFile removes the file and all of its blocks, including any pending
// re-replication work for them.
func (ns *Namesystem) DeleteFile(ctx context.Context, fullpath util.FullPath) error {
	fullpath, unlock := ns.lock("delete", fullpath)
	defer unlock()

	entry, err := ns.store.FindEntry(ctx, fullpath)
	if err != nil {
		return err
	}
	if err = ns.gate.Authorize(OpDelete, entry); err != nil {
		return err
	}
	if err = ns.store.DeleteEntry(ctx, fullpath); err != nil {
		return err
	}
	for _, b := range entry.Blocks {
		ns.blockManager.RemoveBlock(b.Id)
	}
	glog.V(1).Infof("deleted %s", entry)
	return nil
}

func (ns *Namesystem) GetFile(ctx context.Context, fullpath util.FullPath) (*FileMetadata, error) {
	fullpath = util.NewFullPath(string(fullpath))
	if item := ns.entryCache.Get(string(fullpath)); item != nil && !item.Expired() {
		return item.Value().(*FileMetadata).Clone(), nil
	}

	lock := ns.fileLocks.AcquireLock("getFile", fullpath, util.SharedLock)
	defer ns.fileLocks.ReleaseLock(fullpath, lock)

	entry, err := ns.store.FindEntry(ctx, fullpath)
	if err != nil {
		return nil, err
	}
	ns.entryCache.Set(string(fullpath), entry.Clone(), entryCacheTtl)
	return entry, nil
}

func (ns *Namesystem) Exists(ctx context.Context, fullpath util.FullPath) bool {
	_, err := ns.GetFile(ctx, fullpath)
	return err == nil
}

func (ns *Namesystem) ListFiles(ctx context.Context) (files []*FileMetadata, err error) {
	err = ns.store.ListEntries(ctx, func(entry *FileMetadata) bool {
		files = append(files, entry)
		return true
	})
	return
}

func (ns *Namesystem) GetUnderReplicatedCount() int {
	return ns.blockManager.UnderReplicatedCount()
}

func (ns *Namesystem) RemoveFromUnderReplicated(id types.BlockId) bool {
	return ns.blockManager.RemoveFromUnderReplicated(id)
}
