package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/franz/music-indexer/internal/model"
	"github.com/franz/music-indexer/internal/util"
)

// IndexPath returns the collection index location for a root.
func IndexPath(root string) string {
	return filepath.Join(root, IndexFileName)
}

// LoadIndex reads the collection index. A missing file yields an
// empty index rather than an error; a corrupt file falls back to its
// backup the same way band metadata does.
func (s *Store) LoadIndex(ctx context.Context) (*model.CollectionIndex, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := IndexPath(s.root)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return model.NewCollectionIndex(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", util.ErrStorage, path, err)
	}

	var idx model.CollectionIndex
	if jsonErr := json.Unmarshal(data, &idx); jsonErr != nil {
		util.WarnLog("Corrupt collection index: %v, trying backup", jsonErr)
		backup, bakErr := os.ReadFile(path + BackupSuffix)
		if bakErr != nil {
			return nil, fmt.Errorf("%w: %s and its backup are unreadable", util.ErrCorrupt, path)
		}
		if err := json.Unmarshal(backup, &idx); err != nil {
			return nil, fmt.Errorf("%w: %s and its backup are unreadable", util.ErrCorrupt, path)
		}
		util.WarnLog("Recovered collection index from backup")
	}
	idx.Normalize()
	return &idx, nil
}

// SaveIndex atomically replaces the collection index under its lock.
func (s *Store) SaveIndex(ctx context.Context, idx *model.CollectionIndex) error {
	path := IndexPath(s.root)
	release, err := s.locks.Acquire(ctx, path, s.lockTimeout)
	if err != nil {
		return err
	}
	defer release()
	return s.writeIndexLocked(idx)
}

// UpdateIndex runs a read-modify-write cycle on the index under its
// lock. mutate may return false to skip the write.
func (s *Store) UpdateIndex(ctx context.Context, mutate func(idx *model.CollectionIndex) (bool, error)) (*model.CollectionIndex, error) {
	path := IndexPath(s.root)
	release, err := s.locks.Acquire(ctx, path, s.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	idx, err := s.LoadIndex(ctx)
	if err != nil {
		return nil, err
	}
	write, err := mutate(idx)
	if err != nil {
		return nil, err
	}
	if !write {
		return idx, nil
	}
	if err := s.writeIndexLocked(idx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (s *Store) writeIndexLocked(idx *model.CollectionIndex) error {
	idx.Normalize()
	idx.LastUpdated = model.Timestamp(time.Now())
	return s.writeFile(IndexPath(s.root), idx)
}
