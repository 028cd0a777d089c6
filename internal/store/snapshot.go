package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/ledger"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/registry"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/wallet"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

const snapshotPattern = "snapshot_%d_%d.json"

// SnapshotFile is the on-disk form of a ledger snapshot. Registry and Wallet
// hold the sandbox collaborators captured with it, when there are any.
type SnapshotFile struct {
	TsUnix   int64              `json:"ts"`
	Ledger   ledger.Snapshot    `json:"ledger"`
	Registry *registry.Snapshot `json:"registry,omitempty"`
	Wallet   *wallet.Snapshot   `json:"wallet,omitempty"`
}

type SnapshotStore interface {
	Save(file SnapshotFile) error
	LoadLatest() (*SnapshotFile, error)
	Cleanup() error
}

type snapshotStore struct {
	dir  string
	keep int
	now  func() time.Time
}

func NewSnapshotStore(dir string, keep int) SnapshotStore {
	if keep < 1 {
		keep = 1
	}
	return &snapshotStore{dir: dir, keep: keep, now: time.Now}
}

func (s *snapshotStore) Save(file SnapshotFile) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return xerrors.Errorf("create snapshot dir: %w", err)
	}

	snap := file.Ledger
	file.TsUnix = s.now().Unix()
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return xerrors.Errorf("marshal snapshot: %w", err)
	}

	path := filepath.Join(s.dir, fmt.Sprintf(snapshotPattern, snap.Seq, file.TsUnix))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return xerrors.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return xerrors.Errorf("write snapshot: %w", err)
	}

	zap.L().With(zap.Uint64("seq", snap.Seq), zap.String("path", path)).Debug("SnapshotStore: Saved snapshot")

	return s.Cleanup()
}

// LoadLatest returns the snapshot with the highest sequence, or nil when
// none has been written yet.
func (s *snapshotStore) LoadLatest() (*SnapshotFile, error) {
	files, err := s.list()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}

	data, err := os.ReadFile(files[0].path)
	if err != nil {
		return nil, xerrors.Errorf("read snapshot: %w", err)
	}

	var file SnapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, xerrors.Errorf("unmarshal snapshot %s: %w", files[0].path, err)
	}

	zap.L().With(zap.Uint64("seq", file.Ledger.Seq), zap.String("path", files[0].path)).Info("SnapshotStore: Loaded snapshot")

	return &file, nil
}

// Cleanup removes all but the newest snapshots.
func (s *snapshotStore) Cleanup() error {
	files, err := s.list()
	if err != nil {
		return err
	}

	for i := s.keep; i < len(files); i++ {
		if err := os.Remove(files[i].path); err != nil {
			zap.L().With(zap.Error(err), zap.String("path", files[i].path)).Warn("SnapshotStore: Failed to remove old snapshot")
			continue
		}
		zap.L().With(zap.String("path", files[i].path)).Debug("SnapshotStore: Removed old snapshot")
	}

	return nil
}

type snapshotEntry struct {
	path string
	seq  uint64
	ts   int64
}

// list returns snapshot files newest first.
func (s *snapshotStore) list() ([]snapshotEntry, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, xerrors.Errorf("read snapshot dir: %w", err)
	}

	files := make([]snapshotEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var seq uint64
		var ts int64
		if n, err := fmt.Sscanf(entry.Name(), snapshotPattern, &seq, &ts); err != nil || n != 2 {
			continue
		}
		if entry.Name() != fmt.Sprintf(snapshotPattern, seq, ts) {
			continue
		}
		files = append(files, snapshotEntry{path: filepath.Join(s.dir, entry.Name()), seq: seq, ts: ts})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].seq != files[j].seq {
			return files[i].seq > files[j].seq
		}
		return files[i].ts > files[j].ts
	})

	return files, nil
}
