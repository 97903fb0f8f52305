package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"peermap/internal/model"
)

const snapshotPrefix = "snapshot:"

// ErrNoHistory is returned by Latest when nothing has been recorded.
var ErrNoHistory = errors.New("no recorded runs")

// Summary describes one stored run without its node table.
type Summary struct {
	RunID      string      `json:"run_id"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Stats      model.Stats `json:"stats"`
}

// History stores completed run snapshots in LevelDB.
type History struct {
	db     *leveldb.DB
	path   string
	logger *logrus.Entry
}

// OpenHistory opens or creates the history database at path.
func OpenHistory(path string, logger *logrus.Entry) (*History, error) {
	options := &opt.Options{
		CompactionTableSize: 2 * opt.MiB,
		WriteBuffer:         4 * opt.MiB,
	}

	db, err := leveldb.OpenFile(path, options)
	if err != nil {
		return nil, fmt.Errorf("open history at %s: %w", path, err)
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &History{db: db, path: path, logger: logger}, nil
}

// Close closes the database.
func (h *History) Close() error {
	return h.db.Close()
}

// snapshotKey orders entries by finish time. Nanoseconds are zero padded so
// byte order matches time order.
func snapshotKey(s model.Snapshot) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", snapshotPrefix, s.FinishedAt.UnixNano(), s.RunID))
}

// Record stores a completed snapshot.
func (h *History) Record(s model.Snapshot) error {
	value, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", s.RunID, err)
	}
	if err := h.db.Put(snapshotKey(s), value, nil); err != nil {
		return fmt.Errorf("store run %s: %w", s.RunID, err)
	}

	h.logger.WithFields(logrus.Fields{
		"run":   s.RunID,
		"nodes": s.Stats.TotalNodes,
		"edges": s.Stats.TotalEdges,
	}).Debug("Run recorded")
	return nil
}

// List returns the stored runs, newest first.
func (h *History) List() ([]Summary, error) {
	var out []Summary

	iter := h.db.NewIterator(util.BytesPrefix([]byte(snapshotPrefix)), nil)
	defer iter.Release()

	for ok := iter.Last(); ok; ok = iter.Prev() {
		var s model.Snapshot
		if err := json.Unmarshal(iter.Value(), &s); err != nil {
			h.logger.WithError(err).WithField("key", strings.TrimPrefix(string(iter.Key()), snapshotPrefix)).Warn("Skipping unreadable run")
			continue
		}
		out = append(out, Summary{
			RunID:      s.RunID,
			StartedAt:  s.StartedAt,
			FinishedAt: s.FinishedAt,
			Stats:      s.Stats,
		})
	}

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

// Latest returns the most recently finished run.
func (h *History) Latest() (model.Snapshot, error) {
	iter := h.db.NewIterator(util.BytesPrefix([]byte(snapshotPrefix)), nil)
	defer iter.Release()

	if !iter.Last() {
		if err := iter.Error(); err != nil {
			return model.Snapshot{}, err
		}
		return model.Snapshot{}, ErrNoHistory
	}

	var s model.Snapshot
	if err := json.Unmarshal(iter.Value(), &s); err != nil {
		return model.Snapshot{}, fmt.Errorf("decode latest run: %w", err)
	}
	return s, nil
}
