package commands

import (
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/walset"
	"github.com/hupe1980/walset/manifest"
)

// walView is the printable form of one tracked WAL.
type walView struct {
	Number     uint64  `json:"number" yaml:"number"`
	Closed     bool    `json:"closed" yaml:"closed"`
	SyncedSize *uint64 `json:"synced_size,omitempty" yaml:"synced_size,omitempty"`
}

func newWalView(n walset.Number, md walset.Metadata) walView {
	v := walView{Number: uint64(n), Closed: md.IsClosed()}
	if size, ok := md.SyncedSize(); ok {
		v.SyncedSize = &size
	}
	return v
}

func (v walView) state() string {
	if v.Closed {
		return "closed"
	}
	return "open"
}

func (v walView) size() string {
	if v.SyncedSize == nil {
		return "-"
	}
	return strconv.FormatUint(*v.SyncedSize, 10)
}

// walList renders WALs in number order.
type walList []walView

func newWalList(set *walset.Set) walList {
	list := make(walList, 0, set.Len())
	for n, md := range set.All() {
		list = append(list, newWalView(n, md))
	}
	return list
}

// Headers implements TableRenderer.
func (l walList) Headers() []string {
	return []string{"WAL", "STATE", "SYNCED SIZE"}
}

// Rows implements TableRenderer.
func (l walList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, v := range l {
		rows = append(rows, []string{strconv.FormatUint(v.Number, 10), v.state(), v.size()})
	}
	return rows
}

// recoveryView is the result of rebuilding a set from checkpoint and log.
type recoveryView struct {
	Checkpoint    uint64  `json:"checkpoint,omitempty" yaml:"checkpoint,omitempty"`
	EditsReplayed int     `json:"edits_replayed" yaml:"edits_replayed"`
	LogOffset     int64   `json:"log_offset" yaml:"log_offset"`
	Wals          walList `json:"wals" yaml:"wals"`
}

// editView is the printable form of one manifest log record.
type editView struct {
	Offset         int64     `json:"offset" yaml:"offset"`
	LogNumber      *uint64   `json:"log_number,omitempty" yaml:"log_number,omitempty"`
	NextFileNumber *uint64   `json:"next_file_number,omitempty" yaml:"next_file_number,omitempty"`
	Comment        string    `json:"comment,omitempty" yaml:"comment,omitempty"`
	Additions      []walView `json:"wal_additions,omitempty" yaml:"wal_additions,omitempty"`
	Deletions      []uint64  `json:"wal_deletions,omitempty" yaml:"wal_deletions,omitempty"`
}

func newEditView(offset int64, e *manifest.Edit) editView {
	v := editView{Offset: offset, Comment: e.Comment()}
	if n, ok := e.LogNumber(); ok {
		u := uint64(n)
		v.LogNumber = &u
	}
	if n, ok := e.NextFileNumber(); ok {
		v.NextFileNumber = &n
	}
	for _, a := range e.WalAdditions() {
		v.Additions = append(v.Additions, newWalView(a.Number, a.Metadata))
	}
	for _, d := range e.WalDeletions() {
		v.Deletions = append(v.Deletions, uint64(d.Number))
	}
	return v
}

// editList renders log records in file order.
type editList []editView

// Headers implements TableRenderer.
func (l editList) Headers() []string {
	return []string{"OFFSET", "LOG NUMBER", "NEXT FILE", "WAL ADDITIONS", "WAL DELETIONS", "COMMENT"}
}

// Rows implements TableRenderer.
func (l editList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, v := range l {
		adds := make([]string, 0, len(v.Additions))
		for _, a := range v.Additions {
			adds = append(adds, a.tableCell())
		}
		dels := make([]string, 0, len(v.Deletions))
		for _, d := range v.Deletions {
			dels = append(dels, strconv.FormatUint(d, 10))
		}
		rows = append(rows, []string{
			strconv.FormatInt(v.Offset, 10),
			optional(v.LogNumber),
			optional(v.NextFileNumber),
			dashIfEmpty(strings.Join(adds, " ")),
			dashIfEmpty(strings.Join(dels, " ")),
			dashIfEmpty(v.Comment),
		})
	}
	return rows
}

// tableCell renders a WAL compactly, e.g. "7(closed,4096)".
func (v walView) tableCell() string {
	return strconv.FormatUint(v.Number, 10) + "(" + v.state() + "," + v.size() + ")"
}

func optional(p *uint64) string {
	if p == nil {
		return "-"
	}
	return strconv.FormatUint(*p, 10)
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// checkpointView is the printable form of a stored checkpoint.
type checkpointView struct {
	ID          uint64    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Current     bool      `json:"current" yaml:"current"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	LogOffset   int64     `json:"log_offset" yaml:"log_offset"`
	Compression string    `json:"compression" yaml:"compression"`
	Size        int64     `json:"size" yaml:"size"`
}

func newCheckpointView(cp *manifest.Checkpoint, current uint64) checkpointView {
	return checkpointView{
		ID:          cp.ID,
		Name:        cp.Name(),
		Current:     cp.ID == current,
		CreatedAt:   cp.CreatedAt.UTC(),
		LogOffset:   cp.LogOffset,
		Compression: cp.Compression.String(),
		Size:        cp.Size,
	}
}

// checkpointList renders checkpoints by id.
type checkpointList []checkpointView

// Headers implements TableRenderer.
func (l checkpointList) Headers() []string {
	return []string{"ID", "NAME", "CURRENT", "CREATED", "LOG OFFSET", "COMPRESSION", "SIZE"}
}

// Rows implements TableRenderer.
func (l checkpointList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, v := range l {
		current := ""
		if v.Current {
			current = "*"
		}
		rows = append(rows, []string{
			strconv.FormatUint(v.ID, 10),
			v.Name,
			current,
			v.CreatedAt.Format(time.RFC3339),
			strconv.FormatInt(v.LogOffset, 10),
			v.Compression,
			strconv.FormatInt(v.Size, 10),
		})
	}
	return rows
}
