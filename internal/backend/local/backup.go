package local

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/denzelpenzel/mcbridge/internal/backend"
	"github.com/denzelpenzel/mcbridge/internal/element"
)

const snapshotVersion = 1

// Backup ... Writes every live entry as a gzip stream of wide element records.
// Expire is stored as the remaining TTL
func (s *Store) Backup(w io.Writer) (int, error) {
	gz := gzip.NewWriter(w)

	if _, err := gz.Write([]byte{snapshotVersion}); err != nil {
		return 0, err
	}

	now := s.nowMilli()
	written := 0
	for _, sh := range s.shards {
		sh.RLock()
		for _, e := range sh.items {
			if e.expired(now) {
				continue
			}
			if err := e.view(now).Write(gz, element.FormatWide); err != nil {
				sh.RUnlock()
				return written, err
			}
			written++
		}
		sh.RUnlock()
	}

	return written, gz.Close()
}

// Restore ... Loads a Backup stream, keeping the stored versions
func (s *Store) Restore(r io.Reader) (int, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return 0, err
	}
	defer gz.Close()

	head := make([]byte, 1)
	if _, err := io.ReadFull(gz, head); err != nil {
		return 0, err
	}
	if head[0] != snapshotVersion {
		return 0, fmt.Errorf("unsupported snapshot version %d", head[0])
	}

	loaded := 0
	for {
		e, err := element.Read(gz, element.FormatWide)
		if errors.Is(err, io.EOF) {
			return loaded, nil
		}
		if err != nil {
			return loaded, err
		}
		s.load(e)
		loaded++
	}
}

func (s *Store) load(e *element.Element) {
	now := s.nowMilli()
	key := e.Key()
	sh := s.shard(key)

	sh.Lock()
	defer sh.Unlock()

	sh.set(key, &entry{el: e, deadline: backend.Deadline(time.UnixMilli(now), e.Expire())})

	for {
		cur := s.cas.Load()
		if cur >= e.CasUnique() || s.cas.CompareAndSwap(cur, e.CasUnique()) {
			return
		}
	}
}

// BackupFile ... Backup into name. The snapshot is written to a temp file in
// the same directory and renamed over name, so a failed write keeps the old one
func (s *Store) BackupFile(name string) (int, error) {
	file, err := os.CreateTemp(filepath.Dir(name), filepath.Base(name)+".tmp-*")
	if err != nil {
		return 0, err
	}
	tmp := file.Name()

	n, err := s.Backup(file)
	if err == nil {
		err = file.Sync()
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmp, 0o644)
	}
	if err == nil {
		err = os.Rename(tmp, name)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	return n, nil
}

// RestoreFile ... Restore from a file written by BackupFile
func (s *Store) RestoreFile(name string) (int, error) {
	file, err := os.Open(name)
	if err != nil {
		return 0, err
	}
	defer file.Close()
	return s.Restore(file)
}
