package snapshot

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

const (
	knownHeader = "uniqueUsers:"
	namesHeader = "userUsernames:"
)

// FileStore keeps the snapshot in a two-section text file:
//
//	uniqueUsers:
//	7
//	userUsernames:
//	7:A:B
type FileStore struct {
	path string
	mu   sync.Mutex

	// unreadable is set when the last Load failed on an existing file.
	unreadable bool
}

// NewFileStore returns a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: filepath.Clean(strings.TrimSpace(path))}
}

// Path returns the snapshot file location.
func (s *FileStore) Path() string { return s.path }

// Load reads the snapshot. A missing file yields empty data. Any other read
// failure suspends Save until a later Load succeeds.
func (s *FileStore) Load(ctx context.Context) (Data, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := Data{Names: make(map[int64]string)}
	if err := ctx.Err(); err != nil {
		return data, err
	}
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.unreadable = false
		return data, nil
	}
	if err != nil {
		s.unreadable = true
		return data, fmt.Errorf("read snapshot %s: %w", s.path, err)
	}
	s.unreadable = false
	return Decode(raw), nil
}

// Save writes data to a temp file next to the target and renames it over
// the previous snapshot.
func (s *FileStore) Save(ctx context.Context, data Data) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if s.unreadable {
		return ErrSaveSuspended
	}
	return writeAtomic(s.path, Encode(data))
}

// Encode renders data in the snapshot file format.
func Encode(data Data) []byte {
	var buf bytes.Buffer
	buf.WriteString(knownHeader + "\n")
	for _, id := range data.Known {
		buf.WriteString(strconv.FormatInt(id, 10))
		buf.WriteByte('\n')
	}
	buf.WriteString(namesHeader + "\n")
	for _, id := range sortedIDs(data.Names) {
		name := strings.NewReplacer("\r", " ", "\n", " ").Replace(data.Names[id])
		fmt.Fprintf(&buf, "%d:%s\n", id, name)
	}
	return buf.Bytes()
}

// Decode parses the snapshot file format. Malformed lines are skipped and
// a name keeps every colon after the first.
func Decode(raw []byte) Data {
	data := Data{Names: make(map[int64]string)}
	section := ""
	seen := make(map[int64]struct{})

	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		switch strings.TrimSpace(line) {
		case knownHeader:
			section = knownHeader
			continue
		case namesHeader:
			section = namesHeader
			continue
		}
		switch section {
		case knownHeader:
			id, err := strconv.ParseInt(strings.TrimSpace(line), 10, 64)
			if err != nil {
				continue
			}
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				data.Known = append(data.Known, id)
			}
		case namesHeader:
			idPart, name, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			id, err := strconv.ParseInt(strings.TrimSpace(idPart), 10, 64)
			if err != nil {
				continue
			}
			data.Names[id] = strings.TrimSpace(name)
		}
	}
	return data
}

func writeAtomic(path string, payload []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(payload); err != nil {
		return fmt.Errorf("write temp for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp for %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("chmod temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp for %s: %w", path, err)
	}
	return nil
}
