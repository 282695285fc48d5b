package store

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"sync"

	"github.com/kartikbazzad/chronodb/internal/errors"
	"github.com/kartikbazzad/chronodb/internal/logger"
)

// Journal entry op codes.
const (
	entryInsert byte = iota + 1
	entryUpdate
	entryDelete
)

const (
	opSize         = 1
	locSize        = 8
	payloadLenSize = 4
	crcLenSize     = 4
	entryHeader    = opSize + locSize + locSize + payloadLenSize + crcLenSize
)

// Entry is one physical write recorded in the journal. Replaying the journal
// reproduces the collection's exact slot layout, including relocations and
// freed slots.
type Entry struct {
	Op      byte
	Loc     Loc
	NewLoc  Loc
	Payload []byte
}

// Journal is the append-only record journal backing a collection store.
type Journal struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	sync   bool
	logger *logger.Logger
}

func OpenJournal(path string, syncOnWrite bool, log *logger.Logger) (*Journal, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.ErrFileOpen
	}
	return &Journal{path: path, file: file, sync: syncOnWrite, logger: log}, nil
}

// Replay reads every entry from the start of the journal and hands it to
// apply. A truncated trailing entry is tolerated (partial final write); a
// CRC mismatch in the middle is not.
func (j *Journal) Replay(apply func(*Entry) error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.file.Seek(0, io.SeekStart); err != nil {
		return errors.ErrFileRead
	}

	header := make([]byte, entryHeader)
	for {
		if _, err := io.ReadFull(j.file, header); err != nil {
			if err == io.EOF {
				break
			}
			if err == io.ErrUnexpectedEOF {
				j.logger.Warn("journal %s: truncated entry header, stopping replay", j.path)
				break
			}
			return errors.ErrFileRead
		}

		e := &Entry{
			Op:     header[0],
			Loc:    binary.LittleEndian.Uint64(header[1:]),
			NewLoc: binary.LittleEndian.Uint64(header[9:]),
		}
		payloadLen := binary.LittleEndian.Uint32(header[17:])
		storedCRC := binary.LittleEndian.Uint32(header[21:])

		if payloadLen > 0 {
			e.Payload = make([]byte, payloadLen)
			if _, err := io.ReadFull(j.file, e.Payload); err != nil {
				j.logger.Warn("journal %s: truncated entry payload, stopping replay", j.path)
				break
			}
		}
		if crc32.ChecksumIEEE(e.Payload) != storedCRC {
			j.logger.Error("journal %s: CRC mismatch", j.path)
			return errors.ErrCorruptRecord
		}
		if err := apply(e); err != nil {
			return err
		}
	}

	// position at end for appends
	if _, err := j.file.Seek(0, io.SeekEnd); err != nil {
		return errors.ErrFileRead
	}
	return nil
}

// Append writes one entry at the end of the journal.
func (j *Journal) Append(e *Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return errors.ErrFileWrite
	}

	buf := make([]byte, entryHeader+len(e.Payload))
	buf[0] = e.Op
	binary.LittleEndian.PutUint64(buf[1:], e.Loc)
	binary.LittleEndian.PutUint64(buf[9:], e.NewLoc)
	binary.LittleEndian.PutUint32(buf[17:], uint32(len(e.Payload)))
	binary.LittleEndian.PutUint32(buf[21:], crc32.ChecksumIEEE(e.Payload))
	copy(buf[entryHeader:], e.Payload)

	if _, err := j.file.Write(buf); err != nil {
		return errors.ErrFileWrite
	}
	if j.sync {
		if err := j.file.Sync(); err != nil {
			return errors.ErrFileWrite
		}
	}
	return nil
}

func (j *Journal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	return j.file.Sync()
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	if err := j.file.Sync(); err != nil {
		return err
	}
	err := j.file.Close()
	j.file = nil
	return err
}
