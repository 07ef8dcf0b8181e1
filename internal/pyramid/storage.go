package pyramid

import (
	"strings"

	"github.com/geotms/server/internal/tmserr"
)

// StorageLevel is a caching hint for materialized levels. It never changes
// tile output.
type StorageLevel string

const (
	StorageNone              StorageLevel = "NONE"
	StorageDiskOnly          StorageLevel = "DISK_ONLY"
	StorageDiskOnly2         StorageLevel = "DISK_ONLY_2"
	StorageMemoryOnly        StorageLevel = "MEMORY_ONLY"
	StorageMemoryOnly2       StorageLevel = "MEMORY_ONLY_2"
	StorageMemoryOnlySer     StorageLevel = "MEMORY_ONLY_SER"
	StorageMemoryOnlySer2    StorageLevel = "MEMORY_ONLY_SER_2"
	StorageMemoryAndDisk     StorageLevel = "MEMORY_AND_DISK"
	StorageMemoryAndDisk2    StorageLevel = "MEMORY_AND_DISK_2"
	StorageMemoryAndDiskSer  StorageLevel = "MEMORY_AND_DISK_SER"
	StorageMemoryAndDiskSer2 StorageLevel = "MEMORY_AND_DISK_SER_2"
	StorageOffHeap           StorageLevel = "OFF_HEAP"
)

var storageLevels = []StorageLevel{
	StorageNone, StorageDiskOnly, StorageDiskOnly2, StorageMemoryOnly,
	StorageMemoryOnly2, StorageMemoryOnlySer, StorageMemoryOnlySer2,
	StorageMemoryAndDisk, StorageMemoryAndDisk2, StorageMemoryAndDiskSer,
	StorageMemoryAndDiskSer2, StorageOffHeap,
}

// ParseStorageLevel accepts the names above case-insensitively. Empty
// means NONE.
func ParseStorageLevel(s string) (StorageLevel, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return StorageNone, nil
	}
	for _, l := range storageLevels {
		if string(l) == s {
			return l, nil
		}
	}
	return "", tmserr.Configf("%q is not a known storage level", s)
}

// Valid reports whether l is one of the known levels. The zero value is
// valid and means NONE.
func (l StorageLevel) Valid() bool {
	if l == "" {
		return true
	}
	for _, known := range storageLevels {
		if l == known {
			return true
		}
	}
	return false
}

func checkStorageLevel(l StorageLevel) error {
	if !l.Valid() {
		return tmserr.Configf("%q is not a known storage level", string(l))
	}
	return nil
}

// Replicated reports whether the level asks for two copies.
func (l StorageLevel) Replicated() bool {
	return strings.HasSuffix(string(l), "_2")
}

// Serialized reports whether the level stores serialized tiles.
func (l StorageLevel) Serialized() bool {
	return strings.Contains(string(l), "_SER")
}
