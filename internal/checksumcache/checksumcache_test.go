package checksumcache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cesargomez89/freezetag/internal/constants"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "freezefs.db"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, ok := c.Lookup(1, 2, 3); ok {
		t.Error("expected empty cache to miss on lookup")
	}
}

func TestStoreLookupRoundTrip(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "freezefs.db"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	entry := Entry{
		Mtime:       12345.678,
		Checksum:    [20]byte{1, 2, 3, 4, 5},
		MetadataLen: 42,
		MetadataInfo: []MetadataInfo{
			{Type: "head-ID3v2.3", Size: 30},
			{Type: "ID3v1", Size: 128},
		},
	}

	if err := c.Store(7, 99, entry); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	got, ok := c.Lookup(7, 99, 12345.678)
	if !ok {
		t.Fatal("expected a hit after Store")
	}
	if got.Checksum != entry.Checksum {
		t.Errorf("Checksum = %v, want %v", got.Checksum, entry.Checksum)
	}
	if got.MetadataLen != entry.MetadataLen {
		t.Errorf("MetadataLen = %d, want %d", got.MetadataLen, entry.MetadataLen)
	}
	if len(got.MetadataInfo) != 2 || got.MetadataInfo[0].Type != "head-ID3v2.3" {
		t.Errorf("MetadataInfo = %+v", got.MetadataInfo)
	}
}

func TestLookupMtimeMismatchIsMiss(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "freezefs.db"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if err := c.Store(1, 1, Entry{Mtime: 100}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	if _, ok := c.Lookup(1, 1, 200); ok {
		t.Error("expected mtime mismatch to be treated as a miss")
	}
}

func TestFlushPersistsAcrossLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "freezefs.db")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := c.Store(3, 4, Entry{Mtime: 5, Checksum: [20]byte{9, 9, 9}}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := c.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload Load failed: %v", err)
	}
	got, ok := reloaded.Lookup(3, 4, 5)
	if !ok {
		t.Fatal("expected entry to survive a flush + reload")
	}
	if got.Checksum != [20]byte{9, 9, 9} {
		t.Errorf("Checksum = %v", got.Checksum)
	}
}

func TestStoreFlushesAutomaticallyAtInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "freezefs.db")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	for i := 0; i < constants.ChecksumCacheFlushInterval; i++ {
		if err := c.Store(uint32(i), uint64(i), Entry{Mtime: float64(i)}); err != nil {
			t.Fatalf("Store %d failed: %v", i, err)
		}
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected the cache file to exist after %d stores, got %v", constants.ChecksumCacheFlushInterval, err)
	}
}
