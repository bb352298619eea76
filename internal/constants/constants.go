// Package constants contains application-wide constants to avoid magic numbers and strings.
package constants

import "time"

// Format ids, as carried on the wire by the freezetag container (spec 4.B).
const (
	FormatGeneric uint8 = 0
	FormatFLAC    uint8 = 1
	FormatMP3     uint8 = 2
)

// Freezetag container versions.
const (
	VersionDefault uint8 = 1 // no mode field on the wire, mode implicitly 0
	VersionBackup  uint8 = 2 // adds mode + optional per-file stat
)

// Freeze modes, carried in FrozenFormatV2.mode.
const (
	ModeDefault uint8 = 0
	ModeBackup  uint8 = 1
)

// ChecksumCacheVersion is the wire version of internal/checksumcache's db file.
const ChecksumCacheVersion uint8 = 1

// ChecksumCacheFlushInterval is the number of buffered mutations the
// checksum cache accumulates before an implicit flush to disk.
const ChecksumCacheFlushInterval = 50

// FreezetagCacheLimit is the maximum number of parsed freezetags FreezeFS
// keeps warm in its LRU cache (spec 4.E).
const FreezetagCacheLimit = 10

// FreezetagKeepAliveTime is how long a freezetag stays cached after its
// last open file handle closes, in case a sibling file opens again soon.
const FreezetagKeepAliveTime = 10 * time.Second

// Application defaults, overridable via internal/config.
const (
	DefaultCacheDirName   = "freezetag"
	DefaultCacheFileName  = "freezefs.db"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultMaxFtagVersion = VersionBackup
)

// File extensions recognized by the format detector (spec 4.A).
const (
	ExtFLAC = ".flac"
	ExtMP3  = ".mp3"
	ExtFtag = ".ftag"
)

// FtagTmpSuffix names the temp directory used during thaw (spec 6).
const FtagTmpSuffix = ".ftag-tmp"

// File permissions used for files and directories this tool writes.
const (
	DirPermissions  = 0o755
	FilePermissions = 0o644
)

// BackupTimestampLayout is the Go time layout matching
// F<YYYY-MM-DD_HH-MM-SS>.ftag (spec 6).
const BackupTimestampLayout = "2006-01-02_15-04-05"

// BackupFilenamePattern is the regexp matched against candidate backup
// freezetag filenames when locating the most recent one (spec 4.D step 2).
const BackupFilenamePattern = `^F\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}\.ftag$`
