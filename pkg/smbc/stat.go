package smbc

import (
	"hash/fnv"
	"os"
	"strings"
	"time"

	"github.com/ineffectivecoder/smbclient/pkg/smb"
	"github.com/ineffectivecoder/smbclient/pkg/smb/types"
)

// File type bits of Stat.Mode.
const (
	ModeDir     uint32 = 0o040000
	ModeRegular uint32 = 0o100000
	ModeType    uint32 = 0o170000
)

// Stat is a snapshot of file metadata. Times are seconds since the Unix
// epoch.
type Stat struct {
	Mode  uint32
	Ino   uint64
	Dev   uint64
	Nlink uint64
	UID   uint32
	GID   uint32
	Size  uint64
	Atime int64
	Mtime int64
	Ctime int64
}

// Tuple returns (mode, inode, device, nlink, uid, gid, size, atime, mtime,
// ctime).
func (s *Stat) Tuple() [10]any {
	return [10]any{s.Mode, s.Ino, s.Dev, s.Nlink, s.UID, s.GID, s.Size, s.Atime, s.Mtime, s.Ctime}
}

// IsDir reports a directory.
func (s *Stat) IsDir() bool {
	return s.Mode&ModeType == ModeDir
}

// FileMode converts Mode to an os.FileMode.
func (s *Stat) FileMode() os.FileMode {
	m := os.FileMode(s.Mode & 0o777)
	if s.IsDir() {
		m |= os.ModeDir
	}
	return m
}

// modeFromAttributes maps DOS attributes onto POSIX bits: read-only drops
// the write bits and directories get search permission.
func modeFromAttributes(attrs types.FileAttributes) uint32 {
	perm := uint32(0o644)
	if attrs&types.FileAttributeReadOnly != 0 {
		perm = 0o444
	}
	if attrs&types.FileAttributeDirectory != 0 {
		return ModeDir | perm | 0o111
	}
	return ModeRegular | perm
}

// deviceID derives a stable device number for a share.
func deviceID(host, share string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(strings.ToLower(host)))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(share)))
	return h.Sum64()
}

func localID(id int) uint32 {
	if id < 0 {
		return 0
	}
	return uint32(id)
}

func statFromInfo(info *smb.FileInfo, dev uint64) *Stat {
	nlink := uint64(info.Links)
	if nlink == 0 {
		nlink = 1
	}
	return &Stat{
		Mode:  modeFromAttributes(info.Attributes),
		Ino:   info.FileIndex,
		Dev:   dev,
		Nlink: nlink,
		UID:   localID(os.Getuid()),
		GID:   localID(os.Getgid()),
		Size:  uint64(max(info.Size, 0)),
		Atime: unixOrZero(info.LastAccessTime),
		Mtime: unixOrZero(info.LastWriteTime),
		Ctime: unixOrZero(info.ChangeTime),
	}
}

// virtualDirStat describes the browse and server pseudo-directories.
func virtualDirStat(dev uint64) *Stat {
	return &Stat{
		Mode:  ModeDir | 0o555,
		Dev:   dev,
		Nlink: 1,
		UID:   localID(os.Getuid()),
		GID:   localID(os.Getgid()),
	}
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
