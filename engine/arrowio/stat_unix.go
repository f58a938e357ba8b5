//go:build unix

package arrowio

import (
	"os"
	"syscall"

	"github.com/scrapbird/arrowfdw/engine/types"
)

// statFromFileInfo extracts the (device, inode) identity the Metadata
// Cache hashes on, per spec.md §3's hash-bucket invariant.
func statFromFileInfo(info os.FileInfo) types.FileStat {
	fs := types.FileStat{Size: info.Size(), Mtime: info.ModTime()}
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		fs.Device = uint64(st.Dev)
		fs.Inode = uint64(st.Ino)
	}
	return fs
}
