package layerapply

import (
	"archive/tar"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/xattr"

	"github.com/boxlite/boxlite/internal/boxerr"
)

// ApplyDir merges srcDir on top of dest, treating srcDir as one already
// cached, isolated layer extraction (produced by Apply with
// MaterializeWhiteouts set). `.wh.*`/`.wh..wh..opq` marker files found in
// srcDir are interpreted as deletions/opaque-hides against the real
// accumulated dest, exactly as Apply would for a live tar stream — this
// is the merge half of the two-phase per-layer caching scheme (spec
// §4.3's "per-layer extraction directory keyed by layer digest" combined
// with RootfsAssembler's ordered layer stacking).
func ApplyDir(ctx context.Context, srcDir, dest string, opts Options) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return boxerr.Wrapf(boxerr.Storage, err, "create dest %s", dest)
	}

	type dirTime struct {
		path  string
		mtime time.Time
	}
	var pendingDirTimes []dirTime
	unpacked := make(map[string]struct{})

	err := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == srcDir {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		fullPath := filepath.Join(dest, rel)

		if handled, err := handleWhiteoutMarker(path, fullPath, d, unpacked); err != nil {
			return err
		} else if handled {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if err := ensureParentDirs(fullPath, dest); err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			if err := removeExistingIfNeeded(fullPath, tar.TypeDir); err != nil {
				return err
			}
			if err := createDir(fullPath, info.Mode().Perm()); err != nil {
				return err
			}
			pendingDirTimes = append(pendingDirTimes, dirTime{path: fullPath, mtime: info.ModTime()})
			unpacked[fullPath] = struct{}{}
			return copyEntryMeta(path, fullPath, info, opts)
		case info.Mode()&os.ModeSymlink != 0:
			if err := removeExistingIfNeeded(fullPath, tar.TypeSymlink); err != nil {
				return err
			}
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			if err := os.Symlink(target, fullPath); err != nil {
				return boxerr.Wrapf(boxerr.Storage, err, "symlink %s -> %s", fullPath, target)
			}
			unpacked[fullPath] = struct{}{}
			return copyEntryMeta(path, fullPath, info, opts)
		case info.Mode().IsRegular():
			if err := removeExistingIfNeeded(fullPath, tar.TypeReg); err != nil {
				return err
			}
			src, err := os.Open(path) //nolint:gosec
			if err != nil {
				return err
			}
			cerr := createRegularFile(src, fullPath, info.Mode().Perm())
			_ = src.Close()
			if cerr != nil {
				return cerr
			}
			unpacked[fullPath] = struct{}{}
			return copyEntryMeta(path, fullPath, info, opts)
		default:
			// Device/FIFO nodes only ever exist in a cached layer dir when
			// the original per-layer extraction ran privileged; recreate
			// them the same way.
			return recreateSpecialNode(path, fullPath, info, opts)
		}
	})
	if err != nil {
		return boxerr.Wrap(boxerr.Storage, "merge layer directory", err)
	}

	for _, d := range pendingDirTimes {
		_ = os.Chtimes(d.path, d.mtime, d.mtime)
	}
	return nil
}

func handleWhiteoutMarker(srcPath, destPath string, d fs.DirEntry, unpacked map[string]struct{}) (bool, error) {
	if d.IsDir() {
		return false, nil
	}
	base := filepath.Base(srcPath)
	if base == whiteoutOpaque {
		dir := filepath.Dir(destPath)
		return true, applyOpaqueWhiteout(dir, unpacked)
	}
	if target, ok := strings.CutPrefix(base, whiteoutPrefix); ok {
		removePath := filepath.Join(filepath.Dir(destPath), target)
		if _, err := os.Lstat(removePath); err == nil {
			_ = os.RemoveAll(removePath)
		}
		return true, nil
	}
	return false, nil
}

// copyEntryMeta propagates ownership and xattrs (including a preserved
// override_stat marker) from a cached layer entry onto its merged
// counterpart.
func copyEntryMeta(src, dest string, info fs.FileInfo, opts Options) error {
	if opts.Privileged {
		if stat, ok := info.Sys().(*syscall.Stat_t); ok {
			_ = syscall.Lchown(dest, int(stat.Uid), int(stat.Gid))
		}
	}
	names, err := xattr.LList(src)
	if err != nil {
		return nil //nolint:nilerr
	}
	for _, name := range names {
		val, err := xattr.LGet(src, name)
		if err != nil {
			continue
		}
		_ = xattr.LSet(dest, name, val)
	}
	return nil
}

func recreateSpecialNode(src, dest string, info fs.FileInfo, opts Options) error {
	if !opts.Privileged {
		return nil
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}
	if err := removeExistingIfNeeded(dest, tar.TypeBlock); err != nil {
		return err
	}
	if err := syscall.Mknod(dest, uint32(stat.Mode), int(stat.Rdev)); err != nil { //nolint:gosec
		return boxerr.Wrapf(boxerr.Storage, err, "mknod %s", dest)
	}
	return copyEntryMeta(src, dest, info, opts)
}
