// Package ext4builder converts a directory tree into a bit-correct ext4
// disk image: a cost model sizes the image, the tree is re-streamed as a
// tar and handed to hcsshim's pure-Go tar2ext4 converter, zeroing
// non-root ownership along the way (spec §4.3 "ext4 build").
package ext4builder

import (
	"archive/tar"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Microsoft/hcsshim/ext4/tar2ext4"

	"github.com/boxlite/boxlite/internal/boxerr"
	"github.com/boxlite/boxlite/internal/logging"
)

const (
	blockSize         = 4096
	sizeMultiplierNum = 11
	sizeMultiplierDen = 10
	journalOverhead   = 64 * 1024 * 1024
	minDiskSize       = 256 * 1024 * 1024
)

// Build populates outputPath with an ext4 image containing the contents
// of sourceDir, sized by the spec's cost model:
// ceil(sum(file_sizes rounded to 4 KiB) * 1.1) + 64 MiB, min 256 MiB.
// When privileged is false, every inode's uid/gid is rewritten to 0 — the
// unprivileged caller never had real ownership information to begin with
// (layerapply.ApplyDir recorded it in the override_stat xattr instead), so
// zeroing is the only consistent choice. When privileged is true, the
// source tree's real uid/gid (set by an earlier privileged Lchown) is kept
// as-is; mke2fs-less pure-Go conversion has no separate debugfs-style
// fixup pass, so ownership is preserved or normalized while the tar stream
// is generated, not afterward. Returns the final on-disk image size.
func Build(ctx context.Context, sourceDir, outputPath string, privileged bool) (int64, error) {
	logger := logging.WithFunc("ext4builder.Build")

	size, err := calculateDiskSize(sourceDir)
	if err != nil {
		return 0, boxerr.Wrap(boxerr.Storage, "calculate disk size", err)
	}

	out, err := os.Create(outputPath) //nolint:gosec
	if err != nil {
		return 0, boxerr.Wrap(boxerr.Storage, "create output image", err)
	}
	defer out.Close() //nolint:errcheck

	pr, pw := io.Pipe()
	errCh := make(chan error, 1)
	go func() {
		errCh <- tarDirectory(ctx, sourceDir, pw, privileged)
	}()

	convertErr := tar2ext4.Convert(pr, out, tar2ext4.MaximumDiskSize(size))
	tarErr := <-errCh
	if convertErr != nil {
		return 0, boxerr.Wrap(boxerr.Storage, "convert tar to ext4", convertErr)
	}
	if tarErr != nil {
		return 0, boxerr.Wrap(boxerr.Storage, "stream source directory", tarErr)
	}

	logger.Infof(ctx, "built ext4 image %s (%d MiB) from %s", outputPath, size/(1024*1024), sourceDir)
	return size, nil
}

// calculateDiskSize walks dir, summing each regular file's size rounded
// up to a 4 KiB block (directories cost one block each), then applies
// the spec's 10% overhead plus a fixed journal allowance, floored at a
// 256 MiB minimum.
func calculateDiskSize(dir string) (int64, error) {
	var totalBlocks int64

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			totalBlocks++
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			blocks := (info.Size() + blockSize - 1) / blockSize
			if blocks < 1 {
				blocks = 1
			}
			totalBlocks += blocks
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	contentSize := totalBlocks * blockSize
	withOverhead := (contentSize*sizeMultiplierNum+sizeMultiplierDen-1)/sizeMultiplierDen + journalOverhead
	if withOverhead < minDiskSize {
		withOverhead = minDiskSize
	}
	return withOverhead, nil
}

// tarDirectory streams dir as a tar archive into w. Unless privileged,
// uid/gid are zeroed for every entry, since an unprivileged layer merge
// never had real ownership to record on disk in the first place (spec
// §4.3 "record intended ownership in ... override_stat"); a privileged
// merge already did a real Lchown (layerapply.ApplyDir), so that real
// ownership is left untouched here instead of being clobbered back to 0:0.
func tarDirectory(ctx context.Context, dir string, w io.WriteCloser, privileged bool) error {
	defer w.Close() //nolint:errcheck

	tw := tar.NewWriter(w)
	defer tw.Close() //nolint:errcheck

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == dir {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		var link string
		if info.Mode()&os.ModeSymlink != 0 {
			link, err = os.Readlink(path)
			if err != nil {
				return err
			}
		}

		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = rel
		if d.IsDir() {
			hdr.Name += "/"
		}
		if !privileged {
			hdr.Uid, hdr.Gid = 0, 0
		}

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			f, err := os.Open(path) //nolint:gosec
			if err != nil {
				return err
			}
			_, copyErr := io.Copy(tw, f) //nolint:gosec
			closeErr := f.Close()
			if copyErr != nil {
				return copyErr
			}
			if closeErr != nil {
				return closeErr
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return tw.Flush()
}
