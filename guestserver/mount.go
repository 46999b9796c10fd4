package guestserver

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/boxlite/boxlite/controlplane/rpc"
	"github.com/boxlite/boxlite/internal/boxerr"
)

// mountVolumes mounts every declared volume in order — virtiofs shares by
// tag, block devices by their guest device node — before the rootfs
// strategy is realized (spec §4.9 "mount all declared volumes (virtiofs +
// block devices in order)").
func mountVolumes(volumes []rpc.VolumeMount) error {
	for _, v := range volumes {
		if err := os.MkdirAll(v.GuestPath, 0o755); err != nil { //nolint:gosec
			return boxerr.Wrapf(boxerr.Storage, err, "create mountpoint %s", v.GuestPath)
		}

		var flags uintptr
		if v.ReadOnly {
			flags |= unix.MS_RDONLY
		}

		if v.IsBlockDev {
			devPath := "/dev/" + v.BlockID
			if err := unix.Mount(devPath, v.GuestPath, "ext4", flags, ""); err != nil {
				return boxerr.Wrapf(boxerr.Storage, err, "mount block device %s at %s", devPath, v.GuestPath)
			}
			continue
		}

		if err := unix.Mount(v.Tag, v.GuestPath, "virtiofs", flags, ""); err != nil {
			return boxerr.Wrapf(boxerr.Storage, err, "mount virtiofs tag %s at %s", v.Tag, v.GuestPath)
		}
	}
	return nil
}

// realizeRootfs implements the three rootfs strategies Guest.Init accepts
// (spec §4.9): a merged reference directory needs no extra mount; an
// overlay is assembled from declared lower directories (optionally copied
// to a writable location first) plus upper/work/merged; a disk-backed
// rootfs is already mounted as the guest's block-device root by the time
// Guest.Init runs, so there is nothing left to do.
func realizeRootfs(req *rpc.GuestInitRequest) (string, error) {
	switch req.RootfsStrategy {
	case rpc.RootfsStrategyDisk, rpc.RootfsStrategyMergedRef:
		return "/", nil
	case rpc.RootfsStrategyOverlay:
		return assembleOverlay(req)
	default:
		return "", boxerr.Newf(boxerr.Config, "unknown rootfs strategy %q", req.RootfsStrategy)
	}
}

func assembleOverlay(req *rpc.GuestInitRequest) (string, error) {
	lowers := req.OverlayLowers
	if req.CopyLowersFirst {
		copied, err := copyLowersToWritable(lowers, req.OverlayUpper)
		if err != nil {
			return "", err
		}
		lowers = copied
	}

	for _, dir := range []string{req.OverlayUpper, req.OverlayWork, req.OverlayMerged} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec
			return "", boxerr.Wrapf(boxerr.Storage, err, "create overlay dir %s", dir)
		}
	}

	opts := "lowerdir=" + joinColon(lowers) + ",upperdir=" + req.OverlayUpper + ",workdir=" + req.OverlayWork
	if err := unix.Mount("overlay", req.OverlayMerged, "overlay", 0, opts); err != nil {
		return "", boxerr.Wrapf(boxerr.Storage, err, "mount overlay at %s", req.OverlayMerged)
	}
	return req.OverlayMerged, nil
}

// copyLowersToWritable is the "optionally copy lower dirs to a writable
// location" branch of spec §4.9 — used when the lower layers live on a
// read-only medium the guest cannot overlay-mount directly.
func copyLowersToWritable(lowers []string, destRoot string) ([]string, error) {
	out := make([]string, 0, len(lowers))
	for i, lower := range lowers {
		dest := destRoot + "-lower-" + itoa(i)
		if err := copyTree(lower, dest); err != nil {
			return nil, err
		}
		out = append(out, dest)
	}
	return out, nil
}

func joinColon(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ":"
		}
		out += p
	}
	return out
}

// copyTree recursively copies src onto dst, preserving mode bits and
// symlinks. Used only for the CopyLowersFirst branch of assembleOverlay,
// where lower layers live on read-only media the guest cannot overlay
// directly.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		default:
			return copyFile(path, target, info.Mode().Perm())
		}
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src) //nolint:gosec
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil { //nolint:gosec
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm) //nolint:gosec
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := ""
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}
	return digits
}
