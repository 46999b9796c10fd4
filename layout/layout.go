// Package layout computes the deterministic directory scheme rooted at a
// runtime's home directory. Operations here are pure path arithmetic; the
// only I/O is in Prepare/Cleanup.
package layout

import (
	"os"
	"path/filepath"
)

const dirMode = 0o750

// Layout resolves every on-disk path used by a single BoxLite runtime.
// All paths are derived from HomeDir; nothing here mutates process state.
type Layout struct {
	home string
}

// New returns a Layout rooted at homeDir. homeDir is used verbatim (callers
// are expected to have already expanded "~" and made it absolute).
func New(homeDir string) *Layout {
	return &Layout{home: homeDir}
}

// HomeDir returns the runtime's root directory ($HOME/.boxlite by default).
func (l *Layout) HomeDir() string { return l.home }

// HomeLock is the home-wide lock file preventing two runtimes from sharing
// a home directory concurrently.
func (l *Layout) HomeLock() string { return filepath.Join(l.home, ".lock") }

func (l *Layout) BoxesDir() string  { return filepath.Join(l.home, "boxes") }
func (l *Layout) ImagesDir() string { return filepath.Join(l.home, "images") }
func (l *Layout) TempDir() string   { return filepath.Join(l.home, "tmp") }
func (l *Layout) LogsDir() string   { return filepath.Join(l.home, "logs") }

// BoxRegistryFile and BoxRegistryLock back the BoxManager's persisted
// registry store.
func (l *Layout) BoxRegistryFile() string { return filepath.Join(l.home, "boxes.json") }
func (l *Layout) BoxRegistryLock() string { return filepath.Join(l.home, "boxes.lock") }

// BoxDir is the per-box root: boxes/<BoxId>/.
func (l *Layout) BoxDir(boxID string) string { return filepath.Join(l.BoxesDir(), boxID) }

func (l *Layout) BoxDiskPath(boxID string) string {
	return filepath.Join(l.BoxDir(boxID), "disk.qcow2")
}

func (l *Layout) BoxGuestRootfsPath(boxID string) string {
	return filepath.Join(l.BoxDir(boxID), "guest-rootfs.qcow2")
}

func (l *Layout) BoxSharedDir(boxID string) string {
	return filepath.Join(l.BoxDir(boxID), "shared")
}

func (l *Layout) BoxSocketsDir(boxID string) string {
	return filepath.Join(l.BoxDir(boxID), "sockets")
}

func (l *Layout) BoxSocketPath(boxID string) string {
	return filepath.Join(l.BoxSocketsDir(boxID), "box.sock")
}

func (l *Layout) BoxReadySocketPath(boxID string) string {
	return filepath.Join(l.BoxSocketsDir(boxID), "ready.sock")
}

func (l *Layout) BoxShimPIDFile(boxID string) string {
	return filepath.Join(l.BoxDir(boxID), "shim.pid")
}

func (l *Layout) BoxLockFile(boxID string) string {
	return filepath.Join(l.BoxDir(boxID), "lock")
}

func (l *Layout) BoxBinDir(boxID string) string {
	return filepath.Join(l.BoxDir(boxID), "bin")
}

func (l *Layout) BoxLogFile(boxID string) string {
	return filepath.Join(l.LogsDir(), boxID+".log")
}

// Image cache paths, keyed by content digest (hex, no "sha256:" prefix).

func (l *Layout) ImageDir(digestHex string) string {
	return filepath.Join(l.ImagesDir(), digestHex)
}

func (l *Layout) ImageManifestFile(digestHex string) string {
	return filepath.Join(l.ImageDir(digestHex), "manifest.json")
}

func (l *Layout) ImageConfigFile(digestHex string) string {
	return filepath.Join(l.ImageDir(digestHex), "config.json")
}

func (l *Layout) ImageLayersDir(digestHex string) string {
	return filepath.Join(l.ImageDir(digestHex), "layers")
}

func (l *Layout) ImageLayerDir(digestHex, layerDigestHex string) string {
	return filepath.Join(l.ImageLayersDir(digestHex), layerDigestHex)
}

func (l *Layout) ImageDiskFile(digestHex string) string {
	return filepath.Join(l.ImageDir(digestHex), "disk.ext4")
}

func (l *Layout) ImageIndexFile() string { return filepath.Join(l.ImagesDir(), "index.json") }
func (l *Layout) ImageIndexLock() string { return filepath.Join(l.ImagesDir(), "index.lock") }

// Prepare creates every static directory this layout requires. Per-box and
// per-image directories are created on demand by their owning components.
func (l *Layout) Prepare() error {
	dirs := []string{
		l.home,
		l.BoxesDir(),
		l.ImagesDir(),
		l.TempDir(),
		l.LogsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, dirMode); err != nil {
			return err
		}
	}
	return nil
}

// PrepareBoxDirs creates the directories a single box needs before disks
// and sockets are written into it.
func (l *Layout) PrepareBoxDirs(boxID string) error {
	dirs := []string{
		l.BoxDir(boxID),
		l.BoxSharedDir(boxID),
		l.BoxSocketsDir(boxID),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, dirMode); err != nil {
			return err
		}
	}
	return nil
}

// PrepareImageDirs creates the directories a single cached image needs.
func (l *Layout) PrepareImageDirs(digestHex string) error {
	dirs := []string{
		l.ImageDir(digestHex),
		l.ImageLayersDir(digestHex),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, dirMode); err != nil {
			return err
		}
	}
	return nil
}

// CleanupBoxDir removes a box's directory tree entirely. Called by the
// init pipeline's cleanup guard and by BoxManager.Remove.
func (l *Layout) CleanupBoxDir(boxID string) error {
	return os.RemoveAll(l.BoxDir(boxID))
}
