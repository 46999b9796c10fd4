package initpipeline

import (
	"os"

	"github.com/boxlite/boxlite/internal/boxerr"
	"github.com/boxlite/boxlite/layout"
	"github.com/boxlite/boxlite/types"
)

// resolvedVolume is a user-declared VolumeSpec after tag assignment and
// host-path validation (original_source's ResolvedVolume).
type resolvedVolume struct {
	Tag       string
	HostPath  string
	GuestPath string
	ReadOnly  bool
}

// filesystemResult is what the filesystem-prep stage contributes to config
// assembly: the box's own directories plus every resolved user volume.
type filesystemResult struct {
	volumes []resolvedVolume
}

// prepareFilesystem creates the box's directory tree and validates every
// user-declared volume (spec §5 "filesystem prep" arm of the parallel
// join).
func prepareFilesystem(l *layout.Layout, boxID string, volumes []types.VolumeSpec) (filesystemResult, error) {
	if err := l.PrepareBoxDirs(boxID); err != nil {
		return filesystemResult{}, boxerr.Wrapf(boxerr.Storage, err, "prepare directories for box %s", boxID)
	}

	resolved := make([]resolvedVolume, 0, len(volumes))
	for i, v := range volumes {
		info, err := os.Stat(v.HostPath)
		if err != nil {
			return filesystemResult{}, boxerr.Wrapf(boxerr.Config, err, "volume host path %s", v.HostPath)
		}
		if !info.IsDir() {
			return filesystemResult{}, boxerr.Newf(boxerr.Config, "volume host path %s is not a directory", v.HostPath)
		}
		resolved = append(resolved, resolvedVolume{
			Tag:       types.UserVolumeTag(i),
			HostPath:  v.HostPath,
			GuestPath: v.GuestPath,
			ReadOnly:  v.ReadOnly,
		})
	}
	return filesystemResult{volumes: resolved}, nil
}
