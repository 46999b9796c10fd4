package shim

import (
	"fmt"
	"os"
	"strconv"

	"github.com/boxlite/boxlite/internal/boxerr"
	"github.com/boxlite/boxlite/utils"
)

// HardenOptions configures the pre-exec hardening the shim applies to
// itself before entering the VmmDriver (spec §4.7 step 5).
type HardenOptions struct {
	// PIDFilePath is where the shim's own PID is recorded
	// ({box_dir}/shim.pid). Empty skips the write.
	PIDFilePath string
	// CgroupProcsPath, if set, is a pre-created cgroup.procs file the shim
	// joins by writing its own PID into it. Empty skips cgroup membership
	// (e.g. on macOS, or when no cgroup was prepared for this box).
	CgroupProcsPath string
	// Rlimits is a list of "RLIMIT_NAME=soft:hard" entries, matching the
	// same string shape libkrun's own set_rlimits call takes.
	Rlimits []string
}

// Harden applies every step of spec §4.7's pre-exec hardening in order: FD
// cleanup, rlimits, cgroup membership, PID file.
func Harden(opts HardenOptions) error {
	if err := closeInheritedFDs(); err != nil {
		return boxerr.Wrap(boxerr.Internal, "close inherited file descriptors", err)
	}
	if err := applyRlimits(opts.Rlimits); err != nil {
		return boxerr.Wrap(boxerr.Internal, "apply rlimits", err)
	}
	if opts.CgroupProcsPath != "" {
		if err := joinCgroup(opts.CgroupProcsPath); err != nil {
			return boxerr.Wrapf(boxerr.Internal, err, "join cgroup %s", opts.CgroupProcsPath)
		}
	}
	if opts.PIDFilePath != "" {
		if err := utils.WritePIDFile(opts.PIDFilePath, os.Getpid()); err != nil {
			return boxerr.Wrapf(boxerr.Internal, err, "write pid file %s", opts.PIDFilePath)
		}
	}
	return nil
}

func joinCgroup(cgroupProcsPath string) error {
	return os.WriteFile(cgroupProcsPath, []byte(strconv.Itoa(os.Getpid())), 0o644) //nolint:gosec
}

// parseRlimitEntry splits a "RLIMIT_NAME=soft:hard" entry. "unlimited" is
// accepted for either bound, matching libkrun's own accepted spelling.
func parseRlimitEntry(entry string) (name string, soft, hard uint64, err error) {
	var soKey, rest string
	for i := 0; i < len(entry); i++ {
		if entry[i] == '=' {
			soKey, rest = entry[:i], entry[i+1:]
			break
		}
	}
	if soKey == "" || rest == "" {
		return "", 0, 0, fmt.Errorf("malformed rlimit entry %q", entry)
	}
	var softStr, hardStr string
	for i := 0; i < len(rest); i++ {
		if rest[i] == ':' {
			softStr, hardStr = rest[:i], rest[i+1:]
			break
		}
	}
	if softStr == "" || hardStr == "" {
		return "", 0, 0, fmt.Errorf("malformed rlimit bounds %q", rest)
	}
	soft, err = parseRlimitBound(softStr)
	if err != nil {
		return "", 0, 0, err
	}
	hard, err = parseRlimitBound(hardStr)
	if err != nil {
		return "", 0, 0, err
	}
	return soKey, soft, hard, nil
}

func parseRlimitBound(s string) (uint64, error) {
	if s == "unlimited" {
		return ^uint64(0), nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid rlimit bound %q: %w", s, err)
	}
	return v, nil
}
