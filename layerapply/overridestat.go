package layerapply

import (
	"archive/tar"
	"fmt"
	"strconv"
	"strings"
)

// overrideStatXattr is the xattr containers/storage reads to recover
// ownership and mode that could not be applied directly while running
// unprivileged (spec §4.3: "record intended ownership in an extended
// attribute user.containers.override_stat").
const overrideStatXattr = "user.containers.override_stat"

// overrideFileType tags the entry kind encoded in an override_stat value.
type overrideFileType struct {
	kind        string // file, dir, symlink, pipe, socket, block, char
	major, minor uint32
}

func overrideTypeFromEntry(typ byte, major, minor int64) overrideFileType {
	switch typ {
	case tar.TypeDir:
		return overrideFileType{kind: "dir"}
	case tar.TypeSymlink:
		return overrideFileType{kind: "symlink"}
	case tar.TypeFifo:
		return overrideFileType{kind: "pipe"}
	case tar.TypeBlock:
		return overrideFileType{kind: "block", major: uint32(major), minor: uint32(minor)}
	case tar.TypeChar:
		return overrideFileType{kind: "char", major: uint32(major), minor: uint32(minor)}
	default:
		return overrideFileType{kind: "file"}
	}
}

func (t overrideFileType) format() string {
	switch t.kind {
	case "block", "char":
		return fmt.Sprintf("%s-%d-%d", t.kind, t.major, t.minor)
	default:
		return t.kind
	}
}

// overrideStat is the parsed/formatted form of the override_stat xattr
// value: "uid:gid:mode:type".
type overrideStat struct {
	uid, gid uint32
	mode     uint32
	fileType overrideFileType
}

func (s overrideStat) format() string {
	return fmt.Sprintf("%d:%d:%04o:%s", s.uid, s.gid, s.mode&0o7777, s.fileType.format())
}

func parseOverrideStat(s string) (overrideStat, bool) {
	parts := strings.SplitN(s, ":", 4)
	if len(parts) < 4 {
		return overrideStat{}, false
	}
	uid, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return overrideStat{}, false
	}
	gid, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return overrideStat{}, false
	}
	mode, err := strconv.ParseUint(parts[2], 8, 32)
	if err != nil {
		return overrideStat{}, false
	}
	ft, ok := parseOverrideFileType(parts[3])
	if !ok {
		return overrideStat{}, false
	}
	return overrideStat{uid: uint32(uid), gid: uint32(gid), mode: uint32(mode), fileType: ft}, true
}

func parseOverrideFileType(s string) (overrideFileType, bool) {
	switch {
	case s == "file", s == "dir", s == "symlink", s == "pipe", s == "socket":
		return overrideFileType{kind: s}, true
	case strings.HasPrefix(s, "block-"), strings.HasPrefix(s, "char-"):
		kind, rest, _ := strings.Cut(s, "-")
		majorStr, minorStr, ok := strings.Cut(rest, "-")
		if !ok {
			return overrideFileType{}, false
		}
		major, err1 := strconv.ParseUint(majorStr, 10, 32)
		minor, err2 := strconv.ParseUint(minorStr, 10, 32)
		if err1 != nil || err2 != nil {
			return overrideFileType{}, false
		}
		return overrideFileType{kind: kind, major: uint32(major), minor: uint32(minor)}, true
	default:
		return overrideFileType{}, false
	}
}
