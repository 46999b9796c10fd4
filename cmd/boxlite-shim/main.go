// Command boxlite-shim is the universal box runner binary: shimcontroller
// spawns one per box with --engine/--config <json>, it builds the VmmDriver
// matching --engine, and hands off to shim.Run, which never returns on a
// successful boot (spec §4.7 "process takeover").
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/boxlite/boxlite/internal/boxerr"
	"github.com/boxlite/boxlite/shim"
	"github.com/boxlite/boxlite/types"
	"github.com/boxlite/boxlite/vmmdriver"
)

func main() {
	engineKind := flag.String("engine", "", "VMM engine kind (libkrun)")
	configJSON := flag.String("config", "", "InstanceSpec as a JSON string")
	networkBinary := flag.String("network-binary", "", "network backend binary path")
	cgroupProcs := flag.String("cgroup-procs", "", "cgroup.procs path to join")
	pidFile := flag.String("pid-file", "", "path to write this process's pid")
	rlimits := flag.String("rlimits", "", "comma-separated NAME=SOFT:HARD rlimit overrides")
	flag.Parse()

	if err := run(*engineKind, *configJSON, *networkBinary, *cgroupProcs, *pidFile, *rlimits); err != nil {
		fmt.Fprintf(os.Stderr, "boxlite-shim: %v\n", err)
		os.Exit(1)
	}
}

func run(engineKind, configJSON, networkBinary, cgroupProcs, pidFile, rlimits string) error {
	var spec types.InstanceSpec
	if err := json.Unmarshal([]byte(configJSON), &spec); err != nil {
		return boxerr.Wrap(boxerr.Config, "parse --config", err)
	}

	closer := shim.InitLogging(spec.HomeDir, spec.BoxID)
	defer closer.Close() //nolint:errcheck

	driver, err := newDriver(engineKind)
	if err != nil {
		return err
	}

	var rlimitList []string
	if rlimits != "" {
		rlimitList = splitNonEmpty(rlimits, ',')
	}

	opts := shim.RunOptions{
		NetworkBinaryPath: networkBinary,
		CgroupProcsPath:   cgroupProcs,
		Rlimits:           rlimitList,
		PIDFilePath:       pidFile,
	}

	return shim.Run(context.Background(), spec, driver, opts)
}

// newDriver resolves the VmmDriver for engineKind. No libkrun headers were
// available to bind against in this transformation (see vmmdriver package
// doc); a production build adds a cgo-backed case here without touching
// vmmdriver's own contract.
func newDriver(engineKind string) (vmmdriver.VmmDriver, error) {
	switch engineKind {
	case "libkrun":
		return nil, boxerr.Newf(boxerr.Config, "engine %q has no compiled driver binding in this build", engineKind)
	default:
		return nil, boxerr.Newf(boxerr.Config, "unsupported engine %q", engineKind)
	}
}

func splitNonEmpty(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
