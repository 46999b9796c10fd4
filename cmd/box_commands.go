package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/boxlite/boxlite"
	"github.com/boxlite/boxlite/types"
)

func createCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create [flags] IMAGE",
		Short: "Create and start a box from an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image := args[0]

			cpu, _ := cmd.Flags().GetInt("cpu")
			memStr, _ := cmd.Flags().GetString("memory")
			storStr, _ := cmd.Flags().GetString("storage")
			envPairs, _ := cmd.Flags().GetStringArray("env")
			volumeSpecs, _ := cmd.Flags().GetStringArray("volume")
			portSpecs, _ := cmd.Flags().GetStringArray("publish")
			labelPairs, _ := cmd.Flags().GetStringArray("label")
			detach, _ := cmd.Flags().GetBool("detach")
			workdir, _ := cmd.Flags().GetString("workdir")

			memBytes, err := units.RAMInBytes(memStr)
			if err != nil {
				return fmt.Errorf("invalid --memory %q: %w", memStr, err)
			}
			storBytes, err := units.RAMInBytes(storStr)
			if err != nil {
				return fmt.Errorf("invalid --storage %q: %w", storStr, err)
			}

			env, err := parsePairs(envPairs)
			if err != nil {
				return fmt.Errorf("invalid --env: %w", err)
			}
			labels, err := parsePairs(labelPairs)
			if err != nil {
				return fmt.Errorf("invalid --label: %w", err)
			}
			volumes, err := parseVolumes(volumeSpecs)
			if err != nil {
				return fmt.Errorf("invalid --volume: %w", err)
			}
			ports, err := parsePorts(portSpecs)
			if err != nil {
				return fmt.Errorf("invalid --publish: %w", err)
			}

			meta, err := engine.Create(cmd.Context(), boxlite.BoxOptions{
				ImageRef:   image,
				CPUs:       cpu,
				MemoryMiB:  memBytes >> 20, //nolint:mnd
				DiskSizeGB: storBytes >> 30, //nolint:mnd
				WorkingDir: workdir,
				Env:        env,
				Volumes:    volumes,
				Ports:      ports,
				Labels:     labels,
				Detach:     detach,
			})
			if err != nil {
				return fmt.Errorf("create box: %w", err)
			}

			fmt.Printf("Box created: %s (image: %s)\n", meta.ID, meta.ImageRef)
			return nil
		},
	}
	cmd.Flags().Int("cpu", 1, "boot CPUs")                 //nolint:mnd
	cmd.Flags().String("memory", "512M", "memory size")     //nolint:mnd
	cmd.Flags().String("storage", "10G", "container disk size") //nolint:mnd
	cmd.Flags().StringArray("env", nil, "environment variable KEY=VALUE (repeatable)")
	cmd.Flags().StringArray("volume", nil, "bind mount HOST_PATH:GUEST_PATH[:ro] (repeatable)")
	cmd.Flags().StringArray("publish", nil, "port mapping [HOST_PORT:]GUEST_PORT[/tcp|udp] (repeatable)")
	cmd.Flags().StringArray("label", nil, "label KEY=VALUE (repeatable)")
	cmd.Flags().Bool("detach", true, "run the box's guest console detached")
	cmd.Flags().String("workdir", "", "container working directory (defaults to the image's)")
	return cmd
}

func psCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ps",
		Aliases: []string{"list", "ls"},
		Short:   "List boxes with status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			boxes, err := engine.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(boxes) == 0 {
				fmt.Println("No boxes found.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tCPU\tMEMORY\tIMAGE\tCREATED")
			for _, b := range boxes {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
					truncateID(b.Metadata.ID, 12), //nolint:mnd
					b.State.Status,
					b.Metadata.CPUs,
					units.BytesSize(float64(b.Metadata.MemoryMiB<<20)), //nolint:mnd
					b.Metadata.ImageRef,
					b.Metadata.CreatedAt.Local().Format(time.DateTime),
				)
			}
			return w.Flush()
		},
	}
	return cmd
}

func stopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop BOX [BOX...]",
		Short: "Stop running box(es)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			grace := time.Duration(stopTimeout()) * time.Second
			var errs []string
			for _, ref := range args {
				if err := engine.Stop(cmd.Context(), ref, grace); err != nil {
					errs = append(errs, fmt.Sprintf("%s: %v", ref, err))
					continue
				}
				fmt.Printf("Stopped: %s\n", ref)
			}
			if len(errs) > 0 {
				return fmt.Errorf("stop: %s", strings.Join(errs, "; "))
			}
			return nil
		},
	}
}

func rmCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm [flags] BOX [BOX...]",
		Short: "Delete box(es)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			var errs []string
			for _, ref := range args {
				if force {
					_ = engine.Stop(cmd.Context(), ref, time.Duration(stopTimeout())*time.Second)
				}
				if err := engine.Remove(cmd.Context(), ref); err != nil {
					errs = append(errs, fmt.Sprintf("%s: %v", ref, err))
					continue
				}
				fmt.Printf("Deleted: %s\n", ref)
			}
			if len(errs) > 0 {
				return fmt.Errorf("rm: %s", strings.Join(errs, "; "))
			}
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "stop running box(es) first")
	return cmd
}

func parsePairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("expected KEY=VALUE, got %q", p)
		}
		out[k] = v
	}
	return out, nil
}

func parseVolumes(specs []string) ([]types.VolumeSpec, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	out := make([]types.VolumeSpec, 0, len(specs))
	for _, spec := range specs {
		parts := strings.Split(spec, ":")
		if len(parts) < 2 { //nolint:mnd
			return nil, fmt.Errorf("expected HOST_PATH:GUEST_PATH[:ro], got %q", spec)
		}
		v := types.VolumeSpec{HostPath: parts[0], GuestPath: parts[1]}
		if len(parts) > 2 && parts[2] == "ro" { //nolint:mnd
			v.ReadOnly = true
		}
		out = append(out, v)
	}
	return out, nil
}

func parsePorts(specs []string) ([]types.PortMapping, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	out := make([]types.PortMapping, 0, len(specs))
	for _, spec := range specs {
		proto := types.ProtoTCP
		portPart := spec
		if host, p, ok := strings.Cut(spec, "/"); ok {
			portPart = host
			switch strings.ToLower(p) {
			case "udp":
				proto = types.ProtoUDP
			case "tcp":
				proto = types.ProtoTCP
			default:
				return nil, fmt.Errorf("unknown protocol %q", p)
			}
		}

		var hostPort, guestPort int
		var err error
		if h, g, ok := strings.Cut(portPart, ":"); ok {
			if hostPort, err = strconv.Atoi(h); err != nil {
				return nil, fmt.Errorf("invalid host port %q", h)
			}
			if guestPort, err = strconv.Atoi(g); err != nil {
				return nil, fmt.Errorf("invalid guest port %q", g)
			}
		} else {
			if guestPort, err = strconv.Atoi(portPart); err != nil {
				return nil, fmt.Errorf("invalid port %q", portPart)
			}
		}
		out = append(out, types.PortMapping{HostPort: hostPort, GuestPort: guestPort, Protocol: proto})
	}
	return out, nil
}
