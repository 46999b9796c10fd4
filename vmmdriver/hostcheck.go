package vmmdriver

import (
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/boxlite/boxlite/internal/boxerr"
)

const kvmDevice = "/dev/kvm"

// VirtualizationSupport confirms the host can run a microVM.
type VirtualizationSupport struct {
	Reason string
}

// CheckVirtualizationSupport validates platform prerequisites before any
// box is created — KVM on Linux, Hypervisor.framework on macOS — so boxes
// fail fast with an actionable diagnostic rather than an opaque libkrun
// error partway through init (spec §4.6 "Validate Early").
func CheckVirtualizationSupport() (VirtualizationSupport, error) {
	switch runtime.GOOS {
	case "linux":
		return checkLinuxKVM()
	case "darwin":
		return checkMacOSHypervisor()
	default:
		return VirtualizationSupport{}, boxerr.Newf(boxerr.Unsupported, "BoxLite only supports Linux and macOS, not %s", runtime.GOOS)
	}
}

func checkLinuxKVM() (VirtualizationSupport, error) {
	if _, err := os.Stat(kvmDevice); os.IsNotExist(err) {
		suggestion := kvmDevice + " does not exist\n\n" +
			"Suggestions:\n" +
			"- Enable virtualization in your BIOS/UEFI settings (VT-x for Intel, AMD-V for AMD)\n" +
			"- Ensure your kernel is compiled with KVM support\n" +
			"- Check if the kvm module is loaded: lsmod | grep kvm\n" +
			"- Try: sudo modprobe kvm_intel   # Intel\n" +
			"       sudo modprobe kvm_amd     # AMD"
		if _, wslErr := os.Stat("/proc/sys/fs/binfmt_misc/WSLInterop"); wslErr == nil {
			suggestion += "\n\nWSL2 detected:\n" +
				"- Requires Windows 11 or Windows 10 build 21390+\n" +
				"- Enable nested virtualization: add 'nestedVirtualization=true' to .wslconfig\n" +
				"- Restart WSL: wsl --shutdown"
		}
		return VirtualizationSupport{}, boxerr.New(boxerr.Unsupported, suggestion)
	}

	f, err := os.OpenFile(kvmDevice, os.O_RDWR, 0)
	if err != nil {
		if os.IsPermission(err) {
			return VirtualizationSupport{}, boxerr.Newf(boxerr.Unsupported,
				"%s exists but access denied (permissions)\n\n"+
					"Suggestions:\n"+
					"- Add your user to the kvm group: sudo usermod -aG kvm $USER\n"+
					"- Log out and log back in for group changes to take effect\n"+
					"- Verify group membership: groups\n"+
					"- Check permissions: ls -l %s", kvmDevice, kvmDevice)
		}
		return VirtualizationSupport{}, boxerr.Newf(boxerr.Unsupported,
			"%s exists but couldn't be accessed: %v\n\n"+
				"Suggestions:\n"+
				"- Check if another VM process is locking the device\n"+
				"- Review system logs: dmesg | tail -50\n"+
				"- Ensure KVM modules are loaded correctly", kvmDevice, err)
	}
	_ = f.Close()

	return VirtualizationSupport{Reason: "KVM is available and accessible"}, nil
}

func checkMacOSHypervisor() (VirtualizationSupport, error) {
	if runtime.GOARCH != "arm64" {
		return VirtualizationSupport{}, boxerr.Newf(boxerr.Unsupported,
			"Unsupported architecture: %s\n\n"+
				"Suggestions:\n"+
				"- BoxLite on macOS requires Apple Silicon (ARM64)\n"+
				"- Intel Macs are not supported", runtime.GOARCH)
	}

	out, err := exec.Command("sysctl", "kern.hv_support").Output()
	if err != nil {
		return VirtualizationSupport{}, boxerr.Wrap(boxerr.Unsupported,
			"Failed to check Hypervisor.framework support\n\n"+
				"Suggestions:\n"+
				"- Verify macOS version and system integrity\n"+
				"- Check manually: sysctl kern.hv_support", err)
	}

	fields := strings.SplitN(string(out), ":", 2)
	value := "0"
	if len(fields) == 2 {
		value = strings.TrimSpace(fields[1])
	}

	if value == "1" {
		return VirtualizationSupport{Reason: "Hypervisor.framework is available (Apple Silicon)"}, nil
	}
	return VirtualizationSupport{}, boxerr.New(boxerr.Unsupported,
		"Hypervisor.framework is not available\n\n"+
			"Suggestions:\n"+
			"- Verify you're on macOS 10.10 or later\n"+
			"- Check system requirements: sysctl kern.hv_support\n"+
			"- Ensure virtualization is enabled in your system settings")
}
