package sources

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v4/disk"
)

// SystemVolumes lists the volumes mounted on this machine.
type SystemVolumes struct{}

var _ VolumeLister = SystemVolumes{}

func (SystemVolumes) Volumes(ctx context.Context) ([]Volume, error) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, errors.Wrap(err, "listing partitions")
	}
	out := make([]Volume, 0, len(parts))
	for _, p := range parts {
		out = append(out, Volume{MountPoint: p.Mountpoint, Removable: isRemovable(p)})
	}
	return out, nil
}

const sysBlockDir = "/sys/class/block"

func isRemovable(p disk.PartitionStat) bool {
	return removable(runtime.GOOS, sysBlockDir, os.Getenv("SystemDrive"), p)
}

// removable guesses whether a partition is on removable media.
// The operating systems disagree on how to tell,
// and gopsutil does not report it.
func removable(goos, sysBlock, sysDrive string, p disk.PartitionStat) bool {
	switch goos {
	case "linux":
		if sysfsRemovable(sysBlock, p.Device) {
			return true
		}
		return strings.HasPrefix(p.Mountpoint, "/media/") || strings.HasPrefix(p.Mountpoint, "/run/media/")

	case "darwin":
		return strings.HasPrefix(p.Mountpoint, "/Volumes/")

	case "windows":
		sys := strings.ToUpper(sysDrive)
		if sys == "" {
			sys = "C:"
		}
		if strings.HasPrefix(strings.ToUpper(p.Mountpoint), sys) {
			return false
		}
		switch strings.ToUpper(p.Fstype) {
		case "FAT", "FAT32", "EXFAT":
			return true
		}
	}
	return false
}

// sysfsRemovable reads the kernel's removable flag for a block device.
// Entries in sysBlock are symlinks into the device tree.
// A partition like sdb1 has no flag of its own;
// it is a subdirectory of its disk, which does.
func sysfsRemovable(sysBlock, device string) bool {
	if !strings.HasPrefix(device, "/dev/") {
		return false
	}
	link := filepath.Join(sysBlock, filepath.Base(device))
	if flag, ok := readFlag(filepath.Join(link, "removable")); ok {
		return flag
	}
	dev, err := filepath.EvalSymlinks(link)
	if err != nil {
		return false
	}
	flag, _ := readFlag(filepath.Join(filepath.Dir(dev), "removable"))
	return flag
}

func readFlag(path string) (flag, ok bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return false, false
	}
	return strings.TrimSpace(string(b)) == "1", true
}
