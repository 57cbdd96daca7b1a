//go:build linux

package storage

import "syscall"

// statfs magic numbers for network filesystems.
var linuxFSMagic = map[int64]string{
	0x6969:     "nfs",
	0xFF534D42: "cifs",
	0x517B:     "smbfs",
	0xFE534D42: "smb2",
}

func filesystemType(path string) (string, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return "", err
	}
	if name, ok := linuxFSMagic[int64(stat.Type)]; ok {
		return name, nil
	}
	return "local", nil
}
