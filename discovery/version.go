package discovery

import "fmt"

// compatibilityMask keeps the major and minor components of a packed version.
const compatibilityMask uint64 = 0xFFFFFFFF00000000

// PackVersion packs a four part build version into the advertised 64-bit
// form, 16 bits per part from major down to build.
func PackVersion(major, minor, patch, build uint16) uint64 {
	return uint64(major)<<48 | uint64(minor)<<32 | uint64(patch)<<16 | uint64(build)
}

// UnpackVersion splits a packed version.
func UnpackVersion(v uint64) (major, minor, patch, build uint16) {
	return uint16(v >> 48), uint16(v >> 32), uint16(v >> 16), uint16(v)
}

// VersionString formats a packed version as major.minor.patch.build.
func VersionString(v uint64) string {
	major, minor, patch, build := UnpackVersion(v)
	return fmt.Sprintf("%d.%d.%d.%d", major, minor, patch, build)
}

// IsCompatible reports whether two builds can play together. Patch and
// build components are ignored.
func IsCompatible(local, remote uint64) bool {
	return local&compatibilityMask == remote&compatibilityMask
}
