package types

import (
	"runtime"
	"strings"
)

// A Platform is the pair of CPU architecture and operating system
// that a bottle is built for.  OS is either "linux" or the release
// name of a macOS version such as "sonoma".
type Platform struct {
	Arch string
	OS   string
}

// Tag returns the bottle tag for the platform.  Intel macOS tags are
// bare release names, everything else is prefixed with the arch.
func (p Platform) Tag() string {
	if p.IsMacOS() && p.Arch == "x86_64" {
		return p.OS
	}
	return p.Arch + "_" + p.OS
}

func (p Platform) String() string {
	return p.Tag()
}

// IsMacOS is true for any platform whose OS is not linux.
func (p Platform) IsMacOS() bool {
	return p.OS != "linux"
}

// PlatformFromTag returns a platform from its bottle tag.  This is
// the inverse of Tag.
func PlatformFromTag(tag string) Platform {
	for _, arch := range []string{"x86_64", "arm64"} {
		if strings.HasPrefix(tag, arch+"_") {
			return Platform{Arch: arch, OS: strings.TrimPrefix(tag, arch+"_")}
		}
	}
	return Platform{Arch: "x86_64", OS: tag}
}

// HostPlatform returns the platform of the running process.  The Go
// runtime cannot know the macOS release name, so it has to be
// provided by the caller.
func HostPlatform(macOSRelease string) Platform {
	arch := "x86_64"
	if runtime.GOARCH == "arm64" {
		arch = "arm64"
	}
	if runtime.GOOS == "darwin" {
		return Platform{Arch: arch, OS: macOSRelease}
	}
	return Platform{Arch: arch, OS: "linux"}
}
