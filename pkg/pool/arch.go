package pool

import "runtime"

// compat lists, best first, the architectures a system arch can install.
var compat = map[string][]string{
	"x86_64":  {"x86_64", "i686", "i586", "i486", "i386", "noarch"},
	"i686":    {"i686", "i586", "i486", "i386", "noarch"},
	"i586":    {"i586", "i486", "i386", "noarch"},
	"aarch64": {"aarch64", "noarch"},
	"armv7hl": {"armv7hl", "armv7l", "armv6hl", "noarch"},
	"ppc64le": {"ppc64le", "noarch"},
	"ppc64":   {"ppc64", "ppc", "noarch"},
	"s390x":   {"s390x", "s390", "noarch"},
	"riscv64": {"riscv64", "noarch"},
}

var goArch = map[string]string{
	"amd64":   "x86_64",
	"386":     "i686",
	"arm64":   "aarch64",
	"arm":     "armv7hl",
	"ppc64le": "ppc64le",
	"ppc64":   "ppc64",
	"s390x":   "s390x",
	"riscv64": "riscv64",
}

// SystemArch is the rpm architecture of the running machine.
func SystemArch() string {
	if a, ok := goArch[runtime.GOARCH]; ok {
		return a
	}
	return runtime.GOARCH
}

// ArchScore ranks arch for a system arch: lower is better, -1 means
// incompatible. Source packages are always compatible.
func ArchScore(system, arch string) int {
	if arch == "src" || arch == "nosrc" {
		return 0
	}
	list, ok := compat[system]
	if !ok {
		list = []string{system, "noarch"}
	}
	for i, a := range list {
		if a == arch {
			return i
		}
	}
	return -1
}

// ArchCompatible reports whether packages of arch install on system.
func ArchCompatible(system, arch string) bool {
	return ArchScore(system, arch) >= 0
}
