package pool

import (
	"strconv"
	"strings"

	"github.com/cavaliergopher/rpm"
)

// Edition is an rpm epoch:version-release triple.
type Edition struct {
	epoch   int
	version string
	release string
}

var _ rpm.Version = Edition{}

func NewEdition(epoch int, version, release string) Edition {
	return Edition{epoch: epoch, version: version, release: release}
}

// ParseEdition reads "[epoch:]version[-release]".
func ParseEdition(s string) Edition {
	var e Edition
	if i := strings.Index(s, ":"); i > 0 {
		if n, err := strconv.Atoi(s[:i]); err == nil {
			e.epoch = n
			s = s[i+1:]
		}
	}
	if i := strings.LastIndex(s, "-"); i >= 0 {
		e.version, e.release = s[:i], s[i+1:]
	} else {
		e.version = s
	}
	return e
}

func (e Edition) Epoch() int      { return e.epoch }
func (e Edition) Version() string { return e.version }
func (e Edition) Release() string { return e.release }
func (e Edition) IsZero() bool    { return e.version == "" && e.release == "" && e.epoch == 0 }

func (e Edition) String() string {
	var b strings.Builder
	if e.epoch > 0 {
		b.WriteString(strconv.Itoa(e.epoch))
		b.WriteByte(':')
	}
	b.WriteString(e.version)
	if e.release != "" {
		b.WriteByte('-')
		b.WriteString(e.release)
	}
	return b.String()
}

// Compare orders editions with rpm semantics: -1, 0 or 1.
func Compare(a, b Edition) int {
	return rpm.Compare(a, b)
}

// CompareStrings parses and compares two edition strings.
func CompareStrings(a, b string) int {
	return Compare(ParseEdition(a), ParseEdition(b))
}
