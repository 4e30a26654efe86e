package archive

import (
	"fmt"
	"strings"
)

var unsafeChars = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", `"`, "_",
	"/", "_", `\`, "_", "|", "_", "?", "_", "*", "_",
)

// SanitizeName replaces characters that are unsafe in file names and appends
// .pdf when the name has no extension.
func SanitizeName(name string) string {
	name = strings.TrimSpace(unsafeChars.Replace(name))
	if !strings.Contains(name, ".") {
		name += defaultExtension
	}
	return name
}

// splitExt splits at the last dot so earlier dots stay in the base.
func splitExt(name string) (base, ext string) {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return name, ""
	}
	return name[:i], name[i:]
}

// Namer hands out unique entry names within one archive.
type Namer struct {
	used   map[string]struct{}
	counts map[string]int
}

// NewNamer returns an empty namer.
func NewNamer() *Namer {
	return &Namer{used: make(map[string]struct{}), counts: make(map[string]int)}
}

// Next returns name, or "base (n).ext" when name was already handed out.
// Counters are kept per base name and start at 1.
func (n *Namer) Next(name string) string {
	if _, dup := n.used[name]; !dup {
		n.used[name] = struct{}{}
		return name
	}

	base, ext := splitExt(name)
	for {
		c := max(n.counts[base], 1)
		n.counts[base] = c + 1
		candidate := fmt.Sprintf("%s (%d)%s", base, c, ext)
		if _, dup := n.used[candidate]; !dup {
			n.used[candidate] = struct{}{}
			return candidate
		}
	}
}
