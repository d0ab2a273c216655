package agent

import (
	"path/filepath"
	"strings"
)

// massageDestinationPath applies the agent-side path substitution rule
// from spec §4.3: a leading ~ expands to home; a relative first path
// segment matched against the configured destinations map is
// substituted; anything else (including an absolute path) is used
// verbatim.
func massageDestinationPath(home string, destinations map[string]string, dest string) string {
	if strings.HasPrefix(dest, "~") {
		return strings.Replace(dest, "~", home, 1)
	}
	if filepath.IsAbs(dest) {
		return dest
	}

	if slash := strings.IndexByte(dest, '/'); slash >= 0 {
		first, rest := dest[:slash], dest[slash+1:]
		return filepath.Join(specialDestinationPrefix(destinations, first), rest)
	}
	return specialDestinationPrefix(destinations, dest)
}

func specialDestinationPrefix(destinations map[string]string, first string) string {
	if v, ok := destinations[first]; ok {
		return v
	}
	return first
}
