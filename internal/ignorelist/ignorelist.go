// Package ignorelist generalizes the fixed basename ignore lists from
// spec.md §4.3/§4.6/§4.7 into a small preset+wildcard policy so a project
// can add its own skip patterns on top of the mandatory defaults. The
// mandatory defaults can never be removed through this mechanism — List
// always includes them.
package ignorelist

import "strings"

// BackupDirName is the directory join's pre-sync backup copy is written
// under (spec.md §6 / SPEC_FULL.md §4.14). It is also a mandatory ignore
// entry below, so the backup itself is never treated as project content.
const BackupDirName = ".vasc-collab-backup"

// Mandatory basenames that every walker and watcher skips unconditionally,
// per spec.md. The host set is a superset of the client set.
var (
	HostMandatory   = []string{".git", BackupDirName, "node_modules", ".DS_Store", "Thumbs.db"}
	ClientMandatory = []string{".git", BackupDirName, "node_modules"}
)

// Presets are named groups of extra basenames a project can opt into via
// "--ignore unity" or the config file's extra_ignore list.
var Presets = map[string][]string{
	"unity": {"Library", "Temp", "Obj", "Logs"},
	"node":  {"node_modules", "dist", ".next", "coverage"},
	"build": {"build", "target", "out"},
}

// List is a resolved ignore policy: a set of exact basenames plus a set of
// suffix wildcards (e.g. "*.log" matches any basename ending in ".log").
type List struct {
	Exact     map[string]bool
	Wildcards []string
}

// isWildcard reports whether spec is a suffix wildcard pattern ("*.log").
func isWildcard(spec string) bool {
	return strings.HasPrefix(spec, "*.")
}

// Parse builds a List from the mandatory basenames plus zero or more extra
// specs, each of which is either a preset name, a literal basename, or a
// "*.ext" suffix wildcard. Unknown presets are treated as literal basenames,
// matching the teacher's "unrecognized preset falls through to literal"
// behavior.
func Parse(mandatory []string, extraSpecs []string) *List {
	l := &List{
		Exact: make(map[string]bool, len(mandatory)+len(extraSpecs)),
	}
	for _, m := range mandatory {
		l.Exact[m] = true
	}

	for _, spec := range extraSpecs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		if preset, ok := Presets[spec]; ok {
			for _, name := range preset {
				l.Exact[name] = true
			}
			continue
		}
		if isWildcard(spec) {
			l.Wildcards = append(l.Wildcards, spec)
			continue
		}
		l.Exact[spec] = true
	}

	l.Wildcards = dedupeStrings(l.Wildcards)
	return l
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Matches reports whether basename should be skipped under this policy.
func (l *List) Matches(basename string) bool {
	if l == nil {
		return false
	}
	if l.Exact[basename] {
		return true
	}
	for _, w := range l.Wildcards {
		suffix := strings.TrimPrefix(w, "*")
		if strings.HasSuffix(basename, suffix) {
			return true
		}
	}
	return false
}
