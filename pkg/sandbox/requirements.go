package sandbox

import (
	"regexp"
	"sort"
)

var importRe = regexp.MustCompile(`(?m)^\s*(?:import|from)\s+([\w\d_]+)`)

// stdlibModules lists Python standard library modules the requirement
// scan must not turn into pip installs. Not exhaustive; covers what
// generated scripts commonly import.
var stdlibModules = map[string]bool{
	"abc": true, "argparse": true, "asyncio": true, "base64": true,
	"collections": true, "contextlib": true, "copy": true, "csv": true,
	"dataclasses": true, "datetime": true, "decimal": true, "enum": true,
	"functools": true, "glob": true, "hashlib": true, "heapq": true,
	"io": true, "itertools": true, "json": true, "logging": true,
	"math": true, "multiprocessing": true, "os": true, "pathlib": true,
	"pickle": true, "random": true, "re": true, "shutil": true,
	"socket": true, "sqlite3": true, "string": true, "struct": true,
	"subprocess": true, "sys": true, "tempfile": true, "textwrap": true,
	"threading": true, "time": true, "typing": true, "unittest": true,
	"urllib": true, "uuid": true, "xml": true, "zipfile": true,
	"__future__": true,
}

// ScanRequirements extracts top-level module names from the script's
// import statements and returns those that need a pip install, sorted
// and deduplicated.
func ScanRequirements(source string) []string {
	seen := make(map[string]bool)
	for _, m := range importRe.FindAllStringSubmatch(source, -1) {
		name := m[1]
		if stdlibModules[name] || seen[name] {
			continue
		}
		seen[name] = true
	}

	if len(seen) == 0 {
		return nil
	}
	reqs := make([]string, 0, len(seen))
	for name := range seen {
		reqs = append(reqs, name)
	}
	sort.Strings(reqs)
	return reqs
}
