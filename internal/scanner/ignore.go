package scanner

import (
	"bufio"
	"os"
	"path"
	"regexp"
	"strings"
)

// ignoreRule is one compiled .gitignore line.
type ignoreRule struct {
	re      *regexp.Regexp
	negate  bool
	dirOnly bool
	// base is the slash-separated directory holding the .gitignore ("" for root).
	base string
}

// ignoreMatcher evaluates .gitignore rules collected while walking a tree.
// The last matching rule wins, so negations can re-include paths.
type ignoreMatcher struct {
	rules []ignoreRule
}

// parseIgnoreFile compiles the rules in the .gitignore at file, scoped to base.
func parseIgnoreFile(file, base string) ([]ignoreRule, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var rules []ignoreRule
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if r, ok := compileIgnoreRule(sc.Text(), base); ok {
			rules = append(rules, r)
		}
	}
	return rules, sc.Err()
}

func compileIgnoreRule(line, base string) (ignoreRule, bool) {
	line = strings.TrimRight(line, " \t\r")
	if line == "" || strings.HasPrefix(line, "#") {
		return ignoreRule{}, false
	}

	r := ignoreRule{base: base}
	if strings.HasPrefix(line, "!") {
		r.negate = true
		line = line[1:]
	} else if strings.HasPrefix(line, `\`) {
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if line == "" {
		return ignoreRule{}, false
	}

	// A slash anywhere but the end anchors the pattern to base.
	anchored := strings.Contains(line, "/")
	line = strings.TrimPrefix(line, "/")

	var sb strings.Builder
	if anchored {
		sb.WriteString("^")
	} else {
		sb.WriteString("^(?:.*/)?")
	}
	sb.WriteString(globToRegex(line))
	sb.WriteString("(?:/.*)?$")

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return ignoreRule{}, false
	}
	r.re = re
	return r, true
}

// globToRegex translates gitignore glob syntax (*, ?, **, [...]) to a regex body.
func globToRegex(glob string) string {
	var sb strings.Builder
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '*':
			if i+1 < len(glob) && glob[i+1] == '*' {
				// "**/" matches zero or more directories, a trailing "**" matches everything.
				if i+2 < len(glob) && glob[i+2] == '/' {
					sb.WriteString("(?:.*/)?")
					i += 2
				} else {
					sb.WriteString(".*")
					i++
				}
				continue
			}
			sb.WriteString("[^/]*")
		case '?':
			sb.WriteString("[^/]")
		case '[':
			end := strings.IndexByte(glob[i:], ']')
			if end < 0 {
				sb.WriteString(`\[`)
				continue
			}
			class := glob[i+1 : i+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			sb.WriteString("[" + class + "]")
			i += end
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return sb.String()
}

func (m *ignoreMatcher) add(rules []ignoreRule) {
	m.rules = append(m.rules, rules...)
}

// match reports whether rel (slash-separated, relative to the walk root) is ignored.
func (m *ignoreMatcher) match(rel string, isDir bool) bool {
	ignored := false
	for _, r := range m.rules {
		target := rel
		if r.base != "" {
			if !strings.HasPrefix(rel, r.base+"/") {
				continue
			}
			target = strings.TrimPrefix(rel, r.base+"/")
		}
		if r.dirOnly && !isDir {
			if matchesParentDir(r, target) {
				ignored = !r.negate
			}
			continue
		}
		if r.re.MatchString(target) {
			ignored = !r.negate
		}
	}
	return ignored
}

// matchesParentDir reports whether a directory-only rule matches one of the
// directories containing target, which ignores the file beneath it.
func matchesParentDir(r ignoreRule, target string) bool {
	dir := path.Dir(target)
	for dir != "." && dir != "/" {
		if r.re.MatchString(dir) {
			return true
		}
		dir = path.Dir(dir)
	}
	return false
}

// matchAnyName reports whether name matches any shell glob in patterns.
func matchAnyName(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, err := path.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}
