package relationship

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	functionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bfunc\s+(?:\([^)]*\)\s*)?([A-Za-z_]\w*)`),
		regexp.MustCompile(`\bdef\s+([A-Za-z_]\w*)`),
		regexp.MustCompile(`\bfn\s+([A-Za-z_]\w*)`),
		regexp.MustCompile(`\bfunction\s*\*?\s*([A-Za-z_$][\w$]*)`),
		regexp.MustCompile(`\b(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*=\s*(?:async\s*)?(?:\([^)]*\)|[A-Za-z_$][\w$]*)\s*=>`),
	}

	classPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(?:class|struct|interface|trait|enum)\s+([A-Za-z_]\w*)`),
		regexp.MustCompile(`\btype\s+([A-Za-z_]\w*)\s+(?:struct|interface)\b`),
	}

	exportPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bexport\s+(?:default\s+)?(?:async\s+)?(?:function\*?|class|const|let|var|interface|type|enum)\s+([A-Za-z_$][\w$]*)`),
		regexp.MustCompile(`(?m)^func\s+(?:\([^)]*\)\s*)?([A-Z]\w*)`),
		regexp.MustCompile(`(?m)^type\s+([A-Z]\w*)`),
		regexp.MustCompile(`(?m)^package\s+(\w+)`),
		regexp.MustCompile(`(?m)^(?:async\s+)?def\s+([A-Za-z]\w*)`),
		regexp.MustCompile(`(?m)^class\s+([A-Za-z]\w*)`),
		regexp.MustCompile(`(?m)^pub\s+(?:fn|struct|enum|trait)\s+([A-Za-z_]\w*)`),
	}
	exportListPattern = regexp.MustCompile(`\bexport\s*\{([^}]*)\}`)

	pyFromImport   = regexp.MustCompile(`(?m)^\s*from\s+([\w.]+)\s+import\s+\(?([\w, ]+)\)?`)
	pyImport       = regexp.MustCompile(`(?m)^\s*import\s+([\w., ]+)$`)
	jsImport       = regexp.MustCompile(`\bimport\s+(?:type\s+)?(?:([A-Za-z_$][\w$]*)\s*,?\s*)?(?:\{([^}]*)\})?\s*from\s+['"]([^'"]+)['"]`)
	jsRequire      = regexp.MustCompile(`\brequire\(\s*['"]([^'"]+)['"]\s*\)`)
	goImportBlock  = regexp.MustCompile(`(?s)\bimport\s*\((.*?)\)`)
	goImportSingle = regexp.MustCompile(`(?m)^import\s+(?:\w+\s+)?"([^"]+)"`)
	quotedPath     = regexp.MustCompile(`"([^"]+)"`)
	rustUse        = regexp.MustCompile(`(?m)^\s*use\s+([\w:]+)(?:::\{([^}]*)\})?`)

	identPattern    = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)
	camelCase       = regexp.MustCompile(`\b[A-Z][a-z0-9]+(?:[A-Z][a-z0-9]*)+\b`)
	callName        = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]{2,})\(`)
	frameFunc       = regexp.MustCompile(`\bin ([A-Za-z_]\w*)\b`)
	backtickMention = regexp.MustCompile("`([^`\n]+)`")
)

type set map[string]struct{}

func (s set) add(v string) {
	if v != "" {
		s[v] = struct{}{}
	}
}

func (s set) has(v string) bool {
	_, ok := s[v]
	return ok
}

func (s set) intersects(o set) bool {
	small, large := s, o
	if len(o) < len(s) {
		small, large = o, s
	}
	for v := range small {
		if large.has(v) {
			return true
		}
	}
	return false
}

func collect(patterns []*regexp.Regexp, text string) set {
	out := make(set)
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			out.add(m[1])
		}
	}
	return out
}

// FunctionNames returns the names of functions declared in code.
func FunctionNames(code string) map[string]struct{} {
	return collect(functionPatterns, code)
}

// ClassNames returns the names of classes, structs and interfaces declared in code.
func ClassNames(code string) map[string]struct{} {
	return collect(classPatterns, code)
}

// Exports returns identifiers a code block makes available to others.
func Exports(code string) map[string]struct{} {
	out := collect(exportPatterns, code)
	for _, m := range exportListPattern.FindAllStringSubmatch(code, -1) {
		for _, name := range splitNames(m[1]) {
			out.add(name)
		}
	}
	return out
}

// Imports returns identifiers a code block pulls in from elsewhere: imported
// names plus the last segment of each module path.
func Imports(code string) map[string]struct{} {
	out := make(set)
	for _, m := range pyFromImport.FindAllStringSubmatch(code, -1) {
		out.add(lastSegment(m[1], "."))
		for _, name := range splitNames(m[2]) {
			out.add(name)
		}
	}
	for _, m := range pyImport.FindAllStringSubmatch(code, -1) {
		for _, name := range splitNames(m[1]) {
			out.add(lastSegment(name, "."))
		}
	}
	for _, m := range jsImport.FindAllStringSubmatch(code, -1) {
		out.add(m[1])
		for _, name := range splitNames(m[2]) {
			out.add(name)
		}
		out.add(trimExt(lastSegment(m[3], "/")))
	}
	for _, m := range jsRequire.FindAllStringSubmatch(code, -1) {
		out.add(trimExt(lastSegment(m[1], "/")))
	}
	for _, m := range goImportBlock.FindAllStringSubmatch(code, -1) {
		for _, p := range quotedPath.FindAllStringSubmatch(m[1], -1) {
			out.add(lastSegment(p[1], "/"))
		}
	}
	for _, m := range goImportSingle.FindAllStringSubmatch(code, -1) {
		out.add(lastSegment(m[1], "/"))
	}
	for _, m := range rustUse.FindAllStringSubmatch(code, -1) {
		out.add(lastSegment(m[1], "::"))
		for _, name := range splitNames(m[2]) {
			out.add(name)
		}
	}
	return out
}

// Identifiers returns every identifier-like token of at least three characters.
func Identifiers(text string) map[string]struct{} {
	out := make(set)
	for _, id := range identPattern.FindAllString(text, -1) {
		if len(id) >= 3 {
			out.add(id)
		}
	}
	return out
}

// ErrorKeywords returns the identifiers an error report points at:
// CamelCase names, call-like names and function names from stack frames.
func ErrorKeywords(text string) map[string]struct{} {
	out := make(set)
	for _, id := range camelCase.FindAllString(text, -1) {
		out.add(id)
	}
	for _, m := range callName.FindAllStringSubmatch(text, -1) {
		out.add(m[1])
	}
	for _, m := range frameFunc.FindAllStringSubmatch(text, -1) {
		if len(m[1]) >= 3 {
			out.add(m[1])
		}
	}
	return out
}

// Mentions returns identifiers written as inline code, e.g. `store.Get()`
// yields "store" and "Get".
func Mentions(text string) map[string]struct{} {
	out := make(set)
	for _, m := range backtickMention.FindAllStringSubmatch(text, -1) {
		for _, id := range identPattern.FindAllString(m[1], -1) {
			if len(id) >= 3 {
				out.add(id)
			}
		}
	}
	return out
}

// Words returns the lowercase alphanumeric tokens of text.
func Words(text string) map[string]struct{} {
	out := make(set)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		out.add(w)
	}
	return out
}

// Jaccard returns |a∩b| / |a∪b|, or 0 when both are empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for v := range a {
		if _, ok := b[v]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

// Overlap returns |a∩b| / max(|a|,|b|), or 0 when either is empty.
func Overlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for v := range a {
		if _, ok := b[v]; ok {
			inter++
		}
	}
	return float64(inter) / float64(max(len(a), len(b)))
}

func splitNames(list string) []string {
	var out []string
	for _, part := range strings.Split(list, ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		// "a as b" imports b locally but the exporter knows it as a.
		out = append(out, strings.Trim(fields[0], "{}*"))
	}
	return out
}

func lastSegment(path, sep string) string {
	if i := strings.LastIndex(path, sep); i >= 0 {
		return path[i+len(sep):]
	}
	return path
}

func trimExt(name string) string {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return name[:i]
	}
	return name
}
