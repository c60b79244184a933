package engine

import (
	"sort"
	"strconv"
	"strings"
)

// ExtractVariables returns the sorted, deduplicated set of context paths
// content requires, descending into includes, block bodies, and
// registered partials. Loop-local names (this, @index, @first, @last) are
// never reported.
func (e *Engine) ExtractVariables(content string) ([]string, error) {
	expanded, err := e.resolveIncludes(content, make(map[string]bool), 0)
	if err != nil {
		return nil, err
	}

	set := make(map[string]bool)
	expanded = e.expandPartialsForExtraction(expanded, make(map[string]bool), set)

	for _, tag := range allTags(expanded) {
		collectTagVariables(tag, set)
	}

	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (e *Engine) expandPartialsForExtraction(content string, visited map[string]bool, set map[string]bool) string {
	var out strings.Builder
	remaining := content
	for {
		idx := strings.Index(remaining, "{{>")
		if idx == -1 {
			out.WriteString(remaining)
			break
		}
		tagEnd := strings.Index(remaining[idx:], "}}")
		if tagEnd == -1 {
			out.WriteString(remaining)
			break
		}
		tagEnd += idx

		out.WriteString(remaining[:idx])
		inner := strings.TrimSpace(remaining[idx+3 : tagEnd])
		fields := strings.Fields(inner)
		if len(fields) > 0 {
			name := fields[0]
			if len(fields) > 1 {
				addPathVariable(fields[1], set)
			}
			if body, ok := e.partials.Get(name); ok && !visited[name] {
				visited[name] = true
				out.WriteString(e.expandPartialsForExtraction(body, visited, set))
				delete(visited, name)
			}
		}
		remaining = remaining[tagEnd+2:]
	}
	return out.String()
}

func allTags(content string) []string {
	var tags []string
	remaining := content
	for {
		start := strings.Index(remaining, "{{")
		if start == -1 {
			break
		}
		tagEnd := strings.Index(remaining[start:], "}}")
		if tagEnd == -1 {
			break
		}
		tagEnd += start
		tags = append(tags, remaining[start+2:tagEnd])
		remaining = remaining[tagEnd+2:]
	}
	return tags
}

func collectTagVariables(tag string, set map[string]bool) {
	tag = strings.TrimSpace(tag)
	switch {
	case strings.HasPrefix(tag, "#include"):
		return
	case strings.HasPrefix(tag, "#if "):
		collectConditionVariables(strings.TrimSpace(tag[len("#if "):]), set)
	case strings.HasPrefix(tag, "#unless "):
		collectConditionVariables(strings.TrimSpace(tag[len("#unless "):]), set)
	case strings.HasPrefix(tag, "#each "):
		addPathVariable(strings.TrimSpace(tag[len("#each "):]), set)
	case strings.HasPrefix(tag, "/"), tag == "else":
		return
	case strings.HasPrefix(tag, ">"):
		return // context argument already captured during partial expansion
	default:
		collectValueTagVariables(tag, set)
	}
}

func collectConditionVariables(cond string, set map[string]bool) {
	cond = strings.TrimSpace(cond)
	if strings.HasPrefix(cond, "(") && strings.HasSuffix(cond, ")") {
		inner := strings.TrimSpace(cond[1 : len(cond)-1])
		fields := strings.Fields(inner)
		for _, f := range fields[1:] {
			addArgVariable(f, set)
		}
		return
	}
	addPathVariable(cond, set)
}

func collectValueTagVariables(tag string, set map[string]bool) {
	base := strings.TrimSpace(strings.SplitN(tag, "|", 2)[0])
	fields := strings.Fields(base)
	if len(fields) > 1 {
		for _, f := range fields[1:] {
			addArgVariable(f, set)
		}
		return
	}
	addPathVariable(base, set)
}

func addArgVariable(tok string, set map[string]bool) {
	if tok == "" || strings.HasPrefix(tok, `"`) || strings.HasPrefix(tok, "'") {
		return
	}
	switch tok {
	case "true", "false", "null", "undefined":
		return
	}
	if _, err := strconv.ParseFloat(tok, 64); err == nil {
		return
	}
	addPathVariable(tok, set)
}

func addPathVariable(path string, set map[string]bool) {
	path = strings.TrimSpace(path)
	if path == "" || path == "this" || strings.HasPrefix(path, "this.") || strings.HasPrefix(path, "@") {
		return
	}
	set[path] = true
}
