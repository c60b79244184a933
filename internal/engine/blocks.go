package engine

import (
	"sort"
	"strings"

	"github.com/cursor-prompt/prompt-optimizer/internal/domain/template"
	"github.com/cursor-prompt/prompt-optimizer/internal/engine/helper"
)

// blockMatch is one fully-paired {{#if}}/{{#unless}}/{{#each}} block:
// opener, matching same-kind closer, and (for if/unless) the branch point.
type blockMatch struct {
	Keyword  string
	Cond     string
	Start    int
	End      int
	Body     string
	ElseBody string
	HasElse  bool
}

var blockKeywords = []string{"each", "unless", "if"}

// findNextBlock scans content for the earliest {{#if}}, {{#unless}}, or
// {{#each}} opener and returns its fully paired block, explicit-scanning
// nested same-kind openers/closers to depth zero rather than matching with
// a single regex.
func findNextBlock(content string) (*blockMatch, bool) {
	bestIdx := -1
	bestKeyword := ""
	for _, kw := range blockKeywords {
		idx := strings.Index(content, "{{#"+kw)
		if idx == -1 {
			continue
		}
		if bestIdx == -1 || idx < bestIdx {
			bestIdx = idx
			bestKeyword = kw
		}
	}
	if bestIdx == -1 {
		return nil, false
	}
	return scanBlockAt(content, bestIdx, bestKeyword)
}

type blockToken struct {
	idx  int
	kind string
}

func scanBlockAt(content string, start int, keyword string) (*blockMatch, bool) {
	opener := "{{#" + keyword
	closer := "{{/" + keyword + "}}"
	allowElse := keyword == "if" || keyword == "unless"

	tagClose := strings.Index(content[start:], "}}")
	if tagClose == -1 {
		return nil, false
	}
	condStart := start + len(opener)
	condEnd := start + tagClose
	cond := strings.TrimSpace(content[condStart:condEnd])
	bodyStart := condEnd + 2

	depth := 1
	pos := bodyStart
	elsePos, elseTagEnd := -1, -1

	for depth > 0 {
		var tokens []blockToken
		if i := strings.Index(content[pos:], opener); i != -1 {
			tokens = append(tokens, blockToken{pos + i, "open"})
		}
		if i := strings.Index(content[pos:], closer); i != -1 {
			tokens = append(tokens, blockToken{pos + i, "close"})
		}
		if allowElse {
			if i := strings.Index(content[pos:], "{{else}}"); i != -1 {
				tokens = append(tokens, blockToken{pos + i, "else"})
			}
		}
		if len(tokens) == 0 {
			return nil, false
		}
		sort.Slice(tokens, func(i, j int) bool { return tokens[i].idx < tokens[j].idx })
		top := tokens[0]

		switch top.kind {
		case "open":
			depth++
			pos = top.idx + len(opener)
		case "close":
			depth--
			if depth == 0 {
				bodyEnd := top.idx
				if elsePos != -1 {
					bodyEnd = elsePos
				}
				m := &blockMatch{
					Keyword: keyword,
					Cond:    cond,
					Start:   start,
					End:     top.idx + len(closer),
					Body:    content[bodyStart:bodyEnd],
				}
				if elsePos != -1 {
					m.HasElse = true
					m.ElseBody = content[elseTagEnd:top.idx]
				}
				return m, true
			}
			pos = top.idx + len(closer)
		case "else":
			if depth == 1 && elsePos == -1 {
				elsePos = top.idx
				elseTagEnd = top.idx + len("{{else}}")
			}
			pos = top.idx + len("{{else}}")
		}
	}
	return nil, false
}

// resolveBlocks repeatedly finds and renders the next outermost block,
// recursively resolving nested blocks in the chosen branch against the
// appropriate scope before moving on, left to right, preserving source
// order.
func (e *Engine) resolveBlocks(content string, ctx template.RenderContext) (string, error) {
	var out strings.Builder
	remaining := content
	for {
		m, found := findNextBlock(remaining)
		if !found {
			out.WriteString(remaining)
			break
		}
		out.WriteString(remaining[:m.Start])
		rendered, err := e.renderBlock(m, ctx)
		if err != nil {
			return "", err
		}
		out.WriteString(rendered)
		remaining = remaining[m.End:]
	}
	return out.String(), nil
}

func (e *Engine) renderBlock(m *blockMatch, ctx template.RenderContext) (string, error) {
	switch m.Keyword {
	case "if":
		branch := m.Body
		if !e.evalCondition(m.Cond, ctx) {
			branch = m.ElseBody
			if !m.HasElse {
				branch = ""
			}
		}
		return e.resolveBlocks(branch, ctx)
	case "unless":
		branch := m.Body
		if e.evalCondition(m.Cond, ctx) {
			branch = m.ElseBody
			if !m.HasElse {
				branch = ""
			}
		}
		return e.resolveBlocks(branch, ctx)
	case "each":
		return e.renderEach(m, ctx)
	default:
		return "", nil
	}
}

// evalCondition resolves an #if/#unless condition: either a dotted path or
// a parenthesized helper call, against the truthiness rules in
// template.IsTruthy.
func (e *Engine) evalCondition(cond string, ctx template.RenderContext) bool {
	cond = strings.TrimSpace(cond)
	if strings.HasPrefix(cond, "(") && strings.HasSuffix(cond, ")") {
		inner := strings.TrimSpace(cond[1 : len(cond)-1])
		fields := strings.SplitN(inner, " ", 2)
		name := fields[0]
		if !e.helpers.Has(name) {
			return false
		}
		var argsRaw string
		if len(fields) > 1 {
			argsRaw = fields[1]
		}
		args := helper.ResolveArgs(ctx, argsRaw)
		return template.IsTruthy(e.helpers.Call(name, args...))
	}
	val, _ := template.Lookup(ctx, cond)
	return template.IsTruthy(val)
}

func (e *Engine) renderEach(m *blockMatch, ctx template.RenderContext) (string, error) {
	val, ok := template.Lookup(ctx, strings.TrimSpace(m.Cond))
	if !ok {
		return "", nil
	}
	items, ok := val.([]interface{})
	if !ok {
		return "", nil
	}

	var out strings.Builder
	for i, item := range items {
		scope := ctx.Clone()
		scope["this"] = item
		scope["@index"] = i
		scope["@first"] = i == 0
		scope["@last"] = i == len(items)-1
		if obj, ok := item.(map[string]interface{}); ok {
			for k, v := range obj {
				scope[k] = v
			}
		}
		// Each iteration gets the same full resolution a whole document
		// gets: nested blocks, then partials, then variables, all against
		// the loop scope. Deferring partials/variables to the final outer
		// pass would lose the this/@index/@first/@last bindings.
		rendered, err := e.resolveBlocks(m.Body, scope)
		if err != nil {
			return "", err
		}
		rendered, err = e.resolvePartials(rendered, scope)
		if err != nil {
			return "", err
		}
		out.WriteString(e.resolveVariables(rendered, scope))
	}
	return out.String(), nil
}
