package transform

import (
	"regexp"
	"strings"
)

func registerStringTransforms(r *Registry) {
	r.Register("upper", func(v interface{}, args ...interface{}) interface{} {
		return strings.ToUpper(toString(v))
	})
	r.Register("lower", func(v interface{}, args ...interface{}) interface{} {
		return strings.ToLower(toString(v))
	})
	r.Register("capitalize", func(v interface{}, args ...interface{}) interface{} {
		s := toString(v)
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	})
	r.Register("title", func(v interface{}, args ...interface{}) interface{} {
		return strings.Title(strings.ToLower(toString(v)))
	})
	r.Register("trim", func(v interface{}, args ...interface{}) interface{} {
		return strings.TrimSpace(toString(v))
	})
	r.Register("truncate", func(v interface{}, args ...interface{}) interface{} {
		s := toString(v)
		n := argInt(args, 0, len(s))
		suffix := argString(args, 1, "…")
		if len(s) <= n {
			return s
		}
		if n < 0 {
			n = 0
		}
		return s[:n] + suffix
	})
	r.Register("padStart", func(v interface{}, args ...interface{}) interface{} {
		return pad(toString(v), argInt(args, 0, 0), argString(args, 1, " "), true)
	})
	r.Register("padEnd", func(v interface{}, args ...interface{}) interface{} {
		return pad(toString(v), argInt(args, 0, 0), argString(args, 1, " "), false)
	})
	r.Register("replace", func(v interface{}, args ...interface{}) interface{} {
		s := toString(v)
		search := argString(args, 0, "")
		repl := argString(args, 1, "")
		return strings.Replace(s, search, repl, 1)
	})
	r.Register("replaceAll", func(v interface{}, args ...interface{}) interface{} {
		s := toString(v)
		search := argString(args, 0, "")
		repl := argString(args, 1, "")
		return strings.ReplaceAll(s, search, repl)
	})
	r.Register("slug", func(v interface{}, args ...interface{}) interface{} {
		return slugify(toString(v))
	})
	r.Register("camelCase", func(v interface{}, args ...interface{}) interface{} {
		return toCamelCase(toString(v))
	})
	r.Register("snakeCase", func(v interface{}, args ...interface{}) interface{} {
		return toDelimitedCase(toString(v), '_')
	})
	r.Register("kebabCase", func(v interface{}, args ...interface{}) interface{} {
		return toDelimitedCase(toString(v), '-')
	})
}

func pad(s string, n int, ch string, start bool) string {
	if ch == "" {
		ch = " "
	}
	for len(s) < n {
		if start {
			s = ch + s
		} else {
			s = s + ch
		}
	}
	return s
}

var nonWordRe = regexp.MustCompile(`[^a-zA-Z0-9]+`)

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonWordRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

var wordSplitRe = regexp.MustCompile(`[^a-zA-Z0-9]+`)

var camelBoundaryRe = regexp.MustCompile(`([a-z0-9])([A-Z])`)

func splitWords(s string) []string {
	s = camelBoundaryRe.ReplaceAllString(s, "$1 $2")
	fields := wordSplitRe.Split(s, -1)
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			words = append(words, f)
		}
	}
	return words
}

func toCamelCase(s string) string {
	words := splitWords(s)
	if len(words) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(strings.ToLower(words[0]))
	for _, w := range words[1:] {
		w = strings.ToLower(w)
		b.WriteString(strings.ToUpper(w[:1]) + w[1:])
	}
	return b.String()
}

func toDelimitedCase(s string, delim byte) string {
	words := splitWords(s)
	for i, w := range words {
		words[i] = strings.ToLower(w)
	}
	return strings.Join(words, string(delim))
}
