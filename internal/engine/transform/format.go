package transform

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

var htmlEscapes = map[byte]string{
	'&':  "&amp;",
	'<':  "&lt;",
	'>':  "&gt;",
	'"':  "&quot;",
	'\'': "&#39;",
}

var htmlUnescapes = map[string]string{
	"&amp;":  "&",
	"&lt;":   "<",
	"&gt;":   ">",
	"&quot;": "\"",
	"&#39;":  "'",
}

func registerFormatTransforms(r *Registry) {
	r.Register("json", func(v interface{}, args ...interface{}) interface{} {
		indent := argInt(args, 0, 2)
		var out []byte
		var err error
		if indent <= 0 {
			out, err = json.Marshal(v)
		} else {
			out, err = json.MarshalIndent(v, "", strings.Repeat(" ", indent))
		}
		if err != nil {
			return ""
		}
		return string(out)
	})
	r.Register("yaml", func(v interface{}, args ...interface{}) interface{} {
		return toSimpleYAML(v, 0)
	})
	r.Register("csv", func(v interface{}, args ...interface{}) interface{} {
		s := toSlice(v)
		rows := make([]string, len(s))
		for i, item := range s {
			m, ok := item.(map[string]interface{})
			if !ok {
				rows[i] = toString(item)
				continue
			}
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			vals := make([]string, len(keys))
			for j, k := range keys {
				vals[j] = toString(m[k])
			}
			rows[i] = strings.Join(vals, ",")
		}
		return strings.Join(rows, "\n")
	})
	r.Register("urlEncode", func(v interface{}, args ...interface{}) interface{} {
		return url.QueryEscape(toString(v))
	})
	r.Register("urlDecode", func(v interface{}, args ...interface{}) interface{} {
		s, err := url.QueryUnescape(toString(v))
		if err != nil {
			return v
		}
		return s
	})
	r.Register("base64Encode", func(v interface{}, args ...interface{}) interface{} {
		return base64.StdEncoding.EncodeToString([]byte(toString(v)))
	})
	r.Register("base64Decode", func(v interface{}, args ...interface{}) interface{} {
		out, err := base64.StdEncoding.DecodeString(toString(v))
		if err != nil {
			return v
		}
		return string(out)
	})
	r.Register("escape", func(v interface{}, args ...interface{}) interface{} {
		s := toString(v)
		var b strings.Builder
		for i := 0; i < len(s); i++ {
			if esc, ok := htmlEscapes[s[i]]; ok {
				b.WriteString(esc)
			} else {
				b.WriteByte(s[i])
			}
		}
		return b.String()
	})
	r.Register("unescape", func(v interface{}, args ...interface{}) interface{} {
		s := toString(v)
		for entity, ch := range htmlUnescapes {
			s = strings.ReplaceAll(s, entity, ch)
		}
		return s
	})
}

func toSimpleYAML(v interface{}, indent int) string {
	pad := strings.Repeat("  ", indent)
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var lines []string
		for _, k := range keys {
			child := val[k]
			switch child.(type) {
			case map[string]interface{}, []interface{}:
				lines = append(lines, fmt.Sprintf("%s%s:\n%s", pad, k, toSimpleYAML(child, indent+1)))
			default:
				lines = append(lines, fmt.Sprintf("%s%s: %s", pad, k, toString(child)))
			}
		}
		return strings.Join(lines, "\n")
	case []interface{}:
		var lines []string
		for _, item := range val {
			lines = append(lines, fmt.Sprintf("%s- %s", pad, toString(item)))
		}
		return strings.Join(lines, "\n")
	default:
		return pad + toString(v)
	}
}
