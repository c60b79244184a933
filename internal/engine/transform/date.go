package transform

import (
	"fmt"
	"time"
)

func registerDateTransforms(r *Registry) {
	r.Register("date", func(v interface{}, args ...interface{}) interface{} {
		t, ok := parseTime(v)
		if !ok {
			return v
		}
		format := argString(args, 0, "iso")
		return formatDate(t, format)
	})
	r.Register("timestamp", func(v interface{}, args ...interface{}) interface{} {
		t, ok := parseTime(v)
		if !ok {
			return v
		}
		return t.Unix()
	})
	r.Register("fromNow", func(v interface{}, args ...interface{}) interface{} {
		t, ok := parseTime(v)
		if !ok {
			return v
		}
		return humanRelative(t, time.Now())
	})
}

func parseTime(v interface{}) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		if t, err := time.Parse(time.RFC3339, val); err == nil {
			return t, true
		}
		if t, err := time.Parse("2006-01-02", val); err == nil {
			return t, true
		}
		return time.Time{}, false
	case float64:
		return time.Unix(int64(val), 0), true
	case int64:
		return time.Unix(val, 0), true
	case int:
		return time.Unix(int64(val), 0), true
	default:
		return time.Time{}, false
	}
}

func formatDate(t time.Time, format string) string {
	switch format {
	case "date":
		return t.Format("2006-01-02")
	case "time":
		return t.Format("15:04:05")
	case "locale", "localeDate":
		return t.Format("Jan 2, 2006")
	case "localeTime":
		return t.Format("3:04 PM")
	case "year":
		return t.Format("2006")
	case "month":
		return t.Format("01")
	case "day":
		return t.Format("02")
	case "hour":
		return t.Format("15")
	case "minute":
		return t.Format("04")
	case "second":
		return t.Format("05")
	case "iso", "":
		return t.Format(time.RFC3339)
	default:
		return t.Format(time.RFC3339)
	}
}

func humanRelative(t, now time.Time) string {
	d := now.Sub(t)
	future := d < 0
	if future {
		d = -d
	}
	var phrase string
	switch {
	case d < time.Minute:
		phrase = "a few seconds"
	case d < time.Hour:
		m := int(d.Minutes())
		phrase = fmt.Sprintf("%d minute(s)", m)
	case d < 24*time.Hour:
		h := int(d.Hours())
		phrase = fmt.Sprintf("%d hour(s)", h)
	case d < 30*24*time.Hour:
		days := int(d.Hours() / 24)
		phrase = fmt.Sprintf("%d day(s)", days)
	default:
		months := int(d.Hours() / 24 / 30)
		phrase = fmt.Sprintf("%d month(s)", months)
	}
	if future {
		return "in " + phrase
	}
	return phrase + " ago"
}
