package sentry

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/getsentry/sentry-go"
)

const redacted = "[REDACTED]"

type rule struct {
	pattern *regexp.Regexp
	repl    string
}

// 推流码本身就是发布凭据
var (
	secretFields = []string{"stream_key", "streamkey", "password", "secret", "token", "auth", "credential", "dsn"}

	rules = []rule{
		{regexp.MustCompile(`(?i)([?&](?:token|key|secret|password|auth|pass)=)[^&\s"]*`), "${1}" + redacted},
		// 录像目录与播放地址：/live/<key>/...
		{regexp.MustCompile(`(/live/)[^/\s"]+`), "${1}" + redacted},
		{regexp.MustCompile(`(?i)((?:stream_?key|password|secret|token)\s*[=:]\s*)[^\s,}"\[\]]+`), "${1}" + redacted},
		{regexp.MustCompile(`(redis://[^:/@\s]*:)[^@\s]+@`), "${1}" + redacted + "@"},
	}
)

func scrub(s string) string {
	for _, r := range rules {
		s = r.pattern.ReplaceAllString(s, r.repl)
	}
	return s
}

func secretField(name string) bool {
	name = strings.ToLower(name)
	for _, f := range secretFields {
		if strings.Contains(name, f) {
			return true
		}
	}
	return false
}

func scrubValue(key string, v interface{}) interface{} {
	if secretField(key) {
		return redacted
	}
	switch val := v.(type) {
	case string:
		return scrub(val)
	case map[string]interface{}:
		return scrubMap(val)
	case error:
		return scrub(val.Error())
	}
	return v
}

func scrubMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = scrubValue(k, v)
	}
	return out
}

func scrubEvent(event *sentry.Event) *sentry.Event {
	event.Message = scrub(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = scrub(event.Exception[i].Value)
		if st := event.Exception[i].Stacktrace; st != nil {
			for j := range st.Frames {
				st.Frames[j].Vars = scrubMap(st.Frames[j].Vars)
			}
		}
	}
	event.Extra = scrubMap(event.Extra)
	for k, c := range event.Contexts {
		event.Contexts[k] = scrubMap(c)
	}
	for k, v := range event.Tags {
		event.Tags[k] = scrubValue(k, v).(string)
	}
	if req := event.Request; req != nil {
		req.URL = scrub(req.URL)
		req.QueryString = scrub(req.QueryString)
		req.Data = scrub(req.Data)
		delete(req.Headers, "Authorization")
		delete(req.Headers, "Cookie")
		req.Cookies = ""
	}
	return event
}

func toString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case error:
		return val.Error()
	default:
		return fmt.Sprintf("%v", v)
	}
}
