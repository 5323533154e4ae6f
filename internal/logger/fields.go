package logger

import "github.com/sirupsen/logrus"

// Fields are structured key/value pairs attached to a log entry, grounded on
// nabbar-golib/logger/fields: worker pid, client id, service name and
// protocol state are carried this way instead of being string-formatted into
// the message, so the status page's log ring (spec §6.4) can filter/group
// on them.
type Fields map[string]any

func (f Fields) toLogrus() logrus.Fields {
	out := make(logrus.Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// With returns a copy of f with k=v merged in, leaving f untouched.
func (f Fields) With(k string, v any) Fields {
	out := make(Fields, len(f)+1)
	for key, val := range f {
		out[key] = val
	}
	out[k] = v
	return out
}
