package cmn

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MustMarshal panics on failure; used only for payloads the caller
// constructed itself and that therefore cannot fail to encode.
func MustMarshal(v interface{}) []byte {
	b, err := json.Marshal(v)
	AssertNoErr(err)
	return b
}

func MarshalToString(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

func Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func FormatTimestamp(t time.Time) string {
	return t.Format("2006-01-02T15:04:05.000Z07:00")
}

func MinDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func MaxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// StringSet is aistore's set-of-daemon-ids idiom (cmn.StringSet in
// aistore), reused here for the messaging substrate's set of fenced
// node-ids.
type StringSet map[string]struct{}

func NewStringSet(ids ...string) StringSet {
	s := make(StringSet, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s StringSet) Add(id string)            { s[id] = struct{}{} }
func (s StringSet) Contains(id string) bool   { _, ok := s[id]; return ok }
func (s StringSet) Len() int                  { return len(s) }
func (s StringSet) Keys() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}
