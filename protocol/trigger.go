// Package protocol implements the line-delimited wire format spoken with
// presence triggers and AGVs on the serial channel.
//
// Inbound lines announce that a piece reached a post. Three shapes are
// accepted, tried in order:
//
//	{"poste":2,"etat":"piece_detectee"}   JSON object
//	poste-2 / post:2 / P#2                free text
//	2                                     bare post index
//
// Outbound lines are compact JSON instructions for the AGV:
//
//	{"mat_p":1,"mant":{"1":"wait"},"cmd":"go","of":"OF-12"}
package protocol

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Detection is a decoded "piece detected at post N" event. Post is 1-based.
type Detection struct {
	Post int
	Raw  string
	Form string // "json", "text" or "bare"
}

var (
	textPattern = regexp.MustCompile(`(?i)\b(?:poste|post|p)\s*[-:=#]?\s*(\d{1,3})\b`)
	barePattern = regexp.MustCompile(`^\s*(\d{1,3})\s*$`)

	postKeys = []string{"poste", "post", "postIndex", "p"}
)

// Decoder turns inbound lines into detections. MaxPost bounds valid post
// indices, normally the route length.
type Decoder struct {
	MaxPost  int
	DebugLog func(format string, args ...any)
}

func NewDecoder(maxPost int) *Decoder {
	return &Decoder{MaxPost: maxPost}
}

// Decode returns the detection carried by line, if any.
func (d *Decoder) Decode(line string) (Detection, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Detection{}, false
	}

	if strings.HasPrefix(trimmed, "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
			return d.decodeObject(trimmed, obj)
		}
	}

	if m := textPattern.FindStringSubmatch(trimmed); m != nil {
		if n, ok := d.bounded(m[1]); ok {
			return Detection{Post: n, Raw: trimmed, Form: "text"}, true
		}
		d.debug("protocol: post out of range in %q", trimmed)
		return Detection{}, false
	}

	if m := barePattern.FindStringSubmatch(trimmed); m != nil {
		if n, ok := d.bounded(m[1]); ok {
			return Detection{Post: n, Raw: trimmed, Form: "bare"}, true
		}
	}

	d.debug("protocol: dropped unrecognized line %q", trimmed)
	return Detection{}, false
}

func (d *Decoder) decodeObject(raw string, obj map[string]any) (Detection, bool) {
	var post int
	found := false
	for _, k := range postKeys {
		v, ok := obj[k]
		if !ok {
			continue
		}
		if n, ok := d.postValue(v); ok {
			post, found = n, true
			break
		}
	}
	if !found {
		d.debug("protocol: json line without valid post: %q", raw)
		return Detection{}, false
	}

	if etat, ok := obj["etat"]; ok {
		s, _ := etat.(string)
		if !IsPieceDetected(s) {
			d.debug("protocol: post %d status %q is not a detection", post, s)
			return Detection{}, false
		}
	}
	return Detection{Post: post, Raw: raw, Form: "json"}, true
}

func (d *Decoder) postValue(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		if t != float64(int(t)) {
			return 0, false
		}
		return d.inRange(int(t))
	case string:
		return d.bounded(strings.TrimSpace(t))
	}
	return 0, false
}

func (d *Decoder) bounded(digits string) (int, bool) {
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return d.inRange(n)
}

func (d *Decoder) inRange(n int) (int, bool) {
	max := d.MaxPost
	if max <= 0 {
		max = 3
	}
	if n < 1 || n > max {
		return 0, false
	}
	return n, true
}

func (d *Decoder) debug(format string, args ...any) {
	if d.DebugLog != nil {
		d.DebugLog(format, args...)
	}
}

// IsPieceDetected loosely matches a status against "piece detected",
// ignoring case, accents, spaces, dashes and underscores.
func IsPieceDetected(status string) bool {
	s := fold(status)
	i := strings.Index(s, "piece")
	if i < 0 {
		return false
	}
	return strings.Contains(s[i+len("piece"):], "detect")
}

func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.ToLower(out)
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-', '\t':
			return -1
		}
		return r
	}, out)
}
