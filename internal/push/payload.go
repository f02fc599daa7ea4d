package push

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Tier names the decode stage that resolved a payload.
type Tier int

const (
	// TierStructured means the raw bytes were a JSON object.
	TierStructured Tier = iota
	// TierTextFallback means the bytes only decoded after text normalisation.
	TierTextFallback
	// TierDefault means nothing structured could be recovered.
	TierDefault
)

func (t Tier) String() string {
	switch t {
	case TierStructured:
		return "structured"
	case TierTextFallback:
		return "text"
	default:
		return "default"
	}
}

// maxTextRunes bounds the raw text carried into a default notification body.
const maxTextRunes = 512

// Payload is the push message schema. Every field is optional.
type Payload struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	Icon  string `json:"icon,omitempty"`
	URL   string `json:"url,omitempty"`
	JobID string `json:"job_id,omitempty"`
}

// Decoded is the tagged result of Decode.
type Decoded struct {
	Tier    Tier
	Payload Payload
	// Text is the normalised payload text, set for TierDefault.
	Text string
}

// Decode resolves raw push bytes. It never fails: bytes that are neither a
// JSON object nor text wrapping one yield TierDefault.
func Decode(raw []byte) Decoded {
	if p, ok := decodeObject(raw); ok {
		return Decoded{Tier: TierStructured, Payload: p}
	}
	text := normaliseText(raw)
	if p, ok := decodeObject([]byte(text)); ok {
		return Decoded{Tier: TierTextFallback, Payload: p}
	}
	if unquoted, ok := unquoteJSONString(text); ok {
		if p, ok := decodeObject([]byte(unquoted)); ok {
			return Decoded{Tier: TierTextFallback, Payload: p}
		}
		text = unquoted
	}
	return Decoded{Tier: TierDefault, Text: truncateRunes(text, maxTextRunes)}
}

func normaliseText(raw []byte) string {
	text := strings.ToValidUTF8(string(raw), string(utf8.RuneError))
	text = strings.TrimPrefix(text, "\ufeff")
	return strings.TrimSpace(text)
}

func unquoteJSONString(text string) (string, bool) {
	if !strings.HasPrefix(text, `"`) {
		return "", false
	}
	var s string
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return "", false
	}
	return strings.TrimSpace(s), true
}

// decodeObject accepts only JSON objects. Field values of the wrong type are
// treated as absent rather than failing the whole payload.
func decodeObject(raw []byte) (Payload, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Payload{}, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil || fields == nil {
		return Payload{}, false
	}
	return Payload{
		Title: scalar(fields["title"]),
		Body:  scalar(fields["body"]),
		Icon:  scalar(fields["icon"]),
		URL:   scalar(fields["url"]),
		JobID: scalar(fields["job_id"]),
	}, true
}

// scalar renders a JSON string or number as text.
func scalar(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return ""
		}
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	default:
		return ""
	}
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}
