package router

import (
	"bytes"
	"encoding/json"
	"io"
)

// Hints are the routing signals pulled out of a POST body without
// materializing its full JSON tree (spec §4.8 step 2, §9). A parse
// failure yields the zero value; this is explicitly not a request
// error (spec §7).
type Hints struct {
	ModelID        string
	PromptCacheKey string
	MessageSize    int
}

// ExtractHints streams body's top-level object looking only for
// "model", "prompt_cache_key", and the size-contributing fields
// ("messages" or "prompt"), never unmarshaling into a generic map.
func ExtractHints(body []byte) Hints {
	var hints Hints
	dec := json.NewDecoder(bytes.NewReader(body))

	tok, err := dec.Token()
	if err != nil {
		return Hints{}
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return Hints{}
	}

	// "messages" and "prompt" are alternative sources for MessageSize
	// (spec §4.8 step 2: "either ... or ..."), never both — whichever
	// key is seen first wins, and the other is left untouched.
	sizeSet := false

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return Hints{}
		}
		key, _ := keyTok.(string)
		switch key {
		case "model":
			var v string
			if decodeValue(dec, &v) {
				hints.ModelID = v
			}
		case "prompt_cache_key":
			var v string
			if decodeValue(dec, &v) {
				hints.PromptCacheKey = v
			}
		case "messages":
			var msgs []messagePart
			if decodeValue(dec, &msgs) && !sizeSet {
				hints.MessageSize = sumMessageSize(msgs)
				sizeSet = true
			}
		case "prompt":
			var raw json.RawMessage
			if decodeValue(dec, &raw) && !sizeSet {
				hints.MessageSize = sumPromptSize(raw)
				sizeSet = true
			}
		default:
			if err := skipValue(dec); err != nil {
				return Hints{}
			}
		}
	}
	return hints
}

// messagePart mirrors just the shapes spec §4.8 names: content may be a
// bare string or an array of parts carrying "text" or "content".
type messagePart struct {
	Content json.RawMessage `json:"content"`
}

func sumMessageSize(msgs []messagePart) int {
	total := 0
	for _, m := range msgs {
		total += contentSize(m.Content)
	}
	return total
}

func contentSize(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return len(s)
	}
	var parts []struct {
		Text    string `json:"text"`
		Content string `json:"content"`
	}
	if json.Unmarshal(raw, &parts) == nil {
		total := 0
		for _, p := range parts {
			total += len(p.Text) + len(p.Content)
		}
		return total
	}
	return 0
}

func sumPromptSize(raw json.RawMessage) int {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return len(s)
	}
	var arr []string
	if json.Unmarshal(raw, &arr) == nil {
		total := 0
		for _, s := range arr {
			total += len(s)
		}
		return total
	}
	return 0
}

func decodeValue(dec *json.Decoder, out any) bool {
	return dec.Decode(out) == nil
}

// skipValue consumes and discards the next JSON value (object, array,
// or scalar) without materializing it, so unrecognized top-level keys
// never cost an allocation proportional to their size.
func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if _, ok := tok.(json.Delim); !ok {
		return nil
	}
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}
