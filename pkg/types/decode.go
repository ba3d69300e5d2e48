package types

import "encoding/json"

// DecodeLine parses one NDJSON line of a /generate stream. Lines of an
// unexpected shape are reported with ok=false instead of an error so that
// consumers can skip them.
func DecodeLine(b []byte) (line StreamLine, ok bool) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil || len(raw) == 0 {
		return StreamLine{}, false
	}
	if err := json.Unmarshal(b, &line); err != nil {
		return StreamLine{}, false
	}
	switch {
	case line.Results != nil, line.Response != nil, line.Done, line.Cancelled:
		return line, true
	case line.Error != nil && line.Error.Kind != "":
		return line, true
	}
	return StreamLine{}, false
}
