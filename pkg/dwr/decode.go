package dwr

import (
	"bytes"
	"strings"

	"github.com/rotisserie/eris"
)

// CallbackMarker precedes the result of every reply.
const CallbackMarker = "handleCallback("

// Decode errors. Callers match them with errors.Is.
var (
	ErrNoCallback    = eris.New("dwr: no callback marker")
	ErrNoOpenBracket = eris.New("dwr: no opening bracket")
	ErrUnterminated  = eris.New("dwr: unterminated bracket")
	ErrSyntax        = eris.New("dwr: invalid literal")
	ErrRowShape      = eris.New("dwr: row is not an object")
)

// fragmentLen bounds the raw text kept on a DecodeError.
const fragmentLen = 256

// Row is one decoded record.
type Row map[string]any

// DecodeError reports where decoding failed and keeps a bounded fragment of
// the raw reply for diagnosis.
type DecodeError struct {
	Err      error
	Offset   int
	Fragment string
	Detail   string
}

func (e *DecodeError) Error() string {
	msg := e.Err.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode extracts the rows from a callback-wrapped reply. A callback whose
// result is null, undefined, or empty yields zero rows and no error.
func Decode(body []byte) ([]Row, error) {
	idx := bytes.Index(body, []byte(CallbackMarker))
	if idx < 0 {
		return nil, newDecodeError(ErrNoCallback, body, 0, "")
	}
	start := idx + len(CallbackMarker)

	open, lastArg, ok := scanArgs(body, start)
	if !ok {
		return nil, newDecodeError(ErrNoOpenBracket, body, start, "")
	}
	if open < 0 {
		switch strings.TrimSpace(lastArg) {
		case "", "null", "undefined":
			return []Row{}, nil
		}
		return nil, newDecodeError(ErrNoOpenBracket, body, start, "result is "+truncate(lastArg, 32))
	}

	end, err := matchBracket(body, open)
	if err != nil {
		return nil, newDecodeError(err, body, open, "")
	}

	val, err := ParseLiteral(string(body[open : end+1]))
	if err != nil {
		return nil, newDecodeError(ErrSyntax, body, open, err.Error())
	}

	items, ok := val.([]any)
	if !ok {
		return nil, newDecodeError(ErrRowShape, body, open, "")
	}
	rows := make([]Row, 0, len(items))
	for _, it := range items {
		obj, ok := it.(map[string]any)
		if !ok {
			return nil, newDecodeError(ErrRowShape, body, open, "")
		}
		rows = append(rows, Row(obj))
	}
	return rows, nil
}

// scanArgs walks the callback arguments from start. It returns the offset of
// the first top-level '[' or -1 when the closing ')' comes first, in which
// case lastArg holds the text of the final argument. ok is false when neither
// is found.
func scanArgs(body []byte, start int) (open int, lastArg string, ok bool) {
	var quote byte
	argStart := start
	for i := start; i < len(body); i++ {
		c := body[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case ',':
			argStart = i + 1
		case '[':
			return i, "", true
		case ')':
			return -1, string(body[argStart:i]), true
		}
	}
	return -1, "", false
}

// matchBracket returns the offset of the ']' closing the '[' at open.
func matchBracket(body []byte, open int) (int, error) {
	depth := 0
	var quote byte
	for i := open; i < len(body); i++ {
		c := body[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return -1, ErrUnterminated
}

func newDecodeError(err error, body []byte, offset int, detail string) *DecodeError {
	return &DecodeError{
		Err:      err,
		Offset:   offset,
		Fragment: truncate(string(body[min(offset, len(body)):]), fragmentLen),
		Detail:   detail,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
