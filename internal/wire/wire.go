// Package wire encodes FTP command lines and decodes numeric replies.
//
// A reply is either a single line
//
//	230 Login successful.
//
// or a multi-line block whose first line has a dash after the code and
// whose last line repeats the code followed by a space:
//
//	220-Welcome
//	220-Second line
//	220 Ready
//
// Lines starting with a space inside a block (RFC 2389) are accepted as
// continuations.
package wire

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	ftperr "goftp/internal/errors"
)

// Terminator ends every command and reply line.
const Terminator = "\r\n"

// Reply codes at the checkpoints this client cares about.
const (
	CodeServiceReadySoon  = 120
	CodeAlreadyOpen       = 125
	CodeFileStatusOK      = 150
	CodeOK                = 200
	CodeServiceReady      = 220
	CodeClosingControl    = 221
	CodeTransferComplete  = 226
	CodePassiveMode       = 227
	CodeLoggedIn          = 230
	CodeFileActionOK      = 250
	CodePathCreated       = 257
	CodeNeedPassword      = 331
	CodeFileActionPending = 350

	minCode = 100
	maxCode = 559
)

// Reply is the result of one control-channel round trip.
type Reply struct {
	Code    int
	Message string   // trimmed text; lines of a multi-line reply joined by "\n"
	Lines   []string // raw lines without terminators
}

// Preliminary reports a 1xx reply: another reply follows.
func (r Reply) Preliminary() bool { return r.Code >= 100 && r.Code < 200 }

// Completion reports a 2xx reply.
func (r Reply) Completion() bool { return r.Code >= 200 && r.Code < 300 }

// Intermediate reports a 3xx reply.
func (r Reply) Intermediate() bool { return r.Code >= 300 && r.Code < 400 }

// TransientNegative reports a 4xx reply.
func (r Reply) TransientNegative() bool { return r.Code >= 400 && r.Code < 500 }

// PermanentNegative reports a 5xx reply.
func (r Reply) PermanentNegative() bool { return r.Code >= 500 && r.Code < 600 }

// String renders the reply the way the server sent its final line.
func (r Reply) String() string {
	if r.Message == "" {
		return strconv.Itoa(r.Code)
	}
	return fmt.Sprintf("%d %s", r.Code, r.Message)
}

// ── Commands ─────────────────────────────────────────────────────────

// EncodeCommand builds "VERB arg\r\n", or "VERB\r\n" when arg is empty.
// Arguments carrying CR or LF are refused so a path can never smuggle a
// second command onto the control channel.
func EncodeCommand(verb, arg string) (string, error) {
	if strings.ContainsAny(verb, "\r\n ") || verb == "" {
		return "", fmt.Errorf("verb %q: %w", verb, ftperr.ErrInvalidArgument)
	}
	if strings.ContainsAny(arg, "\r\n") {
		return "", fmt.Errorf("%s argument: %w", verb, ftperr.ErrInvalidArgument)
	}
	if arg == "" {
		return verb + Terminator, nil
	}
	return verb + " " + arg + Terminator, nil
}

// ── Replies ──────────────────────────────────────────────────────────

// DecodeReply parses one complete reply held in raw.  raw may contain a
// whole multi-line block; anything after the final line is ignored.
func DecodeReply(raw []byte) (Reply, error) {
	reply, err := ReadReply(bufio.NewReader(bytes.NewReader(raw)))
	if errors.Is(err, io.EOF) {
		reason := "empty reply"
		if len(bytes.TrimSpace(raw)) > 0 {
			reason = "multi-line reply has no final line"
		}
		return Reply{}, &ftperr.MalformedReplyError{Raw: string(raw), Reason: reason}
	}
	return reply, err
}

// ReadReply reads exactly one reply from r.
func ReadReply(r *bufio.Reader) (Reply, error) {
	first, err := readLine(r)
	if err != nil {
		return Reply{}, err
	}

	code, sep, text, err := splitLine(first)
	if err != nil {
		return Reply{}, err
	}

	if sep != '-' {
		return Reply{Code: code, Message: trim(text), Lines: []string{first}}, nil
	}

	lines := []string{first}
	texts := []string{trim(text)}
	prefix := first[:3]

	for {
		line, err := readLine(r)
		if err != nil {
			return Reply{}, err
		}
		lines = append(lines, line)

		if strings.HasPrefix(line, prefix) && (len(line) == 3 || line[3] == ' ') {
			texts = append(texts, trim(line[3:]))
			break
		}
		// Continuation: "NNN-text", " text" or free text.
		if strings.HasPrefix(line, prefix+"-") {
			texts = append(texts, trim(line[4:]))
		} else {
			texts = append(texts, trim(line))
		}
	}

	return Reply{Code: code, Message: joinNonEmpty(texts), Lines: lines}, nil
}

// readLine returns one line without its terminator.  A stream that ends
// before any byte of the line is read reports io.EOF unchanged so callers
// can tell a peer close from garbage.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if line == "" {
			return "", err
		}
		// Final line without a terminator: accept what arrived.
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func splitLine(line string) (code int, sep byte, text string, err error) {
	if len(line) < 3 {
		return 0, 0, "", &ftperr.MalformedReplyError{Raw: line, Reason: "shorter than a reply code"}
	}
	for i := 0; i < 3; i++ {
		if line[i] < '0' || line[i] > '9' {
			return 0, 0, "", &ftperr.MalformedReplyError{Raw: line, Reason: "reply code is not a 3-digit number"}
		}
	}
	code, _ = strconv.Atoi(line[:3])
	if code < minCode || code > maxCode {
		return 0, 0, "", &ftperr.MalformedReplyError{
			Raw:    line,
			Reason: fmt.Sprintf("reply code %d outside %d-%d", code, minCode, maxCode),
		}
	}
	if len(line) == 3 {
		return code, ' ', "", nil
	}
	switch line[3] {
	case ' ', '-':
		return code, line[3], line[4:], nil
	default:
		return 0, 0, "", &ftperr.MalformedReplyError{Raw: line, Reason: "no separator after reply code"}
	}
}

func trim(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\r' || r == '\n' || r < 0x20
	})
}

func joinNonEmpty(parts []string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n")
}
