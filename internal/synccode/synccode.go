// Package synccode encodes the whole call collection as a portable text
// code and decodes codes received from colleagues.
//
// A code is the standard base64 of the UTF-8 JSON array. Older browser
// codes made with plain btoa carry Latin-1 bytes instead; decoding widens
// a payload that is not valid UTF-8 from Latin-1.
package synccode

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hpungsan/sav-assist/internal/calllog"
	"github.com/hpungsan/sav-assist/internal/errors"
)

// Result is the outcome of decoding a code.
type Result struct {
	Logs []calllog.CallLog

	// Ignored is set when the payload was valid JSON but not an array.
	// Nothing should be merged in that case.
	Ignored bool
}

// Export encodes logs as a sync code. An empty collection has nothing to share.
func Export(logs []calllog.CallLog) (string, error) {
	if len(logs) == 0 {
		return "", errors.NewEmptyCollection()
	}
	data, err := json.Marshal(logs)
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Import decodes a sync code. Whitespace anywhere in the code is ignored.
func Import(code string) (Result, error) {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, code)

	raw, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return Result{}, errors.NewInvalidSyncCode(err)
	}
	payload := fromLatin1(raw)

	var body json.RawMessage
	if err := json.Unmarshal(payload, &body); err != nil {
		return Result{}, errors.NewCorruptData(err)
	}
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "[") {
		return Result{Ignored: true}, nil
	}

	var logs []calllog.CallLog
	if err := json.Unmarshal(body, &logs); err != nil {
		return Result{}, errors.NewCorruptData(err)
	}
	if logs == nil {
		logs = []calllog.CallLog{}
	}
	return Result{Logs: logs}, nil
}

// fromLatin1 returns raw unchanged when it is valid UTF-8, else widens each
// byte to the rune of the same value.
func fromLatin1(raw []byte) []byte {
	if utf8.Valid(raw) {
		return raw
	}
	var b strings.Builder
	b.Grow(len(raw) * 2)
	for _, c := range raw {
		b.WriteRune(rune(c))
	}
	return []byte(b.String())
}
