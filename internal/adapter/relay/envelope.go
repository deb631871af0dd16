package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/V4T54L/txn-watch/internal/adapter/pii"
)

// Annotation keys added to every relayed payload.
const (
	SourceIPKey   = "_src_ip"
	ReceivedAtKey = "_recv_ts_ms"
)

// ErrNotObject is returned for datagrams that are valid JSON but not an object.
var ErrNotObject = errors.New("datagram is not a JSON object")

// Annotate decodes a datagram, stamps the sender address and receive time,
// applies redaction and re-encodes it. Numbers are carried through verbatim.
func Annotate(data []byte, srcIP string, now time.Time, redactor *pii.Redactor) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("decode datagram: %w", err)
	}
	if obj == nil {
		return nil, ErrNotObject
	}

	obj[SourceIPKey] = srcIP
	obj[ReceivedAtKey] = now.UnixMilli()
	redactor.Redact(obj)

	out, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("encode datagram: %w", err)
	}
	return out, nil
}
