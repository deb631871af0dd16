package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/V4T54L/txn-watch/internal/domain"
)

// ErrMissingTid is returned for payloads without a transaction id.
var ErrMissingTid = errors.New("missing transaction id")

// knownFields are the wire keys decoded into TxnEvent's typed fields.
var knownFields = map[string]struct{}{
	"Status": {}, "Tid": {}, "Uxd": {}, "Uxt": {},
	"Eid": {}, "Hnm": {}, "Fid": {}, "Cid": {}, "Uid": {}, "Mtp": {}, "Severity": {}, "Msg": {},
	"Pid": {}, "Ret": {}, "Elapsed": {},
}

// DecodeEvent parses one raw payload into a validated event. It has no side
// effects; callers decide how to log and count failures.
func DecodeEvent(raw []byte) (domain.TxnEvent, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return domain.TxnEvent{}, fmt.Errorf("failed to parse payload: %w", err)
	}

	var event domain.TxnEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return domain.TxnEvent{}, fmt.Errorf("failed to decode event fields: %w", err)
	}

	// The id is the store key and is used as sent; only blank ids are rejected.
	if strings.TrimSpace(event.Tid) == "" {
		return domain.TxnEvent{}, ErrMissingTid
	}

	for k, v := range fields {
		if _, ok := knownFields[k]; ok {
			continue
		}
		if event.Extra == nil {
			event.Extra = make(map[string]json.RawMessage)
		}
		event.Extra[k] = v
	}
	return event, nil
}
