// Package events normalizes the heterogeneous inbound blockchain event
// payloads into one canonical shape for the settlement core to consume.
//
// Three wire formats arrive:
//   - a single chain-native event object carrying "name" and "data"
//   - a queue batch whose record bodies may wrap a nested "message" envelope
//   - a bridge-internal batch whose record bodies are already canonical
package events

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/openbridge/converter-core/pkg/app/errors"
	"github.com/openbridge/converter-core/pkg/conversion"
)

// CanonicalEvent is the single shape the state machine consumes,
// regardless of which chain or transport produced the event.
type CanonicalEvent struct {
	BlockchainName  string          `json:"blockchain_name"`
	BlockchainEvent json.RawMessage `json:"blockchain_event"`
}

// nativeEvent is the account-based chain's single-event format.
type nativeEvent struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

// batchEnvelope is the shared container of the two record-list formats.
type batchEnvelope struct {
	Records []struct {
		Body string `json:"body"`
	} `json:"records"`
}

// queueBody is a queue record body that may wrap a nested message envelope.
type queueBody struct {
	Message string `json:"message"`
}

// NormalizeNativeEvent wraps a chain-native single event as one canonical
// record tagged with the account-based chain's name. Events missing either
// the name or the data payload produce no output.
func NormalizeNativeEvent(raw json.RawMessage) ([]CanonicalEvent, error) {
	var ev nativeEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, parseError(err)
	}
	if ev.Name == "" || len(ev.Data) == 0 {
		return nil, nil
	}
	return []CanonicalEvent{{
		BlockchainName:  conversion.ChainEthereum,
		BlockchainEvent: raw,
	}}, nil
}

// NormalizeQueueEvent converts a queue-wrapped batch into canonical records.
// Each record body is a JSON-encoded object which may carry a nested
// JSON-encoded "message" envelope. A message declaring the pass-through chain
// is forwarded unchanged (it is already canonical); any other message is
// wrapped and tagged with the UTXO chain's name. Bodies without a nested
// message are forwarded as parsed.
//
// A decode failure on any record aborts the whole batch: downstream must
// never see a partially normalized batch.
func NormalizeQueueEvent(raw json.RawMessage) ([]CanonicalEvent, error) {
	var batch batchEnvelope
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, parseError(err)
	}

	out := make([]CanonicalEvent, 0, len(batch.Records))
	for i, record := range batch.Records {
		if record.Body == "" {
			continue
		}

		var body queueBody
		if err := json.Unmarshal([]byte(record.Body), &body); err != nil {
			return nil, parseError(fmt.Errorf("record %d: %w", i, err))
		}

		if body.Message == "" {
			var ev CanonicalEvent
			if err := json.Unmarshal([]byte(record.Body), &ev); err != nil {
				return nil, parseError(fmt.Errorf("record %d: %w", i, err))
			}
			out = append(out, ev)
			continue
		}

		var message CanonicalEvent
		if err := json.Unmarshal([]byte(body.Message), &message); err != nil {
			return nil, parseError(fmt.Errorf("record %d message: %w", i, err))
		}

		if message.BlockchainName == conversion.ChainBinance && len(message.BlockchainEvent) > 0 {
			out = append(out, message)
			continue
		}

		out = append(out, CanonicalEvent{
			BlockchainName:  conversion.ChainCardano,
			BlockchainEvent: json.RawMessage(body.Message),
		})
	}
	return out, nil
}

// NormalizeBridgeEvent converts a bridge-internal batch: every record body is
// already a canonical event, it only needs decoding. Like the queue format,
// one bad record aborts the whole batch.
func NormalizeBridgeEvent(raw json.RawMessage) ([]CanonicalEvent, error) {
	var batch batchEnvelope
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, parseError(err)
	}

	out := make([]CanonicalEvent, 0, len(batch.Records))
	for i, record := range batch.Records {
		if record.Body == "" {
			continue
		}
		var ev CanonicalEvent
		if err := json.Unmarshal([]byte(record.Body), &ev); err != nil {
			return nil, parseError(fmt.Errorf("record %d: %w", i, err))
		}
		out = append(out, ev)
	}
	return out, nil
}

func parseError(err error) error {
	return &apperrors.ServiceError{
		Category: apperrors.CategoryGeneralError,
		Code:     apperrors.CodeUnableToParseEvent,
		Message:  "unable to parse the input event",
		Err:      err,
	}
}
