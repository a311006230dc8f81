package broker

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/sshbroker/engine/pkg/brokererr"
)

// request is the uniform envelope every command channel call arrives in:
// a stable channel identifier plus a CBOR-encoded, channel-specific
// payload.
type request struct {
	Channel string          `cbor:"channel"`
	Payload cbor.RawMessage `cbor:"payload"`
}

// response is the uniform `{ok: true, data?} | {ok: false, error: string}`
// shape every command call returns.
type response struct {
	OK    bool   `cbor:"ok"`
	Data  any    `cbor:"data,omitempty"`
	Error string `cbor:"error,omitempty"`
}

func decode(raw []byte, v any) error {
	if err := cbor.Unmarshal(raw, v); err != nil {
		return brokererr.Wrap(brokererr.KindInternal, "malformed command payload", "", err)
	}

	return nil
}

// Dispatch decodes a single CBOR-encoded request, routes it to the
// matching command handler, and returns a CBOR-encoded response. It never
// panics or returns a transport-level error: an unknown channel or a
// handler failure both surface as `{ok: false, error}`.
func (e *Engine) Dispatch(ctx context.Context, raw []byte) []byte {
	var req request

	if err := cbor.Unmarshal(raw, &req); err != nil {
		return mustEncodeResponse(response{OK: false, Error: fmt.Sprintf("malformed request: %v", err)})
	}

	h, ok := dispatchTable[req.Channel]
	if !ok {
		return mustEncodeResponse(response{OK: false, Error: "unknown command channel: " + req.Channel})
	}

	data, err := h(ctx, e, req.Payload)
	if err != nil {
		return mustEncodeResponse(response{OK: false, Error: err.Error()})
	}

	return mustEncodeResponse(response{OK: true, Data: data})
}

// SubscribeBytes returns a channel of CBOR-encoded event frames, for
// consumers reached over a wire rather than in-process. It spawns one
// forwarding goroutine per call, exiting when ctx is done; the typed
// Subscribe channel it wraps is unaffected.
func (e *Engine) SubscribeBytes(ctx context.Context) <-chan []byte {
	out := make(chan []byte, eventBusBuffer)
	in := e.Subscribe()

	go func() {
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-in:
				if !ok {
					return
				}

				encoded, err := cbor.Marshal(ev)
				if err != nil {
					continue
				}

				select {
				case out <- encoded:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

func mustEncodeResponse(resp response) []byte {
	out, err := cbor.Marshal(resp)
	if err != nil {
		// resp is always built from plain structs/primitives produced by
		// this package; a marshal failure here means a handler returned
		// something CBOR cannot represent, which is a programming error.
		out, _ = cbor.Marshal(response{OK: false, Error: "failed to encode response: " + err.Error()})
	}

	return out
}
