package models

import "encoding/json"

// RawOddsPayload is a grouped-by-sportsbook raw odds emission.
type RawOddsPayload struct {
	Payload map[string]BookBlock `json:"payload"`
}

// EVPayload carries one batch's derived expected-value records, prior to
// the fan-out hub's per-subscriber regrouping.
type EVPayload struct {
	EV []EVRecord `json:"ev"`
}

// ArbPayload carries a single derived arbitrage opportunity. Arbitrage is
// the in-process record; MarshalJSON wraps it under the same payload
// envelope as the grouped and EV wire frames.
type ArbPayload struct {
	Arbitrage ArbRecord
}

type arbWireFrame struct {
	Payload arbWireBody `json:"payload"`
}

type arbWireBody struct {
	Arbitrage ArbRecord `json:"arbitrage"`
}

// MarshalJSON wraps the arbitrage record under {"payload":{"arbitrage":...}},
// matching the envelope the grouped and EV frames use.
func (a ArbPayload) MarshalJSON() ([]byte, error) {
	return json.Marshal(arbWireFrame{Payload: arbWireBody{Arbitrage: a.Arbitrage}})
}
