package models

import "sync/atomic"

// OddsFormatHolder is the single-writer/many-reader box the control-plane
// endpoint mutates and SSE workers read on every reconnect. It is the sole
// representation of the runtime odds format in this gateway — there is no
// bare-string code path alongside it.
type OddsFormatHolder struct {
	v atomic.Value
}

// NewOddsFormatHolder returns a holder pre-seeded with the given format
// ("decimal" or "american").
func NewOddsFormatHolder(initial string) *OddsFormatHolder {
	h := &OddsFormatHolder{}
	h.Set(initial)
	return h
}

// Get reads the current format. Safe for concurrent use without locking.
func (h *OddsFormatHolder) Get() string {
	v, _ := h.v.Load().(string)
	if v == "" {
		return "decimal"
	}
	return v
}

// Set installs a new format, taking effect for any worker that reconnects
// afterward; in-flight SSE connections keep the format they dialed with.
func (h *OddsFormatHolder) Set(format string) {
	h.v.Store(format)
}
