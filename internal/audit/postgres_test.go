package audit

import (
	"context"
	"testing"

	"github.com/vTajae/oddsgateway/pkg/models"
)

func TestNewSink_EmptyDSNIsNoOp(t *testing.T) {
	sink, err := NewSink("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sink.LogEV(context.Background(), models.EVRecord{Sport: "baseball_mlb"}); err != nil {
		t.Errorf("no-op sink should never return an error: %v", err)
	}
	if err := sink.LogArbitrage(context.Background(), models.ArbRecord{Sport: "baseball_mlb"}); err != nil {
		t.Errorf("no-op sink should never return an error: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Errorf("closing a no-op sink should never error: %v", err)
	}
}

func TestNewSink_ZeroValueSinkLogMethodsAreNoOp(t *testing.T) {
	sink := &Sink{}
	if err := sink.LogEV(context.Background(), models.EVRecord{}); err != nil {
		t.Errorf("zero-value *Sink should be a valid no-op receiver: %v", err)
	}
	if err := sink.LogArbitrage(context.Background(), models.ArbRecord{}); err != nil {
		t.Errorf("zero-value *Sink should be a valid no-op receiver: %v", err)
	}
}
