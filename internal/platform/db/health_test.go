package db

import (
	"encoding/json"
	"testing"
)

func TestPoolStats_JSON(t *testing.T) {
	stats := &PoolStats{
		TotalConns:    10,
		IdleConns:     5,
		AcquiredConns: 5,
		MaxConns:      20,
		Healthy:       true,
	}

	b, err := json.Marshal(stats)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out map[string]interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for _, key := range []string{"total_conns", "idle_conns", "acquired_conns", "max_conns", "healthy"} {
		if _, ok := out[key]; !ok {
			t.Errorf("expected key %q in output", key)
		}
	}
	if out["total_conns"].(float64) != 10 {
		t.Errorf("expected total_conns 10, got %v", out["total_conns"])
	}
	if out["healthy"] != true {
		t.Errorf("expected healthy true, got %v", out["healthy"])
	}
}
