package main

import (
	"sync"
	"time"
)

// TelemetryItem is one user-visible action, exported from the log window.
type TelemetryItem struct {
	Time     string `json:"time"`
	Action   string `json:"action"`
	Contract string `json:"contract,omitempty"`
	ChainID  uint64 `json:"chainId,omitempty"`
	Stage    string `json:"stage,omitempty"`
	OK       bool   `json:"ok"`
	Kind     string `json:"kind,omitempty"`
	Error    string `json:"error,omitempty"`
	TxHash   string `json:"txHash,omitempty"`
}

var (
	telemetry []TelemetryItem
	telMu     sync.Mutex
)

func telAdd(it TelemetryItem) {
	if it.Time == "" {
		it.Time = time.Now().UTC().Format(time.RFC3339)
	}
	telMu.Lock()
	telemetry = append(telemetry, it)
	telMu.Unlock()
}

func telSnapshot() []TelemetryItem {
	telMu.Lock()
	defer telMu.Unlock()
	return append([]TelemetryItem(nil), telemetry...)
}
