package main

import (
	"encoding/json"
	"os"
)

const sessionFile = "salegui_session.json"

// formState is the last form, restored on start. The private key is never
// written.
type formState struct {
	RPC       string `json:"rpc"`
	ChainID   string `json:"chainId"`
	Contract  string `json:"contract"`
	Quantity  string `json:"quantity"`
	Semantics string `json:"semantics"`
	Theme     string `json:"theme"`
	Compact   bool   `json:"compact"`
}

func saveForm(st formState) {
	f, err := os.Create(sessionFile)
	if err != nil {
		return
	}
	defer f.Close()
	_ = json.NewEncoder(f).Encode(st)
}

func loadForm() (formState, bool) {
	f, err := os.Open(sessionFile)
	if err != nil {
		return formState{}, false
	}
	defer f.Close()
	var st formState
	if err := json.NewDecoder(f).Decode(&st); err != nil {
		return formState{}, false
	}
	return st, true
}
