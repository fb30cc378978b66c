package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strconv"
)

const endpointsFile = "endpoints.json"

type savedEndpoint struct {
	URL      string `json:"url"`
	Priority int    `json:"priority"`
}

type chainEndpoints struct {
	Added   []savedEndpoint `json:"added,omitempty"`
	Removed []string        `json:"removed,omitempty"`
}

// endpointStore keeps endpoint edits between runs, keyed by chain id.
type endpointStore struct {
	path   string
	chains map[string]*chainEndpoints
}

type endpointEditor interface {
	AddEndpoint(url string, priority int)
	RemoveEndpoint(url string)
}

func defaultEndpointsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return endpointsFile
	}
	return filepath.Join(dir, "salekit", endpointsFile)
}

func newEndpointStore(path string) *endpointStore {
	return &endpointStore{path: path, chains: make(map[string]*chainEndpoints)}
}

func (s *endpointStore) load() error {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(&s.chains)
}

func (s *endpointStore) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(s.path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(s.chains)
}

func (s *endpointStore) entry(chainID uint64) *chainEndpoints {
	k := strconv.FormatUint(chainID, 10)
	ce, ok := s.chains[k]
	if !ok {
		ce = &chainEndpoints{}
		s.chains[k] = ce
	}
	return ce
}

func (s *endpointStore) apply(chainID uint64, ed endpointEditor) {
	ce := s.entry(chainID)
	for _, e := range ce.Added {
		ed.AddEndpoint(e.URL, e.Priority)
	}
	for _, u := range ce.Removed {
		ed.RemoveEndpoint(u)
	}
}

func (s *endpointStore) add(chainID uint64, url string, priority int) {
	ce := s.entry(chainID)
	ce.Removed = without(ce.Removed, url)
	for i := range ce.Added {
		if ce.Added[i].URL == url {
			ce.Added[i].Priority = priority
			return
		}
	}
	ce.Added = append(ce.Added, savedEndpoint{URL: url, Priority: priority})
}

func (s *endpointStore) remove(chainID uint64, url string) {
	ce := s.entry(chainID)
	kept := ce.Added[:0]
	for _, e := range ce.Added {
		if e.URL != url {
			kept = append(kept, e)
		}
	}
	ce.Added = kept
	if !slices.Contains(ce.Removed, url) {
		ce.Removed = append(ce.Removed, url)
	}
}

func without(list []string, s string) []string {
	out := list[:0]
	for _, x := range list {
		if x != s {
			out = append(out, x)
		}
	}
	return out
}
