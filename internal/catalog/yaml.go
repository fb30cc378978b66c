package catalog

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

type fileFormat struct {
	Networks []Network `yaml:"networks"`
}

// LoadYAML reads networks from path and overlays them onto base. Entries in
// the file replace built-in entries with the same chain ID.
func LoadYAML(path string, base *Static) (*Static, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read networks file: %w", err)
	}
	return ParseYAML(raw, base)
}

// ParseYAML is LoadYAML over an in-memory document.
func ParseYAML(raw []byte, base *Static) (*Static, error) {
	var ff fileFormat
	if err := yaml.Unmarshal(raw, &ff); err != nil {
		return nil, fmt.Errorf("parse networks file: %w", err)
	}
	if base == nil {
		base = NewStatic()
	}
	for i, n := range ff.Networks {
		if err := validate(n); err != nil {
			return nil, fmt.Errorf("networks[%d]: %w", i, err)
		}
		base.Put(n)
	}
	return base, nil
}

func validate(n Network) error {
	if n.ChainID == 0 {
		return errors.New("chain_id must be > 0")
	}
	if len(n.RPCURLs) == 0 {
		return fmt.Errorf("chain %d: at least one rpc url is required", n.ChainID)
	}
	for _, raw := range append(append([]string{}, n.RPCURLs...), n.ExplorerURLs...) {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("chain %d: invalid url %q", n.ChainID, raw)
		}
	}
	return nil
}
