package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings keeps all configuration options.
// Every key is accepted in lower_case and UPPER_CASE form.
type Settings struct {
	ChainID      uint64
	RPCURLs      []string // extra public endpoints for ChainID
	WalletRPCURL string   // node behind the local key wallet; empty = first catalog RPC
	PrivateKey   string
	NetworksFile string
	ABIDir       string

	AttemptTimeout  time.Duration
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	BreakerCooldown time.Duration

	BalanceTTL      time.Duration
	BalanceDebounce time.Duration
	PollInterval    time.Duration

	PaymentCeiling   string // native units, decimal string
	GasBufferPct     int64
	FallbackGas      uint64
	ConfirmTimeout   time.Duration
	ConfirmPoll      time.Duration
	ProfileCacheSize int

	LogLevel    string
	LogEnv      string
	MetricsAddr string
}

// Load reads settings from environment supporting both UPPER_CASE and lower_case keys.
func Load() Settings {
	get := func(keys []string, def string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" { return v }
		}
		return def
	}
	getInt := func(keys []string, def int) int {
		s := get(keys, "")
		if s == "" { return def }
		if n, err := strconv.Atoi(s); err == nil { return n }
		return def
	}
	getInt64 := func(keys []string, def int64) int64 {
		s := get(keys, "")
		if s == "" { return def }
		if n, err := strconv.ParseInt(s, 10, 64); err == nil { return n }
		return def
	}
	getUint64 := func(keys []string, def uint64) uint64 {
		s := get(keys, "")
		if s == "" { return def }
		if n, err := strconv.ParseUint(s, 0, 64); err == nil { return n }
		return def
	}
	getDuration := func(keys []string, def time.Duration) time.Duration {
		s := get(keys, "")
		if s == "" { return def }
		if d, err := time.ParseDuration(s); err == nil { return d }
		// bare numbers are milliseconds
		if n, err := strconv.ParseInt(s, 10, 64); err == nil { return time.Duration(n) * time.Millisecond }
		return def
	}
	splitCSV := func(s string) []string {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" { out = append(out, p) }
		}
		return out
	}

	st := Settings{}
	st.ChainID      = getUint64([]string{"chain_id", "CHAIN_ID"}, 97)
	st.RPCURLs      = splitCSV(get([]string{"rpc_urls", "RPC_URLS", "rpc_url", "RPC_URL"}, ""))
	st.WalletRPCURL = get([]string{"wallet_rpc_url", "WALLET_RPC_URL"}, "")
	st.PrivateKey   = get([]string{"private_key", "PRIVATE_KEY"}, "")
	st.NetworksFile = get([]string{"networks_file", "NETWORKS_FILE"}, "")
	st.ABIDir       = get([]string{"abi_dir", "ABI_DIR"}, "")

	st.AttemptTimeout  = getDuration([]string{"rpc_attempt_timeout", "RPC_ATTEMPT_TIMEOUT"}, 5*time.Second)
	st.BackoffBase     = getDuration([]string{"rpc_backoff_base", "RPC_BACKOFF_BASE"}, 500*time.Millisecond)
	st.BackoffMax      = getDuration([]string{"rpc_backoff_max", "RPC_BACKOFF_MAX"}, 4*time.Second)
	st.BreakerCooldown = getDuration([]string{"breaker_cooldown", "BREAKER_COOLDOWN"}, 2*time.Minute)

	st.BalanceTTL      = getDuration([]string{"balance_ttl", "BALANCE_TTL"}, 30*time.Second)
	st.BalanceDebounce = getDuration([]string{"balance_debounce", "BALANCE_DEBOUNCE"}, 500*time.Millisecond)
	st.PollInterval    = getDuration([]string{"balance_poll", "BALANCE_POLL"}, 15*time.Second)

	st.PaymentCeiling   = get([]string{"payment_ceiling", "PAYMENT_CEILING"}, "1000")
	st.GasBufferPct     = getInt64([]string{"gas_buffer_pct", "GAS_BUFFER_PCT"}, 20)
	st.FallbackGas      = getUint64([]string{"fallback_gas", "FALLBACK_GAS"}, 500_000)
	st.ConfirmTimeout   = getDuration([]string{"confirm_timeout", "CONFIRM_TIMEOUT"}, 3*time.Minute)
	st.ConfirmPoll      = getDuration([]string{"confirm_poll", "CONFIRM_POLL"}, 2*time.Second)
	st.ProfileCacheSize = getInt([]string{"profile_cache_size", "PROFILE_CACHE_SIZE"}, 128)

	st.LogLevel    = get([]string{"log_level", "LOG_LEVEL"}, "info")
	st.LogEnv      = get([]string{"log_env", "LOG_ENV"}, "development")
	st.MetricsAddr = get([]string{"metrics_addr", "METRICS_ADDR"}, "")

	return st
}

// Validate rejects values the core cannot run with.
func (st Settings) Validate() error {
	var errs []error
	if st.ChainID == 0 {
		errs = append(errs, errors.New("chain_id must be > 0"))
	}
	if st.AttemptTimeout <= 0 {
		errs = append(errs, errors.New("rpc_attempt_timeout must be > 0"))
	}
	if st.BackoffBase < 0 || st.BackoffMax < st.BackoffBase {
		errs = append(errs, fmt.Errorf("rpc backoff base=%s max=%s is inconsistent", st.BackoffBase, st.BackoffMax))
	}
	if st.BalanceTTL <= 0 {
		errs = append(errs, errors.New("balance_ttl must be > 0"))
	}
	if st.GasBufferPct < 0 {
		errs = append(errs, errors.New("gas_buffer_pct must be >= 0"))
	}
	if st.FallbackGas < 21_000 {
		errs = append(errs, errors.New("fallback_gas must be >= 21000"))
	}
	if st.ConfirmPoll <= 0 || st.ConfirmTimeout < st.ConfirmPoll {
		errs = append(errs, errors.New("confirm_poll must be > 0 and not exceed confirm_timeout"))
	}
	if st.ProfileCacheSize <= 0 {
		errs = append(errs, errors.New("profile_cache_size must be > 0"))
	}
	if _, ok := parseDecimal(st.PaymentCeiling); !ok {
		errs = append(errs, fmt.Errorf("payment_ceiling %q is not a positive decimal", st.PaymentCeiling))
	}
	return errors.Join(errs...)
}

func parseDecimal(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f, err == nil && f > 0
}
