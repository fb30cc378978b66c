package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ligun0805/salekit/internal/catalog"
	"github.com/ligun0805/salekit/internal/config"
	"github.com/ligun0805/salekit/internal/logging"
	"github.com/ligun0805/salekit/internal/session"
	"github.com/ligun0805/salekit/internal/wallet"
)

// app holds what every subcommand needs. Flags write straight into st.
type app struct {
	st  config.Settings
	in  *bufio.Reader
	out io.Writer

	log     *zap.Logger
	keys    *wallet.KeyProvider
	sess    *session.Session
	store   *endpointStore
	metrics *metricsServer
}

func newRootCmd() *cobra.Command {
	a := &app{st: config.Load(), in: bufio.NewReader(os.Stdin), out: os.Stdout}

	root := &cobra.Command{
		Use:           "salecli",
		Short:         "Inspect token sale contracts and buy from them",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	f := root.PersistentFlags()
	f.Uint64Var(&a.st.ChainID, "chain-id", a.st.ChainID, "chain to operate on")
	f.StringSliceVar(&a.st.RPCURLs, "rpc", a.st.RPCURLs, "extra public RPC endpoints, tried before the catalog ones")
	f.StringVar(&a.st.WalletRPCURL, "wallet-rpc", a.st.WalletRPCURL, "node the local key wallet sends through (default: first catalog RPC)")
	f.StringVar(&a.st.NetworksFile, "networks", a.st.NetworksFile, "YAML file extending the builtin network catalog")
	f.StringVar(&a.st.ABIDir, "abi-dir", a.st.ABIDir, "directory of verified ABIs: <dir>/<chainID>/<address>.json")
	f.StringVar(&a.st.PaymentCeiling, "ceiling", a.st.PaymentCeiling, "largest payment (native units) a purchase may send")
	f.StringVar(&a.st.LogLevel, "log-level", a.st.LogLevel, "debug, info, warn or error")
	f.StringVar(&a.st.MetricsAddr, "metrics-addr", a.st.MetricsAddr, "serve Prometheus metrics on this address while the command runs")

	root.AddCommand(a.inspectCmd(), a.balanceCmd(), a.endpointsCmd(), a.buyCmd())
	return root
}

// run opens a session around fn and always tears it down.
func (a *app) run(cmd *cobra.Command, fn func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := a.setup(ctx); err != nil {
		a.teardown()
		return err
	}
	defer a.teardown()
	return fn(ctx)
}

func (a *app) setup(ctx context.Context) error {
	if err := a.st.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, err := logging.New(logging.Config{Level: a.st.LogLevel, Environment: a.st.LogEnv, OutputPaths: []string{"stderr"}})
	if err != nil {
		return err
	}
	a.log = log

	cat := catalog.Builtin()
	if a.st.NetworksFile != "" {
		if cat, err = catalog.LoadYAML(a.st.NetworksFile, cat); err != nil {
			return err
		}
	}

	key := a.st.PrivateKey
	if strings.TrimSpace(key) == "" {
		if key, err = readPassword(os.Stderr, "Private key: "); err != nil {
			return err
		}
	}
	opts := []wallet.KeyOption{wallet.WithLogger(log)}
	if a.st.WalletRPCURL != "" {
		opts = append(opts, wallet.WithNode(a.st.ChainID, a.st.WalletRPCURL))
	}
	if a.keys, err = wallet.NewKeyProvider(key, a.st.ChainID, cat, opts...); err != nil {
		return err
	}
	log.Debug("wallet ready", zap.String("key", maskHex(key)), zap.String("account", a.keys.Address().Hex()))

	reg := prometheus.NewRegistry()
	if a.st.MetricsAddr != "" {
		a.metrics = serveMetrics(a.st.MetricsAddr, reg, log)
	}

	a.sess, err = session.New(session.Options{
		Settings:   a.st,
		Wallet:     a.keys,
		Catalog:    cat,
		Registerer: reg,
		Log:        log,
	})
	if err != nil {
		return err
	}

	a.store = newEndpointStore(defaultEndpointsPath())
	if err := a.store.load(); err != nil {
		log.Warn("endpoint file unreadable, ignoring", zap.String("path", a.store.path), zap.Error(err))
	}
	a.store.apply(a.st.ChainID, a.sess)

	return a.sess.Open(ctx)
}

func (a *app) teardown() {
	if a.sess != nil {
		a.sess.Close()
	}
	if a.keys != nil {
		a.keys.Close()
	}
	if a.metrics != nil {
		a.metrics.shutdown()
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}
