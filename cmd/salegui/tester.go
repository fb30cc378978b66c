package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/ligun0805/salekit/internal/balance"
	"github.com/ligun0805/salekit/internal/catalog"
	"github.com/ligun0805/salekit/internal/chain"
	"github.com/ligun0805/salekit/internal/config"
	"github.com/ligun0805/salekit/internal/introspect"
	"github.com/ligun0805/salekit/internal/pricing"
	"github.com/ligun0805/salekit/internal/purchase"
	"github.com/ligun0805/salekit/internal/saleerr"
	"github.com/ligun0805/salekit/internal/session"
	"github.com/ligun0805/salekit/internal/wallet"
)

// tester owns the form widgets and the session built from them.
type tester struct {
	settings config.Settings
	log      *zap.Logger
	win      fyne.Window

	rpc, chainID, key, contract, quantity *widget.Entry
	semantics                             *widget.Select
	stage, balance, profile               *widget.Label
	inspectBtn, buyBtn                    *widget.Button

	mu     sync.Mutex
	sess   *session.Session
	keys   *wallet.KeyProvider
	sessID string // form values the session was built from
}

// current returns a session for the form values, rebuilding it when they
// changed.
func (g *tester) current(ctx context.Context) (*session.Session, error) {
	chainID, err := strconv.ParseUint(strings.TrimSpace(g.chainID.Text), 0, 64)
	if err != nil || chainID == 0 {
		return nil, fmt.Errorf("invalid chain id %q", g.chainID.Text)
	}
	key := strings.TrimSpace(g.key.Text)
	if key == "" {
		return nil, errors.New("private key is empty")
	}
	rpcs := splitCSV(g.rpc.Text)
	id := fmt.Sprintf("%d|%s|%s", chainID, strings.Join(rpcs, ","), key)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sess != nil && g.sessID == id {
		return g.sess, nil
	}
	g.closeLocked()

	st := g.settings
	st.ChainID = chainID
	st.RPCURLs = rpcs
	st.PrivateKey = key
	if err := st.Validate(); err != nil {
		return nil, err
	}
	cat := catalog.Builtin()
	if st.NetworksFile != "" {
		if cat, err = catalog.LoadYAML(st.NetworksFile, cat); err != nil {
			return nil, err
		}
	}
	opts := []wallet.KeyOption{wallet.WithLogger(g.log)}
	if st.WalletRPCURL != "" {
		opts = append(opts, wallet.WithNode(chainID, st.WalletRPCURL))
	} else if len(rpcs) > 0 {
		opts = append(opts, wallet.WithNode(chainID, rpcs[0]))
	}
	keys, err := wallet.NewKeyProvider(key, chainID, cat, opts...)
	if err != nil {
		return nil, err
	}
	sess, err := session.New(session.Options{Settings: st, Wallet: keys, Catalog: cat, Log: g.log})
	if err != nil {
		keys.Close()
		return nil, err
	}
	if err := sess.Open(ctx); err != nil {
		sess.Close()
		keys.Close()
		return nil, err
	}
	sess.OnProgress(func(s purchase.Stage) {
		label := "stage: " + s.String()
		if s.Terminal() {
			label = "finished: " + s.String()
		}
		g.stage.SetText(label)
		setLogStage(s.String())
	})
	sess.OnBalance(func(acct common.Address, _ uint64, r balance.Reading) {
		g.balance.SetText(fmt.Sprintf("balance of %s: %s", acct.Hex(), r))
	})
	sess.StartPolling(st.PollInterval)

	g.sess, g.keys, g.sessID = sess, keys, id
	return sess, nil
}

func (g *tester) closeLocked() {
	if g.sess != nil {
		g.sess.Close()
		g.sess = nil
	}
	if g.keys != nil {
		g.keys.Close()
		g.keys = nil
	}
	g.sessID = ""
}

func (g *tester) close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closeLocked()
}

func (g *tester) busy(on bool) {
	if on {
		g.inspectBtn.Disable()
		g.buyBtn.Disable()
		return
	}
	g.inspectBtn.Enable()
	g.buyBtn.Enable()
}

func (g *tester) contractAddr() (common.Address, error) {
	s := strings.TrimSpace(g.contract.Text)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid contract address %q", s)
	}
	return common.HexToAddress(s), nil
}

func (g *tester) showErr(action string, err error) {
	g.stage.SetText(fmt.Sprintf("%s failed: [%s]", action, saleerr.Kind(err)))
	dialog.ShowError(fmt.Errorf("[%s] %w", saleerr.Kind(err), err), g.win)
}

func (g *tester) onInspect() {
	addr, err := g.contractAddr()
	if err != nil {
		dialog.ShowError(err, g.win)
		return
	}
	g.busy(true)
	go func() {
		defer g.busy(false)
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		sess, err := g.current(ctx)
		if err != nil {
			g.showErr("connect", err)
			return
		}
		prof, err := sess.Inspect(ctx, addr)
		telAdd(TelemetryItem{Action: "inspect", Contract: addr.Hex(), ChainID: sess.ChainID(), OK: err == nil, Kind: saleerr.Kind(err), Error: errString(err)})
		if err != nil {
			g.showErr("inspect", err)
			return
		}
		g.profile.SetText(describeProfile(prof))
		g.stage.SetText("inspected")
	}()
}

func (g *tester) onBuy() {
	addr, err := g.contractAddr()
	if err != nil {
		dialog.ShowError(err, g.win)
		return
	}
	qty, err := strconv.ParseUint(strings.TrimSpace(g.quantity.Text), 10, 64)
	if err != nil {
		dialog.ShowError(fmt.Errorf("invalid quantity %q", g.quantity.Text), g.win)
		return
	}
	sem, err := pricing.ParseSemantics(g.semantics.Selected)
	if err != nil {
		dialog.ShowError(err, g.win)
		return
	}
	g.busy(true)
	go func() {
		defer g.busy(false)
		ctx := context.Background()
		sess, err := g.current(ctx)
		if err != nil {
			g.showErr("connect", err)
			return
		}
		rcpt, err := sess.Buy(ctx, addr, qty, purchase.Options{
			Semantics:        sem,
			Confirm:          g.confirmSemantics,
			ConfirmUnbounded: g.confirmUnbounded,
		})
		it := TelemetryItem{Action: "buy", Contract: addr.Hex(), ChainID: sess.ChainID(), OK: err == nil, Kind: saleerr.Kind(err), Error: errString(err)}
		if rcpt != nil {
			it.TxHash = rcpt.TxHash.Hex()
		}
		telAdd(it)
		if err != nil {
			g.showErr("buy", err)
			return
		}
		dialog.ShowInformation("Purchase confirmed",
			fmt.Sprintf("tx %s\nblock %d\npaid %s native (%s)", rcpt.TxHash.Hex(), rcpt.BlockNumber, chain.FormatNative(rcpt.Value), rcpt.Semantics),
			g.win)
	}()
}

func (g *tester) onRefreshBalance() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		sess, err := g.current(ctx)
		if err != nil {
			g.showErr("connect", err)
			return
		}
		r, err := sess.Balance(ctx, true)
		if err != nil && !r.Known() {
			g.balance.SetText("balance: unknown (" + saleerr.Kind(err) + ")")
			return
		}
		text := fmt.Sprintf("balance of %s: %s", sess.Account().Hex(), r)
		if until, ok := sess.WalletPausedUntil(); ok {
			text += fmt.Sprintf("  (wallet rate limited until %s)", until.Format(time.TimeOnly))
		}
		g.balance.SetText(text)
	}()
}

// confirmSemantics asks the user to accept a price interpretation that no
// simulation confirmed. It blocks the purchase goroutine, not the UI.
func (g *tester) confirmSemantics(ctx context.Context, res pricing.Resolution) bool {
	msg := fmt.Sprintf("Neither price interpretation passed simulation.\n\nA (per whole token): %s\nB (per minimal unit): %s\n\nSend with %s, paying %s native?",
		nativeOrNA(res.CandidateA), nativeOrNA(res.CandidateB), res.Semantics, chain.FormatNative(res.Value))
	return g.ask(ctx, "Unconfirmed price", msg)
}

// confirmUnbounded asks whether limits the sale does not expose may be
// treated as unbounded.
func (g *tester) confirmUnbounded(ctx context.Context, unknown []saleerr.Bound) bool {
	names := make([]string, len(unknown))
	for i, b := range unknown {
		names[i] = string(b)
	}
	msg := fmt.Sprintf("The sale does not expose these limits: %s.\n\nTreat them as unbounded and continue?", strings.Join(names, ", "))
	return g.ask(ctx, "Unknown sale limits", msg)
}

func (g *tester) ask(ctx context.Context, title, msg string) bool {
	answer := make(chan bool, 1)
	dialog.ShowConfirm(title, msg, func(ok bool) { answer <- ok }, g.win)
	select {
	case ok := <-answer:
		return ok
	case <-ctx.Done():
		return false
	}
}

func describeProfile(p *introspect.Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s on chain %d\n", p.Kind, p.Address.Hex(), p.ChainID)
	sym := ""
	if t := p.Token; t != nil {
		sym = t.Symbol
		fmt.Fprintf(&b, "token     %s (%s), %d decimals, at %s\n", t.Name, t.Symbol, t.Decimals, t.Address.Hex())
	}
	if p.Purchase != nil {
		fmt.Fprintf(&b, "purchase  %s\n", p.Purchase.Signature())
	}
	fmt.Fprintf(&b, "price     %s\n", nativeOrNA(p.UnitPrice))
	limit := func(v *big.Int) string {
		if v == nil {
			return "unknown"
		}
		return chain.FormatUnits(v, p.Decimals()) + " " + sym
	}
	fmt.Fprintf(&b, "min       %s\n", limit(p.MinPurchase))
	fmt.Fprintf(&b, "max       %s\n", limit(p.MaxPurchase))
	fmt.Fprintf(&b, "cap       %s\n", limit(p.WalletCap))
	if !p.LimitsKnown() {
		b.WriteString("(partial profile)\n")
	}
	return b.String()
}

func nativeOrNA(v *big.Int) string {
	if v == nil {
		return "n/a"
	}
	return chain.FormatNative(v)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
