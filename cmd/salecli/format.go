package main

import (
	"fmt"
	"io"
	"math/big"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ligun0805/salekit/internal/balance"
	"github.com/ligun0805/salekit/internal/chain"
	"github.com/ligun0805/salekit/internal/introspect"
	"github.com/ligun0805/salekit/internal/pricing"
	"github.com/ligun0805/salekit/internal/purchase"
	"github.com/ligun0805/salekit/internal/saleerr"
	"github.com/ligun0805/salekit/internal/transport"
)

func formatLimit(v *big.Int, dec uint8, symbol string) string {
	if v == nil {
		return "unknown"
	}
	return fmt.Sprintf("%s %s (%s units)", chain.FormatUnits(v, dec), symbol, v)
}

func printProfile(w io.Writer, p *introspect.Profile) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()
	fmt.Fprintf(tw, "Contract\t%s (chain %d)\n", p.Address.Hex(), p.ChainID)
	fmt.Fprintf(tw, "Kind\t%s\n", p.Kind)
	symbol := ""
	if t := p.Token; t != nil {
		symbol = t.Symbol
		fmt.Fprintf(tw, "Token\t%s (%s) at %s\n", t.Name, t.Symbol, t.Address.Hex())
		fmt.Fprintf(tw, "Decimals\t%d\n", t.Decimals)
		if t.TotalSupply != nil {
			fmt.Fprintf(tw, "Total supply\t%s\n", chain.FormatUnits(t.TotalSupply, t.Decimals))
		}
	}
	if p.Receiver != (common.Address{}) {
		fmt.Fprintf(tw, "Receiver\t%s\n", p.Receiver.Hex())
	}
	if p.Purchase != nil {
		fmt.Fprintf(tw, "Purchase\t%s\n", p.Purchase.Signature())
	}
	abiSrc := "fallback"
	if p.VerifiedABI {
		abiSrc = "verified"
	}
	fmt.Fprintf(tw, "ABI\t%s\n", abiSrc)
	if p.UnitPrice != nil {
		fmt.Fprintf(tw, "Unit price\t%s wei (%s native)\n", p.UnitPrice, chain.FormatNative(p.UnitPrice))
	} else {
		fmt.Fprintf(tw, "Unit price\tunknown\n")
	}
	dec := p.Decimals()
	fmt.Fprintf(tw, "Min purchase\t%s\n", formatLimit(p.MinPurchase, dec, symbol))
	fmt.Fprintf(tw, "Max purchase\t%s\n", formatLimit(p.MaxPurchase, dec, symbol))
	fmt.Fprintf(tw, "Wallet cap\t%s\n", formatLimit(p.WalletCap, dec, symbol))
	if !p.LimitsKnown() {
		fmt.Fprintf(tw, "\t(partial profile: not every limit getter answered)\n")
	}

	roles := make([]string, 0, len(p.Accessors))
	for r := range p.Accessors {
		roles = append(roles, string(r))
	}
	sort.Strings(roles)
	for _, r := range roles {
		fmt.Fprintf(tw, "  %s\t%s()\n", r, p.Accessors[introspect.Role(r)])
	}
}

func printEndpoints(w io.Writer, eps []transport.Endpoint) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()
	fmt.Fprintln(tw, "#\tKIND\tPRIORITY\tURL")
	for i, ep := range eps {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", i+1, ep.Kind, ep.Priority, ep.URL)
	}
}

func printBalance(w io.Writer, account string, r balance.Reading) {
	fmt.Fprintf(w, "%s  %s\n", account, r)
}

func printCandidates(w io.Writer, res pricing.Resolution) {
	show := func(v *big.Int) string {
		if v == nil {
			return "n/a"
		}
		return fmt.Sprintf("%s wei (%s native)", v, chain.FormatNative(v))
	}
	fmt.Fprintln(w, "Neither price interpretation could be confirmed by simulation.")
	fmt.Fprintf(w, "  A (price per whole token):  %s\n", show(res.CandidateA))
	fmt.Fprintf(w, "  B (price per minimal unit): %s\n", show(res.CandidateB))
	fmt.Fprintf(w, "Proposed: %s, paying %s\n", res.Semantics, show(res.Value))
}

func joinBounds(bs []saleerr.Bound) string {
	parts := make([]string, len(bs))
	for i, b := range bs {
		parts[i] = string(b)
	}
	return strings.Join(parts, ", ")
}

func printReceipt(w io.Writer, r *purchase.Receipt) {
	fmt.Fprintf(w, "tx %s mined in block %d\n", r.TxHash.Hex(), r.BlockNumber)
	fmt.Fprintf(w, "  paid %s native (semantics %s), gas %d/%d\n", chain.FormatNative(r.Value), r.Semantics, r.GasUsed, r.GasLimit)
}
