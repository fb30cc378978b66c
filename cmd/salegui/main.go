package main

import (
	"os"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ligun0805/salekit/internal/config"
	"github.com/ligun0805/salekit/internal/logging"
)

func defaultStr(v, d string) string {
	if strings.TrimSpace(v) == "" {
		return d
	}
	return v
}

func main() {
	hideConsoleWindow()

	_ = godotenv.Load()
	_ = godotenv.Overload(".env.local")

	st := config.Load()
	base, err := logging.New(logging.Config{Level: st.LogLevel, Environment: st.LogEnv, OutputPaths: []string{"stderr"}})
	if err != nil {
		base = zap.NewNop()
	}
	log := logging.Tee(base, func(level zapcore.Level, line string) {
		if level >= zapcore.InfoLevel {
			appendLogLine(line)
		}
	})
	defer func() { _ = log.Sync() }()

	a := app.New()
	saved, _ := loadForm()
	curTheme := makeTheme(defaultStr(saved.Theme, "dark"), saved.Compact)
	a.Settings().SetTheme(curTheme)

	w := a.NewWindow("Sale Tester")
	w.Resize(fyne.NewSize(900, 640))

	g := &tester{settings: st, log: log, win: w}

	g.rpc = widget.NewEntry()
	g.rpc.SetPlaceHolder("https://... (optional, tried before catalog RPCs)")
	g.rpc.SetText(defaultStr(saved.RPC, strings.Join(st.RPCURLs, ",")))
	g.chainID = widget.NewEntry()
	g.chainID.SetText(defaultStr(saved.ChainID, defaultStr(os.Getenv("CHAIN_ID"), "97")))
	g.key = widget.NewPasswordEntry()
	g.key.SetText(st.PrivateKey)
	g.contract = widget.NewEntry()
	g.contract.SetPlaceHolder("0x...")
	g.contract.SetText(saved.Contract)
	g.quantity = widget.NewEntry()
	g.quantity.SetText(defaultStr(saved.Quantity, "1"))
	g.semantics = widget.NewSelect([]string{"auto", "A", "B"}, nil)
	g.semantics.SetSelected(defaultStr(saved.Semantics, "auto"))

	themeSelect := widget.NewSelect([]string{"Dark", "Light"}, func(s string) {
		mode := "dark"
		if s == "Light" {
			mode = "light"
		}
		curTheme = makeTheme(mode, curTheme.(*appTheme).compact)
		a.Settings().SetTheme(curTheme)
	})
	if curTheme.(*appTheme).mode == "light" {
		themeSelect.SetSelected("Light")
	} else {
		themeSelect.SetSelected("Dark")
	}
	compactCheck := widget.NewCheck("Compact", func(b bool) {
		curTheme = makeTheme(curTheme.(*appTheme).mode, b)
		a.Settings().SetTheme(curTheme)
	})
	compactCheck.SetChecked(saved.Compact)

	g.stage = widget.NewLabel("idle")
	g.balance = widget.NewLabel("balance: unknown")
	g.profile = widget.NewLabel("")
	g.profile.TextStyle = fyne.TextStyle{Monospace: true}
	g.profile.Wrapping = fyne.TextWrapWord

	g.inspectBtn = widget.NewButtonWithIcon("Inspect", theme.SearchIcon(), g.onInspect)
	g.buyBtn = widget.NewButtonWithIcon("Buy", theme.ConfirmIcon(), g.onBuy)
	g.buyBtn.Importance = widget.HighImportance
	logsBtn := widget.NewButtonWithIcon("Logs", theme.ListIcon(), func() { ensureLogWindow(a).Show() })
	refreshBtn := widget.NewButtonWithIcon("", theme.ViewRefreshIcon(), g.onRefreshBalance)

	form := widget.NewCard("Connection", "", widget.NewForm(
		widget.NewFormItem("RPC URL", g.rpc),
		widget.NewFormItem("Chain ID", g.chainID),
		widget.NewFormItem("Private key", g.key),
		widget.NewFormItem("", container.NewGridWithColumns(2, themeSelect, compactCheck)),
	))
	sale := widget.NewCard("Sale", "", widget.NewForm(
		widget.NewFormItem("Contract", g.contract),
		widget.NewFormItem("Quantity", g.quantity),
		widget.NewFormItem("Price semantics", g.semantics),
	))
	actions := container.NewHBox(g.inspectBtn, g.buyBtn, logsBtn)
	status := container.NewBorder(nil, nil, nil, refreshBtn, container.NewVBox(g.stage, g.balance))

	w.SetContent(container.NewBorder(
		container.NewVBox(form, sale, actions, status),
		nil, nil, nil,
		container.NewVScroll(g.profile),
	))

	w.SetOnClosed(func() {
		mode := "dark"
		if themeSelect.Selected == "Light" {
			mode = "light"
		}
		saveForm(formState{
			RPC:       g.rpc.Text,
			ChainID:   g.chainID.Text,
			Contract:  g.contract.Text,
			Quantity:  g.quantity.Text,
			Semantics: g.semantics.Selected,
			Theme:     mode,
			Compact:   compactCheck.Checked,
		})
		g.close()
		if logWin != nil {
			logWin.Close()
		}
	})
	w.ShowAndRun()
}
