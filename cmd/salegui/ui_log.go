package main

import (
	"encoding/json"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

const maxLogLines = 2000

var (
	logMu     sync.Mutex
	logLines  []string
	logWin    fyne.Window
	logBox    *widget.Entry
	logScroll *container.Scroll
	logStage  *widget.Label
)

// ensureLogWindow creates or returns the log window.
func ensureLogWindow(a fyne.App) fyne.Window {
	if logWin != nil {
		return logWin
	}
	logWin = a.NewWindow("Logs")
	logWin.SetOnClosed(func() { logWin = nil })
	logStage = widget.NewLabel("")
	exportBtn := widget.NewButtonWithIcon("Export Telemetry JSON", theme.DocumentSaveIcon(), func() {
		saveTelemetryJSON()
	})
	top := container.NewBorder(nil, nil, nil, exportBtn, container.NewHBox(widget.NewLabel("Stage:"), logStage))
	bg := canvas.NewLinearGradient(color.NRGBA{12, 16, 24, 255}, color.NRGBA{20, 28, 40, 255}, 90)
	logBox = widget.NewMultiLineEntry()
	logBox.Disable()
	logBox.Wrapping = fyne.TextWrapWord
	logMu.Lock()
	logBox.SetText(strings.Join(logLines, "\n"))
	logMu.Unlock()
	logScroll = container.NewVScroll(logBox)
	logScroll.SetMinSize(fyne.NewSize(800, 180))
	logWin.SetContent(container.NewBorder(top, nil, nil, nil, container.NewStack(bg, logScroll)))
	logWin.Resize(fyne.NewSize(1000, 700))
	return logWin
}

// appendLogLine records a timestamped line and mirrors it into the log
// window when that is open.
func appendLogLine(s string) {
	line := time.Now().Format("15:04:05 ") + s
	logMu.Lock()
	logLines = append(logLines, line)
	if len(logLines) > maxLogLines {
		logLines = logLines[len(logLines)-maxLogLines:]
	}
	text := strings.Join(logLines, "\n")
	logMu.Unlock()
	if logBox == nil {
		return
	}
	logBox.SetText(text)
	if logScroll != nil {
		logScroll.ScrollToBottom()
	}
}

func setLogStage(s string) {
	if logStage != nil {
		logStage.SetText(s)
	}
}

// saveTelemetryJSON writes telemetry to a timestamped JSON file next to the
// executable.
func saveTelemetryJSON() {
	ts := time.Now().Format("20060102_150405")
	exe, _ := os.Executable()
	dir := filepath.Join(filepath.Dir(exe), "log_data")
	_ = os.MkdirAll(dir, 0o755)
	path := filepath.Join(dir, ts+".json")
	out := map[string]any{
		"generatedAt": time.Now().UTC().Format(time.RFC3339),
		"telemetry":   telSnapshot(),
	}
	f, err := os.Create(path)
	if err != nil {
		fyne.CurrentApp().SendNotification(&fyne.Notification{Title: "Save error", Content: fmt.Sprintf("%v", err)})
		return
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
	fyne.CurrentApp().SendNotification(&fyne.Notification{Title: "Saved", Content: path})
}
