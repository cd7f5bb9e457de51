package presentation

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"squid-go/application/stream"
	"squid-go/core/event"
	"squid-go/core/state"
	"squid-go/domain/hardware"
)

// jogStepsMM are the selectable jog distances.
var jogStepsMM = []string{"0.001", "0.01", "0.1", "1"}

// MainWindow is the main application window: live view in the centre,
// hardware controls on the left and the acquisition panel at the bottom.
type MainWindow struct {
	app    fyne.App
	window fyne.Window
	bridge *UIEventBridge
	logger *slog.Logger
	live   *LiveView
	sinkID stream.SinkID
	stream *stream.Handler

	// Toolbar
	channelSelect   *widget.Select
	objectiveSelect *widget.Select
	liveBtn         *widget.Button
	experimentsBtn  *widget.Button
	modeLabel       *widget.Label

	// Camera
	exposureEntry *widget.Entry
	gainEntry     *widget.Entry

	// Stage
	positionLabel  *widget.Label
	jogSelect      *widget.Select
	afReferenceBtn *widget.Button

	// Acquisition
	templateSelect *widget.Select
	startBtn       *widget.Button
	pauseBtn       *widget.Button
	stopBtn        *widget.Button
	progressBar    *widget.ProgressBar
	statusLabel    *widget.Label

	// Data
	isLive   bool
	paused   bool
	acqState state.AcquisitionState

	cleanupOnce sync.Once
}

// MainWindowConfig holds configuration for MainWindow.
type MainWindowConfig struct {
	App    fyne.App
	Bridge *UIEventBridge
	// Stream feeds the live view. May be nil.
	Stream *stream.Handler
	// Run posts work to the UI goroutine. Defaults to fyne.Do.
	Run    func(func())
	Logger *slog.Logger
}

// NewMainWindow creates a new main window.
func NewMainWindow(cfg *MainWindowConfig) *MainWindow {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	w := &MainWindow{
		app:    cfg.App,
		window: cfg.App.NewWindow("Squid"),
		bridge: cfg.Bridge,
		logger: cfg.Logger.With("component", "main_window"),
		live:   NewLiveView(cfg.Run),
		stream: cfg.Stream,
	}
	if w.stream != nil {
		w.sinkID = w.stream.AddSink(w.live)
	}

	w.init()
	w.setupEventCallbacks()
	w.refreshStatus()

	w.window.SetOnClosed(func() {
		w.Cleanup()
		cfg.App.Quit()
	})
	return w
}

func (w *MainWindow) init() {
	toolbar := w.createToolbar()
	controls := container.NewVBox(
		widget.NewCard("Camera", "", w.createCameraPanel()),
		widget.NewCard("Stage", "", w.createStagePanel()),
	)
	acquisition := w.createAcquisitionPanel()

	split := container.NewHSplit(container.NewVScroll(controls), w.live)
	split.SetOffset(0.28)

	content := container.NewBorder(toolbar, acquisition, nil, nil, split)
	w.window.SetContent(content)
	w.window.Resize(fyne.NewSize(1100, 750))
}

func (w *MainWindow) createToolbar() fyne.CanvasObject {
	w.channelSelect = widget.NewSelect(w.bridge.Channels(), func(name string) {
		w.bridge.SetChannel(name)
	})
	w.channelSelect.PlaceHolder = "Channel"

	w.objectiveSelect = widget.NewSelect(w.bridge.Objectives(), func(name string) {
		w.bridge.SetObjective(name)
	})
	w.objectiveSelect.PlaceHolder = "Objective"

	w.liveBtn = widget.NewButton("Start Live", w.onLiveClicked)
	w.experimentsBtn = widget.NewButtonWithIcon("Experiments", theme.FolderOpenIcon(), w.onExperimentsClicked)
	w.modeLabel = widget.NewLabel("")

	return container.NewHBox(
		w.channelSelect,
		w.objectiveSelect,
		w.liveBtn,
		w.experimentsBtn,
		layout.NewSpacer(),
		w.modeLabel,
	)
}

func (w *MainWindow) createCameraPanel() fyne.CanvasObject {
	w.exposureEntry = widget.NewEntry()
	w.exposureEntry.OnSubmitted = func(s string) {
		if v, ok := w.parseNumber(s, "exposure"); ok {
			w.bridge.SetExposure(v)
		}
	}
	w.gainEntry = widget.NewEntry()
	w.gainEntry.OnSubmitted = func(s string) {
		if v, ok := w.parseNumber(s, "gain"); ok {
			w.bridge.SetGain(v)
		}
	}
	return widget.NewForm(
		widget.NewFormItem("Exposure (ms)", w.exposureEntry),
		widget.NewFormItem("Gain", w.gainEntry),
	)
}

func (w *MainWindow) createStagePanel() fyne.CanvasObject {
	w.positionLabel = widget.NewLabel("")
	w.jogSelect = widget.NewSelect(jogStepsMM, nil)
	w.jogSelect.SetSelectedIndex(2)

	jog := func(axis hardware.Axis, sign float64) func() {
		return func() {
			step, err := strconv.ParseFloat(w.jogSelect.Selected, 64)
			if err != nil {
				return
			}
			w.bridge.Jog(axis, sign*step)
		}
	}

	grid := container.NewGridWithColumns(3,
		widget.NewButton("X-", jog(hardware.AxisX, -1)),
		widget.NewButton("Y+", jog(hardware.AxisY, 1)),
		widget.NewButton("X+", jog(hardware.AxisX, 1)),
		widget.NewButton("Z-", jog(hardware.AxisZ, -1)),
		widget.NewButton("Y-", jog(hardware.AxisY, -1)),
		widget.NewButton("Z+", jog(hardware.AxisZ, 1)),
	)
	w.afReferenceBtn = widget.NewButton("Set AF Reference", w.bridge.SetLaserAFReference)
	if !w.bridge.HasLaserAF() {
		w.afReferenceBtn.Disable()
	}
	return container.NewVBox(
		w.positionLabel,
		container.NewBorder(nil, nil, widget.NewLabel("Step (mm)"), nil, w.jogSelect),
		grid,
		container.NewGridWithColumns(2,
			widget.NewButton("Home", w.bridge.Home),
			w.afReferenceBtn,
		),
	)
}

func (w *MainWindow) createAcquisitionPanel() fyne.CanvasObject {
	w.templateSelect = widget.NewSelect(w.bridge.Templates(), nil)
	w.templateSelect.PlaceHolder = "Plan template"

	w.startBtn = widget.NewButton("Start", w.onStartClicked)
	w.pauseBtn = widget.NewButton("Pause", w.onPauseClicked)
	w.stopBtn = widget.NewButton("Stop", w.bridge.StopAcquisition)
	w.progressBar = widget.NewProgressBar()
	w.progressBar.Max = 100
	w.statusLabel = widget.NewLabel("Idle")
	w.updateAcquisitionControls()

	return container.NewVBox(
		widget.NewSeparator(),
		container.NewBorder(nil, nil,
			container.NewHBox(w.templateSelect, w.startBtn, w.pauseBtn, w.stopBtn),
			w.statusLabel,
			w.progressBar,
		),
	)
}

func (w *MainWindow) setupEventCallbacks() {
	w.bridge.SetCallbacks(&UICallbacks{
		OnExposureChanged: func(ms float64) {
			w.exposureEntry.SetText(formatNumber(ms))
		},
		OnGainChanged: func(gain float64) {
			w.gainEntry.SetText(formatNumber(gain))
		},
		OnStagePosition: w.setPosition,
		OnChannelChanged: func(channel string) {
			w.channelSelect.Selected = channel
			w.channelSelect.Refresh()
		},
		OnGlobalModeChanged: func(mode state.GlobalMode) {
			w.modeLabel.SetText(mode.String())
		},
		OnLiveChanged: func(live bool, channel string) {
			w.isLive = live
			if live {
				w.liveBtn.SetText("Stop Live")
			} else {
				w.liveBtn.SetText("Start Live")
			}
		},
		OnObjectiveChanged: func(name string, pixelSizeUm float64) {
			w.objectiveSelect.Selected = name
			w.objectiveSelect.Refresh()
		},
		OnAcquisitionStarted: func(experimentID string, totalFOVs, totalImages int) {
			w.progressBar.SetValue(0)
			w.statusLabel.SetText(fmt.Sprintf("0/%d FOVs", totalFOVs))
		},
		OnAcquisitionProgress: func(p event.AcquisitionProgress) {
			w.progressBar.SetValue(p.Percent)
			w.statusLabel.SetText(fmt.Sprintf("%d/%d FOVs, ETA %s", p.CompletedFOVs, p.TotalFOVs, formatETA(p.ETA)))
		},
		OnAcquisitionStateChanged: func(s state.AcquisitionState) {
			w.acqState = s
			w.paused = s == state.StatePaused
			w.updateAcquisitionControls()
		},
		OnFOVFailed: func(fov event.FOVRef, err error) {
			w.logger.Warn("FOV failed", "region", fov.RegionID, "fov", fov.FOVIndex, "error", err)
		},
		OnAcquisitionFinished: func(e event.AcquisitionFinished) {
			switch {
			case e.Success:
				w.statusLabel.SetText(fmt.Sprintf("Completed, %d images", e.CapturedImages))
			case e.Aborted:
				w.statusLabel.SetText(fmt.Sprintf("Aborted after %d/%d FOVs", e.CompletedFOVs, e.TotalFOVs))
			default:
				w.statusLabel.SetText("Failed")
				if e.Error != nil {
					dialog.ShowError(e.Error, w.window)
				}
			}
		},
	})
}

// refreshStatus seeds the widgets from a status snapshot.
func (w *MainWindow) refreshStatus() {
	s := w.bridge.Status()
	w.exposureEntry.SetText(formatNumber(s.Camera.ExposureMs))
	w.gainEntry.SetText(formatNumber(s.Camera.AnalogGain))
	w.setPosition(s.Stage.X, s.Stage.Y, s.Stage.Z)
	w.channelSelect.Selected = s.Channel
	w.channelSelect.Refresh()
	w.objectiveSelect.Selected = s.Objective
	w.objectiveSelect.Refresh()
	w.modeLabel.SetText(s.Mode)
}

func (w *MainWindow) setPosition(x, y, z float64) {
	w.positionLabel.SetText(fmt.Sprintf("X %.3f  Y %.3f  Z %.4f mm", x, y, z))
}

func (w *MainWindow) updateAcquisitionControls() {
	running := w.acqState == state.StateRunning || w.acqState == state.StatePaused
	if running {
		w.startBtn.Disable()
		w.pauseBtn.Enable()
		w.stopBtn.Enable()
	} else {
		w.startBtn.Enable()
		w.pauseBtn.Disable()
		w.stopBtn.Disable()
	}
	if w.paused {
		w.pauseBtn.SetText("Resume")
	} else {
		w.pauseBtn.SetText("Pause")
	}
}

func (w *MainWindow) onLiveClicked() {
	if w.isLive {
		w.bridge.StopLive()
		return
	}
	w.bridge.StartLive(w.channelSelect.Selected)
}

func (w *MainWindow) onStartClicked() {
	name := w.templateSelect.Selected
	if name == "" {
		dialog.ShowInformation("Acquisition", "Select a plan template first", w.window)
		return
	}
	if err := w.bridge.StartAcquisition(name); err != nil {
		w.logger.Error("Failed to start acquisition", "template", name, "error", err)
		dialog.ShowError(err, w.window)
	}
}

func (w *MainWindow) onPauseClicked() {
	if w.paused {
		w.bridge.ResumeAcquisition()
		return
	}
	w.bridge.PauseAcquisition()
}

func (w *MainWindow) parseNumber(s, field string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		w.logger.Debug("Ignoring invalid input", "field", field, "value", s)
		return 0, false
	}
	return v, true
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (w *MainWindow) onExperimentsClicked() {
	NewExperimentsDialog(&ExperimentsDialogConfig{
		App:    w.app,
		Bridge: w.bridge,
		Logger: w.logger,
	}).Show()
}

// ShowAndRun displays the window and runs the event loop until it closes.
func (w *MainWindow) ShowAndRun() {
	w.window.ShowAndRun()
}

// Show displays the window.
func (w *MainWindow) Show() {
	w.window.Show()
}

// Cleanup detaches the window from the bridge and the stream handler.
func (w *MainWindow) Cleanup() {
	w.cleanupOnce.Do(func() {
		w.bridge.SetCallbacks(nil)
		if w.stream != nil {
			w.stream.RemoveSink(w.sinkID)
		}
		w.logger.Info("Main window cleaned up")
	})
}
