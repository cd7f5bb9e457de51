package presentation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"squid-go/domain/experiment"
)

// ExperimentsDialogConfig holds configuration for the experiments window.
type ExperimentsDialogConfig struct {
	App    fyne.App
	Bridge *UIEventBridge
	Logger *slog.Logger
}

// ExperimentsDialog lists recorded experiments and shows their details.
type ExperimentsDialog struct {
	config *ExperimentsDialogConfig
	window fyne.Window

	list        *widget.List
	experiments []*experiment.Experiment
	selected    *experiment.Experiment
	detail      *ExperimentDetail
}

// NewExperimentsDialog builds the experiments window and loads the journal.
func NewExperimentsDialog(cfg *ExperimentsDialogConfig) *ExperimentsDialog {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	d := &ExperimentsDialog{config: cfg}
	d.window = cfg.App.NewWindow("Experiments")
	d.buildUI()
	d.Reload()
	d.window.Resize(fyne.NewSize(800, 500))
	return d
}

// Show displays the window.
func (d *ExperimentsDialog) Show() {
	d.window.CenterOnScreen()
	d.window.Show()
}

func (d *ExperimentsDialog) buildUI() {
	refreshBtn := widget.NewButtonWithIcon("Refresh", theme.ViewRefreshIcon(), d.Reload)

	d.list = widget.NewList(
		func() int { return len(d.experiments) },
		func() fyne.CanvasObject {
			return widget.NewLabel("wellplate-96-brightfield 2006-01-02 15:04 (Completed)")
		},
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			if id < len(d.experiments) {
				obj.(*widget.Label).SetText(experimentTitle(d.experiments[id]))
			}
		},
	)
	d.list.OnSelected = func(id widget.ListItemID) {
		if id < len(d.experiments) {
			d.selected = d.experiments[id]
			d.detail.SetExperiment(d.selected, d.captureCount(d.selected.ID))
		}
	}

	listPanel := container.NewBorder(
		container.NewVBox(refreshBtn, widget.NewSeparator()),
		nil, nil, nil,
		d.list,
	)

	d.detail = NewExperimentDetail(d.onDelete)
	d.detail.SetExperiment(nil, 0)

	split := container.NewHSplit(listPanel, d.detail.Container())
	split.SetOffset(0.4)
	d.window.SetContent(split)
}

// Reload fetches the experiment list again.
func (d *ExperimentsDialog) Reload() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exps, err := d.config.Bridge.Experiments(ctx)
	if err != nil {
		d.config.Logger.Error("Failed to load experiments", "error", err)
		return
	}
	d.experiments = exps
	d.selected = nil
	d.detail.SetExperiment(nil, 0)
	d.list.UnselectAll()
	d.list.Refresh()
}

func (d *ExperimentsDialog) captureCount(id string) int {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	captures, err := d.config.Bridge.ExperimentCaptures(ctx, id)
	if err != nil {
		d.config.Logger.Warn("Failed to load captures", "experiment_id", id, "error", err)
		return 0
	}
	return len(captures)
}

func (d *ExperimentsDialog) onDelete(exp *experiment.Experiment) {
	dialog.ShowConfirm("Delete Experiment",
		fmt.Sprintf("Delete the record of '%s'?\nImage files are kept.", experimentTitle(exp)),
		func(confirmed bool) {
			if confirmed {
				d.deleteExperiment(exp)
			}
		},
		d.window,
	)
}

func (d *ExperimentsDialog) deleteExperiment(exp *experiment.Experiment) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := d.config.Bridge.DeleteExperiment(ctx, exp.ID); err != nil {
		dialog.ShowError(err, d.window)
		return
	}
	d.Reload()
}

func experimentTitle(e *experiment.Experiment) string {
	return fmt.Sprintf("%s %s (%s)", e.PlanName, e.StartedAt.Local().Format("2006-01-02 15:04"), e.State)
}

// ExperimentDetail shows one experiment read-only.
type ExperimentDetail struct {
	container *fyne.Container
	onDelete  func(*experiment.Experiment)

	nameLabel     *widget.Label
	stateLabel    *widget.Label
	fovsLabel     *widget.Label
	imagesLabel   *widget.Label
	capturesLabel *widget.Label
	failedLabel   *widget.Label
	startedLabel  *widget.Label
	finishedLabel *widget.Label
	outputLabel   *widget.Label
	errorLabel    *widget.Label

	deleteBtn *widget.Button
	current   *experiment.Experiment
}

// NewExperimentDetail creates the detail panel.
func NewExperimentDetail(onDelete func(*experiment.Experiment)) *ExperimentDetail {
	ed := &ExperimentDetail{onDelete: onDelete}
	ed.build()
	return ed
}

func (ed *ExperimentDetail) build() {
	ed.nameLabel = widget.NewLabel("")
	ed.stateLabel = widget.NewLabel("")
	ed.fovsLabel = widget.NewLabel("")
	ed.imagesLabel = widget.NewLabel("")
	ed.capturesLabel = widget.NewLabel("")
	ed.failedLabel = widget.NewLabel("")
	ed.startedLabel = widget.NewLabel("")
	ed.finishedLabel = widget.NewLabel("")
	ed.outputLabel = widget.NewLabel("")
	ed.outputLabel.Wrapping = fyne.TextWrapBreak
	ed.errorLabel = widget.NewLabel("")
	ed.errorLabel.Wrapping = fyne.TextWrapWord

	form := widget.NewForm(
		widget.NewFormItem("Plan", ed.nameLabel),
		widget.NewFormItem("State", ed.stateLabel),
		widget.NewFormItem("FOVs", ed.fovsLabel),
		widget.NewFormItem("Images", ed.imagesLabel),
		widget.NewFormItem("Captures", ed.capturesLabel),
		widget.NewFormItem("Failed FOVs", ed.failedLabel),
		widget.NewFormItem("Started", ed.startedLabel),
		widget.NewFormItem("Finished", ed.finishedLabel),
		widget.NewFormItem("Output", ed.outputLabel),
		widget.NewFormItem("Error", ed.errorLabel),
	)

	ed.deleteBtn = widget.NewButtonWithIcon("Delete", theme.DeleteIcon(), func() {
		if ed.current != nil && ed.onDelete != nil {
			ed.onDelete(ed.current)
		}
	})
	ed.deleteBtn.Importance = widget.DangerImportance

	ed.container = container.NewPadded(container.NewVBox(
		form,
		widget.NewSeparator(),
		container.NewHBox(ed.deleteBtn, layout.NewSpacer()),
	))
}

// Container returns the panel.
func (ed *ExperimentDetail) Container() fyne.CanvasObject {
	return ed.container
}

// SetExperiment populates the panel. Pass nil to clear it. Runs that have
// not finished cannot be deleted.
func (ed *ExperimentDetail) SetExperiment(exp *experiment.Experiment, captures int) {
	ed.current = exp
	if exp == nil {
		for _, l := range []*widget.Label{
			ed.nameLabel, ed.stateLabel, ed.fovsLabel, ed.imagesLabel, ed.capturesLabel,
			ed.failedLabel, ed.startedLabel, ed.finishedLabel, ed.outputLabel, ed.errorLabel,
		} {
			l.SetText("")
		}
		ed.deleteBtn.Disable()
		return
	}

	ed.nameLabel.SetText(exp.PlanName)
	ed.stateLabel.SetText(exp.State)
	ed.fovsLabel.SetText(fmt.Sprintf("%d / %d", exp.CompletedFOVs, exp.TotalFOVs))
	ed.imagesLabel.SetText(fmt.Sprintf("%d / %d", exp.CapturedImages, exp.TotalImages))
	ed.capturesLabel.SetText(fmt.Sprint(captures))
	ed.failedLabel.SetText(fmt.Sprint(len(exp.FailedFOVs)))
	ed.startedLabel.SetText(formatTime(exp.StartedAt))
	ed.finishedLabel.SetText(formatTime(exp.FinishedAt))
	ed.outputLabel.SetText(exp.OutputDir)
	ed.errorLabel.SetText(exp.Error)

	if exp.Finished() {
		ed.deleteBtn.Enable()
	} else {
		ed.deleteBtn.Disable()
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "--"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
