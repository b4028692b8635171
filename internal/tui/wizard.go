package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/felixgeelhaar/appify/internal/wizard"
	"github.com/felixgeelhaar/appify/pkg/appify/types"
)

// DefaultRefreshInterval separates status refreshes on the result step
// when no real-time channel is available.
const DefaultRefreshInterval = 5 * time.Second

// RunWatcher streams the status events of a run.
type RunWatcher func(ctx context.Context, credential, runID string) (<-chan types.RunEvent, error)

// WizardOption configures a WizardModel.
type WizardOption func(*WizardModel)

// WithRunWatcher follows runs over a real-time channel instead of polling.
func WithRunWatcher(w RunWatcher) WizardOption {
	return func(m *WizardModel) { m.watcher = w }
}

// WithRefreshInterval sets the polling interval of the result step.
func WithRefreshInterval(d time.Duration) WizardOption {
	return func(m *WizardModel) {
		if d > 0 {
			m.refreshEvery = d
		}
	}
}

// WithInitialKey pre-fills the API key field.
func WithInitialKey(key string) WizardOption {
	return func(m *WizardModel) { m.initialKey = key }
}

// WizardModel is the Bubble Tea front end of a wizard.Controller.
type WizardModel struct {
	ctx          context.Context
	ctrl         *wizard.Controller
	watcher      RunWatcher
	refreshEvery time.Duration
	initialKey   string

	form     *huh.Form
	formStep wizard.Step
	inputs   *inputs

	spinner spinner.Model
	styles  Styles

	// watch state of the shown run
	watchCancel context.CancelFunc
	polling     bool
	notice      string

	width    int
	height   int
	quitting bool
}

// Messages produced by the asynchronous wizard operations.
type (
	opDoneMsg struct {
		err error
	}

	refreshMsg struct {
		active bool
		err    error
	}

	refreshTickMsg struct {
		runID string
	}

	runEventMsg struct {
		runID  string
		event  types.RunEvent
		events <-chan types.RunEvent
		closed bool
	}

	watchFailedMsg struct {
		runID string
		err   error
	}
)

// NewWizardModel creates the TUI for ctrl. Backend calls use ctx.
func NewWizardModel(ctx context.Context, ctrl *wizard.Controller, opts ...WizardOption) *WizardModel {
	m := &WizardModel{
		ctx:          ctx,
		ctrl:         ctrl,
		refreshEvery: DefaultRefreshInterval,
		spinner:      spinner.New(spinner.WithSpinner(spinner.Dot)),
		styles:       DefaultStyles(),
	}
	m.spinner.Style = m.styles.Status
	for _, opt := range opts {
		opt(m)
	}
	m.syncForm()
	return m
}

// Init initializes the model
func (m *WizardModel) Init() tea.Cmd {
	if m.form != nil {
		return m.form.Init()
	}
	return nil
}

// Update handles messages and updates the model
func (m *WizardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m.quit()
		}
		if m.form == nil {
			return m.handleKey(msg)
		}

	case spinner.TickMsg:
		if !m.ctrl.Snapshot().Loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case opDoneMsg:
		return m, m.afterStep()

	case refreshMsg:
		return m, m.afterRefresh(msg)

	case refreshTickMsg:
		if !m.showing(msg.runID) {
			return m, nil
		}
		return m, m.refresh()

	case runEventMsg:
		return m, m.handleRunEvent(msg)

	case watchFailedMsg:
		if !m.showing(msg.runID) {
			return m, nil
		}
		m.notice = fmt.Sprintf("Live updates unavailable (%v), polling instead", msg.err)
		m.polling = true
		return m, m.refresh()
	}

	if m.form == nil {
		return m, nil
	}

	f, cmd := m.form.Update(msg)
	if hf, ok := f.(*huh.Form); ok {
		m.form = hf
	}
	switch m.form.State {
	case huh.StateCompleted:
		return m, m.submitForm()
	case huh.StateAborted:
		return m.quit()
	}
	return m, cmd
}

func (m *WizardModel) quit() (tea.Model, tea.Cmd) {
	m.stopWatching()
	m.quitting = true
	return m, tea.Quit
}

// handleKey serves the result step, which has no form.
func (m *WizardModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		return m.quit()
	case "n", "enter":
		if m.ctrl.Step() != wizard.StepShowingResult {
			return m, nil
		}
		m.stopWatching()
		m.notice = ""
		m.ctrl.Reset()
		m.syncForm()
		return m, m.form.Init()
	case "r":
		if m.ctrl.Step() == wizard.StepShowingResult && !m.ctrl.Snapshot().Loading {
			return m, m.refresh()
		}
	}
	return m, nil
}

// submitForm runs the transition of the step the completed form belongs to.
func (m *WizardModel) submitForm() tea.Cmd {
	step := m.formStep
	f := m.form
	m.form = nil

	switch step {
	case wizard.StepAwaitingCredential:
		key := f.GetString("apiKey")
		return m.async(func(ctx context.Context) error { return m.ctrl.SubmitCredential(ctx, key) })

	case wizard.StepSelectingActor:
		actorID := f.GetString("actor")
		return m.async(func(ctx context.Context) error { return m.ctrl.SelectActor(ctx, actorID) })

	case wizard.StepConfiguringInput:
		if m.inputs != nil {
			if err := m.ctrl.SetValues(m.inputs.values()); err != nil {
				return m.afterStep()
			}
		}
		_ = m.ctrl.Submit()
		return m.afterStep()
	}
	return nil
}

// async runs fn off the UI loop and shows the spinner meanwhile.
func (m *WizardModel) async(fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return tea.Batch(
		func() tea.Msg { return opDoneMsg{err: fn(ctx)} },
		m.spinner.Tick,
	)
}

// afterStep brings the UI in line with the controller after a transition.
func (m *WizardModel) afterStep() tea.Cmd {
	s := m.ctrl.Snapshot()
	switch s.Step {
	case wizard.StepExecuting:
		m.form = nil
		return m.async(m.ctrl.Execute)
	case wizard.StepShowingResult:
		m.form = nil
		if s.Result == nil || s.Result.Run == nil {
			return nil
		}
		return m.follow(s.Credential, s.Result.Run.ID)
	default:
		m.syncForm()
		return m.form.Init()
	}
}

// follow keeps the shown run up to date, over the real-time channel when
// one is configured and by polling otherwise.
func (m *WizardModel) follow(credential, runID string) tea.Cmd {
	if m.watcher == nil {
		m.polling = true
		return m.refresh()
	}

	ctx, cancel := context.WithCancel(m.ctx)
	m.watchCancel = cancel
	watcher := m.watcher
	return func() tea.Msg {
		events, err := watcher(ctx, credential, runID)
		if err != nil {
			return watchFailedMsg{runID: runID, err: err}
		}
		return nextEvent(runID, events)()
	}
}

func nextEvent(runID string, events <-chan types.RunEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		return runEventMsg{runID: runID, event: ev, events: events, closed: !ok}
	}
}

func (m *WizardModel) handleRunEvent(msg runEventMsg) tea.Cmd {
	if !m.showing(msg.runID) {
		return nil
	}
	if msg.closed {
		// the channel ended without a final status
		m.polling = true
		return m.refresh()
	}

	ev := msg.event
	if ev.Type == types.EventRunError {
		m.notice = "Live updates stopped: " + ev.Error
		m.polling = true
		return m.refresh()
	}
	if ev.Data != nil {
		m.ctrl.ApplyUpdate(*ev.Data)
	}
	if ev.Final() {
		m.stopWatching()
		// one last read loads the results of a successful run
		return m.refresh()
	}
	return nextEvent(msg.runID, msg.events)
}

func (m *WizardModel) refresh() tea.Cmd {
	ctx := m.ctx
	return tea.Batch(
		func() tea.Msg {
			active, err := m.ctrl.Refresh(ctx)
			return refreshMsg{active: active, err: err}
		},
		m.spinner.Tick,
	)
}

func (m *WizardModel) afterRefresh(msg refreshMsg) tea.Cmd {
	s := m.ctrl.Snapshot()
	if s.Step != wizard.StepShowingResult || s.Result == nil || s.Result.Run == nil {
		return nil
	}
	if msg.err != nil || !msg.active || !m.polling {
		return nil
	}
	runID := s.Result.Run.ID
	return tea.Tick(m.refreshEvery, func(time.Time) tea.Msg { return refreshTickMsg{runID: runID} })
}

// showing reports whether runID is the run on screen.
func (m *WizardModel) showing(runID string) bool {
	s := m.ctrl.Snapshot()
	return s.Step == wizard.StepShowingResult && s.Result != nil && s.Result.Run != nil && s.Result.Run.ID == runID
}

func (m *WizardModel) stopWatching() {
	if m.watchCancel != nil {
		m.watchCancel()
		m.watchCancel = nil
	}
	m.polling = false
}

// syncForm builds the form of the current step.
func (m *WizardModel) syncForm() {
	s := m.ctrl.Snapshot()
	m.formStep = s.Step
	m.inputs = nil

	switch s.Step {
	case wizard.StepAwaitingCredential:
		key := m.initialKey
		m.form = huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Key("apiKey").
				Title("API Key").
				Description("Your Apify API token (Settings → Integrations)").
				EchoMode(huh.EchoModePassword).
				Value(&key),
		))

	case wizard.StepSelectingActor:
		options := make([]huh.Option[string], 0, len(s.Actors))
		for _, a := range s.Actors {
			label := a.DisplayName()
			if a.Username != "" {
				label = fmt.Sprintf("%s (%s/%s)", label, a.Username, a.Name)
			}
			options = append(options, huh.NewOption(label, a.ID))
		}
		selected := ""
		m.form = huh.NewForm(huh.NewGroup(
			huh.NewSelect[string]().
				Key("actor").
				Title("Actor").
				Options(options...).
				Height(12).
				Value(&selected),
		))

	case wizard.StepConfiguringInput:
		in, fields := newInputs(s.Schema, s.Values, s.FieldErrors)
		if len(fields) == 0 {
			fields = append(fields, huh.NewNote().
				Title("No input").
				Description("This actor declares no input fields. Continue to run it."))
		}
		m.inputs = in
		m.form = huh.NewForm(huh.NewGroup(fields...))

	default:
		m.form = nil
	}

	if m.form != nil {
		m.form = m.form.WithShowHelp(true)
	}
}

// RunWizard runs the wizard TUI until the user quits and returns the last
// wizard state.
func RunWizard(ctx context.Context, ctrl *wizard.Controller, opts ...WizardOption) (wizard.State, error) {
	model := NewWizardModel(ctx, ctrl, opts...)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return ctrl.Snapshot(), fmt.Errorf("run TUI: %w", err)
	}
	model.stopWatching()
	return ctrl.Snapshot(), nil
}
