package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/soyeahso/livechat/internal/api"
	"github.com/soyeahso/livechat/internal/domain"
	"github.com/soyeahso/livechat/internal/widget"
)

// Controller is the part of *widget.Controller the terminal UI drives.
type Controller interface {
	Snapshot() widget.State
	Updates() <-chan struct{}
	SetDraft(text string)
	HandleKey(ctx context.Context, k widget.Key) (bool, error)
	UpdateContact(field domain.ContactField, value string)
	ContactReady() bool
	SubmitContact(ctx context.Context) error
	Toggle()
}

// stateMsg signals that the controller state changed.
type stateMsg struct{}

// resultMsg carries the outcome of a send or submit.
type resultMsg struct{ err error }

const focusMessage = 0

var formFields = []struct {
	field domain.ContactField
	label string
}{
	{domain.FieldName, "Nom"},
	{domain.FieldEmail, "Email"},
	{domain.FieldPhone, "Téléphone"},
}

// Model is the bubbletea model of the chat widget.
type Model struct {
	ctx    context.Context
	ctrl   Controller
	styles Styles

	st       widget.State
	input    textinput.Model
	form     []textinput.Model
	focus    int
	viewport viewport.Model
	status   string
	failed   bool
	width    int
	height   int
}

// New creates the widget model around ctrl.
func New(ctx context.Context, ctrl Controller, styles Styles) Model {
	input := textinput.New()
	input.Placeholder = "Votre message..."
	input.Prompt = "> "
	input.CharLimit = 2000
	input.Focus()

	form := make([]textinput.Model, len(formFields))
	for i := range formFields {
		ti := textinput.New()
		ti.Prompt = ""
		ti.CharLimit = 200
		form[i] = ti
	}

	m := Model{
		ctx:      ctx,
		ctrl:     ctrl,
		styles:   styles,
		input:    input,
		form:     form,
		viewport: viewport.New(60, 12),
		width:    60,
		height:   20,
	}
	m.refresh()
	return m
}

// Init starts listening for controller updates.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForUpdate())
}

func (m Model) waitForUpdate() tea.Cmd {
	updates := m.ctrl.Updates()
	return func() tea.Msg {
		if _, ok := <-updates; !ok {
			return nil
		}
		return stateMsg{}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case stateMsg:
		m.refresh()
		return m, m.waitForUpdate()

	case resultMsg:
		m.status = statusText(msg.err)
		m.failed = msg.err != nil
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "ctrl+o":
		m.ctrl.Toggle()
		m.refresh()
		return m, nil
	}

	if !m.st.Open {
		if msg.Type == tea.KeyEnter {
			m.ctrl.Toggle()
			m.refresh()
		}
		return m, nil
	}

	switch msg.String() {
	case "esc":
		m.ctrl.Toggle()
		m.refresh()
		return m, nil
	case "tab":
		m.cycleFocus(1)
		return m, nil
	case "shift+tab":
		m.cycleFocus(-1)
		return m, nil
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	case "enter":
		return m.enter()
	case "alt+enter":
		// shift+enter in browsers; terminals report it as alt+enter
		m.ctrl.HandleKey(m.ctx, widget.Key{Name: widget.KeyEnter, Shift: true})
		return m, nil
	}

	var cmd tea.Cmd
	if m.focus == focusMessage {
		m.input, cmd = m.input.Update(msg)
		m.ctrl.SetDraft(m.input.Value())
	} else {
		i := m.focus - 1
		m.form[i], cmd = m.form[i].Update(msg)
		m.ctrl.UpdateContact(formFields[i].field, m.form[i].Value())
	}
	return m, cmd
}

func (m Model) enter() (tea.Model, tea.Cmd) {
	ctx, ctrl := m.ctx, m.ctrl
	if m.focus == focusMessage {
		m.status = ""
		m.failed = false
		return m, func() tea.Msg {
			_, err := ctrl.HandleKey(ctx, widget.Key{Name: widget.KeyEnter})
			return resultMsg{err: err}
		}
	}
	if !ctrl.ContactReady() {
		m.cycleFocus(1)
		return m, nil
	}
	m.status = "Envoi..."
	m.failed = false
	return m, func() tea.Msg {
		return resultMsg{err: ctrl.SubmitContact(ctx)}
	}
}

// cycleFocus moves between the message input and the contact fields.
func (m *Model) cycleFocus(delta int) {
	n := 1
	if m.st.ShowContactForm {
		n += len(m.form)
	}
	m.setFocus(((m.focus+delta)%n + n) % n)
}

func (m *Model) setFocus(i int) {
	m.focus = i
	m.input.Blur()
	for j := range m.form {
		m.form[j].Blur()
	}
	if i == focusMessage {
		m.input.Focus()
	} else {
		m.form[i-1].Focus()
	}
}

// refresh pulls a snapshot from the controller and syncs the inputs with it.
func (m *Model) refresh() {
	prev := m.st
	m.st = m.ctrl.Snapshot()

	if m.input.Value() != m.st.Draft {
		m.input.SetValue(m.st.Draft)
	}
	switch {
	case m.st.ShowContactForm && !prev.ShowContactForm:
		m.setFocus(1)
	case !m.st.ShowContactForm && m.focus != focusMessage:
		m.setFocus(focusMessage)
	}

	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
}

func (m *Model) layout() {
	w := m.width - 2
	if w < 20 {
		w = 20
	}
	h := m.height - 8
	if m.st.ShowContactForm {
		h -= len(m.form) + 2
	}
	if h < 3 {
		h = 3
	}
	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 4
	for i := range m.form {
		m.form[i].Width = w - 14
	}
	m.viewport.SetContent(m.renderMessages())
}

func (m Model) renderMessages() string {
	if len(m.st.Messages) == 0 {
		return m.styles.System.Render("Bonjour ! Posez-nous votre question.")
	}
	width := m.viewport.Width
	var sb strings.Builder
	for i, msg := range m.st.Messages {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(m.renderMessage(msg, width))
	}
	return sb.String()
}

func (m Model) renderMessage(msg domain.Message, width int) string {
	var body []string
	if msg.HasImage() {
		name := msg.ImageName
		if name == "" {
			name = "image"
		}
		body = append(body, m.styles.Image.Render(fmt.Sprintf("[%s] %s", name, msg.ImageURL)))
	}
	if msg.Text != "" {
		body = append(body, msg.Text)
	}
	text := strings.Join(body, "\n")

	if msg.IsUser {
		return lipgloss.PlaceHorizontal(width, lipgloss.Right, m.styles.User.Render(text))
	}
	return m.styles.Agent.Width(width).Render(text)
}

// View renders the widget.
func (m Model) View() string {
	if !m.st.Visible {
		return ""
	}
	if !m.st.Open {
		return m.launcherView()
	}

	var sb strings.Builder
	sb.WriteString(m.headerView())
	sb.WriteString("\n")
	sb.WriteString(m.viewport.View())
	sb.WriteString("\n")
	if m.st.ShowContactForm {
		sb.WriteString(m.formView())
		sb.WriteString("\n")
	}
	sb.WriteString(m.input.View())
	sb.WriteString("\n")
	if m.status != "" {
		style := m.styles.Status
		if m.failed {
			style = m.styles.Error
		}
		sb.WriteString(style.Render(m.status))
		sb.WriteString("\n")
	}
	sb.WriteString(m.styles.Help.Render("enter envoyer · tab champ suivant · esc réduire · ctrl+c quitter"))
	return sb.String()
}

func (m Model) headerView() string {
	presence := m.styles.Offline.Render("○ Hors ligne")
	if m.st.AgentsOnline {
		presence = m.styles.Online.Render("● En ligne")
	}
	return m.styles.Header.Render("Support") + " " + presence
}

func (m Model) launcherView() string {
	label := "Chat"
	if m.st.AgentsOnline {
		label = "Chat " + m.styles.Online.Render("●")
	}
	out := m.styles.Launcher.Render(label)
	if m.st.UnreadCount > 0 {
		out = lipgloss.JoinHorizontal(lipgloss.Top, out, " ", m.styles.Badge.Render(fmt.Sprint(m.st.UnreadCount)))
	}
	return out + "\n" + m.styles.Help.Render("ctrl+o ouvrir · ctrl+c quitter")
}

func (m Model) formView() string {
	rows := make([]string, len(m.form))
	for i, f := range formFields {
		label := m.styles.Label
		if m.focus == i+1 {
			label = m.styles.Focused
		}
		rows[i] = label.Render(f.label) + m.form[i].View()
	}
	submit := m.styles.Help.Render("Commencer la discussion")
	if m.ctrl.ContactReady() {
		submit = m.styles.Online.Render("Commencer la discussion ⏎")
	}
	if m.st.Submitting {
		submit = m.styles.Help.Render("Envoi...")
	}
	rows = append(rows, submit)
	return m.styles.Form.Render(strings.Join(rows, "\n"))
}

// statusText turns a send or submit failure into a status line.
func statusText(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, widget.ErrAwaitingContact):
		return "Merci de compléter vos coordonnées pour continuer."
	case errors.Is(err, widget.ErrContactIncomplete):
		return "Nom, email et téléphone sont requis."
	case errors.Is(err, widget.ErrContactInvalid):
		return "Coordonnées invalides."
	case api.IsKind(err, api.KindNetwork):
		return "Connexion impossible, réessayez."
	default:
		return "Erreur : " + err.Error()
	}
}

// Run drives ctrl in a full-screen terminal program until the user quits or ctx ends.
func Run(ctx context.Context, ctrl Controller, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(New(ctx, ctrl, DefaultStyles()), opts...)
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("running widget: %w", err)
	}
	return nil
}
