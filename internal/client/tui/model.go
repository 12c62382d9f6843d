package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dmitrijs2005/biru/internal/client/models"
	"github.com/dmitrijs2005/biru/internal/client/workflow"
	"github.com/dmitrijs2005/biru/internal/common"
)

// Workflow is the part of workflow.Controller the form drives.
type Workflow interface {
	Snapshot() workflow.Snapshot
	OnChange(fn func(workflow.Snapshot))
	SetHandle(subdomain, domain string)
	SetConfirmed(confirmed bool)
	SetPrimary(primary bool)
	Register(ctx context.Context) error
	Switch(ctx context.Context, id string) error
	Release(ctx context.Context, id string) error
}

type focus int

const (
	focusSubdomain focus = iota
	focusDomain
	focusActions
	focusCount
)

// changedMsg tells the form the controller state moved on.
type changedMsg struct{}

type opDoneMsg struct {
	op  string
	err error
}

type model struct {
	ctx  context.Context
	flow Workflow
	snap workflow.Snapshot

	focus     focus
	subdomain string
	domain    string
	domainIdx int

	// pendingOp is 's' or 'r' while waiting for the registration number.
	pendingOp rune
	message   string
	failure   error
}

func newModel(ctx context.Context, flow Workflow) model {
	m := model{ctx: ctx, flow: flow, snap: flow.Snapshot(), domainIdx: -1}
	m.subdomain = m.snap.Registration.Pair.Subdomain
	m.domain = m.snap.Registration.Pair.Domain
	if m.domain == "" && len(m.snap.Registration.Domains) > 0 {
		m.domainIdx = 0
		m.domain = m.snap.Registration.Domains[0].Name
	}
	return m
}

// Run shows the form until the user quits or ctx is done.
func Run(ctx context.Context, flow Workflow) error {
	m := newModel(ctx, flow)
	p := tea.NewProgram(m, tea.WithContext(ctx))

	// Send blocks until the event loop reads it, and OnChange may fire from
	// inside Update, so deliver asynchronously and re-read on receipt.
	flow.OnChange(func(workflow.Snapshot) { go p.Send(changedMsg{}) })
	defer flow.OnChange(nil)

	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m model) Init() tea.Cmd {
	if m.subdomain != "" || m.domain != "" {
		return m.push()
	}
	return nil
}

func (m model) push() tea.Cmd {
	sub, dom := m.subdomain, m.domain
	flow := m.flow
	return func() tea.Msg {
		flow.SetHandle(sub, dom)
		return nil
	}
}

func (m model) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case changedMsg:
		m.snap = m.flow.Snapshot()
		return m, nil

	case opDoneMsg:
		m.failure = msg.err
		m.message = ""
		if msg.err == nil {
			m.message = msg.op + " done"
			if msg.op == "register" {
				m.subdomain = ""
			}
		}
		m.snap = m.flow.Snapshot()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m, tea.Quit
	case tea.KeyTab:
		m.focus = (m.focus + 1) % focusCount
		m.pendingOp = 0
		return m, nil
	case tea.KeyShiftTab:
		m.focus = (m.focus + focusCount - 1) % focusCount
		m.pendingOp = 0
		return m, nil
	case tea.KeySpace:
		confirmed := !m.snap.Registration.Confirmed
		m.flow.SetConfirmed(confirmed)
		m.snap = m.flow.Snapshot()
		return m, nil
	case tea.KeyEnter:
		return m.register()
	case tea.KeyUp, tea.KeyDown:
		if m.focus == focusDomain {
			return m.cycleDomain(msg.Type == tea.KeyDown)
		}
		return m, nil
	case tea.KeyBackspace:
		return m.edit(func(s string) string {
			if s == "" {
				return s
			}
			r := []rune(s)
			return string(r[:len(r)-1])
		})
	case tea.KeyRunes:
		if m.focus == focusActions {
			return m.action(msg.Runes)
		}
		text := string(msg.Runes)
		return m.edit(func(s string) string { return s + text })
	}
	return m, nil
}

func (m model) edit(fn func(string) string) (tea.Model, tea.Cmd) {
	switch m.focus {
	case focusSubdomain:
		m.subdomain = fn(m.subdomain)
	case focusDomain:
		m.domain = fn(m.domain)
		m.domainIdx = -1
	default:
		return m, nil
	}
	m.message = ""
	m.flow.SetHandle(m.subdomain, m.domain)
	m.snap = m.flow.Snapshot()
	return m, nil
}

func (m model) cycleDomain(forward bool) (tea.Model, tea.Cmd) {
	domains := m.snap.Registration.Domains
	if len(domains) == 0 {
		return m, nil
	}
	switch {
	case forward:
		m.domainIdx = (m.domainIdx + 1) % len(domains)
	case m.domainIdx <= 0:
		m.domainIdx = len(domains) - 1
	default:
		m.domainIdx--
	}
	m.domain = domains[m.domainIdx].Name
	m.flow.SetHandle(m.subdomain, m.domain)
	m.snap = m.flow.Snapshot()
	return m, nil
}

func (m model) register() (tea.Model, tea.Cmd) {
	r := m.snap.Registration
	if !r.CanRegister() {
		return m, nil
	}
	m.message = "registering " + r.Pair.Handle() + "..."
	m.failure = nil
	return m, m.run("register", m.flow.Register)
}

func (m model) action(runes []rune) (tea.Model, tea.Cmd) {
	if len(runes) != 1 {
		return m, nil
	}
	key := runes[0]

	if m.pendingOp != 0 {
		op := m.pendingOp
		m.pendingOp = 0
		n, err := strconv.Atoi(string(key))
		if err != nil {
			return m, nil
		}
		return m.switchOrRelease(op, n)
	}

	switch key {
	case 'p':
		m.flow.SetPrimary(!m.snap.Registration.SetPrimary)
		m.snap = m.flow.Snapshot()
	case 's', 'r':
		m.pendingOp = key
	}
	return m, nil
}

// switchOrRelease acts on the n-th registration (1-based); 0 with switch
// means the default handle.
func (m model) switchOrRelease(op rune, n int) (tea.Model, tea.Cmd) {
	regs := m.snap.Registration.Registrations
	var id, name string
	switch {
	case n == 0 && op == 's':
		id, name = common.DefaultHandleID, "default handle"
	case n >= 1 && n <= len(regs):
		id, name = regs[n-1].ID, regs[n-1].Handle()
	default:
		return m, nil
	}

	m.failure = nil
	if op == 's' {
		m.message = "switching to " + name + "..."
		return m, m.run(workflow.OpSwitch, func(ctx context.Context) error { return m.flow.Switch(ctx, id) })
	}
	m.message = "releasing " + name + "..."
	return m, m.run(workflow.OpRelease, func(ctx context.Context) error { return m.flow.Release(ctx, id) })
}

func (m model) View() string {
	var b strings.Builder
	s := m.snap
	r := s.Registration

	title := "biru"
	if s.User != nil && s.User.Handle != "" {
		title += " · @" + s.User.Handle
	}
	b.WriteString(titleStyle.Render(title) + "\n\n")

	if !r.FormVisible() {
		b.WriteString(warnStyle.Render(fmt.Sprintf("You already have %d handles, release one to register another.", common.MaxUsernames)) + "\n")
	} else {
		b.WriteString(m.viewForm(r))
	}

	b.WriteString("\n" + m.viewRegistrations(r))

	switch {
	case m.failure != nil:
		b.WriteString("\n" + errorStyle.Render(m.failure.Error()) + "\n")
	case r.Err != nil:
		b.WriteString("\n" + errorStyle.Render(r.Err.Error()) + "\n")
	case m.message != "":
		b.WriteString("\n" + mutedStyle.Render(m.message) + "\n")
	}

	help := "tab focus · ↑/↓ domain · space confirm · enter register · esc quit"
	if m.focus == focusActions {
		help = "p primary · s<n> switch (s0 default) · r<n> release · tab focus · esc quit"
	}
	if m.pendingOp != 0 {
		help = "press the registration number"
	}
	b.WriteString("\n" + mutedStyle.Render(help) + "\n")
	return b.String()
}

func (m model) field(label, value string, f focus) string {
	cursor := " "
	if m.focus == f {
		cursor = focusStyle.Render(">")
		value += "_"
	}
	return cursor + " " + labelStyle.Render(label) + value + "\n"
}

func checkbox(on bool) string {
	if on {
		return "[x]"
	}
	return "[ ]"
}

func (m model) viewForm(r workflow.RegistrationState) string {
	var b strings.Builder
	b.WriteString(m.field("subdomain", m.subdomain, focusSubdomain))
	b.WriteString(m.field("domain", m.domain, focusDomain))

	if h := r.Pair.Handle(); h != "" {
		b.WriteString("  " + labelStyle.Render("handle") + "@" + h + " " + checkStatus(r) + "\n")
	}
	if line := ownerLine(r.Owner()); line != "" {
		b.WriteString("  " + labelStyle.Render("owner") + line + "\n")
	}

	b.WriteString("  " + checkbox(r.Confirmed) + " I understand the domain owner controls this handle\n")
	b.WriteString("  " + checkbox(r.SetPrimary) + " make it my primary handle\n")

	button := "[ register ]"
	switch {
	case r.Registering:
		b.WriteString("  " + mutedStyle.Render("[ registering... ]") + "\n")
	case r.CanRegister():
		b.WriteString("  " + okStyle.Render(button) + "\n")
	default:
		b.WriteString("  " + disabledStyle.Render(button) + "\n")
	}
	return boxStyle.Render(strings.TrimRight(b.String(), "\n")) + "\n"
}

func checkStatus(r workflow.RegistrationState) string {
	switch r.CheckStatus {
	case workflow.CheckPending, workflow.Checking:
		return mutedStyle.Render("checking...")
	case workflow.CheckFailed:
		return errorStyle.Render("check failed")
	case workflow.CheckDone:
		if r.Available() {
			return okStyle.Render("available")
		}
		return errorStyle.Render("taken")
	}
	return ""
}

func ownerLine(o *models.DomainOwner) string {
	switch o.Badge() {
	case models.BadgeVerified:
		return okStyle.Render("✓ @" + o.Handle + " (verified)")
	case models.BadgeAttested:
		line := warnStyle.Render("@" + o.Handle + " (attested)")
		if o.AttestationURL != "" {
			line += " " + mutedStyle.Render(o.AttestationURL)
		}
		return line
	}
	return ""
}

func (m model) viewRegistrations(r workflow.RegistrationState) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Your handles (%d/%d)\n", len(r.Registrations), common.MaxUsernames))
	if len(r.Registrations) == 0 {
		b.WriteString(mutedStyle.Render("  none yet") + "\n")
	}
	for i, reg := range r.Registrations {
		line := fmt.Sprintf("  %d. @%s", i+1, reg.Handle())
		if reg.Primary {
			line += okStyle.Render(" (primary)")
		}
		if r.InFlightID == reg.ID {
			line += mutedStyle.Render(" " + progressive(r.InFlightOp) + "...")
		}
		b.WriteString(line + "\n")
	}
	if r.InFlightID == common.DefaultHandleID {
		b.WriteString(mutedStyle.Render("  switching to default handle...") + "\n")
	}
	return b.String()
}

func progressive(op string) string {
	switch op {
	case workflow.OpSwitch:
		return "switching"
	case workflow.OpRelease:
		return "releasing"
	}
	return op
}
