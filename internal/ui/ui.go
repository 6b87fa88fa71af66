// Package ui renders the meter board in a terminal: one gauge per needle
// and a row of swatches for the LED strip.
package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pcmeter/pcmeter/internal/firmware"
)

// Messages
type (
	tickMsg time.Time

	// NeedleMsg moves one needle to a PWM level.
	NeedleMsg struct {
		Channel firmware.Channel
		Level   int
	}

	// StripMsg latches a full LED strip.
	StripMsg []firmware.RGB

	// StatusMsg carries the loop's state for the footer.
	StatusMsg firmware.Status
)

// Model is the Bubble Tea model of the panel.
type Model struct {
	meterMax     int
	ledsPerMeter int
	title        string

	needles [firmware.Channels]int
	strip   []firmware.RGB
	status  StatusMsg
	bars    [firmware.Channels]progress.Model
	now     time.Time
	width   int
}

// New returns a panel for a board with the given geometry.
func New(title string, meterMax, ledsPerMeter int) *Model {
	if meterMax <= 0 {
		meterMax = firmware.DefaultMeterMax
	}
	if ledsPerMeter <= 0 {
		ledsPerMeter = firmware.DefaultLEDsPerMeter
	}
	m := &Model{
		meterMax:     meterMax,
		ledsPerMeter: ledsPerMeter,
		title:        title,
		strip:        make([]firmware.RGB, firmware.Channels*ledsPerMeter),
		width:        80,
	}
	for i := range m.bars {
		m.bars[i] = progress.New(
			progress.WithWidth(gaugeWidth),
			progress.WithoutPercentage(),
			progress.WithSolidFill(string(needleColor)),
		)
	}
	return m
}

const gaugeWidth = 32

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) Init() tea.Cmd { return tickCmd() }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case tickMsg:
		m.now = time.Time(msg)
		return m, tickCmd()
	case NeedleMsg:
		if msg.Channel >= 0 && int(msg.Channel) < firmware.Channels {
			m.needles[msg.Channel] = msg.Level
		}
	case StripMsg:
		copy(m.strip, msg)
	case StatusMsg:
		m.status = msg
	}
	return m, nil
}

// Styles
var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("45"))
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Bold(true)
	needleColor = lipgloss.Color("#E8C547")
	cardStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("60")).
			Padding(0, 1).
			MarginRight(1)
)

func (m *Model) View() string {
	header := titleStyle.Render(m.title)
	if !m.now.IsZero() {
		header += "  " + subtleStyle.Render(m.now.Format("Mon Jan 2 15:04:05 MST 2006"))
	}

	cards := make([]string, 0, firmware.Channels)
	for ch := 0; ch < firmware.Channels; ch++ {
		cards = append(cards, m.meterCard(firmware.Channel(ch)))
	}
	body := lipgloss.JoinHorizontal(lipgloss.Top, cards...)

	footer := subtleStyle.Render("q to quit")
	if m.status.Lines > 0 || m.status.Mode == firmware.Animating {
		footer = subtleStyle.Render(fmt.Sprintf("%s  lines %d (ignored %d)  raw %d/%d  q to quit",
			m.status.Mode, m.status.Lines, m.status.Ignored,
			m.status.Raw[firmware.CPU], m.status.Raw[firmware.Memory]))
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m *Model) meterCard(ch firmware.Channel) string {
	level := m.needles[ch]
	frac := float64(level) / float64(m.meterMax)
	gauge := fmt.Sprintf("%s %3d/%d", m.bars[ch].ViewAs(frac), level, m.meterMax)

	first := int(ch) * m.ledsPerMeter
	leds := make([]string, 0, m.ledsPerMeter)
	for _, c := range m.strip[first : first+m.ledsPerMeter] {
		leds = append(leds, swatch(c))
	}
	return card(strings.ToUpper(ch.String()), gauge+"\n"+strings.Join(leds, " "))
}

// Helpers
func swatch(c firmware.RGB) string {
	if c == (firmware.RGB{}) {
		return subtleStyle.Render("○")
	}
	hex := fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
	return lipgloss.NewStyle().Foreground(lipgloss.Color(hex)).Render("●")
}

func card(title, body string) string {
	return cardStyle.Render(labelStyle.Render(title) + "\n" + body)
}

// Sender delivers messages to a running program; *tea.Program is one.
type Sender interface {
	Send(msg tea.Msg)
}

// Actuator forwards firmware output to the panel. Pixels are buffered
// until Show, like the strip's own latch.
type Actuator struct {
	out Sender

	mu      sync.Mutex
	pending []firmware.RGB
}

// NewActuator returns an actuator for a strip of firmware.Channels
// meters with ledsPerMeter pixels each.
func NewActuator(out Sender, ledsPerMeter int) *Actuator {
	if ledsPerMeter <= 0 {
		ledsPerMeter = firmware.DefaultLEDsPerMeter
	}
	return &Actuator{out: out, pending: make([]firmware.RGB, firmware.Channels*ledsPerMeter)}
}

func (a *Actuator) SetNeedle(ch firmware.Channel, level int) {
	a.out.Send(NeedleMsg{Channel: ch, Level: level})
}

func (a *Actuator) SetPixel(i int, c firmware.RGB) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if i >= 0 && i < len(a.pending) {
		a.pending[i] = c
	}
}

func (a *Actuator) Show() {
	a.mu.Lock()
	strip := append(StripMsg(nil), a.pending...)
	a.mu.Unlock()
	a.out.Send(strip)
}

// NewProgram wraps the panel in a full-screen Bubble Tea program. Attach
// an Actuator to the returned program before running it.
func NewProgram(m *Model, opts ...tea.ProgramOption) *tea.Program {
	return tea.NewProgram(m, append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)...)
}
