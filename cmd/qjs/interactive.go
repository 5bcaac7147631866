package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	quickjs "github.com/wippyai/quickjs-runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	inputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type replLimits struct {
	memory  uint64
	stack   uint64
	timeout time.Duration
}

type replEntry struct {
	input  string
	output string
	isErr  bool
}

type replModel struct {
	err     error
	ctx     *quickjs.Context
	limits  replLimits
	console *strings.Builder
	entries []replEntry
	input   textinput.Model
	history []string
	histIdx int
	busy    bool
}

type readyMsg struct {
	err     error
	ctx     *quickjs.Context
	console *strings.Builder
}

type evalMsg struct {
	input   string
	output  string
	console string
	isErr   bool
}

func newReplModel(limits replLimits) *replModel {
	ti := textinput.New()
	ti.Prompt = "js> "
	ti.Placeholder = "1 + 1"
	ti.Width = 72
	ti.Focus()

	return &replModel{
		limits:  limits,
		input:   ti,
		histIdx: -1,
	}
}

func (m *replModel) Init() tea.Cmd {
	return m.startContext
}

func (m *replModel) startContext() tea.Msg {
	console := &strings.Builder{}
	ctx, err := quickjs.New(quickjs.WithStdout(console))
	if err != nil {
		return readyMsg{err: err}
	}

	if m.limits.memory > 0 {
		if err := ctx.SetMemoryLimit(m.limits.memory); err != nil {
			ctx.Close()
			return readyMsg{err: err}
		}
	}
	if m.limits.stack > 0 {
		if err := ctx.SetMaxStackSize(m.limits.stack); err != nil {
			ctx.Close()
			return readyMsg{err: err}
		}
	}
	if m.limits.timeout > 0 {
		if err := ctx.SetTimeLimit(m.limits.timeout); err != nil {
			ctx.Close()
			return readyMsg{err: err}
		}
	}

	return readyMsg{ctx: ctx, console: console}
}

func (m *replModel) evaluate(code string) tea.Cmd {
	return func() tea.Msg {
		v, err := m.ctx.Eval(code)
		if err == nil {
			for {
				ran, jerr := m.ctx.ExecutePendingJob()
				if jerr != nil || !ran {
					break
				}
			}
		}

		console := m.console.String()
		m.console.Reset()

		if err != nil {
			return evalMsg{input: code, output: err.Error(), console: console, isErr: true}
		}
		return evalMsg{input: code, output: renderREPL(v), console: console}
	}
}

func renderREPL(v quickjs.Value) string {
	obj := v.Object()
	if obj == nil {
		return v.String()
	}
	defer obj.Free()

	if text, err := obj.JSON(); err == nil {
		return text
	}
	return "[object]"
}

func (m *replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			if m.ctx != nil {
				m.ctx.Close()
			}
			return m, tea.Quit

		case "enter":
			if m.busy || m.ctx == nil {
				return m, nil
			}
			code := strings.TrimSpace(m.input.Value())
			if code == "" {
				return m, nil
			}
			m.input.SetValue("")
			m.history = append(m.history, code)
			m.histIdx = -1
			m.busy = true
			return m, m.evaluate(code)

		case "up":
			if len(m.history) > 0 {
				if m.histIdx == -1 {
					m.histIdx = len(m.history) - 1
				} else if m.histIdx > 0 {
					m.histIdx--
				}
				m.input.SetValue(m.history[m.histIdx])
				m.input.CursorEnd()
				return m, nil
			}

		case "down":
			if m.histIdx >= 0 {
				m.histIdx++
				if m.histIdx >= len(m.history) {
					m.histIdx = -1
					m.input.SetValue("")
				} else {
					m.input.SetValue(m.history[m.histIdx])
					m.input.CursorEnd()
				}
				return m, nil
			}
		}

	case readyMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.ctx = msg.ctx
		m.console = msg.console

	case evalMsg:
		m.busy = false
		output := msg.output
		if msg.console != "" {
			output = strings.TrimRight(msg.console, "\n") + "\n" + output
		}
		m.entries = append(m.entries, replEntry{
			input:  msg.input,
			output: output,
			isErr:  msg.isErr,
		})
		if len(m.entries) > 50 {
			m.entries = m.entries[len(m.entries)-50:]
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *replModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress ctrl+c to quit.", m.err))
	}
	if m.ctx == nil {
		return "Starting engine..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("QuickJS REPL"))
	b.WriteString("\n\n")

	for _, e := range m.entries {
		b.WriteString(inputStyle.Render("js> " + e.input))
		b.WriteString("\n")
		if e.isErr {
			b.WriteString(errorStyle.Render(e.output))
		} else {
			b.WriteString(resultStyle.Render(e.output))
		}
		b.WriteString("\n")
	}

	if m.busy {
		b.WriteString(helpStyle.Render("evaluating..."))
		b.WriteString("\n")
	} else {
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓ history • enter evaluate • ctrl+c quit"))
	return b.String()
}

func runInteractive(limits replLimits) error {
	p := tea.NewProgram(newReplModel(limits), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
