// Package tui is the interactive chat front end.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"paperqa/internal/domain"
	"paperqa/internal/service"
	"paperqa/internal/textproc"
)

// ChatPort is the TUI-facing subset of the chat service.
type ChatPort interface {
	Ask(ctx context.Context, question string, state domain.SessionState) (service.Reply, error)
	NextState() domain.SessionState
	Transcript() domain.Transcript
}

type answerMsg struct {
	question string
	reply    service.Reply
	err      error
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	ctx      context.Context
	chat     ChatPort
	input    textinput.Model
	viewport viewport.Model
	history  []domain.ChatMessage
	paper    *domain.Candidate
	summary  string
	status   string
	fresh    bool
	busy     bool
	ready    bool
	lastQ    string
}

func New(ctx context.Context, chat ChatPort) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about a medical paper and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	m := Model{
		ctx:      ctx,
		chat:     chat,
		input:    ti,
		viewport: vp,
		history:  chat.Transcript().Messages,
		fresh:    chat.NextState() == domain.FreshTopic,
		status:   "Enter sends, ctrl+n starts a new topic, ctrl+c quits.",
	}
	return m
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, ch := chatBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 4 + 1 + qh + 1 // header and paper panel, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-ch)
		m.refresh()
		return m, nil
	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		m.history = append(m.history,
			domain.ChatMessage{Role: domain.RoleUser, Content: msg.question},
			msg.reply.Message)
		m.paper = msg.reply.Paper
		m.summary = msg.reply.Summary
		m.lastQ = msg.question
		switch {
		case msg.reply.Fallback:
			m.status = "No paper matched; the next question searches again."
			m.fresh = true
		default:
			m.status = "Follow-up questions stay on this paper."
			m.fresh = false
		}
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyCtrlN:
			m.fresh = true
			m.status = "New topic: the next question searches the corpus."
			return m, nil
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			state := domain.Continuation
			if m.fresh {
				state = domain.FreshTopic
			}
			m.busy = true
			m.input.Reset()
			m.status = "Thinking..."
			return m, m.ask(q, state)
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(question string, state domain.SessionState) tea.Cmd {
	ctx, chat := m.ctx, m.chat
	return func() tea.Msg {
		reply, err := chat.Ask(ctx, question, state)
		return answerMsg{question: question, reply: reply, err: err}
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("paperqa")
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	chat := chatBoxStyle.Render(m.viewport.View())
	return header + "\n" + m.renderPaper() + "\n" + chat + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

func (m Model) renderPaper() string {
	muted := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	if m.paper == nil {
		return muted.Render("No paper selected yet.")
	}
	title := fmt.Sprintf("Paper %s  score=%.3f", m.paper.Document.DocumentID, m.paper.Score)
	return paperStyle.Render(title) + "\n" + muted.Render(highlightBestSentence(m.summary, m.lastQ))
}

func (m Model) renderHistory() string {
	if len(m.history) == 0 {
		return "No messages yet."
	}
	width := max(20, m.viewport.Width-4)
	var b strings.Builder
	for i, msg := range m.history {
		if i > 0 {
			b.WriteString("\n\n")
		}
		label := assistantStyle.Render("Assistant:")
		if msg.Role == domain.RoleUser {
			label = userStyle.Render("You:")
		}
		b.WriteString(label + " " + lipgloss.NewStyle().Width(width).Render(msg.Content))
	}
	return b.String()
}

var (
	chatBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	paperStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
)

// highlightBestSentence emphasises the sentence sharing the most words with
// query.
func highlightBestSentence(text, query string) string {
	sentences := textproc.Sentences(text)
	if len(sentences) == 0 {
		return text
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx, bestScore := 0, 0
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore, bestIdx = score, i
		}
	}
	if bestScore == 0 {
		return strings.Join(sentences, " ")
	}
	out := make([]string, len(sentences))
	copy(out, sentences)
	out[bestIdx] = highlightStyle.Render(out[bestIdx])
	return strings.Join(out, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := textproc.ContentTokens(s)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := map[string]struct{}{}
	for _, t := range textproc.Tokens(sentence) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
