package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"vidpredict/internal/history"
	"vidpredict/internal/i18n"
	"vidpredict/internal/prediction"
	"vidpredict/internal/session"
)

// prefetchMargin 距离列表末尾多少行时自动加载下一页
// prefetchMargin is how close to the end the selection gets before the next page loads
const prefetchMargin = 3

// --- Tea Messages ---

// loadMoreMsg 请求加载下一页
// loadMoreMsg asks the browser to start the next fetch
type loadMoreMsg struct{}

// pageMsg 一次分页请求的结果
// pageMsg carries the result of one page fetch
type pageMsg struct {
	ticket history.Ticket
	page   prediction.Page
	err    error
}

// SessionChangedMsg 会话变化（登录/登出）
// SessionChangedMsg reports a session change; OK is false after sign-out
type SessionChangedMsg struct{ OK bool }

// Browser 预测历史浏览器 Model
// Browser is the Bubble Tea model for the prediction history
type Browser struct {
	// 布局 / Layout
	width  int
	height int

	// 数据 / Data
	ctx      context.Context
	cursor   *history.Cursor
	items    []prediction.Prediction
	selected int
	offset   int

	// 状态 / State
	loading   bool
	ticket    history.Ticket
	lastError string
	signedOut bool

	// 详情 / Detail
	detail     bool
	detailView viewport.Model

	spin   spinner.Model
	theme  Theme
	keys   KeyMap
	locale *i18n.I18n
}

// NewBrowser 创建历史浏览器
// NewBrowser creates a history browser over cursor
func NewBrowser(ctx context.Context, cursor *history.Cursor) Browser {
	if ctx == nil {
		ctx = context.Background()
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	theme := DarkTheme()
	sp.Style = lipgloss.NewStyle().Foreground(theme.Primary)

	return Browser{
		ctx:        ctx,
		cursor:     cursor,
		items:      cursor.Items(),
		detailView: viewport.New(80, 20),
		spin:       sp,
		theme:      theme,
		keys:       DefaultKeyMap(),
		locale:     i18n.Global(),
	}
}

func (b Browser) Init() tea.Cmd {
	return func() tea.Msg { return loadMoreMsg{} }
}

func (b Browser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		b.width = msg.Width
		b.height = msg.Height
		b.relayout()
		return b, nil

	case spinner.TickMsg:
		if !b.loading {
			return b, nil
		}
		var cmd tea.Cmd
		b.spin, cmd = b.spin.Update(msg)
		return b, cmd

	case loadMoreMsg:
		return b, b.startFetch()

	case pageMsg:
		// 过期结果（重置前发出的请求）直接丢弃
		// Results for a ticket we no longer wait on are dropped
		if !b.loading || msg.ticket != b.ticket {
			return b, nil
		}
		b.loading = false
		if msg.err != nil {
			b.cursor.Fail(msg.ticket, msg.err)
			b.lastError = b.locale.Error("history", msg.err)
			return b, nil
		}
		b.cursor.Complete(msg.ticket, msg.page)
		b.items = b.cursor.Items()
		b.lastError = ""
		b.clampSelection()
		// 一页不足以填满屏幕时继续加载
		// Keep loading while the list does not fill the screen
		if b.nearEnd() {
			return b, b.startFetch()
		}
		return b, nil

	case SessionChangedMsg:
		b.signedOut = !msg.OK
		if !msg.OK {
			b.cursor.Reset()
			b.items = nil
			b.selected, b.offset = 0, 0
			b.loading = false
			b.detail = false
			return b, nil
		}
		if len(b.items) == 0 {
			return b, b.startFetch()
		}
		return b, nil

	case tea.KeyMsg:
		return b.handleKey(msg)
	}
	return b, nil
}

func (b Browser) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, b.keys.Quit) {
		return b, tea.Quit
	}

	if b.detail {
		if key.Matches(msg, b.keys.Back) {
			b.detail = false
			return b, nil
		}
		var cmd tea.Cmd
		b.detailView, cmd = b.detailView.Update(msg)
		return b, cmd
	}

	switch {
	case key.Matches(msg, b.keys.Up):
		b.move(-1)
	case key.Matches(msg, b.keys.Down):
		b.move(1)
	case key.Matches(msg, b.keys.PageUp):
		b.move(-b.listHeight())
	case key.Matches(msg, b.keys.PageDown):
		b.move(b.listHeight())
	case key.Matches(msg, b.keys.Open):
		if b.selected < len(b.items) {
			b.openDetail(b.items[b.selected])
		}
		return b, nil
	case key.Matches(msg, b.keys.Refresh):
		if b.signedOut {
			return b, nil
		}
		b.cursor.Reset()
		b.items = nil
		b.selected, b.offset = 0, 0
		b.loading = false
		b.lastError = ""
		return b, b.startFetch()
	default:
		return b, nil
	}

	if b.nearEnd() {
		return b, b.startFetch()
	}
	return b, nil
}

// startFetch 通过游标开始下一次请求；游标忙或已耗尽时不做任何事
// startFetch begins the next cursor fetch; it is a no-op while busy or exhausted
func (b *Browser) startFetch() tea.Cmd {
	if b.signedOut || b.loading {
		return nil
	}
	t, ok := b.cursor.Begin()
	if !ok {
		return nil
	}
	b.loading = true
	b.ticket = t

	ctx, cursor := b.ctx, b.cursor
	fetch := func() tea.Msg {
		page, err := cursor.Fetch(ctx, t)
		return pageMsg{ticket: t, page: page, err: err}
	}
	return tea.Batch(fetch, b.spin.Tick)
}

func (b *Browser) move(delta int) {
	if len(b.items) == 0 {
		return
	}
	b.selected += delta
	b.clampSelection()
}

func (b *Browser) clampSelection() {
	if b.selected >= len(b.items) {
		b.selected = len(b.items) - 1
	}
	if b.selected < 0 {
		b.selected = 0
	}
	h := b.listHeight()
	if b.selected < b.offset {
		b.offset = b.selected
	}
	if b.selected >= b.offset+h {
		b.offset = b.selected - h + 1
	}
}

// nearEnd 选中项接近末尾或列表未填满屏幕
// nearEnd reports whether the selection is close to the end of what is loaded
func (b Browser) nearEnd() bool {
	if b.cursor.Exhausted() {
		return false
	}
	if len(b.items) < b.listHeight() {
		return true
	}
	return b.selected >= len(b.items)-prefetchMargin
}

func (b *Browser) openDetail(p prediction.Prediction) {
	md := DetailMarkdown(p, b.locale.T("browser.detail"), b.locale.T("browser.created"))
	b.detailView.SetContent(RenderMarkdown(md, b.detailView.Width))
	b.detailView.GotoTop()
	b.detail = true
}

func (b *Browser) relayout() {
	w := b.width
	if w < 20 {
		w = 20
	}
	b.detailView.Width = w
	b.detailView.Height = b.listHeight()
	b.clampSelection()
}

// listHeight 列表区域高度（去掉标题栏和状态栏）
// listHeight is the body height without the title and status bars
func (b Browser) listHeight() int {
	h := b.height - 3
	if h < 1 {
		return 1
	}
	return h
}

func (b Browser) View() string {
	title := b.theme.TitleStyle.Render(b.locale.T("history.title"))
	if n := len(b.items); n > 0 {
		title += b.theme.MutedStyle.Render(b.locale.T("history.count", n))
	}

	var body string
	if b.detail {
		body = b.detailView.View()
	} else {
		body = b.renderList()
	}

	return lipgloss.JoinVertical(lipgloss.Left, title, body, b.renderStatus())
}

func (b Browser) renderList() string {
	width := b.width
	if width <= 0 {
		width = 80
	}
	h := b.listHeight()

	var lines []string
	if len(b.items) == 0 && !b.loading {
		lines = append(lines, b.theme.MutedStyle.Render(" "+b.locale.T("history.empty")))
	}
	end := b.offset + h
	if end > len(b.items) {
		end = len(b.items)
	}
	for i := b.offset; i < end; i++ {
		lines = append(lines, RenderRow(b.items[i], width, i == b.selected, b.theme))
	}

	if len(lines) < h {
		switch {
		case b.loading:
			lines = append(lines, fmt.Sprintf(" %s %s", b.spin.View(), b.locale.T("history.loading")))
		case b.cursor.Exhausted() && len(b.items) > 0:
			lines = append(lines, b.theme.MutedStyle.Render(" "+b.locale.T("history.end")))
		}
	}
	for len(lines) < h {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func (b Browser) renderStatus() string {
	var text string
	switch {
	case b.signedOut:
		text = b.theme.ErrorStyle.Render(b.locale.T("browser.signedout"))
	case b.lastError != "":
		text = b.theme.ErrorStyle.Render(b.lastError)
	case b.detail:
		text = strings.Join([]string{b.locale.T("keys.back"), b.locale.T("keys.quit")}, " · ")
	default:
		hints := []string{b.locale.T("keys.open"), b.locale.T("keys.refresh"), b.locale.T("keys.quit")}
		if !b.cursor.Exhausted() {
			hints = append([]string{b.locale.T("keys.more")}, hints...)
		}
		text = strings.Join(hints, " · ")
	}
	style := b.theme.StatusBarStyle
	if b.width > 0 {
		style = style.Width(b.width)
	}
	return style.Render(text)
}

// Run 启动全屏浏览器；会话被清除时界面同步显示
// Run starts the fullscreen browser. When store is not nil, sign-outs made
// elsewhere in the process are reflected in the view.
func Run(ctx context.Context, cursor *history.Cursor, store *session.Store) error {
	p := tea.NewProgram(NewBrowser(ctx, cursor), tea.WithAltScreen(), tea.WithContext(ctx))
	if store != nil {
		store.Subscribe(func(_ session.Session, ok bool) {
			p.Send(SessionChangedMsg{OK: ok})
		})
	}
	_, err := p.Run()
	return err
}
