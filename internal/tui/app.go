package tui

import (
	"context"
	"errors"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/famcall/internal/call"
	"github.com/matheus3301/famcall/internal/tui/client"
	"github.com/matheus3301/famcall/internal/tui/keys"
	"github.com/matheus3301/famcall/internal/tui/model"
	"github.com/matheus3301/famcall/internal/tui/ui"
	"github.com/matheus3301/famcall/internal/tui/views"
	"github.com/rivo/tview"
	grpcstatus "google.golang.org/grpc/status"
)

// Page names.
const (
	PageCall    = "call"
	PageHistory = "history"
	PageFamily  = "family"
	PageLink    = "link"
	PageHelp    = "help"
)

const (
	actionTimeout = 10 * time.Second
	rewatchDelay  = 2 * time.Second
	// Presence on the family page is polled from the hub through the daemon.
	contactsRefresh = 30 * time.Second
)

// promptCommands are completed in the command prompt.
var promptCommands = []string{"accept", "call", "end", "family", "flip", "help", "history", "link", "open", "quit"}

// App is the main TUI application shell.
type App struct {
	app     *tview.Application
	root    *tview.Flex
	pages   *ui.Pages
	vm      *model.ViewModel
	account string
	theme   *ui.Theme
	started time.Time

	registry    *keys.Registry
	accountInfo *ui.AccountInfo
	menu        *ui.Menu
	prompt      *ui.Prompt
	flashBar    *ui.FlashBar
	statusBar   *views.StatusBar
	callView    *views.CallView
	historyView *views.HistoryView
	familyView  *views.FamilyView
	linkView    *views.LinkView
	helpView    *views.HelpView
	components  map[string]ui.Component

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application for the daemon of account, whose
// local user is userID.
func NewApp(c *client.Client, account, userID string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:         tview.NewApplication(),
		pages:       ui.NewPages(),
		vm:          model.NewViewModel(c),
		account:     account,
		theme:       theme,
		started:     time.Now(),
		registry:    keys.NewRegistry(),
		accountInfo: ui.NewAccountInfo(theme),
		menu:        ui.NewMenu(theme),
		prompt:      ui.NewPrompt(theme, promptCommands...),
		flashBar:    ui.NewFlashBar(theme),
		statusBar:   views.NewStatusBar(theme),
		callView:    views.NewCallView(theme),
		historyView: views.NewHistoryView(theme, userID),
		familyView:  views.NewFamilyView(theme),
		linkView:    views.NewLinkView(theme),
		helpView:    views.NewHelpView(theme),
		ctx:         ctx,
		cancel:      cancel,
	}
	a.components = map[string]ui.Component{
		PageCall:    a.callView,
		PageHistory: a.historyView,
		PageFamily:  a.familyView,
		PageLink:    a.linkView,
		PageHelp:    a.helpView,
	}

	a.statusBar.SetAccount(account)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("quit", &keys.Action{
		Rune: 'q', Key: tcell.KeyRune, Label: "q",
		Description: "Quit", Visible: true,
		Handler: func() { a.Stop() },
	})
	a.registry.AddGlobal("command", &keys.Action{
		Rune: ':', Key: tcell.KeyRune, Label: ":",
		Description: "Command", Visible: true,
		Handler: func() { a.showPrompt(ui.PromptCommand) },
	})
	a.registry.AddGlobal("help", &keys.Action{
		Rune: '?', Key: tcell.KeyRune, Label: "?",
		Description: "Help", Visible: true,
		Handler: func() { a.push(PageHelp) },
	})
	a.registry.AddGlobal("history", &keys.Action{
		Rune: 'H', Key: tcell.KeyRune, Label: "H",
		Description: "History", Visible: true,
		Handler: func() { a.showHistory() },
	})
	a.registry.AddGlobal("family", &keys.Action{
		Rune: 'F', Key: tcell.KeyRune, Label: "F",
		Description: "Family", Visible: true,
		Handler: func() { a.showFamily() },
	})
	a.registry.AddGlobal("link", &keys.Action{
		Rune: 'L', Key: tcell.KeyRune, Label: "L",
		Description: "Call link", Visible: true,
		Handler: func() { a.showLink() },
		Enabled: func() bool { return a.vm.HasButton(call.ButtonAccept) || a.vm.HasButton(call.ButtonHangup) },
	})

	a.addButton(call.ButtonAccept, "Accept", a.vm.Accept)
	a.addButton(call.ButtonDecline, "Decline", a.vm.End)
	a.addButton(call.ButtonHangup, "Hang up", a.vm.End)
	a.addButton(call.ButtonFlip, "Flip camera", a.vm.FlipCamera)

	a.registry.AddView(PageFamily, "video", &keys.Action{
		Rune: 'v', Key: tcell.KeyRune, Label: "v",
		Description: "Video call",
		Handler:     func() { a.callContact(call.Video) },
	})
	a.registry.AddView(PageHistory, "filter", &keys.Action{
		Rune: '/', Key: tcell.KeyRune, Label: "/",
		Description: "Filter",
		Handler:     func() { a.showPrompt(ui.PromptFilter) },
	})
}

// addButton binds a call screen button to its key. The binding is live only
// while the screen offers the button.
func (a *App) addButton(b call.Button, desc string, fn func(context.Context) error) {
	a.registry.AddView(PageCall, string(b), &keys.Action{
		Rune: views.ButtonKeys[b], Key: tcell.KeyRune,
		Description: desc,
		Handler:     func() { a.run(fn) },
		Enabled:     func() bool { return a.vm.HasButton(b) },
	})
}

func (a *App) setupCallbacks() {
	a.historyView.SetSelectedFunc(func(row, col int) {
		peer := a.historyView.SelectedPeer()
		if peer == "" {
			return
		}
		a.run(func(ctx context.Context) error {
			return a.vm.StartCall(ctx, peer, call.Audio)
		})
		a.pages.Reset(PageCall)
	})

	a.familyView.SetSelectedFunc(func(row, col int) {
		a.callContact(call.Audio)
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		switch mode {
		case ui.PromptCommand:
			a.execute(ParseCommand(text))
		case ui.PromptFilter:
			a.historyView.SetFilter(text)
		}
	})
	a.prompt.SetOnCancel(func() {
		a.hidePrompt()
		if a.prompt.Mode() == ui.PromptFilter {
			a.historyView.SetFilter("")
		}
	})

	a.pages.SetOnChange(func(string) { a.refreshMenu() })
}

func (a *App) setupLayout() {
	header := tview.NewFlex().
		AddItem(a.accountInfo, 0, 2, false).
		AddItem(a.menu, 0, 2, false).
		AddItem(ui.NewLogo(a.theme), 24, 0, false)

	a.pages.AddPage(PageCall, a.callView, true, false)
	a.pages.AddPage(PageHistory, a.historyView, true, false)
	a.pages.AddPage(PageFamily, a.familyView, true, false)
	a.pages.AddPage(PageLink, a.linkView, true, false)
	a.pages.AddPage(PageHelp, a.helpView, true, false)
	a.pages.Reset(PageCall)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, ui.MenuRows, 0, false).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.flashBar, 1, 0, false).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(a.root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		// Let text input widgets handle all keys normally.
		switch a.app.GetFocus().(type) {
		case *tview.InputField, *ui.Prompt:
			return event
		}

		if event.Key() == tcell.KeyEscape && a.pages.Back() {
			a.focusCurrent()
			return nil
		}

		if a.registry.HandleEvent(a.pages.Current(), event) {
			a.refreshMenu()
			return nil
		}
		return event
	})
}

func (a *App) execute(cmd Command) {
	switch cmd.Name {
	case "call", "c":
		peer, kind, err := cmd.CallArgs()
		if err != nil {
			a.vm.Flash.Err(err)
			return
		}
		a.pages.Reset(PageCall)
		a.run(func(ctx context.Context) error { return a.vm.StartCall(ctx, peer, kind) })
	case "accept":
		a.pages.Reset(PageCall)
		a.run(a.vm.Accept)
	case "end", "hangup", "decline":
		a.run(a.vm.End)
	case "flip":
		a.run(a.vm.FlipCamera)
	case "open":
		if cmd.Args == "" {
			a.vm.Flash.Err(errors.New("usage: :open <link>"))
			return
		}
		a.pages.Reset(PageCall)
		a.run(func(ctx context.Context) error { return a.vm.OpenLink(ctx, cmd.Args) })
	case "history":
		a.showHistory()
	case "family":
		a.showFamily()
	case "link":
		a.showLink()
	case "help", "h":
		a.push(PageHelp)
	case "quit", "q":
		a.Stop()
	default:
		a.vm.Flash.Warn("Unknown command: " + cmd.Name)
	}
}

// run performs a daemon call off the UI goroutine and flashes its error.
func (a *App) run(fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, actionTimeout)
		defer cancel()
		if err := fn(ctx); err != nil && a.ctx.Err() == nil {
			a.vm.Flash.Err(errors.New(grpcstatus.Convert(err).Message()))
		}
		a.app.QueueUpdateDraw(a.updateViews)
	}()
}

func (a *App) push(page string) {
	if a.pages.Current() == page {
		return
	}
	a.pages.Push(page)
	a.focusCurrent()
}

func (a *App) focusCurrent() {
	if p, ok := a.components[a.pages.Current()].(tview.Primitive); ok {
		a.app.SetFocus(p)
	}
}

func (a *App) showHistory() {
	a.push(PageHistory)
	a.run(a.vm.LoadHistory)
}

func (a *App) showFamily() {
	a.push(PageFamily)
	a.run(a.vm.LoadContacts)
}

// callContact rings the contact selected on the family page.
func (a *App) callContact(kind call.MediaKind) {
	peer := a.familyView.SelectedContact()
	if peer == "" {
		return
	}
	a.run(func(ctx context.Context) error {
		return a.vm.StartCall(ctx, peer, kind)
	})
	a.pages.Reset(PageCall)
	a.focusCurrent()
}

func (a *App) showLink() {
	info := a.vm.Info()
	if info == nil || info.SessionID == "" {
		a.vm.Flash.Warn("No call to link")
		return
	}
	a.linkView.ShowSession(info.SessionID)
	a.push(PageLink)
}

func (a *App) showPrompt(mode ui.PromptMode) {
	a.prompt.Activate(mode)
	a.root.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.root.ResizeItem(a.prompt, 0, 0)
	a.focusCurrent()
}

func (a *App) refreshMenu() {
	var hints []ui.MenuHint
	if c, ok := a.components[a.pages.Current()]; ok {
		hints = append(hints, c.Hints()...)
	}
	a.menu.Update(append(hints, a.registry.Hints(a.pages.Current())...))
}

// updateViews redraws every view from the model. Must run on the UI
// goroutine.
func (a *App) updateViews() {
	info := a.vm.Info()
	a.callView.Update(info)

	data := &ui.AccountData{Account: a.account, State: "OFFLINE", Uptime: time.Since(a.started)}
	if info != nil {
		data.UserID = info.UserID
		data.State = info.State
		data.Camera = info.Media.Camera
		data.Presence = info.Presence
		data.Uptime = time.Duration(info.UptimeMs) * time.Millisecond
		if info.Peer != nil {
			data.Peer = info.Peer.DisplayName()
		}
		a.statusBar.SetCall(info.State, info.View.Status)
		if info.State != call.StateIncoming.String() && info.State != call.StateOutgoing.String() && a.pages.Current() == PageLink {
			a.pages.Back()
			a.focusCurrent()
		}
	}
	a.accountInfo.Update(data)

	a.historyView.SetNames(a.vm.Names())
	a.historyView.Update(a.vm.History())
	a.familyView.Update(a.vm.Contacts())

	msg, ok := a.vm.Flash.Current()
	a.flashBar.Update(msg, ok)
	a.statusBar.SetFlash(msg.Text)
	a.refreshMenu()
}

// Run starts the TUI application.
func (a *App) Run() error {
	go func() {
		if err := a.vm.LoadCall(a.ctx); err != nil {
			a.vm.Flash.Err(errors.New(grpcstatus.Convert(err).Message()))
		}
		_ = a.vm.LoadContacts(a.ctx)
		a.app.QueueUpdateDraw(func() {
			a.updateViews()
			a.focusCurrent()
		})
		go a.watchLoop()
		a.startRefreshLoop()
	}()

	return a.app.Run()
}

// watchLoop keeps a WatchCall stream open, reopening it after failures.
func (a *App) watchLoop() {
	for {
		err := a.vm.Watch(a.ctx)
		if a.ctx.Err() != nil {
			return
		}
		if err != nil {
			a.vm.Flash.Warn("Lost daemon stream: " + grpcstatus.Convert(err).Message())
		}
		select {
		case <-time.After(rewatchDelay):
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) startRefreshLoop() {
	ticker := time.NewTicker(time.Second)
	contacts := time.NewTicker(contactsRefresh)
	go func() {
		defer ticker.Stop()
		defer contacts.Stop()
		for {
			select {
			case <-a.vm.RefreshCh():
				a.app.QueueUpdateDraw(a.updateViews)
			case <-a.vm.Flash.Watch():
				a.app.QueueUpdateDraw(a.updateViews)
			case <-ticker.C:
				// The call timer is computed by the daemon.
				if a.vm.State() == call.StateActive.String() {
					_ = a.vm.LoadCall(a.ctx)
				}
				a.app.QueueUpdateDraw(a.updateViews)
			case <-contacts.C:
				_ = a.vm.LoadContacts(a.ctx)
			case <-a.ctx.Done():
				return
			}
		}
	}()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
