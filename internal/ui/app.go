package ui

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"golang.org/x/sync/errgroup"

	"github.com/zsprackett/tubewatch/internal/apiclient"
	"github.com/zsprackett/tubewatch/internal/ui/dialogs"
)

// BindFunc runs the event stream into the list until ctx is done.
type BindFunc func(ctx context.Context) error

type App struct {
	tapp   *tview.Application
	pages  *tview.Pages
	list   *ListView
	api    *apiclient.Client
	logger *slog.Logger
	ctx    context.Context
}

func NewApp(api *apiclient.Client, logger *slog.Logger) *App {
	a := &App{
		api:    api,
		logger: logger,
		ctx:    context.Background(),
	}

	a.tapp = tview.NewApplication()
	a.pages = tview.NewPages()
	a.list = NewListView(a.tapp)

	a.pages.AddPage("list", a.list, true, true)
	a.tapp.SetRoot(a.pages, true).EnableMouse(false)
	a.tapp.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Rune() == '?' {
			if name, _ := a.pages.GetFrontPage(); name == "list" {
				a.showHelp()
				return nil
			}
		}
		return event
	})

	a.list.SetCallbacks(a.onNew, a.onDelete, a.tapp.Stop)
	return a
}

// List is the surface the binder drives.
func (a *App) List() *ListView {
	return a.list
}

// Run seeds the list from the server, starts bind and blocks until the
// user quits or ctx is cancelled.
func (a *App) Run(ctx context.Context, bind BindFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.ctx = ctx

	seedCtx, seedCancel := context.WithTimeout(ctx, 5*time.Second)
	items, err := a.api.List(seedCtx)
	seedCancel()
	if err != nil {
		a.logger.Warn("ui: seed list", "err", err)
	} else {
		a.list.Seed(items)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := bind(gctx); err != nil {
			a.logger.Error("ui: event stream stopped", "err", err)
			a.list.SetConnState(StateClosed)
			a.list.Flash(err.Error())
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				a.list.Refresh()
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		a.tapp.QueueUpdate(a.tapp.Stop)
		return nil
	})

	err = a.tapp.Run()
	cancel()
	g.Wait()
	return err
}

func (a *App) showPage(name string, p tview.Primitive) {
	a.pages.AddPage(name, centered(p, 70, 12), true, true)
	a.tapp.SetFocus(p)
}

func (a *App) closePage(name string) {
	a.pages.RemovePage(name)
	a.tapp.SetFocus(a.list)
}

func (a *App) showHelp() {
	help := dialogs.HelpDialog(func() { a.closePage("help") })
	a.pages.AddPage("help", centered(help, 76, 22), true, true)
	a.tapp.SetFocus(help)
}

func (a *App) onNew() {
	form := dialogs.NewItemDialog(func(url string) {
		a.closePage("new")
		go a.create(url)
	}, func() { a.closePage("new") })
	a.showPage("new", form)
}

func (a *App) create(url string) {
	if _, err := a.api.Create(a.ctx, url); err != nil {
		a.logger.Warn("ui: create item", "url", url, "err", err)
		a.list.Flash(fmt.Sprintf("add failed: %v", err))
		return
	}
	a.list.Flash("")
}

func (a *App) onDelete(id string) {
	modal := dialogs.DeleteDialog(id, a.list.title(id), func() {
		a.closePage("confirm")
		go func() {
			if err := a.api.Delete(a.ctx, id); err != nil {
				a.logger.Warn("ui: delete item", "id", id, "err", err)
				a.list.Flash(fmt.Sprintf("delete failed: %v", err))
			}
		}()
	}, func() { a.closePage("confirm") })
	a.pages.AddPage("confirm", modal, true, true)
	a.tapp.SetFocus(modal)
}

// centered wraps p in a flex that keeps it at width x height in the middle.
func centered(p tview.Primitive, width, height int) tview.Primitive {
	return tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, height, 1, true).
			AddItem(nil, 0, 1, false), width, 1, true).
		AddItem(nil, 0, 1, false)
}
