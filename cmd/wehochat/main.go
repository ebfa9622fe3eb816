// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// wehochat is an interactive client for the weho chat backend.
//
// It keeps a local list of chat sessions, streams assistant responses into
// the active session, and persists guest history locally. Logging in
// switches to the server-side history for that user.
//
// Interactive commands:
//
//	/help               Show available commands
//	/new                Start a new session
//	/sessions           List sessions
//	/open N             Switch to session number N
//	/rename TITLE       Rename the active session
//	/delete [N]         Delete a session (active session by default)
//	/login USER [EMAIL] Switch to authenticated mode
//	/logout             Return to guest mode
//	/quit               Exit
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/peterh/liner"

	"github.com/jeranaias/weho-chat/internal/auth"
	"github.com/jeranaias/weho-chat/internal/backend"
	"github.com/jeranaias/weho-chat/internal/chat"
	"github.com/jeranaias/weho-chat/internal/config"
	"github.com/jeranaias/weho-chat/internal/history"
	"github.com/jeranaias/weho-chat/internal/model"
	"github.com/jeranaias/weho-chat/internal/storage"
	"github.com/jeranaias/weho-chat/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "wehochat: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	app, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	// Reload the backend settings when the config file changes. A missing
	// config directory just means no live reload.
	if path, err := config.ConfigPath(); err == nil {
		if watcher, werr := config.NewWatcher(path, 500*time.Millisecond, app.applyConfig); werr == nil {
			if werr := watcher.Watch(); werr == nil {
				defer watcher.Close()
			}
		}
	}

	app.bootstrap()
	return app.repl()
}

// =============================================================================
// BACKEND HOLDER
// =============================================================================

// backendHolder wraps the current backend client behind a lock so a config
// reload can swap it without tearing down in-flight components.
type backendHolder struct {
	mu     sync.RWMutex
	client *backend.Client
}

func (h *backendHolder) get() *backend.Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.client
}

func (h *backendHolder) set(c *backend.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.client = c
}

func (h *backendHolder) Chat(ctx context.Context, req backend.ChatRequest) (io.ReadCloser, error) {
	return h.get().Chat(ctx, req)
}

func (h *backendHolder) ListSessions(ctx context.Context, userID string) ([]model.SessionSummary, error) {
	return h.get().ListSessions(ctx, userID)
}

func (h *backendHolder) SessionMessages(ctx context.Context, sessionID, userID string) ([]backend.HistoryMessage, error) {
	return h.get().SessionMessages(ctx, sessionID, userID)
}

func (h *backendHolder) SessionMetadata(ctx context.Context, sessionID, userID string) (backend.SessionMetadata, error) {
	return h.get().SessionMetadata(ctx, sessionID, userID)
}

func (h *backendHolder) DeleteSession(ctx context.Context, sessionID, userID string) error {
	return h.get().DeleteSession(ctx, sessionID, userID)
}

func (h *backendHolder) RenameSession(ctx context.Context, sessionID, userID, title string) error {
	return h.get().RenameSession(ctx, sessionID, userID, title)
}

// =============================================================================
// APPLICATION
// =============================================================================

type app struct {
	cfg     *config.Config
	store   *store.Store
	auth    *auth.Manager
	guests  *storage.GuestStore
	holder  *backendHolder
	coord   *history.Coordinator
	ctrl    *chat.Controller
	line    *liner.State
	history string

	mu     sync.Mutex
	cancel context.CancelFunc
}

func newApp(cfg *config.Config) (*app, error) {
	client, err := newBackendClient(cfg)
	if err != nil {
		return nil, err
	}
	holder := &backendHolder{client: client}

	guestPath, err := cfg.GuestDBPath()
	if err != nil {
		return nil, err
	}
	guests, err := storage.OpenGuestStore(guestPath)
	if err != nil {
		return nil, err
	}

	profilePath, err := cfg.ProfilePath()
	if err != nil {
		guests.Close()
		return nil, err
	}
	profiles := storage.NewProfileStore(profilePath)
	authMgr := auth.New(profiles)

	st := store.New(originFor(authMgr))
	coord := history.NewCoordinator(st, holder, authMgr, guests)
	ctrl := chat.NewController(st, holder, authMgr, coord)

	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	a := &app{
		cfg:     cfg,
		store:   st,
		auth:    authMgr,
		guests:  guests,
		holder:  holder,
		coord:   coord,
		ctrl:    ctrl,
		line:    line,
		history: filepath.Join(filepath.Dir(guestPath), "input_history"),
	}
	a.ctrl.OnChunk = func(sessionID, chunk string) {
		if sessionID == a.store.ActiveID() {
			fmt.Print(chunk)
		}
	}
	a.loadInputHistory()
	return a, nil
}

func newBackendClient(cfg *config.Config) (*backend.Client, error) {
	return backend.NewClient(backend.Options{
		BaseURL:        cfg.Backend.BaseURL,
		Language:       cfg.Backend.Language,
		RequestsPerSec: cfg.Backend.RequestsPerSec,
		Burst:          cfg.Backend.Burst,
	})
}

// applyConfig swaps in a reloaded backend configuration.
func (a *app) applyConfig(cfg *config.Config) {
	client, err := newBackendClient(cfg)
	if err != nil {
		log.Printf("config reload: %v", err)
		return
	}
	a.holder.set(client)
	log.Printf("config reloaded: backend %s", cfg.Backend.BaseURL)
}

// bootstrap establishes the initial session list for the current mode.
func (a *app) bootstrap() {
	if a.auth.IsGuest() {
		a.coord.EnterGuestMode()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.coord.EnterAuthenticatedMode(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load server history: %v\n", err)
	}
	if a.store.Len() == 0 {
		a.store.CreateSession()
	}
}

func (a *app) Close() {
	a.saveInputHistory()
	a.line.Close()
	a.guests.Close()
}

// =============================================================================
// INPUT HISTORY
// =============================================================================

func (a *app) loadInputHistory() {
	if f, err := os.Open(a.history); err == nil {
		a.line.ReadHistory(f)
		f.Close()
	}
}

func (a *app) saveInputHistory() {
	f, err := os.OpenFile(a.history, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	a.line.WriteHistory(f)
}

// =============================================================================
// REPL
// =============================================================================

func (a *app) repl() error {
	// First Ctrl+C during a stream cancels it instead of exiting.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			a.cancelStream()
		}
	}()

	fmt.Printf("wehochat (%s mode). Type /help for commands.\n", a.modeName())

	for {
		input, err := a.line.Prompt("you> ")
		if err != nil {
			// Ctrl+C at the prompt or EOF both exit cleanly.
			fmt.Println()
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		a.line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if quit := a.handleCommand(input); quit {
				return nil
			}
			continue
		}

		a.submit(input)
	}
}

func (a *app) submit(text string) {
	ctx, cancel := context.WithCancel(context.Background())
	a.setCancel(cancel)
	defer a.clearCancel()

	fmt.Print("assistant> ")
	err := a.ctrl.Submit(ctx, a.store.ActiveID(), text, nil)
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
}

func (a *app) setCancel(cancel context.CancelFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancel = cancel
}

func (a *app) clearCancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancel = nil
}

func (a *app) cancelStream() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
		fmt.Fprintln(os.Stderr, "\n[cancelled]")
	}
}

func (a *app) modeName() string {
	if a.auth.IsGuest() {
		return "guest"
	}
	return "authenticated"
}

// =============================================================================
// COMMANDS
// =============================================================================

// handleCommand dispatches a slash command. Returns true to exit.
func (a *app) handleCommand(input string) bool {
	fields := strings.Fields(input)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/q", "/exit":
		return true

	case "/help", "/h":
		printHelp()

	case "/new":
		a.store.CreateSession()
		fmt.Println("started a new session")

	case "/sessions", "/ls":
		a.printSessions()

	case "/open":
		if len(args) != 1 {
			fmt.Fprintln(os.Stderr, "usage: /open N")
			return false
		}
		if id, ok := a.resolveSession(args[0]); ok {
			a.store.SelectSession(id)
			a.printTranscript()
		}

	case "/rename":
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, "usage: /rename TITLE")
			return false
		}
		title := strings.Join(args, " ")
		a.awaitRemote(a.coord.RenameSession(a.store.ActiveID(), title))

	case "/delete", "/rm":
		id := a.store.ActiveID()
		if len(args) == 1 {
			var ok bool
			if id, ok = a.resolveSession(args[0]); !ok {
				return false
			}
		}
		a.awaitRemote(a.ctrl.DeleteSession(id))

	case "/login":
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, "usage: /login USER [EMAIL]")
			return false
		}
		a.login(args)

	case "/logout":
		a.auth.Logout()
		a.coord.EnterGuestMode()
		fmt.Println("back to guest mode")

	default:
		fmt.Fprintf(os.Stderr, "unknown command %s (try /help)\n", cmd)
	}
	return false
}

func (a *app) login(args []string) {
	user := auth.User{ID: args[0], IsActive: true}
	if len(args) > 1 {
		user.Email = args[1]
	}
	a.auth.Login(user)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.coord.EnterAuthenticatedMode(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load server history: %v\n", err)
	}
	fmt.Printf("logged in as %s\n", user.ID)
}

// awaitRemote reports the deferred outcome of an optimistic mutation
// without blocking the prompt.
func (a *app) awaitRemote(result <-chan error) {
	go func() {
		if err := <-result; err != nil {
			fmt.Fprintf(os.Stderr, "\nwarning: server update failed: %v\n", err)
		}
	}()
}

// resolveSession maps a 1-based list position or a raw ID to a session ID.
func (a *app) resolveSession(arg string) (string, bool) {
	sessions := a.store.Sessions()
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(sessions) {
			fmt.Fprintf(os.Stderr, "no session %d\n", n)
			return "", false
		}
		return sessions[n-1].ID, true
	}
	for _, sess := range sessions {
		if sess.ID == arg {
			return arg, true
		}
	}
	fmt.Fprintf(os.Stderr, "no session %q\n", arg)
	return "", false
}

// =============================================================================
// DISPLAY
// =============================================================================

const titleColumnWidth = 34

// printSessions lists all sessions, most recent first, with the active one
// marked.
func (a *app) printSessions() {
	sessions := a.store.Sessions()
	if len(sessions) == 0 {
		fmt.Println("no sessions")
		return
	}

	active := a.store.ActiveID()
	for i, sess := range sessions {
		marker := " "
		if sess.ID == active {
			marker = "*"
		}
		// Width-aware padding keeps columns aligned for CJK titles.
		title := runewidth.FillRight(runewidth.Truncate(sess.GetTitle(), titleColumnWidth, "..."), titleColumnWidth)
		fmt.Printf("%s %2d  %s %3d msgs  %s\n",
			marker, i+1, title, sess.MessageCount(),
			sess.UpdatedAt.Format("2006-01-02 15:04"))
	}
}

// printTranscript replays the active session's messages.
func (a *app) printTranscript() {
	sess := a.store.Get(a.store.ActiveID())
	if sess == nil {
		return
	}
	fmt.Printf("-- %s --\n", sess.GetTitle())
	for _, msg := range sess.Messages {
		fmt.Printf("%s> %s\n", strings.ToLower(msg.Role.DisplayName()), msg.GetDisplayContent())
	}
}

func originFor(am *auth.Manager) model.Origin {
	if am.IsGuest() {
		return model.OriginGuest
	}
	return model.OriginAuthenticated
}

func printHelp() {
	fmt.Print(`commands:
  /new                start a new session
  /sessions           list sessions
  /open N             switch to session N
  /rename TITLE       rename the active session
  /delete [N]         delete a session (active by default)
  /login USER [EMAIL] switch to authenticated mode
  /logout             return to guest mode
  /quit               exit
`)
}
