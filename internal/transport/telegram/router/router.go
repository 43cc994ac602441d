package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	rtsup "pantrybot/internal/runtime/supervisor"
	kit "pantrybot/internal/transport"
	logx "pantrybot/pkg/logx"
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	// Admin commands answer only to Config.Admins.
	Admin   bool
	Hidden  bool
	Timeout time.Duration
	Handle  HandlerFunc
}

type Request struct {
	Message kit.Message
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	ReqID   string
	Logger  logx.Logger
	IsAdmin bool

	adapter kit.Adapter
}

// Reply sends plain text back to the request's chat.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true})
	return err
}

// ReplyHTML sends text in Telegram HTML parse mode.
func (r *Request) ReplyHTML(ctx context.Context, text string) error {
	_, err := r.adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true, ParseMode: "HTML"})
	return err
}

type Config struct {
	Admins         []int64
	Workers        int
	QueueSize      int
	DefaultTimeout time.Duration
}

// Router maps slash commands to handlers and runs them on a bounded
// worker pool.
type Router struct {
	log     logx.Logger
	adapter kit.Adapter

	mu       sync.RWMutex
	cmds     []Command
	byName   map[string]Command
	admins   []int64
	timeout  time.Duration
	workers  int
	jobs     chan func()
	jobsOpen bool
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger) *Router {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 15 * time.Second
	}
	return &Router{
		log:     log.With(logx.String("comp", "router")),
		adapter: adapter,
		byName:  map[string]Command{},
		admins:  slices.Clone(cfg.Admins),
		timeout: cfg.DefaultTimeout,
		workers: cfg.Workers,
		jobs:    make(chan func(), cfg.QueueSize),
	}
}

// SetAdmins replaces the admin list. Safe during hot reload.
func (r *Router) SetAdmins(ids []int64) {
	r.mu.Lock()
	r.admins = slices.Clone(ids)
	r.mu.Unlock()
}

func (r *Router) isAdmin(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Contains(r.admins, id)
}

// Register installs cmds, replacing earlier registrations, and adds /help.
// The platform menu is refreshed in the background when the adapter
// supports it.
func (r *Router) Register(ctx context.Context, cmds ...Command) {
	cmds = append(slices.Clone(cmds), Command{
		Name:        "help",
		Description: "list commands",
		Usage:       "/help [command]",
		Handle: func(ctx context.Context, req *Request) error {
			return req.ReplyHTML(ctx, r.helpText(req.Args, req.IsAdmin))
		},
	})
	byName := map[string]Command{}
	kept := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		kept = append(kept, c)
		byName[name] = c
		for _, a := range c.Aliases {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				if _, taken := byName[a]; !taken {
					byName[a] = c
				}
			}
		}
	}
	r.mu.Lock()
	r.cmds = kept
	r.byName = byName
	r.mu.Unlock()

	if up, ok := r.adapter.(kit.CommandMenuUpdater); ok {
		menu := buildMenu(kept)
		go func() {
			mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(mctx, menu); err != nil {
				r.log.Warn("menu update failed", logx.Err(err))
			}
		}()
	}
}

func (r *Router) commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cmds
}

// DispatchLoop consumes updates until ctx is done or updates is closed,
// then waits briefly for running handlers.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx, rtsup.WithLogger(r.log), rtsup.WithCancelOnError(false))
	r.mu.Lock()
	r.jobsOpen = true
	jobs := r.jobs
	r.mu.Unlock()

	for i := 0; i < r.workers; i++ {
		sup.GoRestart(fmt.Sprintf("command.worker.%d", i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					r.runJob(job)
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
	r.log.Info("command dispatcher started", logx.Int("workers", r.workers))

	defer func() {
		r.mu.Lock()
		r.jobsOpen = false
		close(r.jobs)
		r.jobs = make(chan func(), cap(r.jobs))
		r.mu.Unlock()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		sup.Cancel()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.Route(ctx, up)
		}
	}
}

func (r *Router) runJob(job func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in command job", logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
		}
	}()
	job()
}

// Route resolves one update and queues its handler.
func (r *Router) Route(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID}
	name, args, ok := splitCommand(msg.Text)
	if !ok {
		if msg.IsPrivate {
			_, _ = r.adapter.SendText(ctx, chat, "Send /help to see what I can do.", nil)
		}
		return
	}

	r.mu.RLock()
	cmd, found := r.byName[name]
	r.mu.RUnlock()
	if !found {
		_, _ = r.adapter.SendText(ctx, chat, "Unknown command. Try /help", nil)
		return
	}
	admin := r.isAdmin(msg.FromID)
	if cmd.Admin && !admin {
		_, _ = r.adapter.SendText(ctx, chat, "This command is for admins only.", nil)
		return
	}

	rid := newReqID()
	req := &Request{
		Message: *msg,
		Chat:    chat,
		FromID:  msg.FromID,
		Command: cmd.Name,
		Args:    args,
		ReqID:   rid,
		IsAdmin: admin,
		adapter: r.adapter,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	final := Chain(cmd.Handle,
		MWPanicRecover(),
		MWRequestLog(),
		MWReplyError(),
		MWTimeout(timeout),
	)
	if !r.tryEnqueue(func() { _ = final(ctx, req) }) {
		_, _ = r.adapter.SendText(ctx, chat, "Busy, try again in a moment.", nil)
	}
}

func (r *Router) tryEnqueue(job func()) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.jobsOpen {
		return false
	}
	select {
	case r.jobs <- job:
		return true
	default:
		return false
	}
}
