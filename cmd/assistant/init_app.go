package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pocketsage/internal/adapter/llm"
	"pocketsage/internal/adapter/tool"
	"pocketsage/internal/domain"
	"pocketsage/internal/infra/config"
	"pocketsage/internal/nlu"
	"pocketsage/internal/usecase"
)

const sessionKey = "cli-default"

// app holds the wired assistant core.
type app struct {
	cfg        *config.Config
	log        *slog.Logger
	registry   *tool.Registry
	classifier *nlu.Classifier
	dispatcher *usecase.Dispatcher
	orch       *usecase.Orchestrator
	scheduler  *usecase.ReminderScheduler
	sessions   *usecase.SessionManager
	session    *usecase.Session
	bridge     *tool.MCPBridge
}

// newApp wires config into the running core: providers, tools,
// classifier, dispatcher, and the reasoning loop.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	provider, err := llm.BuildStack(cfg.LLM, log)
	if err != nil {
		return nil, err
	}

	registry := tool.NewRegistry(log,
		tool.WithRemoteRateLimit(cfg.Tools.RemoteRateLimit),
		tool.WithToolDefaults(cfg.Tools.DefaultRetries, cfg.Tools.DefaultTimeout))

	a := &app{
		cfg:      cfg,
		log:      log,
		registry: registry,
	}

	for _, t := range tool.DeviceTools(hostCapabilities(), log) {
		if err := registry.Register(t); err != nil {
			return nil, err
		}
	}

	if cfg.Tools.NotesEnabled {
		store, err := tool.NewNotesStore(cfg.Tools.NotesDataDir)
		if err != nil {
			return nil, err
		}
		for _, t := range tool.NotesTools(store, log) {
			if err := registry.Register(t); err != nil {
				return nil, err
			}
		}
	}

	if cfg.Tools.MCPEnabled && len(cfg.Tools.MCPServers) > 0 {
		bridge, err := tool.NewMCPBridge(ctx, cfg.Tools.MCPServers, log)
		if err != nil {
			log.Warn("MCP bridge unavailable", "error", err)
		} else {
			a.bridge = bridge
			for _, t := range bridge.Tools() {
				if err := registry.Register(t); err != nil {
					return nil, err
				}
			}
		}
	}

	a.scheduler = usecase.NewReminderScheduler(func(r usecase.Reminder) {
		fmt.Printf("\n[reminder] %s\n> ", r.Message)
	}, log)
	if cfg.Reminders.Enabled {
		a.scheduler.Start()
	}

	a.classifier = nlu.NewClassifier()
	a.dispatcher = buildDispatcher(a.scheduler, registry, log)

	counter := usecase.NewTokenCounter(cfg.Context.Encoding, log)
	history := usecase.NewHistory(usecase.HistoryConfig{
		MaxMessages: cfg.Context.MaxMessages,
		TokenBudget: cfg.Context.TokenBudget,
	}, counter, log)

	a.sessions = usecase.NewSessionManager(cfg.Context.DataDir)
	a.session = a.sessions.GetOrCreate(sessionKey)

	a.orch = usecase.NewOrchestrator(usecase.OrchestratorDeps{
		LLM:              provider,
		Tools:            registry,
		History:          history,
		Parser:           usecase.NewResponseParser(log, cfg.Agent.KeepAnswerWithAction),
		Logger:           log,
		ErrorClassifier:  usecase.NewErrorClassifier(),
		SessionLocker:    usecase.NewSessionLocker(),
		MaxIterations:    cfg.Agent.MaxIterations,
		ObservationLimit: cfg.Agent.ObservationLimit,
		SystemPrompt:     cfg.Agent.SystemPrompt,
	})

	return a, nil
}

// buildDispatcher registers every intent handler against its backend.
func buildDispatcher(scheduler *usecase.ReminderScheduler, registry *tool.Registry, log *slog.Logger) *usecase.Dispatcher {
	d := usecase.NewDispatcher(log)
	d.RegisterHandler(&usecase.ReminderHandler{Scheduler: scheduler})
	d.RegisterHandler(&usecase.TimerHandler{Scheduler: scheduler})
	d.RegisterHandler(&usecase.CalendarEventHandler{Scheduler: scheduler})
	d.RegisterHandler(&usecase.NoteHandler{Tools: registry})
	d.RegisterHandler(&usecase.DeviceSkillHandler{Tools: registry})
	d.RegisterHandler(&usecase.AppLaunchHandler{Tools: registry})
	d.RegisterHandler(&usecase.CallHandler{})
	d.RegisterHandler(&usecase.MessageHandler{})
	d.RegisterHandler(&usecase.NavigationHandler{})
	d.RegisterHandler(&usecase.SettingHandler{})
	return d
}

// hostCapabilities maps device actions onto what a terminal host can
// actually do. Unsupported actions stay nil and surface as typed
// failures when invoked.
func hostCapabilities() tool.Capabilities {
	return tool.Capabilities{
		Toast: func(_ context.Context, message string) error {
			fmt.Printf("[toast] %s\n", message)
			return nil
		},
		LaunchApp: func(_ context.Context, app string) error {
			fmt.Printf("[launch] %s\n", app)
			return nil
		},
		Vibrate: func(_ context.Context, duration int) error {
			fmt.Printf("[vibrate] %dms\n", duration)
			return nil
		},
	}
}

// handleInput routes one utterance: confident intents dispatch
// directly, everything else goes through the reasoning loop.
func (a *app) handleInput(ctx context.Context, line string) {
	runCtx := ctx
	if a.cfg.Agent.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, a.cfg.Agent.Timeout)
		defer cancel()
	}

	intent := a.classifier.Parse(line)
	if intent.Type != domain.IntentUnknown && intent.Confidence > a.cfg.Agent.IntentThreshold {
		res := a.dispatcher.Execute(runCtx, intent)
		if !res.PassToAI() {
			a.printResult(res)
			a.persistTurn(line, res.Message)
			return
		}
	}

	result, err := a.orch.Run(runCtx, line, usecase.RunOpts{
		SessionID: a.session.ID,
		OnToken:   func(tok string) { fmt.Print(tok) },
	})
	if err != nil {
		a.log.Error("run failed", "error", err)
		fmt.Println("Sorry, I couldn't reach a model backend. Please try again.")
		return
	}
	fmt.Println(result.FinalAnswer)
	a.persistTurn(line, result.FinalAnswer)
}

func (a *app) printResult(res *domain.ActionResult) {
	if res.Message != "" {
		fmt.Println(res.Message)
	}
	if res.FollowUp != "" {
		fmt.Println(res.FollowUp)
	}
}

func (a *app) persistTurn(userMsg, reply string) {
	a.session.AddMessage(domain.ChatMessage{Role: domain.RoleUser, Content: userMsg})
	if reply != "" {
		a.session.AddMessage(domain.ChatMessage{Role: domain.RoleAssistant, Content: reply})
	}
	if err := a.sessions.Save(sessionKey); err != nil {
		a.log.Warn("session save failed", "error", err)
	}
}

// handleCommand executes a REPL slash command. Returns true on /quit.
func (a *app) handleCommand(line string) bool {
	switch line {
	case "/quit", "/exit":
		return true
	case "/tools":
		for _, st := range a.registry.Status() {
			state := "available"
			if !st.Available {
				state = "unavailable"
			}
			fmt.Printf("  %-24s %s failures=%d", st.Name, state, st.FailureCount)
			if st.LastError != "" {
				fmt.Printf(" last_error=%q", st.LastError)
			}
			fmt.Println()
		}
	case "/reminders":
		up := a.scheduler.Upcoming()
		if len(up) == 0 {
			fmt.Println("  no pending reminders")
		}
		for _, r := range up {
			fmt.Printf("  %s  %s\n", r.At.Format(time.RFC3339), r.Message)
		}
	case "/online":
		a.registry.SetOnline(true)
		fmt.Println("network tools enabled")
	case "/offline":
		a.registry.SetOnline(false)
		fmt.Println("network tools disabled")
	default:
		fmt.Printf("unknown command %q\n", line)
	}
	return false
}

// Close releases external resources.
func (a *app) Close() {
	a.scheduler.Stop()
	if a.bridge != nil {
		a.bridge.Close()
	}
}
