// Command warden is a local tool-execution runtime: it routes free-text
// input to tools, authorizes every call against the policy, executes
// inside the sandbox, and audits every attempt.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"warden/internal/adapter/llm"
	"warden/internal/adapter/tool"
	"warden/internal/domain"
	"warden/internal/infra/config"
	"warden/internal/infra/logger"
	"warden/internal/infra/tracer"
	"warden/internal/policy"
	"warden/internal/security"
	"warden/internal/store"
	"warden/internal/usecase"
)

const confirmPrefix = "!confirm "

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer closeLog()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return err
	}
	defer shutdownTracer(context.Background())

	policyStore, err := policy.NewStore(cfg.PolicyPath, cfg.Workspace, log)
	if err != nil {
		return err
	}

	sandbox, err := security.NewSandbox(cfg.Workspace, policyStore.Roots)
	if err != nil {
		return err
	}
	gate := security.NewCommandGate(policyStore.Commands, sandbox,
		cfg.Tools.ShellTimeoutDuration(), int64(cfg.Tools.MaxOutputKB)*1024)

	audit, err := security.NewFileAuditLogger(cfg.AuditPath())
	if err != nil {
		return err
	}
	defer audit.Close()
	if cfg.Tools.AuditMaxKB > 0 {
		audit.SetMaxBytes(int64(cfg.Tools.AuditMaxKB) * 1024)
		if removed, err := audit.EnforceRetention(); err != nil {
			log.Warn("audit retention failed", "error", err)
		} else if removed > 0 {
			log.Info("audit log trimmed", "removed_entries", removed)
		}
	}

	registry := tool.NewRegistry(log)
	engine := policy.NewEngine(policyStore, registry, log)

	scheduler, err := registerTools(cfg, registry, sandbox, gate, log)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	routerOpts := []usecase.RouterOption{usecase.WithMaxInputLen(cfg.Router.MaxInputLen)}
	if cfg.Planner.Enabled {
		planner := llm.NewHTTPPlanner(
			cfg.Planner.BaseURL,
			cfg.Planner.Model,
			os.Getenv(cfg.Planner.APIKeyEnv),
			&http.Client{Timeout: cfg.Planner.TimeoutDuration()},
			log,
		)
		routerOpts = append(routerOpts,
			usecase.WithPlanner(llm.NewRetryController(planner, cfg.Planner.MaxRetries, cfg.Planner.RatePerMin, log)))
	}
	router := usecase.NewRouter(registry, engine, cfg.Router.ScopeCacheSize, log, routerOpts...)
	registry.OnChange(router.InvalidateScope)

	executor := usecase.NewExecutor(engine, registry, audit, log)

	agents := agentsByName(cfg)
	current := agents[cfg.Default]
	if cfg.Default != "" && current == nil {
		return fmt.Errorf("default agent %q not declared", cfg.Default)
	}

	log.Info("warden started", "workspace", cfg.Workspace, "tools", registry.Names())
	return repl(ctx, router, executor, policyStore, agents, current)
}

// registerTools builds and registers every tool handler. The reminder
// scheduler is returned so the caller owns its lifecycle.
func registerTools(cfg *config.Config, registry *tool.Registry, sandbox *security.Sandbox, gate *security.CommandGate, log *slog.Logger) (*tool.ReminderScheduler, error) {
	tasks, err := store.New[domain.TaskRecord](filepath.Join(cfg.DataDir, "tasks.jsonl"), log)
	if err != nil {
		return nil, err
	}
	memories, err := store.New[domain.MemoryRecord](filepath.Join(cfg.DataDir, "memory.jsonl"), log)
	if err != nil {
		return nil, err
	}
	reminders, err := store.New[domain.ReminderRecord](filepath.Join(cfg.DataDir, "reminders.jsonl"), log)
	if err != nil {
		return nil, err
	}

	var index *tool.MemoryIndex
	if ix, err := tool.OpenMemoryIndex(filepath.Join(cfg.DataDir, "memory.db")); err != nil {
		log.Warn("memory index unavailable, recall will scan the store", "error", err)
	} else {
		index = ix
	}
	keeper, err := tool.NewMemoryKeeper(memories, index, log)
	if err != nil {
		return nil, err
	}

	scheduler, err := tool.NewReminderScheduler(reminders, func(rec domain.ReminderRecord) {
		fmt.Printf("\n[reminder] %s\n> ", rec.Message)
	}, log)
	if err != nil {
		return nil, err
	}

	handlers := []domain.Tool{
		tool.NewCurrentTimeTool(log),
		tool.NewEchoTool(log),
		tool.NewFilesystemTool(sandbox, cfg.Tools.MaxWriteKB*1024, log),
		tool.NewRunCmdTool(gate, log),
		tool.NewTasksTool(tasks, log),
		tool.NewRememberTool(keeper, log),
		tool.NewRecallTool(keeper, log),
		tool.NewReminderTool(reminders, log),
	}
	for _, h := range handlers {
		if err := registry.Register(h); err != nil {
			return nil, err
		}
	}
	return scheduler, nil
}

func agentsByName(cfg *config.Config) map[string]*domain.Agent {
	agents := make(map[string]*domain.Agent, len(cfg.Agents))
	for _, a := range cfg.Agents {
		agents[a.Name] = &domain.Agent{
			Name:         a.Name,
			Kind:         domain.AgentKind(a.Kind),
			AllowedTools: append([]string(nil), a.Tools...),
		}
	}
	return agents
}

// repl reads input lines and drives route-then-execute. The "!confirm "
// prefix re-issues a call with explicit user approval; ":" lines are
// runtime commands, never routed.
func repl(ctx context.Context, router *usecase.Router, executor *usecase.Executor, policyStore *policy.Store, agents map[string]*domain.Agent, current *domain.Agent) error {
	fmt.Println("warden ready. :help for commands, Ctrl-D to exit.")
	fmt.Print("> ")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, ":"):
			if quit := command(line, router, policyStore, agents, &current); quit {
				return nil
			}
		default:
			confirmed := false
			if strings.HasPrefix(line, confirmPrefix) {
				confirmed = true
				line = strings.TrimSpace(strings.TrimPrefix(line, confirmPrefix))
			}
			handle(ctx, router, executor, current, line, confirmed)
		}
		fmt.Print("> ")
	}
	return scanner.Err()
}

func command(line string, router *usecase.Router, policyStore *policy.Store, agents map[string]*domain.Agent, current **domain.Agent) (quit bool) {
	name, arg, _ := strings.Cut(line, " ")
	switch name {
	case ":quit", ":exit":
		return true
	case ":reload":
		if err := policyStore.Reload(); err != nil {
			fmt.Println("reload failed:", err)
			return false
		}
		router.InvalidateScope()
		fmt.Println("policy reloaded")
	case ":agent":
		arg = strings.TrimSpace(arg)
		if arg == "" {
			*current = nil
			fmt.Println("agent context cleared (safe tools only)")
			return false
		}
		a, ok := agents[arg]
		if !ok {
			fmt.Printf("unknown agent %q\n", arg)
			return false
		}
		*current = a
		fmt.Printf("acting as %s\n", a.Identity())
	case ":help":
		fmt.Println("  :reload        re-read the policy file")
		fmt.Println("  :agent [name]  switch agent context (no name clears it)")
		fmt.Println("  :quit          exit")
		fmt.Println("  !confirm ...   approve a confirmation-required call")
	default:
		fmt.Printf("unknown command %q\n", name)
	}
	return false
}

func handle(ctx context.Context, router *usecase.Router, executor *usecase.Executor, agent *domain.Agent, input string, confirmed bool) {
	route := router.Route(ctx, agent, input)
	switch {
	case route.Error != nil:
		fmt.Printf("[%s] %s\n", route.Error.Code, route.Error.Message)
	case route.Mode == domain.RouteModeReply:
		fmt.Println(route.Reply)
	case route.Mode == domain.RouteModeToolCall:
		result := executor.Execute(ctx, agent, route.ToolCall, confirmed)
		printResult(route.ToolCall.Name, result)
	}
}

func printResult(toolName string, result domain.ToolResult) {
	switch {
	case result.NeedsConfirmation:
		fmt.Printf("%s requires confirmation. Re-run with %q in front.\n",
			toolName, strings.TrimSpace(confirmPrefix))
	case result.Error != nil:
		fmt.Printf("[%s] %s\n", result.Error.Code, result.Error.Message)
	default:
		var pretty map[string]any
		if err := json.Unmarshal(result.Result, &pretty); err == nil {
			out, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Println(string(out))
		} else {
			fmt.Println(string(result.Result))
		}
	}
}
