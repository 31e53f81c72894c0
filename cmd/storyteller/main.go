// Command storyteller runs the autonomous game moderator service.
//
// Usage:
//
//	storyteller serve --config storyteller.yaml
//	storyteller ingest-rules --config storyteller.yaml ./rules/base.md
//	storyteller mcp --config storyteller.yaml --room room-1
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/ravenwood/storyteller/pkg/config"
	"github.com/ravenwood/storyteller/pkg/embedder"
	"github.com/ravenwood/storyteller/pkg/logger"
	"github.com/ravenwood/storyteller/pkg/mcpserver"
	"github.com/ravenwood/storyteller/pkg/memory"
	"github.com/ravenwood/storyteller/pkg/observability"
	"github.com/ravenwood/storyteller/pkg/queue"
	"github.com/ravenwood/storyteller/pkg/server"
	"github.com/ravenwood/storyteller/pkg/store"
	"github.com/ravenwood/storyteller/pkg/storyteller"
	"github.com/ravenwood/storyteller/pkg/vector"
)

// CLI defines the command-line interface.
type CLI struct {
	Version     VersionCmd     `cmd:"" help:"Show version information."`
	Serve       ServeCmd       `cmd:"" help:"Start the Storyteller HTTP service."`
	IngestRules IngestRulesCmd `cmd:"" name:"ingest-rules" help:"Embed rule documents into the vector store."`
	MCP         MCPCmd         `cmd:"" name:"mcp" help:"Serve one room's game tools over MCP stdio."`
	Validate    ValidateCmd    `cmd:"" help:"Validate a configuration file."`

	Config    string `short:"c" help:"Path to config file." default:"storyteller.yaml" type:"path"`
	LogLevel  string `help:"Log level override (debug, info, warn, error)."`
	LogFormat string `help:"Log format override (text, json)."`
}

// loadConfig loads env files and the YAML config, then installs the logger.
func loadConfig(cli *CLI) (*config.Config, *slog.Logger, error) {
	if err := config.LoadEnvFiles(); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, nil, err
	}

	level := cfg.Logging.Level
	if cli.LogLevel != "" {
		level = cli.LogLevel
	}
	format := cfg.Logging.Format
	if cli.LogFormat != "" {
		format = cli.LogFormat
	}
	logger.Init(logger.ParseLevel(level), os.Stderr, format)

	return cfg, logger.Get(), nil
}

func version() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			return info.Main.Version
		}
	}
	return "dev"
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("storyteller %s\n", version())
	return nil
}

// ValidateCmd checks a configuration file without starting anything.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, _, err := loadConfig(cli)
	if err != nil {
		return err
	}
	fmt.Printf("configuration OK: %d room(s)\n", len(cfg.Rooms))
	return nil
}

// roomSet resolves room ids for the HTTP server.
type roomSet map[string]*storyteller.Storyteller

func (r roomSet) Get(roomID string) (*storyteller.Storyteller, bool) {
	st, ok := r[roomID]
	return st, ok
}

// ServeCmd starts the HTTP service with all configured rooms.
type ServeCmd struct {
	Addr string `help:"Listen address override."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	cfg, log, err := loadConfig(cli)
	if err != nil {
		return err
	}
	if c.Addr != "" {
		cfg.Server.Addr = c.Addr
	}

	tp, err := observability.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	if shutdown, ok := tp.(interface{ Shutdown(context.Context) error }); ok {
		defer func() {
			flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer flushCancel()
			_ = shutdown.Shutdown(flushCtx)
		}()
	}

	sqlStore, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer sqlStore.Close()
	if err := sqlStore.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate store: %w", err)
	}

	var emb embedder.Embedder
	if cfg.Embedder.Enabled {
		emb, err = embedder.NewOpenAIEmbedder(cfg.Embedder.OpenAIConfig)
		if err != nil {
			return fmt.Errorf("failed to create embedder: %w", err)
		}
	}

	var provider vector.Provider
	if cfg.Vector.Enabled {
		chromem, err := vector.NewChromemProvider(cfg.Vector.ChromemConfig)
		if err != nil {
			return fmt.Errorf("failed to open vector store: %w", err)
		}
		provider = chromem
		defer chromem.Close()
	}

	var taskQueue *queue.RedisQueue
	var worker *queue.Worker
	if cfg.Queue.Enabled {
		taskQueue, err = queue.NewRedisQueue(ctx, cfg.Queue.Config)
		if err != nil {
			return fmt.Errorf("failed to connect to queue: %w", err)
		}
		defer taskQueue.Close()
		worker = queue.NewWorker(taskQueue, log)
	}

	var dispatcher storyteller.CommandDispatcher
	if cfg.Engine.CommandURL != "" {
		dispatcher = storyteller.NewWebhookDispatcher(cfg.Engine.CommandURL, cfg.Engine.Timeout, log)
	}

	rules, err := loadRuleDocuments(cfg.Rules.Paths)
	if err != nil {
		return err
	}

	rooms := make(roomSet, len(cfg.Rooms))
	for _, rc := range cfg.Rooms {
		st := storyteller.New(storyteller.Config{
			RoomID:        rc.ID,
			LLM:           cfg.LLM,
			Memory:        cfg.Memory,
			Orchestrator:  cfg.Orchestrator,
			Logger:        log,
			Enabled:       rc.Enabled,
			Embedder:      emb,
			LongTermStore: sqlStore,
			RunStore:      sqlStore,
		})
		if dispatcher != nil {
			st.SetDispatcher(dispatcher, nil)
		}
		if taskQueue != nil {
			st.SetTaskQueue(taskQueue)
		}
		if provider != nil && emb != nil {
			retriever, err := storyteller.NewVectorRetriever(provider, emb)
			if err != nil {
				return err
			}
			st.SetRetriever(retriever)
		} else {
			st.SetRetriever(storyteller.NewMemoryRetriever(st.Memory()))
		}
		if len(rules) > 0 {
			added := st.Memory().IngestRules(ctx, rules)
			log.Info("rules ingested", "room_id", rc.ID, "chunks", added)
		}

		if err := st.Start(ctx); err != nil {
			return fmt.Errorf("failed to start room %s: %w", rc.ID, err)
		}
		defer st.Stop()

		if worker != nil {
			worker.RegisterRoom(rc.ID, st)
		}
		rooms[rc.ID] = st
	}

	if worker != nil {
		go func() {
			if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("queue worker stopped", "error", err)
			}
		}()
	}

	srv := server.New(cfg.Server, rooms, sqlStore, log)
	log.Info("storyteller service ready", "addr", cfg.Server.Addr, "rooms", len(cfg.Rooms))
	return srv.Start(ctx)
}

// IngestRulesCmd embeds rule documents into the persistent vector store so
// later serve runs retrieve them semantically.
type IngestRulesCmd struct {
	Paths []string `arg:"" optional:"" help:"Rule documents; defaults to rules.paths from config."`
}

func (c *IngestRulesCmd) Run(cli *CLI) error {
	ctx := context.Background()

	cfg, log, err := loadConfig(cli)
	if err != nil {
		return err
	}
	if !cfg.Embedder.Enabled {
		return fmt.Errorf("ingest-rules requires embedder.enabled: true")
	}
	if !cfg.Vector.Enabled {
		return fmt.Errorf("ingest-rules requires vector.enabled: true")
	}

	paths := c.Paths
	if len(paths) == 0 {
		paths = cfg.Rules.Paths
	}
	if len(paths) == 0 {
		return fmt.Errorf("no rule documents given and rules.paths is empty")
	}

	docs, err := loadRuleDocuments(paths)
	if err != nil {
		return err
	}

	emb, err := embedder.NewOpenAIEmbedder(cfg.Embedder.OpenAIConfig)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	provider, err := vector.NewChromemProvider(cfg.Vector.ChromemConfig)
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer provider.Close()

	added, err := storyteller.IndexRules(ctx, provider, emb, docs)
	if err != nil {
		return err
	}
	log.Info("rule documents indexed", "documents", len(docs), "chunks", added)
	fmt.Printf("indexed %d chunk(s) from %d document(s)\n", added, len(docs))
	return nil
}

// MCPCmd exposes one room's tool registry over MCP stdio.
type MCPCmd struct {
	Room string `required:"" help:"Room id to expose."`
}

func (c *MCPCmd) Run(cli *CLI) error {
	cfg, log, err := loadConfig(cli)
	if err != nil {
		return err
	}

	var room *config.RoomConfig
	for i := range cfg.Rooms {
		if cfg.Rooms[i].ID == c.Room {
			room = &cfg.Rooms[i]
			break
		}
	}
	if room == nil {
		return fmt.Errorf("room %q not found in configuration", c.Room)
	}

	st := storyteller.New(storyteller.Config{
		RoomID:       room.ID,
		LLM:          cfg.LLM,
		Memory:       cfg.Memory,
		Orchestrator: cfg.Orchestrator,
		Logger:       log,
		Enabled:      room.Enabled,
	})
	if cfg.Engine.CommandURL != "" {
		dispatcher := storyteller.NewWebhookDispatcher(cfg.Engine.CommandURL, cfg.Engine.Timeout, log)
		st.SetDispatcher(dispatcher, nil)
	}

	bridge, err := mcpserver.New(st.Registry(), "storyteller", version(), log)
	if err != nil {
		return err
	}
	return bridge.ServeStdio()
}

// loadRuleDocuments reads each path into a rule document.
func loadRuleDocuments(paths []string) ([]memory.RuleDocument, error) {
	docs := make([]memory.RuleDocument, 0, len(paths))
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read rule document %s: %w", path, err)
		}
		docs = append(docs, memory.RuleDocument{
			Source:  path,
			Content: string(raw),
		})
	}
	return docs, nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("storyteller"),
		kong.Description("Autonomous storyteller agent for hidden-role village games"),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
