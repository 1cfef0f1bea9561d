// Package main provides the wordhall server binary: the authoritative game
// backend with its websocket frontend and REST API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/pcollard/wordhall/internal/auth"
	"github.com/pcollard/wordhall/internal/config"
	"github.com/pcollard/wordhall/internal/frontend/ws"
	"github.com/pcollard/wordhall/internal/game/lexicon"
	"github.com/pcollard/wordhall/internal/game/mode"
	"github.com/pcollard/wordhall/internal/game/room"
	"github.com/pcollard/wordhall/internal/observability"
	"github.com/pcollard/wordhall/internal/server"
	"github.com/pcollard/wordhall/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	boardSize := flag.Int("board-size", 25, "number of board positions per room")
	minPlayers := flag.Int("min-players", 2, "players required before a room can start")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting wordhall server",
		zap.String("http_addr", cfg.Websocket.Addr()),
	)

	// Load word lists
	lexStart := time.Now()
	lex, err := lexicon.LoadDir(cfg.Game.LexiconDir)
	if err != nil {
		logger.Fatal("loading lexicons", zap.Error(err))
	}
	logger.Info("lexicon loaded",
		zap.Int("words", lex.Size()),
		zap.Duration("elapsed", time.Since(lexStart)),
	)

	// Load scripted modes; built-in modes always remain available.
	scripts := map[string]*mode.Script{}
	if cfg.Game.ModeScriptDir != "" {
		if _, statErr := os.Stat(cfg.Game.ModeScriptDir); statErr == nil {
			scripts, err = mode.LoadScripts(cfg.Game.ModeScriptDir)
			if err != nil {
				logger.Fatal("loading mode scripts", zap.Error(err))
			}
			logger.Info("loaded mode scripts", zap.Int("count", len(scripts)))
		}
	}

	modeFor := func(name string) (mode.Config, error) {
		if script, ok := scripts[name]; ok {
			cond, err := script.Condition()
			if err != nil {
				return mode.Config{}, fmt.Errorf("instantiating mode script %s: %w", name, err)
			}
			c := mode.Config{
				Name:       mode.Name(name),
				BoardSize:  *boardSize,
				MinPlayers: *minPlayers,
				End:        cond,
			}
			return c, nil
		}
		return mode.ForName(name, *boardSize, *minPlayers), nil
	}

	// Connect to PostgreSQL for accounts and score persistence
	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(dbStart)),
	)
	accountRepo := postgres.NewAccountRepository(pool.DB())
	scoreRepo := postgres.NewScoreRepository(pool.DB())
	scoreWriter := postgres.NewScoreWriter(scoreRepo, logger)

	tokens := auth.NewManager(cfg.Auth)

	// Room registry with score persistence on room end
	registry := room.NewRegistry(cfg.Game, lex, modeFor, logger)
	registry.OnRoomEnded(scoreWriter.Hook())

	// HTTP surface: websocket endpoint plus the REST API
	gameHandler := ws.NewGameHandler(cfg.Websocket, registry, tokens, logger)
	api := ws.NewAPI(accountRepo, scoreRepo, tokens, logger)
	acceptor := ws.NewAcceptor(cfg.Websocket, ws.NewRouter(api, gameHandler), logger)

	// Wire lifecycle
	lifecycle := server.NewLifecycle(logger)

	lifecycle.Add("registry", &server.FuncService{
		StartFn: registry.Start,
		StopFn:  registry.Stop,
	})

	lifecycle.Add("http", &server.FuncService{
		StartFn: acceptor.ListenAndServe,
		StopFn:  acceptor.Stop,
	})

	lifecycle.Add("postgres", &server.FuncService{
		StartFn: func() error {
			return pool.HealthLoop(ctx, 30*time.Second, 5*time.Second, logger)
		},
		StopFn: func() {
			pool.Close()
		},
	})

	logger.Info("wordhall server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("http_addr", cfg.Websocket.Addr()),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
