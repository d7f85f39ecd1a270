package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"unitask/api"
	"unitask/realtime"
	"unitask/storage"
	"unitask/store"
	"unitask/transfer"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.New()

	projectID := os.Getenv("PROJECT_ID")
	if projectID == "" {
		projectID = "default"
	}

	var rc *redis.Client
	if redisConn := os.Getenv("REDIS_CONNECTION_STRING"); redisConn != "" {
		redisOpts, err := redis.ParseURL(redisConn)
		if err != nil {
			parts := strings.Split(redisConn, ",")
			redisOpts = &redis.Options{Addr: parts[0]}
			for _, p := range parts[1:] {
				kv := strings.SplitN(p, "=", 2)
				if len(kv) != 2 {
					continue
				}
				switch strings.ToLower(kv[0]) {
				case "password":
					redisOpts.Password = kv[1]
				case "ssl":
					if strings.ToLower(kv[1]) == "true" {
						redisOpts.TLSConfig = &tls.Config{}
					}
				}
			}
		}
		rc = redis.NewClient(redisOpts)
	}

	var (
		todos    transfer.TodoRepository
		wbs      transfer.WBSRepository
		kanban   transfer.KanbanRepository
		gantt    transfer.GanttRepository
		unified  transfer.UnifiedRepository
		links    transfer.LinkRepository
		taskRepo store.Repository
	)
	if connStr := os.Getenv("STORAGE_CONNECTION_STRING"); connStr != "" {
		names := storage.TableNames{
			Todo:        envString("TODO_TABLE", "todotasks"),
			WBS:         envString("WBS_TABLE", "wbstasks"),
			KanbanCards: envString("KANBAN_CARDS_TABLE", "kanbancards"),
			KanbanLanes: envString("KANBAN_LANES_TABLE", "kanbanlanes"),
			Gantt:       envString("GANTT_TABLE", "gantttasks"),
			Unified:     envString("UNIFIED_TABLE", "unifiedtasks"),
			Links:       envString("LINKS_TABLE", "tasklinks"),
			ChangeQueue: envString("CHANGE_QUEUE", "task-changes"),
		}
		tables, err := storage.New(connStr, projectID, names, logger)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		todos = tables.Todo
		wbs = tables.WBS
		kanban = tables.Kanban
		gantt = tables.Gantt
		unified = storage.UnifiedWriter{Table: tables.Unified}
		links = tables.Links

		cacheTTL := envDur("UNIFIED_CACHE_TTL", 5*time.Minute)
		taskRepo = storage.NewCache(tables.Unified, rc, projectID, cacheTTL)
	} else {
		logger.Warn("STORAGE_CONNECTION_STRING not set, using in-memory storage")
		mem := storage.NewMemory()
		todos = mem.Todo
		wbs = mem.WBS
		kanban = mem.Kanban
		gantt = mem.Gantt
		unified = storage.MemoryUnifiedWriter{Store: mem.Unified}
		links = mem.Links
		taskRepo = mem.Unified
	}

	tasks := store.New(taskRepo, logger)
	if err := tasks.Load(context.Background()); err != nil {
		logger.WithError(err).Warn("initial task load failed")
	}
	transfers := transfer.New(todos, wbs, kanban, gantt, unified, links, logger)

	testMode := os.Getenv("AUTH_TEST_MODE") == "1"
	var auth *api.Auth
	if testMode {
		auth = api.NewAuth(nil, "", "")
	} else {
		jwtAudience := os.Getenv("AUTH0_AUDIENCE")
		domain := os.Getenv("AUTH0_DOMAIN")
		if jwtAudience == "" || domain == "" {
			log.Fatal("missing Auth0 config")
		}
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, jwtAudience, "https://"+domain+"/")
	}

	var dedup realtime.Deduper
	if rc != nil {
		dedup = realtime.NewRedisDeduper(rc, envDur("DEDUPER_TTL", 24*time.Hour))
	} else {
		dedup = realtime.NewMemoryDeduper(envInt("DEDUP_CAPACITY", 1024))
	}
	hub := realtime.NewHub(dedup, rc, envString("RELAY_CHANNEL", "gantt-relay"), logger)
	go hub.Run(context.Background())

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	api.Register(e, api.NewHandlers(tasks, transfers, auth, logger))
	hub.Register(e)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return n
}

func envDur(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return d
}
