package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/okwama/moonsunclient-sub001/core"
	"github.com/okwama/moonsunclient-sub001/pkg/router"
)

type App struct {
	config  *Config
	db      *core.SQLiteDB
	context context.Context
	server  *http.Server
	logger  *slog.Logger
	router  *router.Router

	registry       *core.RoomRegistry
	broker         *core.Broker
	sessionManager *core.SessionManager
	bridge         *core.RedisBridge

	exit chan int

	userStore core.UserStore
	chatStore core.ChatStore
	authStore core.AuthStore

	userHandler *UserHandler
	chatHandler *ChatHandler
	authHandler *AuthHandler

	cleanupFuncs []func(context.Context)

	wg sync.WaitGroup
}

func New(ctx context.Context, config *Config) *App {
	var err error
	app := &App{
		exit: make(chan int),
	}
	if ctx == nil {
		ctx, _ = signal.NotifyContext(
			context.Background(),
			syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	}
	app.context = ctx

	if config == nil {
		var err error
		config, err = LoadConfig()
		if err != nil {
			failed(1, "failed to load config: %v\n", err)
		}
	}
	if err := config.Validate(); err != nil {
		failed(1, FormatValidationErrors(err))
	}
	app.config = config

	app.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				source, _ := a.Value.Any().(*slog.Source)
				if source != nil {
					source.File = filepath.Base(source.File)
				}
			}
			return a
		},
	}))

	sqliteOptions := &core.SQLiteDBOption{
		Mode:        "rwc",
		Cache:       "shared",
		JournalMode: "WAL",
	}
	app.db, err = core.NewSQLiteDB(app.config.SQLite.File, app.config.SQLite.Migrations, sqliteOptions)
	if err != nil {
		failed(1, "failed to open database: %v\n", err)
	}
	app.AddCleanupFunc(func(ctx context.Context) {
		app.db.Close()
	})
	if err := app.db.Migrate(); err != nil {
		failed(1, "failed to migrate database: %v\n", err)
	}

	app.userStore = core.NewSQLiteUserStore(app.db.DB)
	app.authStore = core.NewSQLiteAuthStore(app.db.DB, app.userStore, []byte(app.config.Auth.Secret))
	app.chatStore = core.NewSQLiteChatStore(app.db.DB, app.userStore)

	app.registry = core.NewRoomRegistry(app.chatStore)
	app.sessionManager = core.NewSessionManager(app.context, &app.wg, app.logger,
		core.WithCheckOrigin(checkOrigin(app.config.AllowedOrigins)))
	app.broker = core.NewBroker(app.registry, app.logger,
		// A subscriber that cannot drain its stream has fallen behind the
		// room; it reconnects and reconciles from history.
		core.WithSlowSubscriberPolicy(func(s *core.Session) {
			app.sessionManager.Disconnect(s)
		}))
	app.sessionManager.OnEvent(app.dispatchEvent)
	app.sessionManager.OnDisconnect(func(s *core.Session) {
		app.registry.LeaveCurrent(s)
	})

	if app.config.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     app.config.Redis.Addr,
			Password: app.config.Redis.Password,
			DB:       app.config.Redis.DB,
		})
		app.AddCleanupFunc(func(ctx context.Context) {
			client.Close()
		})
		app.bridge = core.NewRedisBridge(client, app.logger, app.broker.DeliverLocal)
		app.broker.AttachBridge(app.bridge)
	}

	app.userHandler = NewUserHandler(app.userStore)
	app.chatHandler = NewChatHandler(app.chatStore, app.broker)
	app.authHandler = NewAuthHandler(app.authStore)
	authMiddleware := core.JWTMiddleware(app.authStore)

	app.router = router.New(router.WithLogger(app.logger))
	registerErrorMappings(app.router)

	app.router.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   app.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	app.router.With(authMiddleware).Get("/ws", app.serveWS)

	api := router.New(router.WithLogger(app.logger))
	registerErrorMappings(api)

	api.Route("/users", func(r *router.Router) {
		r.With(authMiddleware).Get("/me", app.userHandler.MeHandler)
		r.With(authMiddleware).Get("/", app.userHandler.GetUsersHandler)
		r.Post("/", app.userHandler.RegisterUserHandler)
		r.Get("/{username}", app.userHandler.GetUserByUsernameHandler)
	})

	api.Group(func(r *router.Router) {
		r.Use(authMiddleware)
		r.Get("/users/me/rooms", app.chatHandler.GetMyRoomsHandler)
		r.Post("/rooms", app.chatHandler.CreateRoomHandler)
		r.Get("/rooms/{roomID}", app.chatHandler.GetRoomByIDHandler)
		r.Get("/rooms/{roomID}/messages", app.chatHandler.GetRoomMessagesHandler)
		r.Put("/messages/{messageID}", app.chatHandler.EditMessageHandler)
		r.Delete("/messages/{messageID}", app.chatHandler.DeleteMessageHandler)
	})

	api.Route("/auth", func(r *router.Router) {
		r.Post("/signin", app.authHandler.SigninHandler)
		r.With(authMiddleware).Post("/signout", app.authHandler.SignoutHandler)
	})

	app.router.Mount("/api", api)

	app.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", app.config.Hostname, app.config.Port),
		Handler: app.router.Router,
		BaseContext: func(listener net.Listener) context.Context {
			return app.context
		},
	}

	return app
}

// registerErrorMappings maps the chat sentinels to their response codes.
func registerErrorMappings(r *router.Router) {
	r.MapError(core.ErrNotAMember, http.StatusForbidden)
	r.MapError(core.ErrForbidden, http.StatusForbidden)
	r.MapError(core.ErrNotFound, http.StatusNotFound)
	r.MapError(core.ErrInvalidInput, http.StatusBadRequest)
	r.MapError(core.ErrStoreUnavailable, http.StatusServiceUnavailable)
}

func (app *App) Start() {
	if app.bridge != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			app.bridge.Run(app.context)
		}()
	}

	app.AddCleanupFunc(func(ctx context.Context) {
		app.sessionManager.Close()
	})

	// listen for shutdown signal
	go func() {
		<-app.context.Done()
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		var wg sync.WaitGroup

		for _, f := range app.cleanupFuncs {
			wg.Add(1)
			func(wg *sync.WaitGroup) {
				defer wg.Done()
				f(closeCtx)
			}(&wg)
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			app.logger.Info("app shutdown gracefully")
			app.exit <- 0
		case <-closeCtx.Done():
			app.logger.Info("app shutdown timed out")
			app.exit <- 1
		}
	}()

	app.AddCleanupFunc(func(ctx context.Context) {
		app.server.Shutdown(ctx)
	})
	app.logger.Info(fmt.Sprintf("app running on: %s:%d",
		app.config.Hostname, app.config.Port))

	var err error
	if app.config.TLS.Key != "" && app.config.TLS.Crt != "" {
		err = app.server.ListenAndServeTLS(app.config.TLS.Crt, app.config.TLS.Key)
	} else {
		err = app.server.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		failed(1, "server error: %v\n", err)
	}

	code := <-app.exit
	if code != 0 {
		failed(code, "app exit with code: %d\n", code)
	} else {
		os.Exit(code)
	}
}

func (app *App) AddCleanupFunc(f func(context.Context)) {
	app.cleanupFuncs = append(app.cleanupFuncs, f)
}

func failed(code int, s string, args ...interface{}) {
	fmt.Printf(s, args...)
	os.Exit(code)
}
