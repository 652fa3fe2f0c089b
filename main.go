package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"strmbridge/api"
	"strmbridge/config"
	"strmbridge/handlers"
	"strmbridge/services/debrid"
	"strmbridge/services/jellyseerr"
	"strmbridge/services/library"
	"strmbridge/services/resolver"
	"strmbridge/services/scheduler"
	"strmbridge/services/structure"
	"strmbridge/utils/mediapath"

	"github.com/spf13/afero"
)

func main() {
	configFlag := flag.String("config", "", "path to settings.json")
	portOverride := flag.Int("port", 0, "override server port from config")
	flag.Parse()

	configPath := *configFlag
	if configPath == "" {
		configPath = os.Getenv("STRMBRIDGE_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join("data", "settings.json")
	}

	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			log.SetOutput(io.MultiWriter(os.Stdout, fileWriter))
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}

	if *portOverride > 0 {
		settings.Server.Port = *portOverride
		if err := cfgManager.Save(settings); err != nil {
			log.Fatalf("failed to persist port override: %v", err)
		}
	}

	if settings.RealDebrid.APIKey == "" {
		log.Println("[main] warning: no Real-Debrid API key configured, refresh cycles will fail")
	}

	if err := os.MkdirAll(filepath.Dir(settings.Database.Path), 0o755); err != nil {
		log.Fatalf("failed to create database directory: %v", err)
	}
	store, err := library.OpenStore(settings.Database.Path)
	if err != nil {
		log.Fatalf("failed to open library store: %v", err)
	}
	defer store.Close()

	debridClient := debrid.NewClient(settings.RealDebrid.APIKey)
	libraryService := library.NewService(store, debridClient, mediapath.ReleaseNameParser{}, settings.RealDebrid.PageSize)
	synchronizer := structure.NewService(afero.NewOsFs(), settings.Library.Root, settings.BaseURL())

	var streamResolver handlers.StreamResolver
	if settings.Torrentio.Enabled {
		torrentio := resolver.NewTorrentioClient(settings.Torrentio.BaseURL, settings.Torrentio.Options, settings.RealDebrid.APIKey)
		streamResolver = resolver.New(torrentio)
	}

	var requestSource scheduler.RequestSource
	if settings.Jellyseerr.Enabled {
		seerrClient := jellyseerr.NewClient(settings.Jellyseerr.URL, settings.Jellyseerr.APIKey)
		requestSource = jellyseerr.NewService(seerrClient)
	}

	notifier := jellyseerr.NewJellyfinNotifier(settings.Jellyfin.URL, settings.Jellyfin.APIKey)

	sched := scheduler.NewService(cfgManager, libraryService, requestSource, synchronizer)
	if err := sched.Start(context.Background()); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}

	streamHandler := handlers.NewStreamHandler(cfgManager, libraryService, streamResolver, sched, notifier)
	router := api.NewRouter(streamHandler)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming responses have no deadline
		IdleTimeout:  120 * time.Second,
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("[main] listening on %s (library root %s, mode %s)", addr, settings.Library.Root, settings.Library.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("[main] shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := sched.Stop(ctx); err != nil {
		log.Printf("[main] scheduler stop: %v", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[main] server shutdown: %v", err)
	}
	log.Println("[main] goodbye")
}
