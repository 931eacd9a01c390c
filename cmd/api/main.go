package main

import (
	"context"
	"log"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"google.golang.org/api/option"

	fbapp "firebase.google.com/go/v4"

	"lotedd/internal/adapter/api"
	"lotedd/internal/adapter/api/handler"
	apimiddleware "lotedd/internal/adapter/api/middleware"
	"lotedd/internal/adapter/api/router"
	"lotedd/internal/adapter/repository"
	"lotedd/internal/infrastructure/cache"
	"lotedd/internal/infrastructure/firebase"
	"lotedd/internal/infrastructure/ratelimit"
	"lotedd/internal/infrastructure/websocket"
	"lotedd/internal/usecase"
	"lotedd/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	var opts []option.ClientOption

	// Service account from environment variable (production) or file
	// path (local development). Without either, ambient credentials apply.
	if serviceAccountJSON := os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON"); serviceAccountJSON != "" {
		log.Printf("Using Firebase service account from environment variable")
		opts = append(opts, option.WithCredentialsJSON([]byte(serviceAccountJSON)))
	} else if serviceAccountPath := os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH"); serviceAccountPath != "" {
		if _, err := os.Stat(serviceAccountPath); os.IsNotExist(err) {
			log.Fatalf("Service account file does not exist: %s", serviceAccountPath)
		}
		log.Printf("Using Firebase service account from file: %s", serviceAccountPath)
		opts = append(opts, option.WithCredentialsFile(serviceAccountPath))
	}

	firebaseApp, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opts...)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase: %v", err)
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase Auth: %v", err)
	}

	firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opts...)
	if err != nil {
		log.Fatalf("Failed to create Firestore client: %v", err)
	}
	defer firestoreClient.Close()

	conversationRepo := repository.NewFirestoreConversationRepository(firestoreClient)
	userRepo := repository.NewFirestoreUserRepository(firestoreClient)

	profileCache := cache.NewProfileCache(userRepo, cfg.ProfileCacheTTL)
	profileCache.StartCleanupRoutine(ctx)

	rateLimiter := ratelimit.NewRateLimiter()
	rateLimiter.StartCleanupRoutine()

	firebaseAuthClient := firebase.NewAuthClient(authClient)

	chatUseCase := usecase.NewChatUseCase(conversationRepo, profileCache, rateLimiter)
	streamUseCase := usecase.NewStreamUseCase(conversationRepo)

	wsManager := websocket.NewManager(streamUseCase)
	wsManager.Start(ctx)

	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(authClient)
	adminMiddleware := apimiddleware.NewAdminMiddleware(profileCache)

	chatHandler := handler.NewChatHandler(chatUseCase)
	wsHandler := handler.NewWebSocketHandler(wsManager, firebaseAuthClient)
	healthHandler := handler.NewHealthHandler()

	router.SetupChatRouter(e, chatHandler, authMiddleware, adminMiddleware)
	router.SetupWebSocketRouter(e, wsHandler)
	router.SetupHealthRouter(e, healthHandler)

	log.Printf("Starting server on port %s...", cfg.ServerPort)
	e.Logger.Fatal(e.Start(":" + cfg.ServerPort))
}
