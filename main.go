package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/EncantoFlores/encanto-backend/database"
	"github.com/EncantoFlores/encanto-backend/internal/jobs"
	"github.com/EncantoFlores/encanto-backend/internal/models"
	"github.com/EncantoFlores/encanto-backend/internal/routes"
	"github.com/EncantoFlores/encanto-backend/internal/services"
	"github.com/EncantoFlores/encanto-backend/internal/storage"
)

func main() {
	// Load .env for local development
	if os.Getenv("INSTANCE_CONNECTION_NAME") == "" {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("⚠️ Nenhum arquivo .env encontrado, usando variáveis de ambiente")
		}
	}

	// Storage
	var store storage.Store
	if os.Getenv("USE_MEMORY_STORE") == "true" {
		log.Println("⚠️ Usando armazenamento em memória (não usar em produção!)")
		store = storage.NewMemoryStore()
	} else {
		log.Println("📦 Conectando ao PostgreSQL...")
		database.Connect()

		log.Println("🔄 Rodando migrações...")
		err := database.DB.AutoMigrate(
			&models.Session{},
			&models.Message{},
			&models.ProductSentRecord{},
			&models.CustomerMemory{},
		)
		if err != nil {
			log.Fatal("Failed to migrate database:", err)
		}
		log.Println("✅ Migrações concluídas")

		store = storage.NewDatabaseStore(database.DB)
	}
	storage.SetStore(store)

	// Model client
	modelClient, err := services.NewOpenAIClient()
	if err != nil {
		log.Fatal("Failed to initialize model client:", err)
	}
	services.SetModelClient(modelClient)

	// Tool provider
	toolServerURL := os.Getenv("TOOL_SERVER_URL")
	if toolServerURL == "" {
		toolServerURL = "http://localhost:3001"
	}
	toolProvider := services.NewHTTPToolProvider(toolServerURL)
	services.SetToolProvider(toolProvider)

	assistant := services.NewAssistantService(store, modelClient, toolProvider)

	// Cleanup job
	cleanupJob := jobs.NewCleanupJob(store)
	cleanupJob.Start()

	// Fiber app
	app := fiber.New(fiber.Config{
		AppName: "Encanto Flores Backend v1.0.0",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	routes.SetupRoutes(app, store, assistant)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		log.Println("🛑 Encerrando...")
		cleanupJob.Stop()
		_ = app.Shutdown()
	}()

	log.Println("========================================")
	log.Printf("🚀 Encanto Flores Backend na porta %s", port)
	log.Printf("📊 Armazenamento: %s", storageType())
	log.Printf("🌍 Ambiente: %s", environment())
	log.Printf("🛠️ Servidor de ferramentas: %s", toolServerURL)
	log.Println("========================================")

	log.Fatal(app.Listen(":" + port))
}

func environment() string {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		return env
	}
	if os.Getenv("INSTANCE_CONNECTION_NAME") != "" {
		return "production"
	}
	return "development"
}

func storageType() string {
	if os.Getenv("USE_MEMORY_STORE") == "true" {
		return "memória (teste)"
	}
	return "PostgreSQL"
}
