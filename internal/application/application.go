package application

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/loopback-ai/helpdesk-service/internal/assist"
	"github.com/loopback-ai/helpdesk-service/internal/config"
	"github.com/loopback-ai/helpdesk-service/internal/handler"
	"github.com/loopback-ai/helpdesk-service/internal/kafka"
	"github.com/loopback-ai/helpdesk-service/internal/notifier"
	"github.com/loopback-ai/helpdesk-service/internal/router"
	"github.com/loopback-ai/helpdesk-service/internal/service"
	"github.com/loopback-ai/helpdesk-service/internal/store"
	storefile "github.com/loopback-ai/helpdesk-service/internal/store/file"
	storepg "github.com/loopback-ai/helpdesk-service/internal/store/postgres"
)

// OpenStores открывает хранилища по выбранному драйверу. Для postgres
// предварительно накатываются миграции.
func OpenStores(cfg *config.Config) (store.TicketStore, store.KnowledgeStore, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverFile:
		tickets, err := storefile.NewTicketStore(cfg.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("ticket store: %w", err)
		}
		kb, err := storefile.NewKnowledgeStore(cfg.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("knowledge store: %w", err)
		}
		return tickets, kb, nil
	case config.StoreDriverPostgres:
		if err := storepg.MigrateUp(cfg.DatabaseURL()); err != nil {
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		db, err := storepg.Open(cfg.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("database: %w", err)
		}
		return storepg.NewTicketStore(db), storepg.NewKnowledgeStore(db), nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// API приложение: HTTP-сервер хелпдеска (режим api).
type API struct {
	cfg      *config.Config
	httpSrv  *http.Server
	producer *kafka.Producer
}

// NewAPI собирает приложение для режима api.
func NewAPI(cfg *config.Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	tickets, kb, err := OpenStores(cfg)
	if err != nil {
		return nil, err
	}

	var assistOpts []assist.Option
	if cfg.OpenAIBaseURL != "" {
		assistOpts = append(assistOpts, assist.WithBaseURL(cfg.OpenAIBaseURL))
	}
	analyzer := assist.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, assistOpts...)
	if cfg.OpenAIAPIKey == "" {
		log.Println("WARNING: OPENAI_API_KEY is not set, analysis calls will degrade")
	}

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicTicket)
	notify := notifier.NewClient(cfg.NotifyServiceURL)

	kbSvc := service.NewKnowledgeService(kb, analyzer)
	ticketSvc := service.NewTicketService(tickets, kbSvc, analyzer, producer, notify)

	mux := router.New(handler.NewTicketHandler(ticketSvc), handler.NewKnowledgeHandler(kbSvc))

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &API{
		cfg:      cfg,
		httpSrv:  httpSrv,
		producer: producer,
	}, nil
}

// Run запускает HTTP-сервер, блокируется до отмены ctx.
func (a *API) Run(ctx context.Context) error {
	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	log.Printf("HTTP server listening on %s (store: %s)", a.httpSrv.Addr, a.cfg.StoreDriver)
	log.Printf("  Swagger UI:     %s/swagger", base)
	log.Printf("  Swagger spec:   %s/swagger/openapi.json", base)
	log.Printf("  Health:         %s/health", base)
	log.Printf("  Tickets:        %s/tickets", base)
	log.Printf("  Knowledge base: %s/knowledge-base", base)

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := a.producer.Close(); err != nil {
		log.Printf("kafka: close: %v", err)
	}
	return nil
}
