package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/loopback-ai/helpdesk-service/internal/application"
	"github.com/loopback-ai/helpdesk-service/internal/config"
	"github.com/loopback-ai/helpdesk-service/internal/kafka"
	"github.com/spf13/cobra"
)

var replayEventsCmd = &cobra.Command{
	Use:   "replay-events",
	Short: "Republish all stored tickets to the Kafka ticket-events topic (backfill for notifier/learning consumers)",
	RunE:  runReplayEvents,
}

func init() {
	rootCmd.AddCommand(replayEventsCmd)
}

func runReplayEvents(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if len(cfg.KafkaBrokers) == 0 || cfg.KafkaTopicTicket == "" {
		return fmt.Errorf("replay-events: KAFKA_BROKERS and KAFKA_TOPIC_TICKET are required")
	}

	tickets, _, err := application.OpenStores(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	all, err := tickets.List(ctx)
	if err != nil {
		return fmt.Errorf("list tickets: %w", err)
	}
	log.Printf("replay-events: found %d tickets", len(all))

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicTicket)
	defer producer.Close()
	for i := range all {
		producer.ProduceTicketEvent(ctx, kafka.EventTicketUpdated, &all[i])
		if (i+1)%50 == 0 || i == len(all)-1 {
			log.Printf("replay-events: sent %d/%d events", i+1, len(all))
		}
	}
	log.Printf("replay-events: done, sent %d events", len(all))
	return nil
}
