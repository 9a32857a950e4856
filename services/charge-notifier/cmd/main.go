//services/charge-notifier/cmd/main.go

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rfay/uc-stripe/services/charge-notifier/internal/receipts"
	"github.com/rfay/uc-stripe/shared/config"
	pkgkafka "github.com/rfay/uc-stripe/shared/kafka"
	pkgrabbit "github.com/rfay/uc-stripe/shared/rabbitmq"
)

const (
	consumerGroup   = "charge-notifier"
	receiptPrefetch = 10
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cfg := config.LoadCommonConfig()

	if !cfg.HasKafka() {
		log.Fatal("KAFKA_BROKER and KAFKA_TOPIC are required")
	}

	log.Printf("Connecting to RabbitMQ at: %s", cfg.RABBITMQ_HOST)
	rabbitClient, err := pkgrabbit.NewClient(cfg.GetRabbitMQURL())
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	// closed explicitly after the workers stop
	if err := rabbitClient.CreateQueue(receipts.ReceiptQueue); err != nil {
		log.Fatalf("Failed to create receipt queue: %v", err)
	}
	if err := rabbitClient.SetPrefetch(receiptPrefetch); err != nil {
		log.Fatalf("Failed to set prefetch: %v", err)
	}

	log.Printf("Connecting to Kafka at: %s, Topic: %s", cfg.KAFKA_BROKER, cfg.KAFKA_TOPIC)
	kafkaConsumer := pkgkafka.NewConsumer([]string{cfg.KAFKA_BROKER}, cfg.KAFKA_TOPIC, consumerGroup)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	msgs, err := rabbitClient.Consume(receipts.ReceiptQueue)
	if err != nil {
		log.Fatalf("Email Worker: failed to start consuming messages: %v", err)
	}
	wg.Add(1)
	go receipts.RunEmailWorker(ctx, msgs, receipts.LogSender{}, &wg)

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Println("🎧 Charge event bridge started")
		kafkaConsumer.Start(ctx, receipts.NewBridgeHandler(rabbitClient))
	}()

	log.Println("Service running. Press Ctrl + c to stop")
	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, syscall.SIGINT, syscall.SIGTERM)
	receivedSignal := <-stopSignal
	log.Printf("Received signal: %v. Initiating shutdown...", receivedSignal)

	cancel()
	wg.Wait()

	if err := kafkaConsumer.Close(); err != nil {
		log.Printf("Failed to close Kafka consumer: %v", err)
	}
	if err := rabbitClient.Close(); err != nil {
		log.Fatalf("Failed to close RabbitMQ connection: %v", err)
	}
	log.Println("Service shutdown complete. Safe to exit")
}
