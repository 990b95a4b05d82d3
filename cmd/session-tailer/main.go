// session-tailer follows the play-session topic and keeps a running tally of
// play time per participant. Useful for watching session flow during
// development and for feeding downstream stats without touching the server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/IBM/sarama"

	"github.com/XIAA25/queueing-system-home-arcade/internal/config"
	"github.com/XIAA25/queueing-system-home-arcade/internal/domain"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.Kafka.GroupID, saramaConfig)
	if err != nil {
		logger.Error("failed to create consumer group", "error", err)
		os.Exit(1)
	}
	defer group.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tailer := &sessionTailer{
		logger: logger,
		totals: make(map[string]time.Duration),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			if err := group.Consume(ctx, []string{cfg.Kafka.Topic}, tailer); err != nil {
				if err == sarama.ErrClosedConsumerGroup {
					return
				}
				logger.Error("error from consumer", "error", err)
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-group.Errors():
				if !ok {
					return
				}
				logger.Error("consumer group error", "error", err)
			}
		}
	}()

	logger.Info("tailing play sessions",
		"brokers", cfg.Kafka.Brokers,
		"topic", cfg.Kafka.Topic,
		"group_id", cfg.Kafka.GroupID,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	wg.Wait()

	tailer.logSummary()
}

// sessionTailer implements sarama.ConsumerGroupHandler
type sessionTailer struct {
	logger *slog.Logger
	mu     sync.Mutex
	totals map[string]time.Duration
}

func (t *sessionTailer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (t *sessionTailer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim processes messages from a topic partition
func (t *sessionTailer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil

		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			var ev domain.SessionEvent
			if err := json.Unmarshal(message.Value, &ev); err != nil {
				t.logger.Warn("failed to unmarshal session event",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				session.MarkMessage(message, "")
				continue
			}

			if ev.Participant == "" || ev.Machine == "" {
				t.logger.Warn("invalid session event",
					"participant", ev.Participant,
					"machine", ev.Machine,
				)
				session.MarkMessage(message, "")
				continue
			}

			elapsed := time.Duration(ev.PlaySeconds * float64(time.Second))
			t.mu.Lock()
			t.totals[ev.Participant] += elapsed
			total := t.totals[ev.Participant]
			t.mu.Unlock()

			t.logger.Info("play session finished",
				"participant", ev.Participant,
				"machine", ev.Machine,
				"play_seconds", ev.PlaySeconds,
				"tailed_total", total.Round(time.Second).String(),
			)

			session.MarkMessage(message, "")
		}
	}
}

// logSummary prints the per-participant totals accumulated during the run.
func (t *sessionTailer) logSummary() {
	t.mu.Lock()
	defer t.mu.Unlock()

	handles := make([]string, 0, len(t.totals))
	for handle := range t.totals {
		handles = append(handles, handle)
	}
	sort.Strings(handles)

	for _, handle := range handles {
		t.logger.Info("session total",
			"participant", handle,
			"play_time", t.totals[handle].Round(time.Second).String(),
		)
	}
}
