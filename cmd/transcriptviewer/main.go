// Command transcriptviewer follows the relay's call and transcript topics
// and shows each conversation live in a browser.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func consumeKafka(ctx context.Context, hub *Hub, brokers, topic string, since time.Duration) {
	// Partition reader without a consumer group, so port-forwarded brokers work.
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   strings.Split(brokers, ","),
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-since)); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Failed to rewind, reading from latest")
	}
	log.Info().Str("topic", topic).Dur("since", since).Msg("Consuming")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("topic", topic).Msg("Kafka read failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if !handleMessage(ctx, hub, msg.Value) {
			log.Warn().Str("topic", topic).Int64("offset", msg.Offset).Msg("Skipping invalid notice")
		}
	}
}

// handleMessage forwards one notice to the hub. It reports false for
// payloads that are not relay notices.
func handleMessage(ctx context.Context, hub *Hub, value []byte) bool {
	var n notice
	if err := json.Unmarshal(value, &n); err != nil || n.EventType == "" {
		return false
	}
	ev := log.Info().Str("eventType", n.EventType).Str("callId", n.CallID)
	if n.Text != "" {
		ev = ev.Str("role", n.Role).Str("text", truncate(n.Text, 60))
	}
	if n.Reason != "" {
		ev = ev.Str("reason", n.Reason)
	}
	ev.Msg("Notice")

	select {
	case hub.broadcast <- json.RawMessage(value):
	case <-ctx.Done():
	}
	return true
}

func main() {
	port := flag.String("port", "8081", "HTTP server port")
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topicCalls := flag.String("topic-calls", "voice.relay.call", "Call lifecycle topic")
	topicTranscripts := flag.String("topic-transcripts", "voice.relay.transcript", "Transcript topic")
	since := flag.Duration("since", time.Hour, "How far back to replay on start")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := newHub(ctx.Done())
	go hub.run()

	go consumeKafka(ctx, hub, *brokers, *topicCalls, *since)
	go consumeKafka(ctx, hub, *brokers, *topicTranscripts, *since)

	mux := http.NewServeMux()
	mux.HandleFunc("/", indexHandler)
	mux.HandleFunc("/ws", wsHandler(hub))
	srv := &http.Server{Addr: ":" + *port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("addr", "http://localhost:"+*port).
		Str("brokers", *brokers).
		Strs("topics", []string{*topicCalls, *topicTranscripts}).
		Msg("Transcript viewer starting")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("Server error")
	}
}
