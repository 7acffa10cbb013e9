package events

import (
	"context"
	"testing"
	"time"

	"voice-relay-service/internal/models"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.enabled {
				t.Error("expected publisher to be disabled")
			}
			if p.writerCalls != nil {
				t.Error("expected nil call writer when disabled")
			}
			if p.writerTranscripts != nil {
				t.Error("expected nil transcript writer when disabled")
			}
		})
	}
}

func TestNew_ConfigValues(t *testing.T) {
	cfg := &Config{
		Enabled:          false,
		Brokers:          []string{"localhost:9092"},
		TopicCalls:       "test.calls",
		TopicTranscripts: "test.transcripts",
		Principal:        "test-principal",
	}

	p := New(cfg)

	if p.principal != "test-principal" {
		t.Errorf("expected principal 'test-principal', got %s", p.principal)
	}
	if p.topicCalls != "test.calls" {
		t.Errorf("expected calls topic 'test.calls', got %s", p.topicCalls)
	}
	if p.topicTranscripts != "test.transcripts" {
		t.Errorf("expected transcripts topic 'test.transcripts', got %s", p.topicTranscripts)
	}
}

func TestNew_EnabledBuildsWriters(t *testing.T) {
	p := New(&Config{
		Enabled:          true,
		Brokers:          []string{"broker-1:9092", "broker-2:9092"},
		TopicCalls:       "voice.relay.call",
		TopicTranscripts: "voice.relay.transcript",
		Principal:        "svc",
	})

	if !p.enabled {
		t.Fatal("expected publisher enabled")
	}
	if p.writerCalls == nil || p.writerCalls.Topic != "voice.relay.call" {
		t.Errorf("unexpected call writer %+v", p.writerCalls)
	}
	if p.writerTranscripts == nil || p.writerTranscripts.Topic != "voice.relay.transcript" {
		t.Errorf("unexpected transcript writer %+v", p.writerTranscripts)
	}
	if err := p.Close(); err != nil {
		t.Errorf("expected clean close of unused writers, got %v", err)
	}
}

func TestPublisher_PublishCallEvent_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false, TopicCalls: "test.calls", Principal: "test-svc"})

	err := p.PublishCallEvent(context.Background(), models.CallEvent{
		EventType: models.EventSessionStarted,
		CallID:    "cc-1",
		StreamID:  "s1",
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_PublishTranscript_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false, TopicTranscripts: "test.transcripts", Principal: "test-svc"})

	err := p.PublishTranscript(context.Background(), models.TranscriptEvent{
		EventType: models.EventTranscriptUser,
		CallID:    "cc-1",
		Role:      "user",
		Text:      "where is my order",
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_Publish_InvalidJSON(t *testing.T) {
	p := New(&Config{Enabled: false})

	// Channels cannot be marshalled
	err := p.publish(context.Background(), nil, "test.calls", "test", "key", make(chan int))
	if err == nil {
		t.Error("expected error for unmarshalable event")
	}
}

func TestPublisher_Close_NoWriters(t *testing.T) {
	p := New(&Config{Enabled: false})

	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}
}
