// Command mediaclient plays the telephony side of a call against a running
// relay: it opens the media websocket, sends start, streams G.711 audio in
// 20ms frames at real-time pace, then sends stop and reports what it heard.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"voice-relay-service/internal/channel"
)

// WAV header is 44 bytes for canonical files
const wavHeaderSize = 44

// 20ms of 8kHz G.711 is 160 bytes
const (
	frameSize       = 160
	frameIntervalMs = 20
)

// WAV format tags for G.711
const (
	wavFormatALaw  = 6
	wavFormatMuLaw = 7
)

func main() {
	server := flag.String("server", "ws://localhost:8000/media", "Relay media websocket URL")
	audioFile := flag.String("audio", "", "Path to 8kHz mono G.711 WAV file (empty streams silence)")
	duration := flag.Duration("duration", 5*time.Second, "Silence duration when no audio file is given")
	callID := flag.String("call", "mediaclient-"+time.Now().Format("150405"), "Call control ID")
	linger := flag.Duration("linger", 3*time.Second, "Time to keep listening after the last frame")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()

	frames, encoding, err := loadFrames(*audioFile, *duration)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load audio")
	}
	log.Info().Int("frames", len(frames)).Str("encoding", encoding).Msg("Audio loaded")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	ws, err := channel.Dial(ctx, *server, nil, channel.Options{})
	if err != nil {
		log.Fatal().Err(err).Str("server", *server).Msg("Failed to connect")
	}
	defer ws.Close()
	log.Info().Str("server", *server).Msg("Connected")

	var played, clears atomic.Int64
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		listen(ctx, ws, &played, &clears)
	}()

	streamID := "stream-" + *callID
	send(ctx, ws, map[string]any{
		"event":     "start",
		"stream_id": streamID,
		"start": map[string]any{
			"call_control_id": *callID,
			"media_format":    map[string]any{"encoding": encoding, "sample_rate": 8000, "channels": 1},
		},
	})

	startTime := time.Now()
	ticker := time.NewTicker(frameIntervalMs * time.Millisecond)
	defer ticker.Stop()
	for i, frame := range frames {
		<-ticker.C
		send(ctx, ws, map[string]any{
			"event":     "media",
			"stream_id": streamID,
			"media": map[string]any{
				"track":   "inbound",
				"payload": base64.StdEncoding.EncodeToString(frame),
			},
		})
		if (i+1)%50 == 0 {
			log.Info().Int("frame", i+1).Int64("played", played.Load()).Int64("clears", clears.Load()).Msg("Streaming")
		}
	}
	log.Info().Dur("elapsed", time.Since(startTime)).Msg("Finished streaming, listening for replies")

	select {
	case <-time.After(*linger):
	case <-readDone:
	}
	send(ctx, ws, map[string]any{"event": "stop", "stream_id": streamID})

	select {
	case <-readDone:
	case <-time.After(2 * time.Second):
	}
	log.Info().
		Int64("playedFrames", played.Load()).
		Int64("clears", clears.Load()).
		Msg("Call completed")
}

func send(ctx context.Context, ws *channel.WebSocket, msg map[string]any) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to encode message")
	}
	if err := ws.Send(ctx, data); err != nil {
		log.Fatal().Err(err).Msg("Failed to send message")
	}
}

// listen counts playback and clear messages until the relay hangs up.
func listen(ctx context.Context, ws *channel.WebSocket, played, clears *atomic.Int64) {
	for {
		data, err := ws.Receive(ctx)
		if err != nil {
			if !channel.IsClosed(err) && !errors.Is(err, context.Canceled) {
				log.Warn().Err(err).Msg("Receive failed")
			}
			return
		}
		var msg struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Msg("Relay sent invalid JSON")
			continue
		}
		switch msg.Event {
		case "media":
			played.Add(1)
		case "clear":
			clears.Add(1)
			log.Info().Msg("Relay cleared playback (barge-in)")
		default:
			log.Debug().Str("event", msg.Event).Msg("Relay message")
		}
	}
}

// loadFrames splits a G.711 WAV file into 20ms frames, or synthesizes
// mu-law silence when path is empty.
func loadFrames(path string, silence time.Duration) ([][]byte, string, error) {
	if path == "" {
		n := int(silence / (frameIntervalMs * time.Millisecond))
		frames := make([][]byte, n)
		for i := range frames {
			frames[i] = bytes.Repeat([]byte{0xFF}, frameSize)
		}
		return frames, "PCMU", nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	// Read and validate WAV header
	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, "", fmt.Errorf("read WAV header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, "", errors.New("not a valid WAV file")
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	numChannels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])

	var encoding string
	switch audioFormat {
	case wavFormatMuLaw:
		encoding = "PCMU"
	case wavFormatALaw:
		encoding = "PCMA"
	default:
		return nil, "", fmt.Errorf("WAV format %d: only G.711 (6 or 7) is supported", audioFormat)
	}
	if numChannels != 1 || sampleRate != 8000 {
		log.Warn().Uint16("channels", numChannels).Uint32("sampleRate", sampleRate).Msg("Expected 8kHz mono audio")
	}

	body, err := io.ReadAll(f)
	if err != nil {
		return nil, "", fmt.Errorf("read audio: %w", err)
	}
	var frames [][]byte
	for len(body) > 0 {
		n := min(frameSize, len(body))
		frames = append(frames, body[:n])
		body = body[n:]
	}
	return frames, encoding, nil
}
