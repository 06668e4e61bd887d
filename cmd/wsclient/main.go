// Command wsclient streams a WAV file to a running server over the capture protocol.
package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/satriahrh/lafal/internal/api"
	"github.com/satriahrh/lafal/internal/audio"
	ws "github.com/satriahrh/lafal/internal/websocket"
)

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "server base URL")
	previous := flag.String("token", "", "existing learner token to renew (empty issues a new learner)")
	file := flag.String("file", "", "WAV recording to stream")
	reference := flag.String("reference", "This is India", "reference sentence")
	frameMillis := flag.Int("frame-ms", 100, "audio per binary frame")
	flag.Parse()

	if *file == "" {
		log.Fatal("-file is required")
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("Failed to read recording: %v", err)
	}
	samples, sampleRate, err := audio.DecodeWAV(data)
	if err != nil {
		log.Fatalf("Failed to decode recording: %v", err)
	}

	// Step 1: Get authentication token
	fmt.Println("Step 1: Getting learner token...")

	reqBody, _ := json.Marshal(api.TokenRequest{})
	req, err := http.NewRequest(http.MethodPost, *serverURL+"/api/v1/learners/token", bytes.NewReader(reqBody))
	if err != nil {
		log.Fatalf("Failed to build token request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if *previous != "" {
		req.Header.Set("Authorization", "Bearer "+*previous)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Failed to request token: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Token request failed with status: %d", resp.StatusCode)
	}

	var token api.TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		log.Fatalf("Failed to decode token response: %v", err)
	}
	fmt.Printf("Learner %s authenticated\n", token.LearnerID)

	// Step 2: Connect to WebSocket with token
	base, err := url.Parse(*serverURL)
	if err != nil {
		log.Fatalf("Invalid server URL: %v", err)
	}
	wsURL := url.URL{Scheme: "ws", Host: base.Host, Path: "/ws"}
	if base.Scheme == "https" {
		wsURL.Scheme = "wss"
	}
	fmt.Printf("Step 2: Connecting to %s\n", wsURL.String())

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token.Token)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL.String(), header)
	if err != nil {
		if resp != nil {
			log.Fatalf("WebSocket connection failed with status %d: %v", resp.StatusCode, err)
		}
		log.Fatalf("WebSocket connection failed: %v", err)
	}
	defer conn.Close()

	// Step 3: Stream the capture
	fmt.Println("Step 3: Streaming capture...")

	start := ws.EvaluationStartMessage{
		BaseMessage: ws.BaseMessage{Type: ws.MessageTypeEvaluationStart, Timestamp: time.Now().Format(time.RFC3339)},
		Reference:   *reference,
		SampleRate:  sampleRate,
		BitDepth:    16,
		Channels:    1,
	}
	if err := conn.WriteJSON(start); err != nil {
		log.Fatalf("Failed to send evaluation_start: %v", err)
	}

	perFrame := sampleRate * *frameMillis / 1000
	if perFrame <= 0 {
		perFrame = len(samples)
	}
	for offset := 0; offset < len(samples); offset += perFrame {
		end := min(offset+perFrame, len(samples))
		if err := conn.WriteMessage(websocket.BinaryMessage, pack(samples[offset:end])); err != nil {
			log.Fatalf("Failed to send audio frame: %v", err)
		}
	}

	endMsg := ws.ControlMessage{BaseMessage: ws.BaseMessage{Type: ws.MessageTypeEvaluationEnd, Timestamp: time.Now().Format(time.RFC3339)}}
	if err := conn.WriteJSON(endMsg); err != nil {
		log.Fatalf("Failed to send evaluation_end: %v", err)
	}

	// Step 4: Wait for the result
	fmt.Println("Step 4: Waiting for result...")
	conn.SetReadDeadline(time.Now().Add(2 * time.Minute))
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Fatalf("Failed to read response: %v", err)
		}

		var envelope ws.BaseMessage
		if err := json.Unmarshal(message, &envelope); err != nil {
			log.Fatalf("Malformed response: %v", err)
		}

		switch envelope.Type {
		case ws.MessageTypeEvaluationStarted:
			continue
		case ws.MessageTypeError:
			var e ws.ErrorMessage
			json.Unmarshal(message, &e)
			fmt.Fprintf(os.Stderr, "%s: %s\n", e.Code, e.Message)
			os.Exit(1)
		case ws.MessageTypeEvaluationResult:
			var r ws.EvaluationResultMessage
			if err := json.Unmarshal(message, &r); err != nil {
				log.Fatalf("Malformed result: %v", err)
			}
			fmt.Printf("Transcribed Text: %s\n", r.Result.Transcription)
			for _, w := range r.Result.Words {
				fmt.Println(w.Feedback)
			}
			fmt.Printf("Overall Pronunciation Score: %s\n", r.Result.ScorePercent)
			return
		}
	}
}

// pack encodes mono samples as 16-bit little-endian PCM
func pack(samples []int) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s)))
	}
	return out
}
