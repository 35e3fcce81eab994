//go:build ignore

// Standalone fake recognition backend for manual testing. Run with
// `go run test_model_server.go` and point model.endpoint at
// http://localhost:9000/transcribe.
package main

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"
)

type segment struct {
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Text         string  `json:"text"`
	AvgLogProb   float64 `json:"avg_logprob"`
	NoSpeechProb float64 `json:"no_speech_prob"`
}

type response struct {
	Segments            []segment `json:"segments"`
	Language            string    `json:"language"`
	LanguageProbability float64   `json:"language_probability"`
}

func transcribeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(20 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	audioData, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	log.Printf("TRANSCRIPTION REQUEST RECEIVED:")
	log.Printf("  Filename: %s", header.Filename)
	log.Printf("  Audio Size: %d bytes", len(audioData))
	log.Printf("  Options: %s", r.FormValue("options"))

	// Simulate processing time
	time.Sleep(200 * time.Millisecond)

	resp := response{
		Segments: []segment{
			{Start: 0, End: 2.5, Text: " This is a test transcription.", AvgLogProb: -0.25, NoSpeechProb: 0.02},
		},
		Language:            "en",
		LanguageProbability: 0.98,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)

	log.Printf("TRANSCRIPTION RESPONSE SENT: '%s'", resp.Segments[0].Text)
	log.Println("---")
}

func main() {
	http.HandleFunc("/transcribe", transcribeHandler)

	port := ":9000"
	log.Printf("Test model server starting on port %s", port)
	log.Printf("Endpoint: http://localhost%s/transcribe", port)

	if err := http.ListenAndServe(port, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
