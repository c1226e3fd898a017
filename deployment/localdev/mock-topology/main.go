package main

import (
	"encoding/json"
	"log"
	"net/http"
)

type edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

type topology struct {
	Nodes       []string           `json:"nodes"`
	Edges       []edge             `json:"edges"`
	Criticality map[string]float64 `json:"criticality"`
}

// Serves a fixed dependency topology so the chaos engine can run locally
// without a real service-discovery backend.
func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/topology", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, topology{
			Nodes: []string{"db", "cache", "queue", "api", "auth", "worker", "gateway", "web"},
			Edges: []edge{
				{Source: "db", Target: "api"},
				{Source: "db", Target: "worker"},
				{Source: "cache", Target: "api"},
				{Source: "queue", Target: "worker"},
				{Source: "api", Target: "gateway"},
				{Source: "auth", Target: "gateway"},
				{Source: "gateway", Target: "web"},
			},
			Criticality: map[string]float64{
				"db":      9,
				"auth":    8,
				"gateway": 8,
				"api":     7,
				"queue":   6,
				"cache":   4,
				"worker":  3,
				"web":     3,
			},
		})
	})

	addr := ":8085"
	log.Printf("mock topology service listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}
