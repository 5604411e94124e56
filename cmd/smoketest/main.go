package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type check struct {
	name   string
	method string
	path   string
	body   string
	auth   bool
	want   int
}

func main() {
	baseURL := flag.String("url", "http://localhost:8000", "relay base URL")
	token := flag.String("token", "", "webhook bearer token (defaults to TOKEN_ESPERADO)")
	relay := flag.Bool("relay", false, "also check the messaging platform through /test/relay")
	timeout := flag.Duration("timeout", 15*time.Second, "per-request timeout")
	flag.Parse()

	_ = godotenv.Load()
	if *token == "" {
		*token = os.Getenv("TOKEN_ESPERADO")
	}

	checks := []check{
		{name: "health", method: http.MethodGet, path: "/health", want: http.StatusOK},
		{name: "health full", method: http.MethodGet, path: "/health/full", want: http.StatusOK},
		{name: "config", method: http.MethodGet, path: "/config", want: http.StatusOK},
		{name: "auth rejected", method: http.MethodPost, path: "/test/payload", body: "{}", want: http.StatusUnauthorized},
		{
			name:   "test payload",
			method: http.MethodPost,
			path:   "/test/payload",
			body:   `{"solicitante":"smoketest","contexto":"teste","pergunta":"Está funcionando?","id_usuario":"user1234567"}`,
			auth:   true,
			want:   http.StatusOK,
		},
	}
	if *relay {
		checks = append(checks, check{name: "relay check", method: http.MethodGet, path: "/test/relay", auth: true, want: http.StatusOK})
	}

	client := &http.Client{Timeout: *timeout}
	failed := 0
	for _, c := range checks {
		status, body, err := run(client, strings.TrimRight(*baseURL, "/"), *token, c)
		switch {
		case err != nil:
			failed++
			fmt.Printf("FAIL  %-14s %v\n", c.name, err)
		case status != c.want:
			failed++
			fmt.Printf("FAIL  %-14s status %d, want %d: %s\n", c.name, status, c.want, summarize(body))
		default:
			fmt.Printf("ok    %-14s %d %s\n", c.name, status, summarize(body))
		}
	}

	if failed > 0 {
		fmt.Printf("\n%d of %d checks failed\n", failed, len(checks))
		os.Exit(1)
	}
	fmt.Printf("\nall %d checks passed\n", len(checks))
}

func run(client *http.Client, baseURL, token string, c check) (int, []byte, error) {
	var body io.Reader
	if c.body != "" {
		body = strings.NewReader(c.body)
	}
	req, err := http.NewRequest(c.method, baseURL+c.path, body)
	if err != nil {
		return 0, nil, err
	}
	if c.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	return resp.StatusCode, data, err
}

// summarize prints the status or message field when the body is JSON.
func summarize(body []byte) string {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return ""
	}
	for _, k := range []string{"message", "status", "erro"} {
		if v, ok := m[k].(string); ok {
			return v
		}
	}
	return ""
}
