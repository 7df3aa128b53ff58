// Package main provides a CI-friendly smoke test against a running document QA service.
//
// It validates:
//   - login and session establishment
//   - an authenticated ask
//   - that a burst of requests with a rejected access token triggers exactly one refresh
//   - an optional upload
//   - logout clears the stored credentials
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"docqa/cmd/internal/apiclient"
	"docqa/cmd/internal/auth/credstore"
	"docqa/cmd/internal/auth/session"
)

func main() {
	var (
		baseURL  = flag.String("url", "http://127.0.0.1:8000", "Service base URL")
		email    = flag.String("email", "", "Account email (required)")
		password = flag.String("password", os.Getenv("DOCQA_SMOKE_PASSWORD"), "Account password (default $DOCQA_SMOKE_PASSWORD)")
		question = flag.String("q", "What is this document about?", "Question to ask")
		file     = flag.String("file", "", "Optional PDF or DOCX to upload before asking")
		burst    = flag.Int("burst", 8, "Concurrent requests sent with a rejected access token")
		timeout  = flag.Duration("timeout", 30*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*baseURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if *email == "" || *password == "" {
		fatalf("-email and -password are required")
	}
	if *burst < 2 {
		fatalf("-burst must be at least 2")
	}

	root := context.Background()
	store := credstore.NewMemoryStore()
	reg := prometheus.NewRegistry()
	metrics, err := apiclient.NewMetrics(reg)
	if err != nil {
		fatalf("metrics: %v", err)
	}

	var ctl *session.Controller
	client, err := apiclient.New(*baseURL, store,
		apiclient.WithTimeout(*timeout),
		apiclient.WithMetrics(metrics),
		apiclient.WithReauthHandler(func(err error) { ctl.Expire(err) }),
	)
	if err != nil {
		fatalf("client: %v", err)
	}
	ctl = session.NewController(session.DefaultConfig(), client, store)
	if err := ctl.Start(root); err != nil {
		fatalf("start: %v", err)
	}

	id := mustLogin(root, ctl, *email, *password, *timeout)
	if *verbose {
		fmt.Printf("logged in: user=%d role=%s\n", id.ID, id.Role)
	}

	if *file != "" {
		mustUpload(root, client, *file, *timeout)
		if *verbose {
			fmt.Printf("uploaded: %s\n", filepath.Base(*file))
		}
	}

	answer := mustAsk(root, client, *question, *timeout)
	if *verbose {
		fmt.Printf("answer: %s\n", answer)
	}

	// Swap in a token the service must reject; the refresh token stays valid.
	if err := store.Set(root, credstore.KeyAccessToken, "smoke-rejected-token"); err != nil {
		fatalf("poison access token: %v", err)
	}
	mustBurst(root, client, *question, *burst, *timeout)

	refreshes := counterValue(reg, "docqa_client_refresh_total", "result", apiclient.RefreshSuccess)
	if refreshes != 1 {
		fatalf("refresh coalescing: got %v successful refreshes for a burst of %d, want 1", refreshes, *burst)
	}

	if err := ctl.Logout(root); err != nil {
		fatalf("logout: %v", err)
	}
	pair, err := credstore.LoadPair(root, store)
	if err != nil {
		fatalf("load pair after logout: %v", err)
	}
	if pair.AccessToken != "" || pair.RefreshToken != "" {
		fatalf("logout left credentials behind")
	}

	fmt.Printf("OK: user=%d role=%s burst=%d refreshes=%v\n", id.ID, id.Role, *burst, refreshes)
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func mustLogin(parent context.Context, ctl *session.Controller, email, password string, stepTimeout time.Duration) session.Identity {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	id, err := ctl.Login(ctx, email, password)
	if err != nil {
		fatalf("login: %s", apiclient.Message(err, err.Error()))
	}
	if !ctl.IsAuthenticated(ctx) {
		fatalf("login: controller not authenticated")
	}
	return id
}

func mustUpload(parent context.Context, client *apiclient.Client, path string, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	f, err := os.Open(path)
	if err != nil {
		fatalf("open upload: %v", err)
	}
	defer func() { _ = f.Close() }()

	doc, err := client.UploadDocument(ctx, filepath.Base(path), f)
	if err != nil {
		fatalf("upload: %s", apiclient.Message(err, err.Error()))
	}
	if doc.ID == 0 || doc.Filename == "" {
		fatalf("upload: incomplete response %+v", doc)
	}
}

func mustAsk(parent context.Context, client *apiclient.Client, q string, stepTimeout time.Duration) string {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	res, err := client.Ask(ctx, q)
	if err != nil {
		fatalf("ask: %s", apiclient.Message(err, err.Error()))
	}
	return res.Answer
}

func mustBurst(parent context.Context, client *apiclient.Client, q string, n int, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.Ask(ctx, q); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		fatalf("burst ask: %v", err)
	}
}

// counterValue reads one labelled counter the way a scrape would see it.
func counterValue(reg prometheus.Gatherer, name, label, value string) float64 {
	families, err := reg.Gather()
	if err != nil {
		fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
