package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/aipl-dev/aipl/internal/model"
)

var localHosts = map[string]struct{}{"127.0.0.1": {}, "localhost": {}}

func hostAllowed(host string, allowHosts []string) bool {
	if _, ok := localHosts[host]; ok {
		return true
	}
	for _, h := range allowHosts {
		if h == host {
			return true
		}
	}
	return false
}

// handleHTTPCheck is grounded on internal/matrix/http_sender.go's
// context-aware http.Client request pattern and internal/matrix/poller.go's
// bounded-retry loop, with golang.org/x/time/rate pacing retries instead of
// a bare sleep.
func handleHTTPCheck(ctx context.Context, cfg Config, _ string, idx int, c model.Check) CheckRecord {
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return CheckRecord{Index: idx, Type: c.Type, OK: false, Executed: false,
			Reason: &model.Reason{Type: "http_not_allowed", Index: idx, Detail: "scheme must be http or https"}}
	}
	if !hostAllowed(u.Hostname(), c.AllowHosts) {
		return CheckRecord{Index: idx, Type: c.Type, OK: false, Executed: false,
			Reason: &model.Reason{Type: "http_not_allowed", Index: idx, Detail: "host not allowed: " + u.Hostname()}}
	}

	method := c.Method
	if method == "" {
		method = http.MethodGet
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := cfg.HTTPRetries
	if retries <= 0 {
		retries = 3
	}

	limiter := rate.NewLimiter(rate.Every(200*time.Millisecond), 1)
	client := &http.Client{Timeout: timeout}

	start := time.Now()
	var lastErr error
	var status int
	var body []byte
	executed := false

	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			if err := limiter.Wait(ctx); err != nil {
				break
			}
		}
		req, err := http.NewRequestWithContext(ctx, method, c.URL, bytes.NewReader([]byte(c.Body)))
		if err != nil {
			lastErr = err
			continue
		}
		for k, v := range c.Headers {
			req.Header.Set(k, v)
		}
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		executed = true
		status = resp.StatusCode
		body, _ = io.ReadAll(io.LimitReader(resp.Body, int64(cfg.MaxOutputBytes)+1))
		resp.Body.Close()
		lastErr = nil
		break
	}
	dur := time.Since(start).Milliseconds()

	if !executed {
		isLocal := u.Hostname() == "127.0.0.1" || u.Hostname() == "localhost"
		soft := cfg.HTTPSoftFail && isLocal
		return CheckRecord{Index: idx, Type: c.Type, OK: false, Executed: false, DurationMS: dur, Soft: soft,
			Reason: &model.Reason{Type: "http_error", Index: idx, Detail: errString(lastErr)}}
	}

	evidence := fmt.Sprintf("status=%d", status)
	if c.ExpectedStatus != 0 && status != c.ExpectedStatus {
		return CheckRecord{Index: idx, Type: c.Type, OK: false, Executed: true, DurationMS: dur, Evidence: evidence,
			Reason: &model.Reason{Type: "http_status_mismatch", Index: idx, Detail: fmt.Sprintf("got %d, expected %d", status, c.ExpectedStatus)}}
	}

	if c.Contains != "" && !strings.Contains(string(body), c.Contains) {
		return CheckRecord{Index: idx, Type: c.Type, OK: false, Executed: true, DurationMS: dur, Evidence: evidence,
			Reason: &model.Reason{Type: "http_body_missing", Index: idx, Detail: "body does not contain expected substring"}}
	}

	if c.JSONContains != nil {
		var doc any
		if err := json.Unmarshal(body, &doc); err != nil {
			return CheckRecord{Index: idx, Type: c.Type, OK: false, Executed: true, DurationMS: dur, Evidence: evidence,
				Reason: &model.Reason{Type: "http_json_invalid", Index: idx, Detail: err.Error()}}
		}
		if !jsonContains(doc, c.JSONContains) {
			return CheckRecord{Index: idx, Type: c.Type, OK: false, Executed: true, DurationMS: dur, Evidence: evidence,
				Reason: &model.Reason{Type: "http_json_mismatch", Index: idx, Detail: "response does not deep-contain expected JSON"}}
		}
	}

	return CheckRecord{Index: idx, Type: c.Type, OK: true, Executed: true, DurationMS: dur, Evidence: evidence}
}

func errString(err error) string {
	if err == nil {
		return "no successful attempt"
	}
	return err.Error()
}

// jsonContains implements deep containment: for objects, every key in want
// must be present in got and itself deep-contained; for arrays, want must be
// a prefix-subset (each want[i] deep-contained in got[i]); scalars compare
// by value.
func jsonContains(got, want any) bool {
	switch w := want.(type) {
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok {
			return false
		}
		for k, wv := range w {
			gv, present := g[k]
			if !present || !jsonContains(gv, wv) {
				return false
			}
		}
		return true
	case []any:
		g, ok := got.([]any)
		if !ok || len(g) < len(w) {
			return false
		}
		for i, wv := range w {
			if !jsonContains(g[i], wv) {
				return false
			}
		}
		return true
	default:
		return fmt.Sprintf("%v", got) == fmt.Sprintf("%v", want)
	}
}
