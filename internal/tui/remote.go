package tui

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattjoyce/watchit/internal/app"
	"github.com/mattjoyce/watchit/internal/events"
)

const reconnectDelay = 3 * time.Second

// Remote drives a watchit instance through its HTTP API.
type Remote struct {
	baseURL string
	client  *http.Client

	mu   sync.Mutex
	last []app.WatchStatus
}

// NewRemote returns a Controller for the API at baseURL.
func NewRemote(baseURL string) *Remote {
	return &Remote{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Status fetches /watches. On error the previous answer is returned.
func (r *Remote) Status() []app.WatchStatus {
	var body struct {
		Watches []app.WatchStatus `json:"watches"`
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.do(http.MethodGet, "/watches", &body); err != nil {
		return r.last
	}
	r.last = body.Watches
	return r.last
}

func (r *Remote) TriggerNow(id string) (string, error) {
	var body struct {
		RunID string `json:"run_id"`
	}
	if err := r.do(http.MethodPost, "/watches/"+url.PathEscape(id)+"/run", &body); err != nil {
		return "", err
	}
	return body.RunID, nil
}

func (r *Remote) Stop(id string) (bool, error) {
	var body struct {
		Stopped bool `json:"stopped"`
	}
	if err := r.do(http.MethodPost, "/watches/"+url.PathEscape(id)+"/stop", &body); err != nil {
		return false, err
	}
	return body.Stopped, nil
}

func (r *Remote) do(method, path string, out any) error {
	req, err := http.NewRequest(method, r.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		return fmt.Errorf("%s %s: %s", method, path, e.Error)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Stream reads /events into ch until ctx is done, reconnecting after drops
// and resuming from the last event id seen. ch is closed on return.
func (r *Remote) Stream(ctx context.Context, ch chan<- events.Event) {
	defer close(ch)
	var lastID int64
	for {
		lastID = r.streamOnce(ctx, lastID, ch)
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (r *Remote) streamOnce(ctx context.Context, lastID int64, ch chan<- events.Event) int64 {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/events", nil)
	if err != nil {
		return lastID
	}
	if lastID > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatInt(lastID, 10))
	}

	// The shared client has a timeout; streams need one without.
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return lastID
	}
	defer resp.Body.Close()

	var current events.Event
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(current.Data) > 0 {
				current.At = time.Now()
				select {
				case ch <- current:
				case <-ctx.Done():
					return lastID
				}
				lastID = current.ID
			}
			current = events.Event{}
		case strings.HasPrefix(line, "id: "):
			if id, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
				current.ID = id
			}
		case strings.HasPrefix(line, "event: "):
			current.Type = line[7:]
		case strings.HasPrefix(line, "data: "):
			current.Data = json.RawMessage(line[6:])
		}
	}
	return lastID
}
