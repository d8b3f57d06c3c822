package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"budgetline/internal/config"
	"budgetline/internal/domain"
	"budgetline/internal/engine"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

// StartWebhookDispatcher starts one delivery loop per enabled webhook in the
// company config. Each loop tails the event log from its own cursor, so a
// slow endpoint never delays the others. No-op without webhooks.
func StartWebhookDispatcher(e engine.Engine) {
	if e.Config == nil || len(e.Config.Webhooks) == 0 {
		return
	}
	companyID := strings.TrimSpace(e.Config.Company.ID)
	if companyID == "" {
		return
	}
	for _, hook := range e.Config.Webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		timeout := defaultWebhookTimeout
		if hook.TimeoutSeconds > 0 {
			timeout = time.Duration(hook.TimeoutSeconds) * time.Second
		}
		w := &webhookDelivery{
			engine:  e,
			company: companyID,
			hook:    hook,
			filter:  newEventFilter(hook.Events),
			client:  &http.Client{Timeout: timeout},
		}
		go w.run()
	}
}

// webhookDelivery tails the event log for a single endpoint. cursor is the
// last event ID handled (delivered or filtered out); delivery failures leave
// the cursor in place so the event is retried next tick.
type webhookDelivery struct {
	engine  engine.Engine
	company string
	hook    config.WebhookConfig
	filter  eventFilter
	client  *http.Client

	cursor int64
	seeded bool
}

func (w *webhookDelivery) run() {
	ticker := time.NewTicker(defaultWebhookInterval)
	defer ticker.Stop()
	for {
		w.tick(context.Background())
		<-ticker.C
	}
}

func (w *webhookDelivery) tick(ctx context.Context) {
	if !w.seeded {
		// Start at the log head: hooks announce new activity, they do not
		// replay history.
		cur, err := w.engine.Repo.LatestEventID(ctx, w.company)
		if err != nil {
			log.Printf("webhook: init cursor failed: %v", err)
			return
		}
		w.cursor = cur
		w.seeded = true
	}
	events, err := w.engine.Repo.EventsAfter(ctx, defaultWebhookBatch, w.cursor, w.company)
	if err != nil {
		log.Printf("webhook: fetch events failed: %v", err)
		return
	}
	for _, evt := range events {
		if w.filter.match(evt.Type) {
			if err := w.post(ctx, evt); err != nil {
				log.Printf("webhook: deliver to %s failed: %v", w.hook.URL, err)
				return
			}
		}
		w.cursor = evt.ID
	}
}

type webhookEvent struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	CompanyID  string          `json:"company_id"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
	PayloadRaw string          `json:"payload_raw,omitempty"`
}

func (w *webhookDelivery) post(ctx context.Context, evt domain.Event) error {
	body := webhookEvent{
		ID:         evt.ID,
		Type:       evt.Type,
		CompanyID:  evt.CompanyID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    json.RawMessage("{}"),
	}
	if evt.Payload != "" {
		if json.Valid([]byte(evt.Payload)) {
			body.Payload = json.RawMessage(evt.Payload)
		} else {
			body.PayloadRaw = evt.Payload
		}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Budgetline-Event", evt.Type)
	req.Header.Set("X-Budgetline-Delivery", fmt.Sprintf("%d", evt.ID))
	req.Header.Set("X-Budgetline-Company", w.company)
	if strings.TrimSpace(w.hook.Secret) != "" {
		req.Header.Set("X-Budgetline-Secret", w.hook.Secret)
	}
	res, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		if key := strings.TrimSpace(evt); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
