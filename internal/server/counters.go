package server

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"voluna/internal/engine"
)

const (
	counterConsumer      = "applicant_counter"
	counterPollInterval  = time.Second
	counterDispatchBatch = 200
)

// applicantCounter keeps activities' applicant_count denormalization in sync
// with the application event stream. Unlike webhooks its cursor is durable:
// a restart resumes where it stopped, so a count is applied exactly once per
// event.
type applicantCounter struct {
	engine engine.Engine
}

// StartApplicantCounter runs the counter loop until ctx is cancelled.
func StartApplicantCounter(ctx context.Context, e engine.Engine) {
	c := applicantCounter{engine: e}
	go c.run(ctx)
}

func (c applicantCounter) run(ctx context.Context) {
	ticker := time.NewTicker(counterPollInterval)
	defer ticker.Stop()
	for {
		if err := c.Drain(ctx); err != nil {
			log.Printf("applicant counter: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Drain applies all unprocessed application events. Exposed so tests and the
// CLI can settle counters synchronously.
func (c applicantCounter) Drain(ctx context.Context) error {
	for {
		cursor, err := c.engine.Repo.GetCounterCursor(ctx, counterConsumer)
		if err != nil {
			return err
		}
		events, err := c.engine.Repo.EventsAfter(ctx, counterDispatchBatch, cursor, "")
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		for _, evt := range events {
			delta := 0
			switch evt.Type {
			case "application.created":
				delta = 1
			case "application.deleted":
				delta = -1
			}
			if delta != 0 {
				activityID := activityIDFromPayload(evt.Payload)
				if activityID != "" {
					// The activity may already be gone (cascade delete);
					// a zero-row update is not an error here.
					if err := c.engine.Repo.AdjustApplicantCount(ctx, activityID, delta); err != nil {
						return err
					}
				}
			}
			if err := c.engine.Repo.SetCounterCursor(ctx, counterConsumer, evt.ID); err != nil {
				return err
			}
		}
		if len(events) < counterDispatchBatch {
			return nil
		}
	}
}

// DrainApplicantCounter applies pending counter events once, synchronously.
func DrainApplicantCounter(ctx context.Context, e engine.Engine) error {
	return applicantCounter{engine: e}.Drain(ctx)
}

func activityIDFromPayload(payload string) string {
	if payload == "" {
		return ""
	}
	var m struct {
		ActivityID string `json:"activity_id"`
	}
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return ""
	}
	return m.ActivityID
}
