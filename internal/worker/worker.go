// Package worker runs the background loops: audit event consumption and
// the scheduled-unblock sweep. Both are suture services so a supervisor
// restarts them when they stop unexpectedly.
package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/thejerf/suture/v4"

	"academics/internal/blocking"
	"academics/internal/metrics"
	"academics/internal/queue"
)

// Releaser unblocks principals whose scheduled release time has passed.
type Releaser interface {
	ReleaseDue(ctx context.Context) (int, error)
}

// ConsumeAudit logs every audit event from q until ctx ends or the
// channel closes. It returns the number of events handled.
func ConsumeAudit(ctx context.Context, q queue.Queue, m *metrics.Metrics) (int, error) {
	messages, err := q.Consume(ctx)
	if err != nil {
		return 0, err
	}
	handled := 0
	for msg := range messages {
		if msg.Type != queue.TypeAudit {
			log.Printf("skipping message of type %q", msg.Type)
			continue
		}
		var e blocking.Entry
		if err := msg.Decode(&e); err != nil {
			log.Printf("undecodable audit event: %v", err)
			continue
		}
		reason := ""
		if e.Reason != nil {
			reason = *e.Reason
		}
		log.Printf("audit %s: %s -> %s at %s %q", e.Action, e.ActorID, e.TargetID, e.OccurredAt.Format(time.RFC3339), reason)
		m.AuditConsumed(string(e.Action))
		handled++
	}
	return handled, nil
}

// Sweep calls ReleaseDue once immediately and then every interval until
// ctx ends.
func Sweep(ctx context.Context, r Releaser, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if n, err := r.ReleaseDue(ctx); err != nil {
			log.Printf("unblock sweep failed: %v", err)
		} else if n > 0 {
			log.Printf("unblock sweep released %d account(s)", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// AuditConsumer is the supervised form of ConsumeAudit.
type AuditConsumer struct {
	Queue   queue.Queue
	Metrics *metrics.Metrics
}

// Serve consumes until ctx ends. A closed channel with a live context is
// reported as an error so the supervisor restarts the consumer.
func (a AuditConsumer) Serve(ctx context.Context) error {
	n, err := ConsumeAudit(ctx, a.Queue, a.Metrics)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("audit stream closed after %d event(s)", n)
}

func (a AuditConsumer) String() string { return "audit consumer" }

// UnblockSweeper is the supervised form of Sweep.
type UnblockSweeper struct {
	Releaser Releaser
	Interval time.Duration
}

// Serve sweeps until ctx ends.
func (u UnblockSweeper) Serve(ctx context.Context) error {
	Sweep(ctx, u.Releaser, u.Interval)
	return ctx.Err()
}

func (u UnblockSweeper) String() string { return "unblock sweeper" }

// NewSupervisor returns a supervisor running the given services.
func NewSupervisor(name string, services ...suture.Service) *suture.Supervisor {
	sup := suture.NewSimple(name)
	for _, s := range services {
		sup.Add(s)
	}
	return sup
}
