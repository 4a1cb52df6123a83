// Package audit records order lifecycle events off the request path. Events
// are handed to a single writer actor which persists them in arrival order.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/example/bytespark/pkg/repository"
	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

// Sink persists audit entries. *repository.MongoRepository implements it.
type Sink interface {
	CreateAuditLog(ctx context.Context, log *repository.AuditLog) error
}

// Messages
type Entry struct {
	Action   string
	EntityID string
	ActorID  string
	Data     map[string]interface{}
	At       time.Time
}

type flush struct{}

type flushed struct{}

type writerActor struct {
	sink    Sink
	service string
	logger  *zap.Logger
}

func (a *writerActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *Entry:
		a.write(msg)

	case *flush:
		ctx.Respond(&flushed{})

	case *actor.Started:
		a.logger.Info("Audit writer started")

	case *actor.Stopped:
		a.logger.Info("Audit writer stopped")
	}
}

func (a *writerActor) write(e *Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	err := a.sink.CreateAuditLog(ctx, &repository.AuditLog{
		Service:   a.service,
		Action:    e.Action,
		EntityID:  e.EntityID,
		ActorID:   e.ActorID,
		Data:      e.Data,
		CreatedAt: e.At,
	})
	if err != nil {
		a.logger.Error("Failed to write audit log",
			zap.String("action", e.Action),
			zap.String("entity_id", e.EntityID),
			zap.Error(err))
	}
}

// Recorder is the handle services use to emit audit events.
type Recorder struct {
	system *actor.ActorSystem
	pid    *actor.PID
	logger *zap.Logger
	now    func() time.Time
}

// NewRecorder starts the writer actor. service names the emitting process in
// every stored entry.
func NewRecorder(sink Sink, service string, logger *zap.Logger) (*Recorder, error) {
	system := actor.NewActorSystem()

	props := actor.PropsFromProducer(func() actor.Actor {
		return &writerActor{sink: sink, service: service, logger: logger.Named("audit-writer")}
	})
	pid, err := system.Root.SpawnNamed(props, "audit-writer")
	if err != nil {
		return nil, fmt.Errorf("failed to spawn audit writer: %w", err)
	}

	return &Recorder{
		system: system,
		pid:    pid,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Record queues an event and returns immediately.
func (r *Recorder) Record(action, entityID, actorID string, data map[string]interface{}) {
	r.system.Root.Send(r.pid, &Entry{
		Action:   action,
		EntityID: entityID,
		ActorID:  actorID,
		Data:     data,
		At:       r.now(),
	})
}

// Flush waits until every event recorded before the call has been written.
func (r *Recorder) Flush(timeout time.Duration) error {
	_, err := r.system.Root.RequestFuture(r.pid, &flush{}, timeout).Result()
	if err != nil {
		return fmt.Errorf("audit flush: %w", err)
	}
	return nil
}

// Stop drains queued events and stops the writer.
func (r *Recorder) Stop() {
	if err := r.system.Root.PoisonFuture(r.pid).Wait(); err != nil {
		r.logger.Warn("Audit writer did not stop cleanly", zap.Error(err))
	}
	r.system.Shutdown()
}
