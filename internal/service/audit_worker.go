package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ernanint/notas-de-vidro/internal/domain"
	"github.com/ernanint/notas-de-vidro/internal/metrics"
	"github.com/ernanint/notas-de-vidro/internal/models"
)

// Auditor is an alias for the canonical domain.Auditor interface.
type Auditor = domain.Auditor

// AuditEnqueuer accepts audit jobs without blocking.
type AuditEnqueuer interface {
	Enqueue(job *AuditJob)
}

// AuditJob is one mutation waiting to be written to the audit log. At is the
// time of the mutation; Enqueue fills it in when zero, so entries written late
// during a drain still sort by when the change happened.
type AuditJob struct {
	Action   string
	Kind     models.Kind
	EntityID string
	Actor    string
	Detail   map[string]any
	At       time.Time
}

// recordTimeout bounds a single audit write.
const recordTimeout = 5 * time.Second

// AuditWorker writes audit entries from a single goroutine so mutations never
// wait on the audit collection.
type AuditWorker struct {
	auditor Auditor
	log     *logrus.Logger
	jobs    chan *AuditJob
	now     func() time.Time
}

// NewAuditWorker creates an AuditWorker with the given queue capacity.
func NewAuditWorker(auditor Auditor, log *logrus.Logger, queueSize int) *AuditWorker {
	if queueSize <= 0 {
		queueSize = 1000
	}

	return &AuditWorker{
		auditor: auditor,
		log:     log,
		jobs:    make(chan *AuditJob, queueSize),
		now:     time.Now,
	}
}

// Enqueue queues job without blocking. A full queue drops it.
func (w *AuditWorker) Enqueue(job *AuditJob) {
	if job.At.IsZero() {
		job.At = w.now()
	}

	select {
	case w.jobs <- job:
		metrics.AuditQueueDepth.Set(float64(len(w.jobs)))
	default:
		metrics.ErrorsTotal.WithLabelValues("audit_dropped").Inc()
		w.log.WithFields(logrus.Fields{
			"action": job.Action, "entity_id": job.EntityID,
		}).Warn("audit queue full, dropping entry")
	}
}

// Run writes queued jobs until ctx is cancelled, then drains what is left.
func (w *AuditWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case job := <-w.jobs:
			w.process(job)
		}
	}
}

func (w *AuditWorker) drain() {
	for {
		select {
		case job := <-w.jobs:
			w.process(job)
		default:
			return
		}
	}
}

func (w *AuditWorker) process(job *AuditJob) {
	metrics.AuditQueueDepth.Set(float64(len(w.jobs)))

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	err := w.auditor.RecordAudit(ctx, models.AuditEntry{
		Action:     job.Action,
		EntityKind: job.Kind,
		EntityID:   job.EntityID,
		Actor:      job.Actor,
		Detail:     job.Detail,
		CreatedAt:  job.At,
	})
	if err != nil {
		w.log.WithError(err).WithField("action", job.Action).Warn("audit record failed")
	}
}
