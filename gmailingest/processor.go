package gmailingest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	defaultTickInterval = 3 * time.Second
	defaultLockTimeout  = 5 * time.Minute
)

// ReceiptJobProcessor polls the job table and feeds claimed jobs to the
// pipeline, one at a time. Multiple worker processes may run the same loop;
// they are kept disjoint by the conditional update in JobStore.Claim, not by
// anything in memory.
type ReceiptJobProcessor struct {
	Jobs        JobStore
	Pipeline    PipelineRunner
	Logger      *logrus.Logger
	WorkerID    string
	Interval    time.Duration
	LockTimeout time.Duration

	busy atomic.Bool
}

func NewReceiptJobProcessor(jobs JobStore, pipeline PipelineRunner, workerId string, logger *logrus.Logger) *ReceiptJobProcessor {
	return &ReceiptJobProcessor{
		Jobs:        jobs,
		Pipeline:    pipeline,
		Logger:      logger,
		WorkerID:    workerId,
		Interval:    defaultTickInterval,
		LockTimeout: defaultLockTimeout,
	}
}

// NewWorkerID returns a process-unique worker identity. Computed once at
// startup and passed into the processor explicitly.
func NewWorkerID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("worker-%d-%s", os.Getpid(), suffix)
}

func (p *ReceiptJobProcessor) Run(ctx context.Context) {
	if p == nil || p.Jobs == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		p.Tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.Interval):
		}
	}
}

// Tick claims and processes at most one job. The busy flag only skips
// overlapping ticks inside this process; it plays no part in cross-process
// exclusion.
func (p *ReceiptJobProcessor) Tick(ctx context.Context) {
	if !p.busy.CompareAndSwap(false, true) {
		return
	}
	defer p.busy.Store(false)

	now := time.Now().UTC()

	job, err := p.Jobs.NextEligible(ctx, now, p.LockTimeout)
	if err != nil {
		p.Logger.WithFields(logrus.Fields{
			"field":     "ReceiptJobProcessor",
			"worker_id": p.WorkerID,
		}).Error("job select failed: " + err.Error())
		return
	}
	if job == nil {
		return
	}

	claimed, err := p.Jobs.Claim(ctx, job, p.WorkerID, now)
	if err != nil {
		p.Logger.WithFields(logrus.Fields{
			"field":     "ReceiptJobProcessor",
			"worker_id": p.WorkerID,
			"job_id":    job.ID,
		}).Error("job claim failed: " + err.Error())
		return
	}
	if !claimed {
		// Another worker won the row. Not an error.
		return
	}

	p.Pipeline.Process(ctx, job)
}
