package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/suryaprakashreddyadapa/photo-webapp/internal/database"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/observability"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/scanner"
)

// claimOrder lists job types by dispatch priority; scans run before
// enrichment so freshly discovered media reaches the pipeline sooner.
var claimOrder = []database.JobType{
	database.JobTypeScan,
	database.JobTypeEnrich,
	database.JobTypeMetadata,
	database.JobTypeThumbnail,
	database.JobTypeFaces,
	database.JobTypeEmbedding,
	database.JobTypeObjects,
}

// Dispatcher polls the job store and runs claimed jobs. Claims are exclusive
// in the store, so several dispatcher processes can share one database.
type Dispatcher struct {
	store    *database.Store
	scanner  *scanner.Scanner
	pipeline *Pipeline
	interval time.Duration
	metrics  *observability.Metrics
}

// NewDispatcher creates a dispatcher polling at the given interval.
func NewDispatcher(store *database.Store, sc *scanner.Scanner, pipe *Pipeline, interval time.Duration, metrics *observability.Metrics) *Dispatcher {
	if interval <= 0 {
		interval = time.Second
	}
	return &Dispatcher{store: store, scanner: sc, pipeline: pipe, interval: interval, metrics: metrics}
}

// Run polls until the context ends. Each tick drains all claimable jobs.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Drain(ctx)
		}
	}
}

// Drain claims and runs pending jobs until nothing is left to claim.
func (d *Dispatcher) Drain(ctx context.Context) {
	for {
		claimed := false
		for _, jobType := range claimOrder {
			job, err := d.store.Jobs.ClaimNext(ctx, jobType)
			if err != nil {
				log.Printf("dispatcher: claim %s: %v", jobType, err)
				continue
			}
			if job == nil {
				continue
			}
			claimed = true
			d.runJob(ctx, job)
		}
		if !claimed {
			return
		}
	}
}

func (d *Dispatcher) runJob(ctx context.Context, job *database.Job) {
	if d.metrics != nil {
		d.metrics.JobsStarted.WithLabelValues(string(job.Type)).Inc()
	}
	log.Printf("dispatcher: running %s job %s (scope %s)", job.Type, job.ID, job.Scope)

	var err error
	if job.Type == database.JobTypeScan {
		err = d.scanner.Run(ctx, job)
	} else {
		err = d.pipeline.Run(ctx, job)
	}
	if err != nil {
		log.Printf("dispatcher: job %s: %v", job.ID, err)
	}

	if d.metrics != nil {
		final, err := d.store.Jobs.Get(ctx, job.ID)
		if err == nil {
			d.metrics.JobsFinished.WithLabelValues(string(job.Type), string(final.Status)).Inc()
		}
	}
}
