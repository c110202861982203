package indexer

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mina-witness/indexer/internal/blockfile"
	"github.com/mina-witness/indexer/internal/config"
	"github.com/mina-witness/indexer/internal/obslog"
)

// Pipeline fans a stream of block-file paths out to a pool of parser
// workers and funnels the parsed blocks into the Machine's single
// ingestion loop. The Machine itself is never touched concurrently:
// only the goroutine running Run's final stage calls Ingest.
type Pipeline struct {
	cfg config.Config
}

// NewPipeline builds a Pipeline from cfg's worker-count and channel
// capacity settings.
func NewPipeline(cfg config.Config) *Pipeline {
	return &Pipeline{cfg: cfg}
}

// Run drains paths until it is closed or ctx is cancelled, parsing each
// path with cfg.ParserWorkers concurrent goroutines and ingesting the
// results one at a time through m. It returns once paths is closed and
// every in-flight block has been ingested, or ctx's grace period for a
// cancellation has elapsed.
func (p *Pipeline) Run(ctx context.Context, paths <-chan blockfile.Path, m *Machine) error {
	log := obslog.For("pipeline")
	blocks := make(chan *blockfile.Block, p.cfg.BlockChannelCapacity)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.ParserWorkers; i++ {
		g.Go(func() error {
			return parseWorker(gctx, paths, blocks, log)
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
		close(blocks)
	}()

	ingestErr := ingestLoop(ctx, blocks, m, p.cfg.ShutdownGracePeriod, log)
	if err := <-done; err != nil {
		return err
	}
	return ingestErr
}

// parseWorker reads paths, opens and parses each one, and forwards
// successfully parsed blocks to out. A parse failure is logged and
// skipped rather than aborting the whole pipeline: one malformed file
// should not stall every other block behind it.
func parseWorker(ctx context.Context, paths <-chan blockfile.Path, out chan<- *blockfile.Block, log interface {
	Warnw(string, ...interface{})
}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case path, ok := <-paths:
			if !ok {
				return nil
			}
			blk, err := path.Open()
			if err != nil {
				log.Warnw("skipping unparseable block file", "path", path.FullPath, "error", err)
				continue
			}
			select {
			case out <- blk:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// ingestLoop owns m exclusively and is the only goroutine allowed to
// call m.Ingest. On context cancellation it keeps draining blocks
// already in flight for up to gracePeriod before giving up, so parser
// workers that already committed to sending do not block forever.
func ingestLoop(ctx context.Context, blocks <-chan *blockfile.Block, m *Machine, gracePeriod time.Duration, log interface {
	Errorw(string, ...interface{})
}) error {
	for {
		select {
		case blk, ok := <-blocks:
			if !ok {
				return nil
			}
			if err := m.Ingest(blk); err != nil {
				log.Errorw("ingest failed", "state_hash", blk.StateHash, "error", err)
				return err
			}
		case <-ctx.Done():
			return drainWithGrace(blocks, m, gracePeriod, log)
		}
	}
}

func drainWithGrace(blocks <-chan *blockfile.Block, m *Machine, gracePeriod time.Duration, log interface {
	Errorw(string, ...interface{})
}) error {
	deadline := time.NewTimer(gracePeriod)
	defer deadline.Stop()
	for {
		select {
		case blk, ok := <-blocks:
			if !ok {
				return nil
			}
			if err := m.Ingest(blk); err != nil {
				log.Errorw("ingest failed during shutdown drain", "state_hash", blk.StateHash, "error", err)
				return err
			}
		case <-deadline.C:
			return context.DeadlineExceeded
		}
	}
}
