package retention

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/LinHaoYu/ContractLens/app/repository"
)

const (
	defaultInterval  = time.Hour
	defaultBatchSize = 100
	sweepTimeout     = 5 * time.Minute
)

// PayloadDeleter removes one stored payload object.
type PayloadDeleter interface {
	Delete(ctx context.Context, objectKey string) error
}

// Sweeper periodically deletes stored payloads whose analysis record passed
// its retention window, then blanks the refs on the record. The audit row
// itself is kept. Runs entirely off the request path.
type Sweeper struct {
	analyses repository.AnalysisRepository
	store    PayloadDeleter

	interval  time.Duration
	batchSize int

	stop chan struct{}
	done chan struct{}
}

// NewSweeper creates a sweeper. store may be nil when the payload store is
// disabled; refs are then cleared without object deletion.
func NewSweeper(analyses repository.AnalysisRepository, store PayloadDeleter) *Sweeper {
	return &Sweeper{
		analyses:  analyses,
		store:     store,
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the background loop. One sweep runs immediately.
func (s *Sweeper) Start() {
	go func() {
		defer close(s.done)
		log.Infof("[Retention] Sweeper started (interval=%s)", s.interval)

		s.sweep()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stop:
				log.Info("[Retention] Sweeper stopped")
				return
			}
		}
	}()
}

// Stop signals the loop to exit and waits for it.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	cleaned := 0
	for {
		records, err := s.analyses.ListExpiredWithPayloads(ctx, time.Now(), s.batchSize)
		if err != nil {
			log.Errorf("[Retention] Listing expired records failed: %v", err)
			return
		}
		if len(records) == 0 {
			break
		}

		for _, record := range records {
			if s.store != nil {
				for _, ref := range []string{record.InputRef, record.OutputRef} {
					if ref == "" {
						continue
					}
					if err := s.store.Delete(ctx, ref); err != nil {
						log.Warnf("[Retention] Failed to delete payload %s: %v", ref, err)
					}
				}
			}
			if err := s.analyses.ClearPayloadRefs(ctx, record.ID); err != nil {
				log.Errorf("[Retention] Failed to clear payload refs for record %d: %v", record.ID, err)
				return
			}
			cleaned++
		}
		if len(records) < s.batchSize {
			break
		}
	}

	if cleaned > 0 {
		log.Infof("[Retention] Cleaned payloads for %d expired records", cleaned)
	}
}
