package service

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"mercari/monitor/internal/client"
	"mercari/monitor/internal/config"
	"mercari/monitor/internal/domain"
	"mercari/monitor/internal/domain/task"
	"mercari/monitor/internal/export"
	"mercari/monitor/internal/extract"
	"mercari/monitor/internal/faults"
	"mercari/monitor/internal/filter"
	"mercari/monitor/internal/notify"
	"mercari/monitor/internal/quality"
	"mercari/monitor/internal/queue"
	"mercari/monitor/internal/repository"
	"mercari/monitor/internal/retry"
	"mercari/monitor/internal/state"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const retryStream = queue.StreamPrefix + "KeywordRetryTask"

// Service runs the acquisition pipeline: fetch each keyword's search
// page, resolve listings, filter novelty and image quality, then hand
// survivors to storage, CSV export and notifications. One logical
// worker per sweep; the low request rate is deliberate.
type Service struct {
	cfg          *config.Config
	client       client.MercariClient
	images       client.ImageFetcher
	resolver     *extract.Resolver
	novelty      *filter.Novelty
	classifier   *quality.Classifier
	repository   repository.ProductRepository
	queue        queue.Queue
	stateManager state.StateManager
	notifier     notify.Notifier
	csv          *export.CSVWriter
	session      extract.BrowserSession
}

// Deps bundles the collaborators for NewService.
type Deps struct {
	Client       client.MercariClient
	Images       client.ImageFetcher
	Resolver     *extract.Resolver
	Novelty      *filter.Novelty
	Classifier   *quality.Classifier
	Repository   repository.ProductRepository
	Queue        queue.Queue
	StateManager state.StateManager
	Notifier     notify.Notifier
	CSV          *export.CSVWriter
	Session      extract.BrowserSession
}

func NewService(cfg *config.Config, deps Deps) *Service {
	return &Service{
		cfg:          cfg,
		client:       deps.Client,
		images:       deps.Images,
		resolver:     deps.Resolver,
		novelty:      deps.Novelty,
		classifier:   deps.Classifier,
		repository:   deps.Repository,
		queue:        deps.Queue,
		stateManager: deps.StateManager,
		notifier:     deps.Notifier,
		csv:          deps.CSV,
		session:      deps.Session,
	}
}

// Run drives the monitor loop and the parked-retry worker until the
// context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.monitorLoop(ctx)
	})
	g.Go(func() error {
		return s.retryWorker(ctx)
	})
	g.Go(func() error {
		return s.autoClaimer(ctx)
	})

	return g.Wait()
}

func (s *Service) monitorLoop(ctx context.Context) error {
	log.Infof("📡 Monitoring %d keywords every %v", len(s.cfg.Search.Keywords), s.cfg.Monitor.Interval)

	ticker := time.NewTicker(s.cfg.Monitor.Interval)
	defer ticker.Stop()

	// first sweep immediately, then on the interval
	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info("🛑 Monitor loop stopping")
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep runs one pass over all keywords. A keyword that fails is parked
// for the retry worker; earlier keywords' admitted records are kept.
func (s *Service) sweep(ctx context.Context) {
	checkCount, err := s.stateManager.IncrCheckCount(ctx)
	if err != nil {
		log.Warnf("⚠️ Failed to bump check counter: %v", err)
	}
	log.Infof("--- Check #%d (%s) ---", checkCount, time.Now().Format("15:04:05"))

	// fingerprint index only spans one sweep
	s.novelty.Reset()

	total := 0
	for _, keyword := range s.cfg.Search.Keywords {
		if ctx.Err() != nil {
			return
		}

		admitted, err := s.processKeyword(ctx, keyword, s.cfg.Search.Conditions, 0)
		if err != nil {
			log.Errorf("❌ Keyword %q failed: %v", keyword, err)
			continue
		}
		total += len(admitted)
	}

	if total > 0 {
		log.Infof("🎯 Sweep finished with %d new listings", total)
	} else {
		log.Info("Sweep finished with no new listings")
	}
}

// processKeyword fetches, extracts, filters and stores one keyword's
// results. retryCount > 0 marks an attempt replayed from the parked
// stream.
func (s *Service) processKeyword(ctx context.Context, keyword string, cond domain.SearchConditions, retryCount int) ([]domain.Product, error) {
	stats := &retry.Stats{}
	executor := retry.NewExecutor(s.retryPolicy(), s.recoveryStrategies(), stats)

	html, err := retry.Do(ctx, executor, "fetch "+keyword, func(ctx context.Context) (string, error) {
		return s.client.FetchSearchPage(ctx, keyword, cond)
	})
	if err != nil {
		s.parkKeyword(ctx, keyword, cond, retryCount, err)
		return nil, fmt.Errorf("fetch exhausted for %q: %w", keyword, err)
	}
	if stats.RestartsAdvised > 0 {
		log.Warnf("⚠️ Recovery advised restarting the browser session %d times during %q", stats.RestartsAdvised, keyword)
	}

	products, extractStats, err := s.resolver.Resolve(html, keyword)
	if err != nil {
		return nil, fmt.Errorf("resolve failed for %q: %w", keyword, err)
	}
	if extractStats.Dropped > 0 {
		log.Debugf("%d invalid records dropped for %q", extractStats.Dropped, keyword)
	}
	if len(products) == 0 {
		log.Infof("  %q: no listings found", keyword)
		return nil, nil
	}

	if limit := s.cfg.Monitor.MaxItemsPerCheck; limit > 0 && len(products) > limit {
		products = products[:limit]
	}
	products = s.filterWords(products)

	admitted := s.admitProducts(ctx, products)
	log.Infof("  %q: %d listings → %d admitted", keyword, len(products), len(admitted))

	if len(admitted) == 0 {
		return nil, nil
	}

	for i := range admitted {
		if err := s.repository.SaveProduct(ctx, &admitted[i]); err != nil {
			log.Errorf("❌ Failed to save product %s: %v", admitted[i].ID, err)
		}
	}
	if s.csv != nil {
		if err := s.csv.Append(admitted); err != nil {
			log.Warnf("⚠️ CSV export failed: %v", err)
		}
	}
	if s.notifier != nil {
		s.notifier.NotifyNewProducts(ctx, admitted)
	}
	if err := s.stateManager.RecordKeywordResult(ctx, keyword, len(admitted)); err != nil {
		log.Warnf("⚠️ Failed to record keyword stats: %v", err)
	}

	return admitted, nil
}

// admitProducts runs the novelty filter and, when enabled, the image
// quality classifier over each record in page order.
func (s *Service) admitProducts(ctx context.Context, products []domain.Product) []domain.Product {
	admitted := make([]domain.Product, 0, len(products))

	for i := range products {
		product := &products[i]

		img := s.downloadImage(ctx, product)

		decision, err := s.novelty.Admit(ctx, product, img)
		if err != nil {
			log.Warnf("⚠️ Novelty check failed for %s: %v", product.ID, err)
			continue
		}
		if decision != filter.Admitted {
			log.Debugf("product %s %s", product.ID, decision)
			continue
		}

		if s.classifier != nil {
			score := s.classifier.Score(img)
			if !score.Passed {
				log.Debugf("product %s filtered by quality (ratio %.2f)", product.ID, score.Ratio)
				continue
			}
		}

		admitted = append(admitted, *product)
	}
	return admitted
}

func (s *Service) downloadImage(ctx context.Context, product *domain.Product) (img image.Image) {
	if s.images == nil || product.ImageURL == "" {
		return nil
	}
	if s.classifier == nil && s.cfg.ImageFilter.HammingThreshold <= 0 {
		return nil
	}
	img, err := s.images.Download(ctx, product.ImageURL)
	if err != nil {
		log.Debugf("image unavailable for %s: %v", product.ID, err)
		return nil
	}
	return img
}

// filterWords drops listings whose title hits an NG word and, when OK
// words are configured, keeps only titles containing at least one.
func (s *Service) filterWords(products []domain.Product) []domain.Product {
	ngWords := s.cfg.Monitor.NGWords
	okWords := s.cfg.Monitor.OKWords
	if len(ngWords) == 0 && len(okWords) == 0 {
		return products
	}

	kept := products[:0]
	for _, p := range products {
		title := strings.ToLower(p.Title)

		blocked := false
		for _, ng := range ngWords {
			if ng != "" && strings.Contains(title, strings.ToLower(ng)) {
				blocked = true
				break
			}
		}
		if blocked {
			continue
		}

		if len(okWords) > 0 {
			matched := false
			for _, word := range okWords {
				if word != "" && strings.Contains(title, strings.ToLower(word)) {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}

		kept = append(kept, p)
	}
	return kept
}

func (s *Service) retryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:       s.cfg.Retry.MaxAttempts,
		BaseDelay:         s.cfg.Retry.BaseDelay,
		MaxDelay:          s.cfg.Retry.MaxDelay,
		BackoffMultiplier: s.cfg.Retry.BackoffMultiplier,
	}
}

// recoveryStrategies wires bounded remedial actions for the failure
// kinds a live session can do something about. Without a session the
// executor falls back to its severity defaults.
func (s *Service) recoveryStrategies() map[faults.Kind]retry.StrategyFunc {
	if s.session == nil {
		return nil
	}

	return map[faults.Kind]retry.StrategyFunc{
		faults.KindElementMissing: func(ctx context.Context, failure error, inv retry.Invocation) retry.Outcome {
			// nudge lazy grids into rendering before the next attempt
			if err := s.session.Scroll(ctx, "down", 300); err != nil {
				return retry.Outcome{Attempted: true, RetryRecommended: true, WaitHint: 3 * time.Second}
			}
			return retry.Outcome{Attempted: true, Succeeded: true, RetryRecommended: true, WaitHint: time.Second}
		},
		faults.KindAutomationFault: func(ctx context.Context, failure error, inv retry.Invocation) retry.Outcome {
			return retry.Outcome{Attempted: true, RetryRecommended: false, RestartSession: true}
		},
	}
}

// parkKeyword puts an exhausted keyword sweep on the retry stream so
// the worker can replay it later.
func (s *Service) parkKeyword(ctx context.Context, keyword string, cond domain.SearchConditions, retryCount int, cause error) {
	if s.queue == nil {
		return
	}
	retryTask := &task.KeywordRetryTask{
		Keyword:    keyword,
		Conditions: cond,
		RetryCount: retryCount + 1,
		Error:      cause.Error(),
	}
	if _, err := s.queue.AddTask(ctx, retryTask); err != nil {
		log.Errorf("❌ Failed to park keyword %q for retry: %v", keyword, err)
		return
	}
	log.Warnf("🔄 Parked keyword %q for later retry (attempt %d)", keyword, retryTask.RetryCount)
}

// retryWorker replays parked keyword sweeps from the redis stream.
func (s *Service) retryWorker(ctx context.Context) error {
	group := s.cfg.Redis.ConsumerGroup
	consumer := "retry-worker-1"
	log.Infof("🚀 Starting retry worker as consumer %s", consumer)

	for {
		select {
		case <-ctx.Done():
			log.Info("🛑 Retry worker stopping")
			return ctx.Err()
		default:
			msg, err := s.queue.GetTask(ctx, group, consumer, retryStream)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Errorf("❌ Failed to read retry stream: %v", err)
				continue
			}
			if msg == nil {
				continue
			}
			if err := s.processMessage(ctx, msg); err != nil {
				log.Errorf("❌ Failed to process parked task %s: %v", msg.ID, err)
			}
		}
	}
}

// autoClaimer periodically reclaims parked tasks abandoned by a dead
// consumer.
func (s *Service) autoClaimer(ctx context.Context) error {
	minIdle := time.Duration(s.cfg.Redis.MinIdleTime) * time.Second
	ticker := time.NewTicker(minIdle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			consumer := fmt.Sprintf("autoclaimer-%d", time.Now().UnixNano())
			claimed, err := s.queue.AutoClaim(ctx, s.cfg.Redis.ConsumerGroup, consumer, retryStream, minIdle)
			if err != nil {
				log.Errorf("❌ Failed to auto-claim parked tasks: %v", err)
				continue
			}
			for i := range claimed {
				if err := s.processMessage(ctx, &claimed[i]); err != nil {
					log.Errorf("❌ Failed to process claimed task %s: %v", claimed[i].ID, err)
				}
			}
		}
	}
}

func (s *Service) processMessage(ctx context.Context, msg *redis.XMessage) error {
	taskData, ok := msg.Values["task_data"].(string)
	if !ok {
		return fmt.Errorf("invalid task data in message %s", msg.ID)
	}

	retryTask, err := task.UnmarshalTask[*task.KeywordRetryTask]([]byte(taskData))
	if err != nil {
		return fmt.Errorf("failed to unmarshal keyword retry task: %w", err)
	}

	log.Infof("🔄 Replaying keyword %q (attempt %d)", retryTask.Keyword, retryTask.RetryCount)
	if _, err := s.processKeyword(ctx, retryTask.Keyword, retryTask.Conditions, retryTask.RetryCount); err != nil {
		// processKeyword already re-parked it with a bumped count
		log.Warnf("🔄 Keyword %q failed again: %v", retryTask.Keyword, err)
	}

	if err := s.queue.AckTask(ctx, retryStream, s.cfg.Redis.ConsumerGroup, msg.ID); err != nil {
		return fmt.Errorf("failed to ack message %s: %w", msg.ID, err)
	}
	return nil
}
