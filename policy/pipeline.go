package policy

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"chatguard/config"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	ActionAllow = "allow"
	ActionDeny  = "deny"

	internalErrorKey = "chat.deny.internal-error"
	notifyIdleTTL    = 10 * time.Minute
)

// Request is one message to moderate.
type Request struct {
	ID      string
	Sender  Sender
	Message string
	Bypass  ReasonSet
}

// Response is the pipeline's verdict on a Request.
type Response struct {
	ID         string `json:"id"`
	Action     string `json:"action"`
	Reason     Reason `json:"reason,omitempty"`
	MessageKey string `json:"message_key,omitempty"`
	Highlight  string `json:"highlight,omitempty"`
	// Notify tells the caller whether the sender should be told about the
	// denial. It is false when the sender was warned too recently.
	Notify bool `json:"notify,omitempty"`
}

// RejectionHandler is told about every denied message.
type RejectionHandler interface {
	HandleRejection(ctx context.Context, sender Sender, d Decision)
}

// MetricsCollector records evaluations. An empty reason means allowed.
type MetricsCollector interface {
	ObserveDecision(reason string, elapsed time.Duration)
}

// Pipeline runs the chain for each request and acts on the outcome.
type Pipeline struct {
	chain    *Chain
	handlers []RejectionHandler
	metrics  MetricsCollector

	mu              sync.RWMutex
	rejectionLevels map[string]config.LogLevel
	format          config.FormatConfig
	notify          *notifier
}

func NewPipeline(cfg *config.Config, chain *Chain, handlers []RejectionHandler, metrics MetricsCollector) *Pipeline {
	p := &Pipeline{chain: chain, handlers: handlers, metrics: metrics}
	p.apply(cfg)
	return p
}

func (p *Pipeline) apply(cfg *config.Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rejectionLevels = cfg.Log.RejectionLevels
	p.format = cfg.Format
	p.notify = newNotifier(cfg.Notify)
}

func (p *Pipeline) Name() string { return "Pipeline" }

func (p *Pipeline) UpdateConfig(cfg *config.Config) error {
	p.apply(cfg)
	return nil
}

// Process evaluates req. In dry-run mode denials are logged but the
// message is allowed and no rejection handler runs.
func (p *Pipeline) Process(ctx context.Context, req Request, dryRun bool) (resp Response) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic recovered in moderation pipeline",
				"panic", r, "request_id", req.ID, "sender_id", req.Sender.ID, "stack", string(debug.Stack()),
			)
			resp = Response{ID: req.ID, Action: ActionDeny, MessageKey: internalErrorKey}
		}
	}()

	d := p.chain.Evaluate(req.Sender, req.Message, req.Bypass)
	if p.metrics != nil {
		reason := ""
		if !d.Allowed() {
			reason = d.Reason.ID()
		}
		p.metrics.ObserveDecision(reason, time.Since(start))
	}

	if d.Allowed() {
		slog.Debug("Message allowed", "request_id", req.ID, "sender_id", req.Sender.ID)
		return Response{ID: req.ID, Action: ActionAllow}
	}

	p.mu.RLock()
	levels, format, notify := p.rejectionLevels, p.format, p.notify
	p.mu.RUnlock()

	logAttrs := []slog.Attr{
		slog.String("request_id", req.ID),
		slog.String("sender_id", req.Sender.ID),
		slog.String("sender_name", req.Sender.Name),
		slog.String("reason", d.Reason.ID()),
		slog.String("handler", d.Reason.Handler()),
	}
	if d.Trigger != "" {
		logAttrs = append(logAttrs, slog.String("trigger", d.Trigger))
	}
	if d.Pattern != "" {
		logAttrs = append(logAttrs, slog.String("pattern", d.Pattern))
	}
	logLevel := slog.LevelWarn
	if level, ok := levels[d.Reason.ID()]; ok {
		logLevel = level.ToSlogLevel()
	}
	slog.LogAttrs(ctx, logLevel, "Message denied", logAttrs...)

	if dryRun {
		slog.LogAttrs(ctx, slog.LevelInfo, "Dry-run: message would be denied", logAttrs...)
		return Response{ID: req.ID, Action: ActionAllow}
	}

	for _, h := range p.handlers {
		h.HandleRejection(ctx, req.Sender, d)
	}

	resp = Response{
		ID:         req.ID,
		Action:     ActionDeny,
		Reason:     d.Reason,
		MessageKey: d.Reason.MessageKey(),
		Notify:     notify.allow(req.Sender.ID),
	}
	if d.End > d.Start {
		resp.Highlight = d.Highlight(req.Message, format.HighlightOpen, format.HighlightClose)
	}
	return resp
}

// notifier limits how often one sender is told about denials.
type notifier struct {
	limit    rate.Limit
	burst    int
	limiters *lru.LRU[string, *rate.Limiter]
	mu       sync.Mutex
}

func newNotifier(cfg config.NotifyConfig) *notifier {
	if cfg.Rate <= 0 {
		return nil
	}
	return &notifier{
		limit:    rate.Limit(cfg.Rate),
		burst:    cfg.Burst,
		limiters: lru.NewLRU[string, *rate.Limiter](max(cfg.CacheSize, 1), nil, notifyIdleTTL),
	}
}

// allow reports whether senderID may be notified now. A nil notifier
// always allows.
func (n *notifier) allow(senderID string) bool {
	if n == nil {
		return true
	}
	n.mu.Lock()
	limiter, ok := n.limiters.Get(senderID)
	if !ok {
		limiter = rate.NewLimiter(n.limit, n.burst)
		n.limiters.Add(senderID, limiter)
	}
	n.mu.Unlock()
	return limiter.Allow()
}
