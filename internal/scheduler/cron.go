package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Checker is satisfied by *Gate.
type Checker interface {
	Check(ctx context.Context) Response
}

// Trigger fires the gate on a cron spec such as "@every 1h".
type Trigger struct {
	cron   *cron.Cron
	spec   string
	gate   Checker
	logger *zap.Logger
}

// NewTrigger validates spec and builds a stopped Trigger.
func NewTrigger(spec string, gate Checker, logger *zap.Logger) (*Trigger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", spec, err)
	}
	l := logger.Named("cron")
	return &Trigger{
		cron:   cron.New(cron.WithLogger(cronLogger{l.Sugar()}), cron.WithChain(cron.SkipIfStillRunning(cronLogger{l.Sugar()}))),
		spec:   spec,
		gate:   gate,
		logger: l,
	}, nil
}

// Start registers the check and starts the cron loop. ctx bounds every triggered crawl.
func (t *Trigger) Start(ctx context.Context) error {
	_, err := t.cron.AddFunc(t.spec, func() {
		resp := t.gate.Check(ctx)
		if !resp.Success {
			t.logger.Warn("scheduled check failed", zap.String("error", resp.Error))
			return
		}
		t.logger.Info("scheduled check done", zap.Bool("ran", resp.Ran), zap.String("message", resp.Message))
	})
	if err != nil {
		return fmt.Errorf("register cron job: %w", err)
	}
	t.cron.Start()
	t.logger.Info("cron started", zap.String("spec", t.spec))
	return nil
}

// Stop halts the cron loop and waits for a running check to finish.
func (t *Trigger) Stop() {
	<-t.cron.Stop().Done()
	t.logger.Info("cron stopped")
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
