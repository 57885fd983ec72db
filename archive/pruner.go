package archive

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner 按 cron 表达式定期清理 DirStore
type Pruner struct {
	store *DirStore
	ttl   time.Duration
	cron  *cron.Cron
}

// NewPruner schedule 为标准 5 段 cron 表达式或 @every 1h 形式
func NewPruner(store *DirStore, ttl time.Duration, schedule string) (*Pruner, error) {
	p := &Pruner{
		store: store,
		ttl:   ttl,
		cron:  cron.New(),
	}
	if _, err := p.cron.AddFunc(schedule, p.RunOnce); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}
	return p, nil
}

func (p *Pruner) RunOnce() {
	n, err := p.store.Prune(p.ttl, time.Now())
	if err != nil {
		slog.Warn("archive prune failed", "dir", p.store.Dir, "error", err)
		return
	}
	if n > 0 {
		slog.Info("archive pruned", "dir", p.store.Dir, "removed", n)
	}
}

func (p *Pruner) Start() {
	p.cron.Start()
}

// Stop 停止调度并等待正在执行的清理结束
func (p *Pruner) Stop() {
	<-p.cron.Stop().Done()
}
