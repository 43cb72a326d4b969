// Package scheduler 以 cron 排程執行背景維護工作
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Pruner 是可以清除閒置 session 的儲存 (history.Store)
type Pruner interface {
	PruneIdle(ctx context.Context, ttl time.Duration) (int, error)
}

type CronEngine struct {
	scheduler *cron.Cron
}

// NewCronEngine 使用標準 5 欄位模式，也接受 @hourly 這類描述字
func NewCronEngine() *CronEngine {
	return &CronEngine{
		scheduler: cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
	}
}

func (e *CronEngine) Start() {
	e.scheduler.Start()
	log.Info("[Scheduler] Cron Engine started")
}

// Stop 停止排程並等待執行中的工作結束
func (e *CronEngine) Stop() {
	<-e.scheduler.Stop().Done()
}

// AddTask 封裝添加任務的邏輯
func (e *CronEngine) AddTask(spec string, task func()) (cron.EntryID, error) {
	id, err := e.scheduler.AddFunc(spec, task)
	if err != nil {
		log.Errorf("[Scheduler] 無法加入任務 %q: %v", spec, err)
		return 0, err
	}
	return id, nil
}

// Entries 回傳目前排程中的任務數
func (e *CronEngine) Entries() int {
	return len(e.scheduler.Entries())
}

// SweepTask 回傳清除閒置 session 的工作
func SweepTask(p Pruner, ttl time.Duration) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := p.PruneIdle(ctx, ttl)
		if err != nil {
			log.Errorf("[Scheduler] 清除閒置 session 失敗: %v", err)
			return
		}
		if n > 0 {
			log.Infof("[Scheduler] 已清除 %d 個閒置超過 %s 的 session", n, ttl)
		}
	}
}

// ScheduleSweep ttl <= 0 時不排程
func (e *CronEngine) ScheduleSweep(spec string, p Pruner, ttl time.Duration) error {
	if ttl <= 0 {
		log.Info("[Scheduler] SESSION_TTL 為 0，不清除閒置 session")
		return nil
	}
	_, err := e.AddTask(spec, SweepTask(p, ttl))
	return err
}
