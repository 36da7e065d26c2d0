package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Pool 归因执行 Worker 池
type Pool struct {
	workers      int
	taskChan     chan *Task
	orchestrator *Orchestrator
	logger       *logrus.Logger
	wg           sync.WaitGroup
}

// Task 一次归因执行任务
type Task struct {
	RunID    string
	Crawl    string
	resultCh chan error // 用于同步等待任务完成
}

// NewPool 创建 Worker 池
func NewPool(workers, queueSize int, orchestrator *Orchestrator, logger *logrus.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 16
	}
	return &Pool{
		workers:      workers,
		taskChan:     make(chan *Task, queueSize),
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// Start 启动 Worker 池
func (p *Pool) Start(ctx context.Context) {
	p.logger.WithField("workers", p.workers).Info("Starting worker pool")

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// worker Worker 协程
func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	p.logger.WithField("worker_id", id).Info("Worker started")

	for {
		select {
		case <-ctx.Done():
			p.logger.WithField("worker_id", id).Info("Worker shutting down")
			return

		case task, ok := <-p.taskChan:
			if !ok {
				p.logger.WithField("worker_id", id).Info("Task channel closed, worker exiting")
				return
			}

			p.logger.WithFields(logrus.Fields{
				"worker_id": id,
				"run_id":    task.RunID,
				"crawl":     task.Crawl,
			}).Info("Processing attribution run")

			err := p.orchestrator.ExecuteRun(ctx, task.RunID, task.Crawl)
			if err != nil {
				p.logger.WithError(err).WithFields(logrus.Fields{
					"worker_id": id,
					"run_id":    task.RunID,
				}).Error("Attribution run failed")
			} else {
				p.logger.WithFields(logrus.Fields{
					"worker_id": id,
					"run_id":    task.RunID,
				}).Info("Attribution run completed")
			}

			if task.resultCh != nil {
				task.resultCh <- err
				close(task.resultCh)
			}
		}
	}
}

// Submit 提交任务（异步，不等待结果）
func (p *Pool) Submit(task *Task) error {
	select {
	case p.taskChan <- task:
		p.logger.WithField("run_id", task.RunID).Debug("Run submitted to pool")
		return nil
	default:
		return fmt.Errorf("run queue is full")
	}
}

// SubmitAndWait 提交任务并等待完成
func (p *Pool) SubmitAndWait(ctx context.Context, task *Task) error {
	task.resultCh = make(chan error, 1)

	select {
	case p.taskChan <- task:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-task.resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop 停止 Worker 池
func (p *Pool) Stop() {
	p.logger.Info("Stopping worker pool")
	close(p.taskChan)
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

// Size 返回池中 worker 数量
func (p *Pool) Size() int {
	return p.workers
}

// QueueSize 获取队列中等待的任务数
func (p *Pool) QueueSize() int {
	return len(p.taskChan)
}
