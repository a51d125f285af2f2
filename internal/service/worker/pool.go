package worker

import (
	"context"
	"log"
	"sync"
)

// Pool 固定大小工作池，导入探测与备份运行共用
type Pool struct {
	tasks  chan func(ctx context.Context)
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewPool(size, queueDepth int) *Pool {
	if size <= 0 {
		size = 1
	}
	if queueDepth <= 0 {
		queueDepth = size * 8
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		tasks:  make(chan func(ctx context.Context), queueDepth),
		ctx:    ctx,
		cancel: cancel,
	}

	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.run()
	}

	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			task(p.ctx)
		}
	}
}

// Submit 入队一个任务；池已停止或队列满时返回false，调用方自行处理
func (p *Pool) Submit(task func(ctx context.Context)) bool {
	select {
	case <-p.ctx.Done():
		return false
	default:
	}

	select {
	case p.tasks <- task:
		return true
	default:
		log.Println("[POOL] Task queue full, rejecting task")
		return false
	}
}

func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
}
