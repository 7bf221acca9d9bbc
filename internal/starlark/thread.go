package starlark

import (
	"sync"

	"go.starlark.net/starlark"
)

// ThreadPool recycles Starlark threads across evaluations.
type ThreadPool struct {
	mu      sync.Mutex
	threads []*starlark.Thread
	maxSize int
}

// NewThreadPool creates a new thread pool with the specified maximum size.
func NewThreadPool(maxSize int) *ThreadPool {
	if maxSize <= 0 {
		maxSize = 10 // default pool size
	}
	return &ThreadPool{
		threads: make([]*starlark.Thread, 0, maxSize),
		maxSize: maxSize,
	}
}

// Get retrieves a thread from the pool or creates a new one.
// The thread name is used for error reporting.
func (p *ThreadPool) Get(name string) *starlark.Thread {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.threads) > 0 {
		thread := p.threads[len(p.threads)-1]
		p.threads = p.threads[:len(p.threads)-1]
		thread.Name = name
		return thread
	}

	return &starlark.Thread{
		Name:  name,
		Print: func(*starlark.Thread, string) {},
	}
}

// Put returns a thread to the pool for reuse.
// If the pool is full, the thread is discarded.
func (p *ThreadPool) Put(thread *starlark.Thread) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.threads) < p.maxSize {
		thread.Name = ""
		p.threads = append(p.threads, thread)
	}
}

// Size returns the current number of threads in the pool.
func (p *ThreadPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.threads)
}

// EvalResult is the outcome of evaluating an expression for one var set.
type EvalResult struct {
	Value starlark.Value
	Error error
}

// ParallelExecutor evaluates one expression over many var sets with a
// bounded number of goroutines.
type ParallelExecutor struct {
	expr        *Expression
	pool        *ThreadPool
	concurrency int
}

// NewParallelExecutor creates an executor running at most maxConcurrency
// evaluations at once.
func NewParallelExecutor(expr *Expression, maxConcurrency int) *ParallelExecutor {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &ParallelExecutor{
		expr:        expr,
		pool:        NewThreadPool(maxConcurrency),
		concurrency: maxConcurrency,
	}
}

// Execute evaluates the expression for every var set. Results keep the
// order of the input.
func (e *ParallelExecutor) Execute(varSets []starlark.StringDict) []EvalResult {
	results := make([]EvalResult, len(varSets))
	sem := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup

	for i, vars := range varSets {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			thread := e.pool.Get(e.expr.name)
			defer e.pool.Put(thread)

			v, err := e.expr.eval(thread, vars)
			results[i] = EvalResult{Value: v, Error: err}
		}()
	}

	wg.Wait()
	return results
}
