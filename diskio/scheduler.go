package diskio

import "log/slog"

// Request is a single asynchronous page read or write. Completion is
// signaled by sending exactly one bool on Done: true on success, false on
// I/O failure. Completion never panics.
type Request struct {
	IsWrite bool
	Data    []byte
	PageID  PageID
	Done    chan bool
}

// Scheduler serializes page requests onto a single background worker so
// that, for two requests A and B submitted in that order against the same
// page, A completes before B starts — the ordering guarantee is achieved
// for free by draining one FIFO queue with one worker.
type Scheduler struct {
	disk     DiskManager
	requests chan *Request
	stopped  chan struct{}
}

// NewScheduler starts the worker goroutine backing disk.
func NewScheduler(disk DiskManager) *Scheduler {
	s := &Scheduler{
		disk:     disk,
		requests: make(chan *Request, 256),
		stopped:  make(chan struct{}),
	}
	go s.run()
	return s
}

// Schedule enqueues req. The caller reads req.Done for the completion
// flag; Schedule itself never blocks on I/O.
func (s *Scheduler) Schedule(req *Request) {
	s.requests <- req
}

func (s *Scheduler) run() {
	defer close(s.stopped)
	for req := range s.requests {
		s.process(req)
	}
}

func (s *Scheduler) process(req *Request) {
	if req.IsWrite {
		err := s.disk.WritePage(req.PageID, req.Data)
		if err != nil {
			slog.Error("scheduled write failed", "pageId", req.PageID, "error", err.Error(), "function", "process", "at", "Scheduler")
		}
		req.Done <- err == nil
		return
	}

	data, err := s.disk.ReadPage(req.PageID)
	if err != nil {
		slog.Error("scheduled read failed", "pageId", req.PageID, "error", err.Error(), "function", "process", "at", "Scheduler")
		req.Done <- false
		return
	}
	copy(req.Data, data)
	req.Done <- true
}

// Shutdown stops the worker after draining requests already enqueued.
func (s *Scheduler) Shutdown() {
	close(s.requests)
	<-s.stopped
}
