package disk

import "sync"

// Request is a single read or write dispatched to the Scheduler.
type Request struct {
	PageID int64
	Data   []byte
	Write  bool
	RespCh chan Response
}

// Response is delivered on a Request's RespCh once the backing Manager
// call completes.
type Response struct {
	Success bool
	Data    []byte
	Err     error
}

// NewReadRequest builds a read Request with a fresh response channel.
func NewReadRequest(pageID int64) Request {
	return Request{PageID: pageID, RespCh: make(chan Response, 1)}
}

// NewWriteRequest builds a write Request with a fresh response channel.
func NewWriteRequest(pageID int64, data []byte) Request {
	return Request{PageID: pageID, Data: data, Write: true, RespCh: make(chan Response, 1)}
}

// Scheduler dispatches disk requests onto one goroutine per page id
// currently being serviced, so concurrent accesses to different pages
// don't serialize behind each other while a single page's requests are
// still processed in submission order.
type Scheduler struct {
	reqCh   chan Request
	manager *Manager

	mu    sync.Mutex
	queue map[int64]chan Request
}

// NewScheduler starts the dispatcher goroutine and returns a Scheduler
// bound to manager.
func NewScheduler(manager *Manager) *Scheduler {
	s := &Scheduler{
		reqCh:   make(chan Request, 256),
		manager: manager,
		queue:   make(map[int64]chan Request),
	}

	go s.dispatch()
	return s
}

// Schedule enqueues req and returns the channel its Response will arrive
// on. Non-blocking as long as the dispatcher's request channel has room.
func (s *Scheduler) Schedule(req Request) <-chan Response {
	s.reqCh <- req
	return req.RespCh
}

// Manager returns the disk manager this scheduler dispatches to, for
// callers that need direct access to page allocation.
func (s *Scheduler) Manager() *Manager {
	return s.manager
}

func (s *Scheduler) dispatch() {
	for req := range s.reqCh {
		s.mu.Lock()
		pageQueue, exists := s.queue[req.PageID]
		if !exists {
			pageQueue = make(chan Request, 16)
			s.queue[req.PageID] = pageQueue
		}
		s.mu.Unlock()

		pageQueue <- req

		if !exists {
			go s.pageWorker(req.PageID, pageQueue)
		}
	}
}

func (s *Scheduler) pageWorker(pageID int64, queue chan Request) {
	for {
		select {
		case req := <-queue:
			s.handle(req)
		default:
			s.mu.Lock()
			delete(s.queue, pageID)
			s.mu.Unlock()
			return
		}
	}
}

func (s *Scheduler) handle(req Request) {
	if req.Write {
		err := s.manager.WritePage(req.PageID, req.Data)
		req.RespCh <- Response{Success: err == nil, Err: err}
		return
	}

	data, err := s.manager.ReadPage(req.PageID)
	req.RespCh <- Response{Success: err == nil, Data: data, Err: err}
}
