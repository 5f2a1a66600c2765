// Package router implements §4.3 InboundRouter: skill/priority queues,
// multiple routing strategies, overflow and abandonment for inbound calls.
// It does not handle agent wrap-up; agent status after a call is left to
// the AgentLocator.
package router

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rapidaai/dialer/internal/dialererr"
	"github.com/rapidaai/dialer/internal/domain"
	"github.com/rapidaai/dialer/internal/logging"
)

// Strategy is one of the §4.3 queue dispatch strategies.
type Strategy string

const (
	StrategyFIFO          Strategy = "fifo"
	StrategyLIFO          Strategy = "lifo"
	StrategyPriority      Strategy = "priority"
	StrategySkills        Strategy = "skills"
	StrategyRoundRobin    Strategy = "round_robin"
	StrategyLeastOccupied Strategy = "least_occupied"
)

// QueueConfig defines one named queue's dispatch behaviour.
type QueueConfig struct {
	Name           string
	Strategy       Strategy
	PriorityQueue  bool
	SkillsRequired []string
	OverflowQueue  string
	MaxWait        time.Duration
}

// AgentLocator finds agents eligible to take a call from a queue.
type AgentLocator interface {
	AvailableAgents(queue string, requiredSkills []string) []*domain.AgentPresence
	Assign(ctx context.Context, agentID string, call domain.QueuedCall) error
}

// EventPublisher is the narrow surface InboundRouter needs from the event
// bus, kept separate so this package doesn't import eventbus directly.
type EventPublisher interface {
	Publish(topic string, payload interface{})
}

// Router owns every named queue's pending-call list and dispatches them
// to agents as they become available.
type Router struct {
	agents    AgentLocator
	publisher EventPublisher
	logger    logging.Logger

	mu      sync.Mutex
	queues  map[string]QueueConfig
	pending map[string][]domain.QueuedCall
	stats   map[string]*queueStats
}

type queueStats struct {
	TotalEnqueued  int
	TotalDispatched int
	TotalAbandoned int
	TotalOverflow  int
}

func New(agents AgentLocator, publisher EventPublisher, logger logging.Logger) *Router {
	return &Router{
		agents:    agents,
		publisher: publisher,
		logger:    logger,
		queues:    make(map[string]QueueConfig),
		pending:   make(map[string][]domain.QueuedCall),
		stats:     make(map[string]*queueStats),
	}
}

// AddQueue registers or replaces a queue's configuration.
func (r *Router) AddQueue(cfg QueueConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queues[cfg.Name] = cfg
	if _, ok := r.pending[cfg.Name]; !ok {
		r.pending[cfg.Name] = nil
	}
	if _, ok := r.stats[cfg.Name]; !ok {
		r.stats[cfg.Name] = &queueStats{}
	}
}

// Enqueue places an inbound call in a queue, applying overflow if no
// agent is free and the queue is configured to spill over.
func (r *Router) Enqueue(ctx context.Context, call domain.QueuedCall) error {
	r.mu.Lock()
	cfg, ok := r.queues[call.Queue]
	if !ok {
		r.mu.Unlock()
		return dialererr.New(dialererr.KindNotFound, "router.enqueue", errQueueNotFound(call.Queue))
	}

	if len(r.agents.AvailableAgents(call.Queue, call.RequiredSkills)) == 0 && cfg.OverflowQueue != "" {
		if overflowCfg, ok := r.queues[cfg.OverflowQueue]; ok {
			call.Queue = overflowCfg.Name
			r.stats[cfg.Name].TotalOverflow++
			cfg = overflowCfg
		}
	}

	r.insertLocked(cfg, call)
	r.stats[cfg.Name].TotalEnqueued++
	r.mu.Unlock()

	if r.publisher != nil {
		r.publisher.Publish("queue/"+call.Queue, call)
	}
	return nil
}

func (r *Router) insertLocked(cfg QueueConfig, call domain.QueuedCall) {
	q := r.pending[cfg.Name]
	if cfg.PriorityQueue {
		idx := sort.Search(len(q), func(i int) bool { return q[i].Priority < call.Priority })
		q = append(q, domain.QueuedCall{})
		copy(q[idx+1:], q[idx:])
		q[idx] = call
	} else if cfg.Strategy == StrategyLIFO {
		q = append([]domain.QueuedCall{call}, q...)
	} else {
		q = append(q, call)
	}
	r.pending[cfg.Name] = q
}

func errQueueNotFound(name string) error {
	return &queueNotFoundError{name: name}
}

type queueNotFoundError struct{ name string }

func (e *queueNotFoundError) Error() string { return "queue not found: " + e.name }

// Dispatch attempts to assign the next eligible call in queueName to an
// available agent, per the queue's configured strategy. Returns false if
// no call or no agent was available.
func (r *Router) Dispatch(ctx context.Context, queueName string) (bool, error) {
	r.mu.Lock()
	cfg, ok := r.queues[queueName]
	if !ok {
		r.mu.Unlock()
		return false, dialererr.New(dialererr.KindNotFound, "router.dispatch", errQueueNotFound(queueName))
	}
	q := r.pending[queueName]
	if len(q) == 0 {
		r.mu.Unlock()
		return false, nil
	}

	agents := r.agents.AvailableAgents(queueName, q[0].RequiredSkills)
	if len(agents) == 0 {
		r.mu.Unlock()
		return false, nil
	}

	agent := r.pickAgent(cfg, agents)
	call := q[0]
	r.pending[queueName] = q[1:]
	r.stats[queueName].TotalDispatched++
	r.mu.Unlock()

	if err := r.agents.Assign(ctx, agent.AgentID, call); err != nil {
		return false, err
	}
	if r.publisher != nil {
		r.publisher.Publish("agent/"+agent.AgentID, call)
	}
	return true, nil
}

func (r *Router) pickAgent(cfg QueueConfig, agents []*domain.AgentPresence) *domain.AgentPresence {
	switch cfg.Strategy {
	case StrategyRoundRobin:
		// Oldest LastCallEndAt wins; an agent with no recorded call end
		// counts as oldest of all.
		best := agents[0]
		for _, a := range agents[1:] {
			if a.LastCallEndAt == nil {
				if best.LastCallEndAt != nil {
					best = a
				}
				continue
			}
			if best.LastCallEndAt != nil && a.LastCallEndAt.Before(*best.LastCallEndAt) {
				best = a
			}
		}
		return best
	case StrategyLeastOccupied:
		best := agents[0]
		for _, a := range agents[1:] {
			if a.TotalCalls < best.TotalCalls {
				best = a
			}
		}
		return best
	default:
		return agents[0]
	}
}

// QueueSnapshot is the point-in-time queue-depth/throughput view published
// on topic `queue/{name}` every monitor pass, so supervisor clients can
// render live queue state without a reporting subsystem.
type QueueSnapshot struct {
	Queue      string
	Depth      int
	Enqueued   int
	Dispatched int
	Abandoned  int
	Overflow   int
}

// MonitorOnce runs one pass of abandonment checks and queue drain across
// all queues (overflow is applied at Enqueue time, not here), intended to be driven by a 5s scheduler tick (§4.3), and
// publishes a QueueSnapshot per queue on `queue/{name}`.
func (r *Router) MonitorOnce(ctx context.Context) {
	r.mu.Lock()
	names := make([]string, 0, len(r.queues))
	for name := range r.queues {
		names = append(names, name)
	}
	r.mu.Unlock()

	for _, name := range names {
		r.expireAbandoned(name)
		for {
			dispatched, err := r.Dispatch(ctx, name)
			if err != nil {
				r.logger.Warnf("router: dispatch failed for queue %s: %v", name, err)
				break
			}
			if !dispatched {
				break
			}
		}
		r.publishSnapshot(name)
	}
}

func (r *Router) publishSnapshot(queueName string) {
	if r.publisher == nil {
		return
	}
	enqueued, dispatched, abandoned, overflow := r.Stats(queueName)
	r.publisher.Publish("queue/"+queueName, QueueSnapshot{
		Queue:      queueName,
		Depth:      r.QueueDepth(queueName),
		Enqueued:   enqueued,
		Dispatched: dispatched,
		Abandoned:  abandoned,
		Overflow:   overflow,
	})
}

func (r *Router) expireAbandoned(queueName string) {
	r.mu.Lock()
	cfg := r.queues[queueName]
	q := r.pending[queueName]
	if cfg.MaxWait <= 0 || len(q) == 0 {
		r.mu.Unlock()
		return
	}
	now := time.Now()
	kept := q[:0]
	abandoned := 0
	for _, call := range q {
		if now.Sub(call.EnqueuedAt) > cfg.MaxWait {
			abandoned++
			continue
		}
		kept = append(kept, call)
	}
	r.pending[queueName] = kept
	r.stats[queueName].TotalAbandoned += abandoned
	r.mu.Unlock()
	if abandoned > 0 && r.publisher != nil {
		r.publisher.Publish("supervisors", map[string]interface{}{
			"event": "queue_abandonment", "queue": queueName, "count": abandoned,
		})
	}
}

// Stats returns a point-in-time snapshot of one queue's counters.
func (r *Router) Stats(queueName string) (enqueued, dispatched, abandoned, overflow int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stats[queueName]
	if !ok {
		return 0, 0, 0, 0
	}
	return s.TotalEnqueued, s.TotalDispatched, s.TotalAbandoned, s.TotalOverflow
}

// QueueDepth returns the number of calls currently waiting in a queue.
func (r *Router) QueueDepth(queueName string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending[queueName])
}
