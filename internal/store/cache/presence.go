// Package cache implements the Redis-backed agent presence cache:
// InboundRouter's router.AgentLocator and the scheduler's live
// agent-count half of pacing.AgentMetrics both read from here, since
// presence changes far more often than anything that belongs in the
// relational store. Keyed the same way the teacher keys ephemeral
// session state in internal/callcontext (one JSON blob per entity,
// secondary sets for fast membership lookups), but over go-redis/v9
// instead of Postgres.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rapidaai/dialer/internal/dialererr"
	"github.com/rapidaai/dialer/internal/domain"
	"github.com/rapidaai/dialer/internal/pacing"
)

const presenceTTL = 5 * time.Minute

func presenceKey(agentID string) string { return "presence:agent:" + agentID }
func queueSetKey(queue string) string   { return "presence:queue:" + queue }
func campaignSetKey(id uint64) string   { return fmt.Sprintf("presence:campaign:%d", id) }

// PresenceCache tracks live agent status in Redis.
type PresenceCache struct {
	client *redis.Client
}

func NewPresenceCache(client *redis.Client) *PresenceCache {
	return &PresenceCache{client: client}
}

// SetPresence writes (or refreshes) an agent's presence row and its
// queue/campaign set memberships.
func (c *PresenceCache) SetPresence(ctx context.Context, presence *domain.AgentPresence) error {
	data, err := json.Marshal(presence)
	if err != nil {
		return dialererr.New(dialererr.KindFatal, "cache.SetPresence", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, presenceKey(presence.AgentID), data, presenceTTL)
	for _, queue := range presence.AssignedQueues {
		pipe.SAdd(ctx, queueSetKey(queue), presence.AgentID)
		pipe.Expire(ctx, queueSetKey(queue), presenceTTL)
	}
	for _, campaignID := range presence.AssignedCampaigns {
		pipe.SAdd(ctx, campaignSetKey(campaignID), presence.AgentID)
		pipe.Expire(ctx, campaignSetKey(campaignID), presenceTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return dialererr.New(dialererr.KindTransientNetwork, "cache.SetPresence", err)
	}
	return nil
}

func (c *PresenceCache) get(ctx context.Context, agentID string) (*domain.AgentPresence, error) {
	data, err := c.client.Get(ctx, presenceKey(agentID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var presence domain.AgentPresence
	if err := json.Unmarshal(data, &presence); err != nil {
		return nil, err
	}
	return &presence, nil
}

// AvailableAgents implements router.AgentLocator: every agent assigned
// to queue whose status is available and whose skills superset
// requiredSkills. Errors are swallowed to an empty slice since the
// interface has no error return — a Redis blip means "no agents right
// now", not a fatal routing error.
func (c *PresenceCache) AvailableAgents(queue string, requiredSkills []string) []*domain.AgentPresence {
	ctx := context.Background()
	ids, err := c.client.SMembers(ctx, queueSetKey(queue)).Result()
	if err != nil {
		return nil
	}

	var out []*domain.AgentPresence
	for _, id := range ids {
		presence, err := c.get(ctx, id)
		if err != nil || presence == nil {
			continue
		}
		if presence.Status != domain.AgentAvailable {
			continue
		}
		if !hasAllSkills(presence.Skills, requiredSkills) {
			continue
		}
		out = append(out, presence)
	}
	return out
}

func hasAllSkills(have map[string]bool, want []string) bool {
	for _, skill := range want {
		if !have[skill] {
			return false
		}
	}
	return true
}

// Assign implements router.AgentLocator: marks the agent on_call and
// bumps its call counter (used by the LEAST_OCCUPIED strategy).
func (c *PresenceCache) Assign(ctx context.Context, agentID string, call domain.QueuedCall) error {
	presence, err := c.get(ctx, agentID)
	if err != nil {
		return dialererr.New(dialererr.KindTransientNetwork, "cache.Assign", err)
	}
	if presence == nil {
		return dialererr.New(dialererr.KindNotFound, "cache.Assign", fmt.Errorf("agent %s not present", agentID))
	}
	presence.Status = domain.AgentOnCall
	presence.TotalCalls++
	return c.SetPresence(ctx, presence)
}

// AgentMetrics rolls up a campaign's assigned agents into the snapshot
// pacing.Calculator needs; composed with gormstore.Store.CallHistory by
// store.CombinedMetricsSource to satisfy scheduler.AgentMetricsSource.
func (c *PresenceCache) AgentMetrics(ctx context.Context, campaignID uint64) (pacing.AgentMetrics, error) {
	ids, err := c.client.SMembers(ctx, campaignSetKey(campaignID)).Result()
	if err != nil {
		return pacing.AgentMetrics{}, dialererr.New(dialererr.KindTransientNetwork, "cache.AgentMetrics", err)
	}

	var m pacing.AgentMetrics
	m.TotalAssigned = len(ids)
	for _, id := range ids {
		presence, err := c.get(ctx, id)
		if err != nil || presence == nil {
			continue
		}
		if presence.Status != domain.AgentOffline {
			m.LoggedIn++
		}
		switch presence.Status {
		case domain.AgentAvailable:
			m.Available++
		case domain.AgentOnCall:
			m.OnCall++
		}
	}
	return m, nil
}
