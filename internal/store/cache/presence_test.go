package cache

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-redis/redismock/v9"

	"github.com/rapidaai/dialer/internal/domain"
)

func TestSetPresenceWritesKeyAndQueueMembership(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewPresenceCache(client)

	presence := &domain.AgentPresence{
		AgentID:           "agent-1",
		Status:            domain.AgentAvailable,
		Skills:            map[string]bool{"spanish": true},
		AssignedQueues:    []string{"sales"},
		AssignedCampaigns: []uint64{7},
	}
	data, err := json.Marshal(presence)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	mock.MatchExpectationsInOrder(false)
	mock.ExpectTxPipeline()
	mock.ExpectSet(presenceKey("agent-1"), data, presenceTTL).SetVal("OK")
	mock.ExpectSAdd(queueSetKey("sales"), "agent-1").SetVal(1)
	mock.ExpectExpire(queueSetKey("sales"), presenceTTL).SetVal(true)
	mock.ExpectSAdd(campaignSetKey(7), "agent-1").SetVal(1)
	mock.ExpectExpire(campaignSetKey(7), presenceTTL).SetVal(true)
	mock.ExpectTxPipelineExec()

	if err := c.SetPresence(context.Background(), presence); err != nil {
		t.Fatalf("set presence: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAvailableAgentsFiltersByStatusAndSkills(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewPresenceCache(client)

	available := &domain.AgentPresence{AgentID: "agent-1", Status: domain.AgentAvailable, Skills: map[string]bool{"spanish": true}}
	busy := &domain.AgentPresence{AgentID: "agent-2", Status: domain.AgentOnCall, Skills: map[string]bool{"spanish": true}}
	missingSkill := &domain.AgentPresence{AgentID: "agent-3", Status: domain.AgentAvailable, Skills: map[string]bool{}}

	availableData, _ := json.Marshal(available)
	busyData, _ := json.Marshal(busy)
	missingData, _ := json.Marshal(missingSkill)

	mock.ExpectSMembers(queueSetKey("sales")).SetVal([]string{"agent-1", "agent-2", "agent-3"})
	mock.ExpectGet(presenceKey("agent-1")).SetVal(string(availableData))
	mock.ExpectGet(presenceKey("agent-2")).SetVal(string(busyData))
	mock.ExpectGet(presenceKey("agent-3")).SetVal(string(missingData))

	agents := c.AvailableAgents("sales", []string{"spanish"})
	if len(agents) != 1 || agents[0].AgentID != "agent-1" {
		t.Fatalf("expected only agent-1, got %+v", agents)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAssignMarksAgentOnCallAndBumpsTotalCalls(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewPresenceCache(client)

	presence := &domain.AgentPresence{AgentID: "agent-1", Status: domain.AgentAvailable, TotalCalls: 2}
	data, _ := json.Marshal(presence)
	mock.ExpectGet(presenceKey("agent-1")).SetVal(string(data))

	updated := *presence
	updated.Status = domain.AgentOnCall
	updated.TotalCalls = 3
	updatedData, _ := json.Marshal(&updated)

	mock.MatchExpectationsInOrder(false)
	mock.ExpectTxPipeline()
	mock.ExpectSet(presenceKey("agent-1"), updatedData, presenceTTL).SetVal("OK")
	mock.ExpectTxPipelineExec()

	if err := c.Assign(context.Background(), "agent-1", domain.QueuedCall{ChannelID: "chan-1"}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAgentMetricsCountsByStatus(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewPresenceCache(client)

	mock.ExpectSMembers(campaignSetKey(7)).SetVal([]string{"agent-1", "agent-2", "agent-3"})

	avail := &domain.AgentPresence{AgentID: "agent-1", Status: domain.AgentAvailable}
	onCall := &domain.AgentPresence{AgentID: "agent-2", Status: domain.AgentOnCall}
	offline := &domain.AgentPresence{AgentID: "agent-3", Status: domain.AgentOffline}
	availData, _ := json.Marshal(avail)
	onCallData, _ := json.Marshal(onCall)
	offlineData, _ := json.Marshal(offline)

	mock.ExpectGet(presenceKey("agent-1")).SetVal(string(availData))
	mock.ExpectGet(presenceKey("agent-2")).SetVal(string(onCallData))
	mock.ExpectGet(presenceKey("agent-3")).SetVal(string(offlineData))

	metrics, err := c.AgentMetrics(context.Background(), 7)
	if err != nil {
		t.Fatalf("agent metrics: %v", err)
	}
	if metrics.TotalAssigned != 3 || metrics.Available != 1 || metrics.OnCall != 1 || metrics.LoggedIn != 2 {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}
}
