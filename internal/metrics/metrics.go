package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Platform calls by operation (trending, flairs, publish) and status.
	RedditRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenthive_reddit_requests_total",
			Help: "Total number of Reddit API operations",
		},
		[]string{"operation", "status"},
	)

	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenthive_tool_calls_total",
			Help: "Total number of LLM tool invocations",
		},
		[]string{"tool", "status"},
	)

	ApprovalDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenthive_approval_decisions_total",
			Help: "Human replies to approval prompts by classified intent",
		},
		[]string{"intent"},
	)

	PostsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenthive_posts_published_total",
			Help: "Submission attempts after approval",
		},
		[]string{"status"},
	)

	ChatRoundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenthive_chat_rounds_total",
			Help: "Group chat turns by speaker",
		},
		[]string{"speaker"},
	)
)

func StatusLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}
