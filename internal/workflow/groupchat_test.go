package workflow_test

import (
	"context"
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"agenthive/internal/brain"
	"agenthive/internal/workflow"
)

func testRoles() workflow.Roles {
	return workflow.Roles{
		Kickoff: "Research r/{subreddit}.",
		Roles: []workflow.Role{
			{Name: "coordinator", Description: "runs the project", Prompt: "Coordinate."},
			{Name: "research_agent", Description: "reads trends", Prompt: "Research.", Tools: []string{"fetch_trending_posts"}},
			{Name: "reddit_poster", Description: "posts", Prompt: "Post.", Tools: []string{"get_available_flairs", "post_to_reddit"}},
		},
	}
}

var _ = Describe("GroupChat", func() {
	var (
		ctx   context.Context
		llm   *scriptedLLM
		tools *fakeTools
		roles workflow.Roles
	)

	BeforeEach(func() {
		ctx = context.Background()
		tools = &fakeTools{}
		roles = testRoles()
		llm = &scriptedLLM{respond: func(speaker string, call int, _ brain.AgentRequest) (*brain.AgentResponse, error) {
			return text(fmt.Sprintf("%s says %d", speaker, call)), nil
		}}
	})

	run := func(maxRounds int) (*workflow.Transcript, error) {
		chat, err := workflow.NewGroupChat(llm, tools, roles, maxRounds)
		Expect(err).NotTo(HaveOccurred())
		return chat.Run(ctx, roles.Brief("LLM"))
	}

	It("should rotate speakers after the opening brief", func() {
		t, err := run(6)

		Expect(err).NotTo(HaveOccurred())
		Expect(t.Reason).To(Equal(workflow.ReasonMaxRounds))
		Expect(t.Rounds).To(Equal(6))

		var speakers []string
		for _, e := range t.Entries {
			speakers = append(speakers, e.Speaker)
		}
		Expect(speakers).To(Equal([]string{
			"coordinator", "research_agent", "reddit_poster",
			"coordinator", "research_agent", "reddit_poster",
		}))
		Expect(t.Entries[0].Content).To(Equal("Research r/LLM."))
	})

	It("should report every entry to the observer as it is recorded", func() {
		chat, err := workflow.NewGroupChat(llm, tools, roles, 3)
		Expect(err).NotTo(HaveOccurred())

		var seen []workflow.Entry
		chat.Observe(func(e workflow.Entry) { seen = append(seen, e) })

		t, err := chat.Run(ctx, "brief")
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(Equal(t.Entries))
	})

	It("should default to twenty rounds", func() {
		t, err := run(0)

		Expect(err).NotTo(HaveOccurred())
		Expect(t.Rounds).To(Equal(workflow.DefaultMaxRounds))
		Expect(t.Entries).To(HaveLen(workflow.DefaultMaxRounds))
	})

	It("should stop on the termination phrase in any letter case", func() {
		llm.respond = func(speaker string, call int, _ brain.AgentRequest) (*brain.AgentResponse, error) {
			if speaker == "coordinator" {
				return text("Posted and approved. project complete!"), nil
			}
			return text("working"), nil
		}

		t, err := run(20)

		Expect(err).NotTo(HaveOccurred())
		Expect(t.Reason).To(Equal(workflow.ReasonComplete))
		Expect(t.Rounds).To(Equal(4))
		Expect(t.Entries[len(t.Entries)-1].Speaker).To(Equal("coordinator"))
	})

	It("should show other speakers as named users and its own replies as assistant turns", func() {
		_, err := run(5)
		Expect(err).NotTo(HaveOccurred())

		reqs := llm.requestsFor("research_agent")
		Expect(reqs).To(HaveLen(2))
		msgs := reqs[1].Messages
		Expect(msgs[0].Role).To(Equal(brain.RoleSystem))
		Expect(msgs[0].Content).To(ContainSubstring("reddit_poster: posts"))
		Expect(msgs[1]).To(Equal(brain.Message{Role: brain.RoleUser, Name: "coordinator", Content: "Research r/LLM."}))
		Expect(msgs[2]).To(Equal(brain.Message{Role: brain.RoleAssistant, Content: "research_agent says 0"}))
		Expect(msgs[3].Name).To(Equal("reddit_poster"))
	})

	Context("when a speaker calls tools", func() {
		BeforeEach(func() {
			llm.respond = func(speaker string, call int, _ brain.AgentRequest) (*brain.AgentResponse, error) {
				if speaker == "research_agent" && call == 0 {
					return calls(brain.ToolCall{ID: "c1", Name: "fetch_trending_posts", Arguments: `{"subreddit_name":"LLM"}`}), nil
				}
				return text(speaker + " done"), nil
			}
		})

		It("should offer only the role's tools", func() {
			_, err := run(3)
			Expect(err).NotTo(HaveOccurred())

			Expect(tools.requested).To(Equal([][]string{
				{"fetch_trending_posts"},
				{"get_available_flairs", "post_to_reddit"},
			}))
			Expect(llm.requestsFor("coordinator")).To(BeEmpty())
		})

		It("should execute the call and feed the result back within the turn", func() {
			t, err := run(3)
			Expect(err).NotTo(HaveOccurred())

			Expect(tools.executed).To(Equal([]toolCall{{name: "fetch_trending_posts", args: `{"subreddit_name":"LLM"}`}}))

			reqs := llm.requestsFor("research_agent")
			Expect(reqs).To(HaveLen(2))
			last := reqs[1].Messages[len(reqs[1].Messages)-1]
			Expect(last.Role).To(Equal(brain.RoleTool))
			Expect(last.ToolCallID).To(Equal("c1"))
			Expect(last.Content).To(Equal("result of fetch_trending_posts"))

			Expect(t.Entries[1]).To(Equal(workflow.Entry{Round: 2, Speaker: "research_agent", Tool: "fetch_trending_posts", Content: "result of fetch_trending_posts"}))
			Expect(t.Entries[2].Content).To(Equal("research_agent done"))
		})

		It("should share tool results with later speakers", func() {
			_, err := run(3)
			Expect(err).NotTo(HaveOccurred())

			poster := llm.requestsFor("reddit_poster")[0].Messages
			Expect(poster).To(ContainElement(brain.Message{
				Role:    brain.RoleUser,
				Name:    "research_agent",
				Content: "Result of fetch_trending_posts:\nresult of fetch_trending_posts",
			}))
		})
	})

	It("should refuse tools outside the role's allowlist", func() {
		llm.respond = func(speaker string, call int, _ brain.AgentRequest) (*brain.AgentResponse, error) {
			if speaker == "research_agent" && call == 0 {
				return calls(brain.ToolCall{ID: "c1", Name: "post_to_reddit", Arguments: `{}`}), nil
			}
			return text("ok"), nil
		}

		t, err := run(2)

		Expect(err).NotTo(HaveOccurred())
		Expect(tools.executed).To(BeEmpty())
		Expect(t.Entries[1].Content).To(Equal("Error: tool post_to_reddit is not available to research_agent"))
	})

	It("should cap the tool loop of a single turn", func() {
		llm.respond = func(speaker string, call int, _ brain.AgentRequest) (*brain.AgentResponse, error) {
			if speaker == "research_agent" {
				return calls(brain.ToolCall{ID: fmt.Sprintf("c%d", call), Name: "fetch_trending_posts"}), nil
			}
			return text("ok"), nil
		}

		t, err := run(2)

		Expect(err).NotTo(HaveOccurred())
		Expect(llm.requestsFor("research_agent")).To(HaveLen(6))
		Expect(tools.executed).To(HaveLen(6))
		Expect(t.Entries[len(t.Entries)-1].Content).To(Equal("(no response)"))
	})

	It("should report tool failures to the model as text", func() {
		tools.executeFn = func(context.Context, string, string) (string, error) {
			return "", errors.New("parse fetch_trending_posts params: unexpected end of JSON input")
		}
		llm.respond = func(speaker string, call int, _ brain.AgentRequest) (*brain.AgentResponse, error) {
			if speaker == "research_agent" && call == 0 {
				return calls(brain.ToolCall{ID: "c1", Name: "fetch_trending_posts", Arguments: `{`}), nil
			}
			return text("ok"), nil
		}

		t, err := run(2)

		Expect(err).NotTo(HaveOccurred())
		Expect(t.Entries[1].Content).To(HavePrefix("Error: parse fetch_trending_posts params"))
	})

	It("should stop when the human wait is cancelled", func() {
		tools.executeFn = func(context.Context, string, string) (string, error) {
			return "", fmt.Errorf("submit proposal: await approval: %w", context.Canceled)
		}
		llm.respond = func(speaker string, call int, _ brain.AgentRequest) (*brain.AgentResponse, error) {
			if speaker == "reddit_poster" {
				return calls(brain.ToolCall{ID: "c1", Name: "post_to_reddit", Arguments: `{}`}), nil
			}
			return text("ok"), nil
		}

		t, err := run(20)

		Expect(err).To(MatchError(context.Canceled))
		Expect(t.Rounds).To(Equal(3))
	})

	It("should return the partial transcript when the model fails", func() {
		llm.respond = func(speaker string, call int, _ brain.AgentRequest) (*brain.AgentResponse, error) {
			if speaker == "reddit_poster" {
				return nil, errors.New("all gemini models failed")
			}
			return text("ok"), nil
		}

		t, err := run(20)

		Expect(err).To(MatchError(ContainSubstring("round 3 (reddit_poster)")))
		Expect(t.Entries).To(HaveLen(2))
	})

	It("should reject an empty role list", func() {
		_, err := workflow.NewGroupChat(llm, tools, workflow.Roles{}, 5)
		Expect(err).To(MatchError(workflow.ErrInvalidRoles))
	})
})
