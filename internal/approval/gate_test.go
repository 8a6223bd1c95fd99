package approval_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"agenthive/internal/approval"
	"agenthive/internal/core/domain"
	"agenthive/internal/id"
)

var _ = Describe("Gate", func() {
	var (
		ctx       context.Context
		community *fakeCommunity
		publisher *fakePublisher
		human     *scriptedHuman
		gate      *approval.Gate
		proposal  domain.ProposedPost
	)

	BeforeEach(func() {
		ctx = context.Background()
		community = &fakeCommunity{tags: domain.TagSet{Options: []domain.TagOption{
			{ID: "t1", Text: "Discussion", Editable: true},
		}}}
		publisher = &fakePublisher{}
		human = &scriptedHuman{}

		ids, err := id.NewGenerator(1)
		Expect(err).NotTo(HaveOccurred())
		gate = approval.NewGate(community, publisher, human, ids)

		proposal = domain.ProposedPost{
			Subreddit: "LLM",
			Title:     "What context length do you actually use?",
			Content:   "Curious how people use long context in practice.",
			Kind:      domain.PostKindText,
			TagName:   "Discussion",
		}
	})

	Describe("Submit", func() {
		Context("when the human declines", func() {
			It("should never call the publisher", func() {
				human.replies = []string{"no"}

				out, err := gate.Submit(ctx, proposal)

				Expect(err).NotTo(HaveOccurred())
				Expect(out.State).To(Equal(approval.StateDeclined))
				Expect(out.Intent).To(Equal(domain.IntentDecline))
				Expect(publisher.requests).To(BeEmpty())
			})
		})

		Context("when the human approves a proposal with a known flair", func() {
			It("should publish exactly once with the resolved flair id", func() {
				human.replies = []string{"yes"}

				out, err := gate.Submit(ctx, proposal)

				Expect(err).NotTo(HaveOccurred())
				Expect(out.State).To(Equal(approval.StatePosted))
				Expect(publisher.requests).To(HaveLen(1))
				Expect(publisher.requests[0].TagID).To(Equal("t1"))
				Expect(publisher.requests[0].Title).To(Equal(proposal.Title))
				Expect(out.Result.URL).To(Equal("https://reddit.com/r/LLM/comments/abc1"))
			})

			It("should present the proposal once with the flair question", func() {
				human.replies = []string{"Go ahead"}

				_, err := gate.Submit(ctx, proposal)

				Expect(err).NotTo(HaveOccurred())
				Expect(human.prompts).To(HaveLen(1))
				Expect(human.prompts[0]).To(ContainSubstring("Should I post this to r/LLM with flair 'Discussion'? (yes/no/modify)"))
				Expect(human.prompts[0]).To(ContainSubstring(proposal.Content))
			})
		})

		Context("when the requested flair does not exist", func() {
			It("should not publish and should list the valid flairs", func() {
				proposal.TagName = "Nonexistent"
				human.replies = []string{"yes"}

				out, err := gate.Submit(ctx, proposal)

				Expect(err).NotTo(HaveOccurred())
				Expect(out.State).To(Equal(approval.StateResolutionFailed))
				Expect(out.Available).To(Equal([]string{"Discussion"}))
				Expect(out.Result.Message).To(ContainSubstring("Flair 'Nonexistent' not found"))
				Expect(publisher.requests).To(BeEmpty())
			})
		})

		Context("when the community has no flairs", func() {
			It("should fail resolution for a named flair", func() {
				community.tags = domain.TagSet{}
				human.replies = []string{"approve"}

				out, err := gate.Submit(ctx, proposal)

				Expect(err).NotTo(HaveOccurred())
				Expect(out.State).To(Equal(approval.StateResolutionFailed))
				Expect(publisher.requests).To(BeEmpty())
			})

			It("should publish without a flair when none was requested", func() {
				community.tags = domain.TagSet{}
				proposal.TagName = ""
				human.replies = []string{"yes"}

				out, err := gate.Submit(ctx, proposal)

				Expect(err).NotTo(HaveOccurred())
				Expect(out.State).To(Equal(approval.StatePosted))
				Expect(publisher.requests).To(HaveLen(1))
				Expect(publisher.requests[0].TagID).To(BeEmpty())
				Expect(human.prompts[0]).To(ContainSubstring("without a flair"))
			})
		})

		Context("when no flair was requested", func() {
			It("should auto-select one and show it before asking", func() {
				community.tags = domain.TagSet{Options: []domain.TagOption{
					{ID: "n1", Text: "News"},
					{ID: "r1", Text: "Research Paper"},
					{ID: "d1", Text: "Discussion"},
				}}
				proposal.TagName = ""
				proposal.Title = "New research paper on sparse attention"
				human.replies = []string{"yes"}

				out, err := gate.Submit(ctx, proposal)

				Expect(err).NotTo(HaveOccurred())
				Expect(out.Proposal.TagName).To(Equal("Research Paper"))
				Expect(human.prompts[0]).To(ContainSubstring("with flair 'Research Paper'"))
				Expect(publisher.requests[0].TagID).To(Equal("r1"))
			})

			It("should recognize the same flairless proposal after a decision", func() {
				community.tags = domain.TagSet{Options: []domain.TagOption{{ID: "d1", Text: "Discussion"}}}
				proposal.TagName = ""
				human.replies = []string{"no"}

				_, err := gate.Submit(ctx, proposal)
				Expect(err).NotTo(HaveOccurred())

				again, err := gate.Submit(ctx, proposal)

				Expect(err).NotTo(HaveOccurred())
				Expect(again.State).To(Equal(approval.StateAlreadyDecided))
				Expect(again.Previous).To(Equal(approval.StateDeclined))
				Expect(human.prompts).To(HaveLen(1))
			})
		})

		Context("when the human asks for modifications", func() {
			It("should not publish and should wait for a new proposal", func() {
				human.replies = []string{"modify", "make the title shorter"}

				out, err := gate.Submit(ctx, proposal)

				Expect(err).NotTo(HaveOccurred())
				Expect(out.State).To(Equal(approval.StateModificationRequested))
				Expect(out.Feedback).To(Equal("make the title shorter"))
				Expect(publisher.requests).To(BeEmpty())

				revised := proposal
				revised.Title = "Context length: what do you use?"
				human.replies = []string{"yes"}

				out, err = gate.Submit(ctx, revised)

				Expect(err).NotTo(HaveOccurred())
				Expect(out.State).To(Equal(approval.StatePosted))
				Expect(publisher.requests).To(HaveLen(1))
				Expect(publisher.requests[0].Title).To(Equal(revised.Title))
			})

			It("should keep inline feedback without asking again", func() {
				human.replies = []string{"please change the title to something punchier"}

				out, err := gate.Submit(ctx, proposal)

				Expect(err).NotTo(HaveOccurred())
				Expect(out.Feedback).To(Equal("please change the title to something punchier"))
				Expect(human.prompts).To(HaveLen(1))
			})

			It("should offer quick replies only for the decision", func() {
				human.replies = []string{"modify", "make the title shorter"}

				_, err := gate.Submit(ctx, proposal)

				Expect(err).NotTo(HaveOccurred())
				Expect(human.prompts).To(HaveLen(2))
				Expect(human.choices[0]).To(Equal([]string{"yes", "modify", "no"}))
				Expect(human.prompts[1]).To(Equal("What would you like to change?"))
				Expect(human.choices[1]).To(BeEmpty())
			})

			It("should present an unchanged resubmission as a new proposal", func() {
				human.replies = []string{"modify", "nothing, actually", "yes"}

				first, err := gate.Submit(ctx, proposal)
				Expect(err).NotTo(HaveOccurred())

				second, err := gate.Submit(ctx, proposal)
				Expect(err).NotTo(HaveOccurred())

				Expect(second.State).To(Equal(approval.StatePosted))
				Expect(second.Proposal.ID).NotTo(Equal(first.Proposal.ID))
				Expect(publisher.requests).To(HaveLen(1))
			})
		})

		Context("when the same proposal is submitted after a decision", func() {
			It("should not prompt or publish again", func() {
				human.replies = []string{"yes"}

				first, err := gate.Submit(ctx, proposal)
				Expect(err).NotTo(HaveOccurred())

				second, err := gate.Submit(ctx, proposal)

				Expect(err).NotTo(HaveOccurred())
				Expect(second.State).To(Equal(approval.StateAlreadyDecided))
				Expect(second.Previous).To(Equal(approval.StatePosted))
				Expect(second.Proposal.ID).To(Equal(first.Proposal.ID))
				Expect(human.prompts).To(HaveLen(1))
				Expect(publisher.requests).To(HaveLen(1))
			})

			It("should not retry a failed publish", func() {
				publisher.failWith = "Error posting to r/LLM: RATELIMIT"
				human.replies = []string{"yes"}

				out, err := gate.Submit(ctx, proposal)
				Expect(err).NotTo(HaveOccurred())
				Expect(out.State).To(Equal(approval.StatePublishFailed))
				Expect(out.Result.Message).To(ContainSubstring("RATELIMIT"))

				out, err = gate.Submit(ctx, proposal)
				Expect(err).NotTo(HaveOccurred())
				Expect(out.State).To(Equal(approval.StateAlreadyDecided))
				Expect(publisher.requests).To(HaveLen(1))
			})

			It("should remember every decision of the session, not only the latest", func() {
				other := proposal
				other.Title = "Which eval suites do you trust?"
				human.replies = []string{"yes", "no", "yes"}

				first, err := gate.Submit(ctx, proposal)
				Expect(err).NotTo(HaveOccurred())
				Expect(first.State).To(Equal(approval.StatePosted))

				second, err := gate.Submit(ctx, other)
				Expect(err).NotTo(HaveOccurred())
				Expect(second.State).To(Equal(approval.StateDeclined))

				third, err := gate.Submit(ctx, proposal)

				Expect(err).NotTo(HaveOccurred())
				Expect(third.State).To(Equal(approval.StateAlreadyDecided))
				Expect(third.Previous).To(Equal(approval.StatePosted))
				Expect(third.Proposal.ID).To(Equal(first.Proposal.ID))
				Expect(human.prompts).To(HaveLen(2))
				Expect(publisher.requests).To(HaveLen(1))
			})
		})

		Context("when the reply is unclear", func() {
			It("should ask for clarification and then act", func() {
				human.replies = []string{"hmm", "sure thing, yes"}

				out, err := gate.Submit(ctx, proposal)

				Expect(err).NotTo(HaveOccurred())
				Expect(out.State).To(Equal(approval.StatePosted))
				Expect(human.prompts).To(HaveLen(2))
				Expect(human.prompts[1]).To(Equal("Please answer yes, no, or modify."))
				Expect(human.choices[1]).To(Equal([]string{"yes", "modify", "no"}))
			})

			It("should decline after repeated unclear replies", func() {
				human.replies = []string{"hmm", "maybe", "later", "dunno"}

				out, err := gate.Submit(ctx, proposal)

				Expect(err).NotTo(HaveOccurred())
				Expect(out.State).To(Equal(approval.StateDeclined))
				Expect(out.Intent).To(Equal(domain.IntentUnknown))
				Expect(publisher.requests).To(BeEmpty())
			})
		})

		Context("when the wait is cancelled", func() {
			It("should return the error and not publish", func() {
				cancelled, cancel := context.WithCancel(ctx)
				cancel()

				_, err := gate.Submit(cancelled, proposal)

				Expect(err).To(MatchError(context.Canceled))
				Expect(publisher.requests).To(BeEmpty())
			})
		})
	})
})
