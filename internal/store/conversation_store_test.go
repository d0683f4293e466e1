package store_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"basegraph.app/concierge/internal/model"
	"basegraph.app/concierge/internal/store"
)

func ptr[T any](v T) *T { return &v }

func userMessage(content string) model.NewMessage {
	return model.NewMessage{Role: model.MessageRoleUser, Content: content}
}

type storeBackend struct {
	name string
	open func() store.ConversationStore
}

var _ = Describe("ConversationStore", func() {
	backends := []storeBackend{
		{"memory", func() store.ConversationStore {
			return store.NewMemoryConversationStore(nil)
		}},
		{"bolt", func() store.ConversationStore {
			s, err := store.NewBoltConversationStore(filepath.Join(GinkgoT().TempDir(), "conversations.bolt"))
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(s.Close)
			return s
		}},
	}
	if dsn := os.Getenv("CONCIERGE_TEST_DATABASE_URL"); dsn != "" {
		backends = append(backends, storeBackend{"postgres", func() store.ConversationStore {
			return openPostgres(dsn)
		}})
	}

	for _, backend := range backends {
		Context("with the "+backend.name+" backend", func() {
			var (
				ctx context.Context
				s   store.ConversationStore
			)

			BeforeEach(func() {
				ctx = context.Background()
				s = backend.open()
			})

			Describe("Create", func() {
				It("starts an active conversation with a session id and topic", func() {
					conv, err := s.Create(ctx, "user-1", ptr("What are the office hours?\nthanks"))
					Expect(err).NotTo(HaveOccurred())
					Expect(conv.ID).NotTo(BeZero())
					Expect(conv.SessionID).NotTo(BeEmpty())
					Expect(conv.Status).To(Equal(model.ConversationStatusActive))
					Expect(conv.Topic).To(HaveValue(Equal("What are the office hours?")))
					Expect(conv.EndedAt).To(BeNil())
					Expect(conv.Escalated).To(BeFalse())

					fetched, err := s.GetByID(ctx, conv.ID)
					Expect(err).NotTo(HaveOccurred())
					Expect(fetched.UserID).To(Equal("user-1"))
				})

				It("returns ErrNotFound for unknown ids", func() {
					_, err := s.GetByID(ctx, 42)
					Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
					Expect(model.KindOf(err)).To(Equal(model.ErrorKindNotFound))
				})
			})

			Describe("AppendMessage", func() {
				var conv *model.Conversation

				BeforeEach(func() {
					var err error
					conv, err = s.Create(ctx, "user-1", ptr("hello"))
					Expect(err).NotTo(HaveOccurred())
				})

				It("fails with not_found for a missing conversation", func() {
					_, err := s.AppendMessage(ctx, conv.ID+1, userMessage("hi"))
					Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
				})

				It("rejects empty content before touching the conversation", func() {
					_, err := s.AppendMessage(ctx, conv.ID, userMessage("   "))
					Expect(model.KindOf(err)).To(Equal(model.ErrorKindValidation))

					fetched, err := s.GetByID(ctx, conv.ID)
					Expect(err).NotTo(HaveOccurred())
					Expect(fetched.MessageCount).To(BeZero())
				})

				It("stores assistant metadata", func() {
					msg, err := s.AppendMessage(ctx, conv.ID, model.NewMessage{
						Role:    model.MessageRoleAssistant,
						Content: "We are open 9 to 5.",
						Assistant: &model.AssistantMetadata{
							ConfidenceScore: 0.95,
							SourcesUsed:     []model.SourceRef{{ID: "faq-hours", Title: "Office hours", Score: 0.9}},
							ModelUsed:       "gpt-4o-mini",
							TokensUsed:      120,
							Cost:            decimal.RequireFromString("0.000150"),
						},
					})
					Expect(err).NotTo(HaveOccurred())
					Expect(msg.ID).NotTo(BeZero())

					history, err := s.History(ctx, conv.ID, 0)
					Expect(err).NotTo(HaveOccurred())
					Expect(history).To(HaveLen(1))
					Expect(history[0].Assistant).NotTo(BeNil())
					Expect(history[0].Assistant.ConfidenceScore).To(Equal(0.95))
					Expect(history[0].Assistant.SourcesUsed).To(HaveLen(1))
					Expect(history[0].Assistant.SourcesUsed[0].ID).To(Equal("faq-hours"))
					Expect(history[0].Assistant.Cost.Equal(decimal.RequireFromString("0.00015"))).To(BeTrue())
				})

				It("keeps timestamps strictly increasing under concurrent appends", func() {
					const writers = 25
					var wg sync.WaitGroup
					for i := 0; i < writers; i++ {
						wg.Add(1)
						go func(i int) {
							defer GinkgoRecover()
							defer wg.Done()
							_, err := s.AppendMessage(ctx, conv.ID, userMessage(fmt.Sprintf("message %d", i)))
							Expect(err).NotTo(HaveOccurred())
						}(i)
					}
					wg.Wait()

					history, err := s.History(ctx, conv.ID, 0)
					Expect(err).NotTo(HaveOccurred())
					Expect(history).To(HaveLen(writers))
					for i := 1; i < len(history); i++ {
						Expect(history[i].CreatedAt.After(history[i-1].CreatedAt)).To(BeTrue())
					}

					fetched, err := s.GetByID(ctx, conv.ID)
					Expect(err).NotTo(HaveOccurred())
					Expect(fetched.MessageCount).To(Equal(writers))
					Expect(fetched.LastMessageAt).To(HaveValue(BeTemporally("==", history[writers-1].CreatedAt)))
				})
			})

			Describe("History", func() {
				It("returns the most recent messages in ascending order when limited", func() {
					conv, err := s.Create(ctx, "user-1", nil)
					Expect(err).NotTo(HaveOccurred())
					for i := 1; i <= 12; i++ {
						_, err := s.AppendMessage(ctx, conv.ID, userMessage(fmt.Sprintf("m%d", i)))
						Expect(err).NotTo(HaveOccurred())
					}

					recent, err := s.History(ctx, conv.ID, 10)
					Expect(err).NotTo(HaveOccurred())
					Expect(recent).To(HaveLen(10))
					Expect(recent[0].Content).To(Equal("m3"))
					Expect(recent[9].Content).To(Equal("m12"))

					all, err := s.History(ctx, conv.ID, 0)
					Expect(err).NotTo(HaveOccurred())
					Expect(all).To(HaveLen(12))
				})

				It("returns an empty slice for a conversation without messages", func() {
					conv, err := s.Create(ctx, "user-1", nil)
					Expect(err).NotTo(HaveOccurred())

					history, err := s.History(ctx, conv.ID, 10)
					Expect(err).NotTo(HaveOccurred())
					Expect(history).To(BeEmpty())
				})

				It("fails with not_found for a missing conversation", func() {
					_, err := s.History(ctx, 99, 10)
					Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
				})
			})

			Describe("SetStatus", func() {
				var conv *model.Conversation

				BeforeEach(func() {
					var err error
					conv, err = s.Create(ctx, "user-1", nil)
					Expect(err).NotTo(HaveOccurred())
				})

				It("stamps endedAt when the conversation is resolved", func() {
					updated, err := s.SetStatus(ctx, conv.ID, model.StatusChange{Status: model.ConversationStatusResolved})
					Expect(err).NotTo(HaveOccurred())
					Expect(updated.Status).To(Equal(model.ConversationStatusResolved))
					Expect(updated.EndedAt).NotTo(BeNil())
					Expect(updated.EndedAt.Before(updated.StartedAt)).To(BeFalse())
				})

				It("marks the conversation escalated with its reason", func() {
					updated, err := s.SetStatus(ctx, conv.ID, model.StatusChange{
						Status:           model.ConversationStatusEscalated,
						EscalationReason: ptr("low confidence (<0.70)"),
					})
					Expect(err).NotTo(HaveOccurred())
					Expect(updated.Escalated).To(BeTrue())
					Expect(updated.EscalationReason).To(HaveValue(Equal("low confidence (<0.70)")))
					Expect(updated.EndedAt).To(BeNil())
				})

				It("rejects unknown statuses", func() {
					_, err := s.SetStatus(ctx, conv.ID, model.StatusChange{Status: model.ConversationStatus("closed")})
					Expect(model.KindOf(err)).To(Equal(model.ErrorKindValidation))
				})

				It("refuses to reopen an ended conversation", func() {
					resolved, err := s.SetStatus(ctx, conv.ID, model.StatusChange{Status: model.ConversationStatusResolved})
					Expect(err).NotTo(HaveOccurred())

					for _, status := range []model.ConversationStatus{model.ConversationStatusActive, model.ConversationStatusEscalated} {
						_, err = s.SetStatus(ctx, conv.ID, model.StatusChange{Status: status})
						Expect(errors.Is(err, model.ErrInvalidTransition)).To(BeTrue())
						Expect(model.KindOf(err)).To(Equal(model.ErrorKindValidation))
					}

					fetched, err := s.GetByID(ctx, conv.ID)
					Expect(err).NotTo(HaveOccurred())
					Expect(fetched.Status).To(Equal(model.ConversationStatusResolved))
					Expect(fetched.Escalated).To(BeFalse())
					Expect(fetched.EndedAt).To(HaveValue(BeTemporally("==", *resolved.EndedAt)))
				})

				It("keeps endedAt when an ended conversation moves to another ended status", func() {
					resolved, err := s.SetStatus(ctx, conv.ID, model.StatusChange{Status: model.ConversationStatusResolved})
					Expect(err).NotTo(HaveOccurred())

					abandoned, err := s.SetStatus(ctx, conv.ID, model.StatusChange{Status: model.ConversationStatusAbandoned})
					Expect(err).NotTo(HaveOccurred())
					Expect(abandoned.Status).To(Equal(model.ConversationStatusAbandoned))
					Expect(abandoned.EndedAt).To(HaveValue(BeTemporally("==", *resolved.EndedAt)))
				})

				It("reports a missing conversation as not found", func() {
					_, err := s.SetStatus(ctx, conv.ID+1, model.StatusChange{Status: model.ConversationStatusResolved})
					Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
				})

				It("records a ticket without changing the status", func() {
					Expect(s.AttachTicket(ctx, conv.ID, "support#12")).To(Succeed())
					fetched, err := s.GetByID(ctx, conv.ID)
					Expect(err).NotTo(HaveOccurred())
					Expect(fetched.TicketID).To(HaveValue(Equal("support#12")))
					Expect(fetched.Status).To(Equal(model.ConversationStatusActive))
				})
			})

			Describe("RecordSatisfaction", func() {
				var conv *model.Conversation

				BeforeEach(func() {
					var err error
					conv, err = s.Create(ctx, "user-1", nil)
					Expect(err).NotTo(HaveOccurred())
				})

				DescribeTable("validates the rating",
					func(rating int, ok bool) {
						updated, err := s.RecordSatisfaction(ctx, conv.ID, rating, ptr("thanks"))
						if !ok {
							Expect(model.KindOf(err)).To(Equal(model.ErrorKindValidation))
							Expect(errors.Is(err, model.ErrInvalidRating)).To(BeTrue())
							return
						}
						Expect(err).NotTo(HaveOccurred())
						Expect(updated.SatisfactionRating).To(HaveValue(Equal(rating)))
						Expect(updated.Feedback).To(HaveValue(Equal("thanks")))
					},
					Entry("zero", 0, false),
					Entry("lowest", 1, true),
					Entry("highest", 5, true),
					Entry("six", 6, false),
				)
			})

			Describe("ListByUser", func() {
				It("returns the user's conversations most recent first, ten by default", func() {
					var ids []int64
					for i := 0; i < 12; i++ {
						conv, err := s.Create(ctx, "user-1", nil)
						Expect(err).NotTo(HaveOccurred())
						ids = append(ids, conv.ID)
					}
					_, err := s.Create(ctx, "user-2", nil)
					Expect(err).NotTo(HaveOccurred())

					convs, err := s.ListByUser(ctx, "user-1", 0)
					Expect(err).NotTo(HaveOccurred())
					Expect(convs).To(HaveLen(store.DefaultListLimit))
					Expect(convs[0].ID).To(Equal(ids[11]))
					for _, c := range convs {
						Expect(c.UserID).To(Equal("user-1"))
					}

					two, err := s.ListByUser(ctx, "user-1", 2)
					Expect(err).NotTo(HaveOccurred())
					Expect(two).To(HaveLen(2))
				})

				It("returns an empty list for unknown users", func() {
					convs, err := s.ListByUser(ctx, "nobody", 5)
					Expect(err).NotTo(HaveOccurred())
					Expect(convs).To(BeEmpty())
				})
			})

			Describe("Statistics", func() {
				It("aggregates status, escalation and ratings", func() {
					a, _ := s.Create(ctx, "user-1", nil)
					b, _ := s.Create(ctx, "user-1", nil)
					c, _ := s.Create(ctx, "user-2", nil)

					_, err := s.SetStatus(ctx, a.ID, model.StatusChange{Status: model.ConversationStatusResolved})
					Expect(err).NotTo(HaveOccurred())
					_, err = s.SetStatus(ctx, b.ID, model.StatusChange{Status: model.ConversationStatusEscalated})
					Expect(err).NotTo(HaveOccurred())
					_, err = s.RecordSatisfaction(ctx, a.ID, 4, nil)
					Expect(err).NotTo(HaveOccurred())
					_, err = s.RecordSatisfaction(ctx, c.ID, 2, nil)
					Expect(err).NotTo(HaveOccurred())

					all, err := s.Statistics(ctx, nil)
					Expect(err).NotTo(HaveOccurred())
					Expect(all.TotalConversations).To(Equal(3))
					Expect(all.Resolved).To(Equal(1))
					Expect(all.Escalated).To(Equal(1))
					Expect(all.RatedConversations).To(Equal(2))
					Expect(all.AvgSatisfaction).To(HaveValue(BeNumerically("~", 3.0)))

					mine, err := s.Statistics(ctx, ptr("user-1"))
					Expect(err).NotTo(HaveOccurred())
					Expect(mine.TotalConversations).To(Equal(2))
					Expect(mine.AvgSatisfaction).To(HaveValue(BeNumerically("~", 4.0)))
				})

				It("reports no average when nothing is rated", func() {
					stats, err := s.Statistics(ctx, nil)
					Expect(err).NotTo(HaveOccurred())
					Expect(stats.TotalConversations).To(BeZero())
					Expect(stats.AvgSatisfaction).To(BeNil())
				})
			})

			Describe("PurgeOlderThan", func() {
				It("removes only old conversations in terminal statuses", func() {
					resolved, _ := s.Create(ctx, "user-1", nil)
					active, _ := s.Create(ctx, "user-1", nil)
					_, err := s.AppendMessage(ctx, resolved.ID, userMessage("bye"))
					Expect(err).NotTo(HaveOccurred())
					_, err = s.SetStatus(ctx, resolved.ID, model.StatusChange{Status: model.ConversationStatusResolved})
					Expect(err).NotTo(HaveOccurred())

					// A negative age puts the cutoff in the future so every row qualifies by age.
					n, err := s.PurgeOlderThan(ctx, -time.Hour, nil)
					Expect(err).NotTo(HaveOccurred())
					Expect(n).To(BeEquivalentTo(1))

					_, err = s.GetByID(ctx, resolved.ID)
					Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
					_, err = s.GetByID(ctx, active.ID)
					Expect(err).NotTo(HaveOccurred())
				})

				It("keeps recent conversations", func() {
					conv, _ := s.Create(ctx, "user-1", nil)
					_, err := s.SetStatus(ctx, conv.ID, model.StatusChange{Status: model.ConversationStatusAbandoned})
					Expect(err).NotTo(HaveOccurred())

					n, err := s.PurgeOlderThan(ctx, time.Hour, nil)
					Expect(err).NotTo(HaveOccurred())
					Expect(n).To(BeZero())
				})

				It("refuses non-terminal statuses", func() {
					_, err := s.PurgeOlderThan(ctx, time.Hour, []model.ConversationStatus{model.ConversationStatusActive})
					Expect(model.KindOf(err)).To(Equal(model.ErrorKindValidation))
				})
			})
		})
	}
})

var _ = Describe("MemoryConversationStore", func() {
	It("keeps message timestamps increasing when the clock stands still", func() {
		frozen := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		s := store.NewMemoryConversationStore(func() time.Time { return frozen })
		ctx := context.Background()

		conv, err := s.Create(ctx, "user-1", nil)
		Expect(err).NotTo(HaveOccurred())

		first, err := s.AppendMessage(ctx, conv.ID, userMessage("one"))
		Expect(err).NotTo(HaveOccurred())
		second, err := s.AppendMessage(ctx, conv.ID, userMessage("two"))
		Expect(err).NotTo(HaveOccurred())

		Expect(first.CreatedAt).To(BeTemporally("==", frozen))
		Expect(second.CreatedAt).To(BeTemporally("==", frozen.Add(time.Microsecond)))
	})

	It("hands out copies that callers cannot mutate", func() {
		s := store.NewMemoryConversationStore(nil)
		ctx := context.Background()
		conv, err := s.Create(ctx, "user-1", ptr("question"))
		Expect(err).NotTo(HaveOccurred())

		*conv.InitialQuery = "changed"
		fetched, err := s.GetByID(ctx, conv.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(fetched.InitialQuery).To(HaveValue(Equal("question")))
	})
})
