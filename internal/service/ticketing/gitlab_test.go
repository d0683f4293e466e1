package ticketing_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"

	"basegraph.app/concierge/internal/model"
	"basegraph.app/concierge/internal/service/ticketing"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("GitLab ticketing", func() {
	var (
		server   *httptest.Server
		lastPath string
		lastBody map[string]any
		status   int
	)

	BeforeEach(func() {
		status = http.StatusCreated
		lastBody = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lastPath = r.URL.Path
			_ = json.NewDecoder(r.Body).Decode(&lastBody)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			if status == http.StatusCreated {
				_, _ = w.Write([]byte(`{"id": 501, "iid": 7, "web_url": "https://gitlab.example.com/support/desk/-/issues/7"}`))
				return
			}
			_, _ = w.Write([]byte(`{"message": "boom"}`))
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	newTicketing := func() ticketing.Ticketing {
		t, err := ticketing.NewGitLabTicketing(ticketing.GitLabConfig{
			URL:     server.URL,
			Token:   "glpat-test",
			Project: "42",
		})
		Expect(err).NotTo(HaveOccurred())
		return t
	}

	It("opens an issue labelled with the priority", func() {
		ticketID, err := newTicketing().CreateTicket(context.Background(), model.TicketRequest{
			ConversationID: 1234,
			UserID:         "user-1",
			Reason:         "urgent keyword detected",
			Priority:       model.PriorityUrgent,
			Excerpt:        "URGENT: the site is down",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(ticketID).To(Equal("https://gitlab.example.com/support/desk/-/issues/7"))

		Expect(lastPath).To(Equal("/api/v4/projects/42/issues"))
		Expect(lastBody["title"]).To(Equal("[URGENT] Support escalation for conversation 1234"))
		Expect(lastBody["description"]).To(ContainSubstring("> URGENT: the site is down"))
		Expect(lastBody["description"]).To(ContainSubstring("**Reason:** urgent keyword detected"))
		labels := fmt.Sprint(lastBody["labels"])
		Expect(labels).To(ContainSubstring("support"))
		Expect(labels).To(ContainSubstring("escalation"))
		Expect(labels).To(ContainSubstring("priority::urgent"))
	})

	It("reports API failures", func() {
		status = http.StatusInternalServerError
		_, err := newTicketing().CreateTicket(context.Background(), model.TicketRequest{
			ConversationID: 1,
			Priority:       model.PriorityNormal,
		})
		Expect(err).To(HaveOccurred())
	})

	It("requires a token and a project", func() {
		_, err := ticketing.NewGitLabTicketing(ticketing.GitLabConfig{Project: "42"})
		Expect(err).To(HaveOccurred())
		_, err = ticketing.NewGitLabTicketing(ticketing.GitLabConfig{Token: "t"})
		Expect(err).To(HaveOccurred())
	})
})
