package knowledge_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/concierge/internal/knowledge"
)

var _ = Describe("Watcher", func() {
	var (
		root    string
		watcher *knowledge.Watcher
		ctx     context.Context
		cancel  context.CancelFunc
	)

	BeforeEach(func() {
		root = GinkgoT().TempDir()
		var err error
		watcher, err = knowledge.NewWatcher()
		Expect(err).NotTo(HaveOccurred())
		ctx, cancel = context.WithCancel(context.Background())
	})

	AfterEach(func() {
		cancel()
		_ = watcher.Stop()
	})

	It("reports new knowledge files and skips other extensions", func() {
		events, err := watcher.Watch(ctx, root)
		Expect(err).NotTo(HaveOccurred())

		Expect(os.WriteFile(filepath.Join(root, "notes.json"), []byte("{}"), 0o644)).To(Succeed())
		path := filepath.Join(root, "hours.md")
		Expect(os.WriteFile(path, []byte("# Hours\nWe open at 9am."), 0o644)).To(Succeed())

		var ev knowledge.FileEvent
		Eventually(events, 5*time.Second).Should(Receive(&ev))
		Expect(ev.Path).To(Equal(path))
		Expect(ev.Operation).To(BeElementOf(knowledge.FileCreated, knowledge.FileModified))
	})

	It("reports removals", func() {
		path := filepath.Join(root, "faq.md")
		Expect(os.WriteFile(path, []byte("# FAQ"), 0o644)).To(Succeed())

		events, err := watcher.Watch(ctx, root)
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Remove(path)).To(Succeed())

		Eventually(events, 5*time.Second).Should(Receive(Equal(knowledge.FileEvent{Path: path, Operation: knowledge.FileDeleted})))
	})

	It("closes the channel when the context ends", func() {
		events, err := watcher.Watch(ctx, root)
		Expect(err).NotTo(HaveOccurred())
		cancel()
		Eventually(events, 5*time.Second).Should(BeClosed())
	})
})
