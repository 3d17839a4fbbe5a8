package integration

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"pmengine/internal/control"
	"pmengine/internal/domain"
	"pmengine/internal/engine"
	"pmengine/internal/loadgen"
	storemem "pmengine/internal/store/memory"
)

var _ = Describe("Mode Lifecycle Integration", func() {
	var (
		logger     *slog.Logger
		modeStore  *storemem.ModeStore
		switchRepo *storemem.SwitchRepository
	)

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		modeStore = storemem.NewModeStore()
		switchRepo = storemem.NewSwitchRepository()
	})

	Context("When the mode is switched through the control service under load", func() {
		It("should consume every message and record every switch", func() {
			eng := engine.New(logger, engine.WithDefaultTimeout(20*time.Millisecond))
			service := control.NewService(eng, modeStore, switchRepo, logger)
			ctx := context.Background()

			runCfg := loadgen.Config{
				Producers:           10,
				Consumers:           4,
				MessagesPerProducer: 1000,
			}

			var (
				report *loadgen.Report
				runErr error
				wg     sync.WaitGroup
			)
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				report, runErr = loadgen.Run(ctx, eng, runCfg, logger)
			}()

			// Toggle through the control service while the run is going
			switches := 0
			for i := 0; i < 10; i++ {
				sw, err := service.SetMode(ctx, !service.Mode())
				Expect(err).NotTo(HaveOccurred())
				Expect(sw).NotTo(BeNil())
				switches++
				time.Sleep(2 * time.Millisecond)
			}

			wg.Wait()
			Expect(runErr).NotTo(HaveOccurred())
			Expect(report.Produced).To(Equal(runCfg.Total()))
			Expect(report.Consumed).To(Equal(runCfg.Total()))

			history, err := service.History(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(history).To(HaveLen(switches))

			state, err := modeStore.GetMode(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(state).NotTo(BeNil())
			Expect(state.HighPriority).To(Equal(service.Mode()))
		})
	})

	Context("When the engine restarts", func() {
		It("should come back in the persisted mode with an empty queue", func() {
			ctx := context.Background()

			first := engine.New(logger)
			service := control.NewService(first, modeStore, switchRepo, logger)
			Expect(first.Put(ctx, domain.NewPriorityMessage(1, nil))).To(Succeed())
			_, err := service.SetMode(ctx, true)
			Expect(err).NotTo(HaveOccurred())

			// A new process shares the stores but not the messages
			second := engine.New(logger)
			restarted := control.NewService(second, modeStore, switchRepo, logger)
			Expect(restarted.Restore(ctx)).To(Succeed())

			Expect(second.HighPriorityMode()).To(BeTrue())
			Expect(second.Len()).To(Equal(0))
		})
	})

	Context("When messages wait across a switch", func() {
		It("should deliver them in the new order", func() {
			ctx := context.Background()
			eng := engine.New(logger, engine.WithDefaultTimeout(20*time.Millisecond))
			service := control.NewService(eng, modeStore, switchRepo, logger)

			base := time.Now()
			for i, p := range []int64{1, 5, 3} {
				prio := p
				msg := domain.NewMessageAt(&prio, base.Add(time.Duration(i)*time.Millisecond), nil)
				Expect(eng.Put(ctx, msg)).To(Succeed())
			}

			sw, err := service.SetMode(ctx, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(sw.Moved).To(Equal(3))

			var got []int64
			for i := 0; i < 3; i++ {
				msg, err := eng.Get(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(msg).NotTo(BeNil())
				p, _ := msg.PriorityValue()
				got = append(got, p)
			}
			Expect(got).To(Equal([]int64{5, 3, 1}))
		})
	})
})
