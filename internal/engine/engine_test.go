package engine

import (
	"context"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	dto "github.com/prometheus/client_model/go"

	"pmengine/internal/domain"
	"pmengine/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func queueDepth() float64 {
	GinkgoHelper()
	var m dto.Metric
	Expect(metrics.QueueDepth.Write(&m)).To(Succeed())
	return m.GetGauge().GetValue()
}

func prepareMessage(priority int64, at time.Time) *domain.Message {
	return domain.NewMessageAt(&priority, at, nil)
}

var _ = Describe("Engine", func() {
	var (
		underTest *Engine
		ctx       context.Context
		now       time.Time
	)

	BeforeEach(func() {
		underTest = New(testLogger(), WithDefaultTimeout(200*time.Millisecond))
		ctx = context.Background()
		now = time.Now()
	})

	get := func() *domain.Message {
		GinkgoHelper()
		msg, err := underTest.Get(ctx)
		Expect(err).NotTo(HaveOccurred())
		return msg
	}

	put := func(msgs ...*domain.Message) {
		GinkgoHelper()
		for _, m := range msgs {
			Expect(underTest.Put(ctx, m)).To(Succeed())
		}
	}

	Describe("mode flag", func() {
		It("starts in timestamp mode", func() {
			Expect(underTest.HighPriorityMode()).To(BeFalse())
			Expect(underTest.Ordering()).To(Equal(domain.TimestampOrder))
		})

		It("sets the given priority mode flag", func() {
			Expect(underTest.SetMode(ctx, true)).To(Succeed())
			Expect(underTest.HighPriorityMode()).To(BeTrue())
			Expect(underTest.Ordering()).To(Equal(domain.PriorityOrder))
		})

		It("honours the initial mode option", func() {
			e := New(testLogger(), WithHighPriorityMode(true))
			Expect(e.HighPriorityMode()).To(BeTrue())
		})

		It("treats setting the current mode as a no-op", func() {
			record, err := underTest.SwitchMode(ctx, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(record).To(BeNil())
			Expect(underTest.Stats().Switches).To(BeZero())

			Expect(underTest.SetMode(ctx, true)).To(Succeed())
			record, err = underTest.SwitchMode(ctx, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(record).To(BeNil())
			Expect(underTest.Stats().Switches).To(Equal(int64(1)))
		})
	})

	Describe("put and get", func() {
		It("returns the inserted message in high priority mode", func() {
			msg := domain.NewMessage(nil)
			Expect(underTest.SetMode(ctx, true)).To(Succeed())
			put(msg)
			Expect(get()).To(BeIdenticalTo(msg))
		})

		It("returns the inserted message in timestamp mode", func() {
			msg := domain.NewMessage(nil)
			put(msg)
			Expect(get()).To(BeIdenticalTo(msg))
		})

		It("rejects a nil message", func() {
			Expect(underTest.Put(ctx, nil)).To(MatchError(ErrNilMessage))
		})

		It("consumes according to priority in high priority mode", func() {
			low := prepareMessage(3, now)
			high := prepareMessage(10, now)

			Expect(underTest.SetMode(ctx, true)).To(Succeed())
			put(low, high)

			Expect(get()).To(BeIdenticalTo(high))
			Expect(get()).To(BeIdenticalTo(low))
		})

		It("consumes according to priority then date in high priority mode", func() {
			hourBack := prepareMessage(10, now.Add(-time.Hour))
			hourAhead := prepareMessage(10, now.Add(time.Hour))
			minutesBack := prepareMessage(10, now.Add(-150*time.Second))
			low := prepareMessage(3, now)

			Expect(underTest.SetMode(ctx, true)).To(Succeed())
			put(hourBack, hourAhead, minutesBack, low)

			Expect(get()).To(BeIdenticalTo(hourBack))
			Expect(get()).To(BeIdenticalTo(minutesBack))
			Expect(get()).To(BeIdenticalTo(hourAhead))
			Expect(get()).To(BeIdenticalTo(low))
		})

		It("consumes according to date in timestamp mode", func() {
			hourBack := prepareMessage(5, now.Add(-time.Hour))
			hourAhead := prepareMessage(5, now.Add(time.Hour))
			minutesBack := prepareMessage(5, now.Add(-150*time.Second))

			put(hourBack, hourAhead, minutesBack)

			Expect(get()).To(BeIdenticalTo(hourBack))
			Expect(get()).To(BeIdenticalTo(minutesBack))
			Expect(get()).To(BeIdenticalTo(hourAhead))
		})

		It("delivers a random batch in exactly the active order", func() {
			rng := rand.New(rand.NewSource(42))
			for _, high := range []bool{false, true} {
				Expect(underTest.SetMode(ctx, high)).To(Succeed())

				msgs := make([]*domain.Message, 200)
				for i := range msgs {
					msgs[i] = prepareMessage(int64(rng.Intn(5)), now.Add(time.Duration(rng.Intn(50))*time.Second))
				}
				put(msgs...)

				ordering := domain.OrderingForMode(high)
				want := append([]*domain.Message(nil), msgs...)
				sort.SliceStable(want, func(i, j int) bool {
					return ordering.Less(want[i], want[j])
				})

				for i := range want {
					Expect(get()).To(BeIdenticalTo(want[i]), "position %d", i)
				}
			}
		})
	})

	Describe("switching modes mid-stream", func() {
		It("reorders pending messages under the new policy", func() {
			hourBack := now.Add(-time.Hour)
			hourAhead := now.Add(time.Hour)
			minutesBack := now.Add(-150 * time.Second)

			highHourBack := prepareMessage(9, hourBack)
			highHourAhead := prepareMessage(9, hourAhead)
			lowMinutesBackFirst := prepareMessage(2, minutesBack)
			mediumHourBack := prepareMessage(5, hourBack)
			mediumHourAhead := prepareMessage(5, hourAhead)
			mediumMinutesBack := prepareMessage(5, minutesBack)
			lowHourBack := prepareMessage(2, hourBack)
			lowHourAhead := prepareMessage(2, hourAhead)
			lowMinutesBack := prepareMessage(2, minutesBack)

			put(
				highHourBack, highHourAhead, lowMinutesBackFirst,
				mediumHourBack, mediumHourAhead, mediumMinutesBack,
				lowHourBack, lowHourAhead, lowMinutesBack,
			)

			Expect(get()).To(BeIdenticalTo(highHourBack))
			Expect(get()).To(BeIdenticalTo(mediumHourBack))
			Expect(get()).To(BeIdenticalTo(lowHourBack))
			Expect(get()).To(BeIdenticalTo(lowMinutesBackFirst))

			record, err := underTest.SwitchMode(ctx, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(record).NotTo(BeNil())
			Expect(record.From).To(BeFalse())
			Expect(record.To).To(BeTrue())
			Expect(record.Moved).To(Equal(5))

			Expect(get()).To(BeIdenticalTo(highHourAhead))
			Expect(get()).To(BeIdenticalTo(mediumMinutesBack))
			Expect(get()).To(BeIdenticalTo(mediumHourAhead))
			Expect(get()).To(BeIdenticalTo(lowMinutesBack))
			Expect(get()).To(BeIdenticalTo(lowHourAhead))
			Expect(get()).To(BeNil())
		})

		It("orders messages put after a switch together with carried-over ones", func() {
			old := prepareMessage(1, now.Add(-time.Hour))
			put(old)

			Expect(underTest.SetMode(ctx, true)).To(Succeed())
			newer := prepareMessage(7, now)
			put(newer)

			Expect(get()).To(BeIdenticalTo(newer))
			Expect(get()).To(BeIdenticalTo(old))
		})

		It("neither loses nor duplicates pending messages", func() {
			pending := make(map[*domain.Message]int)
			for i := 0; i < 500; i++ {
				m := prepareMessage(int64(i%7), now.Add(time.Duration(i%13)*time.Millisecond))
				pending[m] = 0
				put(m)
			}

			Expect(underTest.SetMode(ctx, true)).To(Succeed())
			Expect(underTest.SetMode(ctx, false)).To(Succeed())
			Expect(underTest.SetMode(ctx, true)).To(Succeed())
			Expect(underTest.Len()).To(Equal(500))

			for {
				msg, err := underTest.Poll(ctx, 0)
				Expect(err).NotTo(HaveOccurred())
				if msg == nil {
					break
				}
				pending[msg]++
			}
			for _, count := range pending {
				Expect(count).To(Equal(1))
			}
		})
	})

	Describe("timeouts", func() {
		It("returns empty only after the timeout elapsed", func() {
			start := time.Now()
			msg, err := underTest.Poll(ctx, 100*time.Millisecond)
			Expect(err).NotTo(HaveOccurred())
			Expect(msg).To(BeNil())
			Expect(time.Since(start)).To(BeNumerically(">=", 100*time.Millisecond))
		})

		It("starts the timeout only once a switch in progress has finished", func() {
			underTest.gate.Raise()
			go func() {
				time.Sleep(150 * time.Millisecond)
				underTest.gate.Lower()
			}()

			start := time.Now()
			msg, err := underTest.Poll(ctx, 20*time.Millisecond)
			Expect(err).NotTo(HaveOccurred())
			Expect(msg).To(BeNil())
			Expect(time.Since(start)).To(BeNumerically(">=", 170*time.Millisecond))
		})

		It("uses the default timeout for Get", func() {
			start := time.Now()
			Expect(get()).To(BeNil())
			Expect(time.Since(start)).To(BeNumerically(">=", 200*time.Millisecond))
		})

		It("wakes a waiting consumer when a message arrives", func() {
			msg := domain.NewMessage(nil)
			got := make(chan *domain.Message, 1)
			go func() {
				defer GinkgoRecover()
				m, err := underTest.Poll(ctx, 5*time.Second)
				Expect(err).NotTo(HaveOccurred())
				got <- m
			}()

			time.Sleep(20 * time.Millisecond)
			put(msg)
			Eventually(got).Should(Receive(BeIdenticalTo(msg)))
		})

		It("is not delayed by consumers waiting for content", func() {
			done := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				_, _ = underTest.Poll(ctx, 5*time.Second)
				close(done)
			}()
			time.Sleep(20 * time.Millisecond)

			start := time.Now()
			Expect(underTest.SetMode(ctx, true)).To(Succeed())
			Expect(time.Since(start)).To(BeNumerically("<", time.Second))

			msg := domain.NewMessage(nil)
			put(msg)
			Eventually(done).Should(BeClosed())
		})
	})

	Describe("depth gauge", func() {
		It("follows the engine depth through puts, gets and switches", func() {
			put(
				prepareMessage(1, now),
				prepareMessage(2, now.Add(time.Millisecond)),
				prepareMessage(3, now.Add(2*time.Millisecond)),
			)
			Expect(queueDepth()).To(BeEquivalentTo(underTest.Stats().Depth))
			Expect(queueDepth()).To(BeEquivalentTo(3))

			Expect(get()).NotTo(BeNil())
			Expect(queueDepth()).To(BeEquivalentTo(2))

			Expect(underTest.SetMode(ctx, true)).To(Succeed())
			Expect(queueDepth()).To(BeEquivalentTo(underTest.Stats().Depth))
			Expect(queueDepth()).To(BeEquivalentTo(2))
		})
	})

	Describe("cancellation", func() {
		It("returns the context error from a blocked put without leaking a token", func() {
			underTest.gate.Raise()
			defer underTest.gate.Lower()

			cctx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
			defer cancel()

			err := underTest.Put(cctx, domain.NewMessage(nil))
			Expect(err).To(MatchError(context.DeadlineExceeded))
			Expect(underTest.Stats().InFlight).To(BeZero())
			Expect(underTest.Len()).To(BeZero())
		})

		It("returns the context error from a blocked get without leaking a token", func() {
			cctx, cancel := context.WithCancel(ctx)
			go func() {
				time.Sleep(20 * time.Millisecond)
				cancel()
			}()

			msg, err := underTest.Poll(cctx, 5*time.Second)
			Expect(err).To(MatchError(context.Canceled))
			Expect(msg).To(BeNil())
			Expect(underTest.Stats().InFlight).To(BeZero())
		})

		It("leaves the mode unchanged when a switch is abandoned", func() {
			Expect(underTest.gate.Enter(ctx)).To(Succeed())

			cctx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
			defer cancel()

			err := underTest.SetMode(cctx, true)
			Expect(err).To(MatchError(context.DeadlineExceeded))
			Expect(underTest.HighPriorityMode()).To(BeFalse())
			Expect(underTest.Stats().Paused).To(BeFalse())

			underTest.gate.Exit()
			Expect(underTest.SetMode(ctx, true)).To(Succeed())
			Expect(underTest.HighPriorityMode()).To(BeTrue())
		})

		It("admits blocked producers once the switch completes", func() {
			underTest.gate.Raise()

			done := make(chan error, 1)
			go func() {
				done <- underTest.Put(ctx, domain.NewMessage(nil))
			}()
			Consistently(done, 50*time.Millisecond).ShouldNot(Receive())

			underTest.gate.Lower()
			Eventually(done).Should(Receive(BeNil()))
			Expect(underTest.Len()).To(Equal(1))
		})
	})

	Describe("capacity", func() {
		It("blocks put while full and resumes after a get", func() {
			bounded := New(testLogger(), WithCapacity(1))
			Expect(bounded.Put(ctx, domain.NewMessage(nil))).To(Succeed())

			done := make(chan error, 1)
			go func() {
				done <- bounded.Put(ctx, domain.NewMessage(nil))
			}()
			Consistently(done, 50*time.Millisecond).ShouldNot(Receive())

			msg, err := bounded.Poll(ctx, time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(msg).NotTo(BeNil())
			Eventually(done).Should(Receive(BeNil()))
			Expect(bounded.Stats().Capacity).To(Equal(1))
		})

		It("does not drop messages when switching a full engine", func() {
			bounded := New(testLogger(), WithCapacity(2))
			Expect(bounded.Put(ctx, prepareMessage(1, now))).To(Succeed())
			Expect(bounded.Put(ctx, prepareMessage(9, now.Add(time.Second)))).To(Succeed())

			record, err := bounded.SwitchMode(ctx, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Moved).To(Equal(2))
			Expect(bounded.Len()).To(Equal(2))
		})
	})

	Describe("concurrent use", func() {
		It("completes switches under load and delivers every message once", func() {
			const (
				producers   = 8
				consumers   = 4
				perProducer = 2000
			)
			total := producers * perProducer

			var (
				mu   sync.Mutex
				seen = make(map[*domain.Message]int, total)
				wg   sync.WaitGroup
			)

			for p := 0; p < producers; p++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					for i := 0; i < perProducer; i++ {
						Expect(underTest.Put(ctx, prepareMessage(int64(i%10), time.Now()))).To(Succeed())
					}
				}()
			}

			consumed := make(chan struct{})
			var consumedCount int
			for c := 0; c < consumers; c++ {
				go func() {
					defer GinkgoRecover()
					for {
						msg, err := underTest.Poll(ctx, 50*time.Millisecond)
						Expect(err).NotTo(HaveOccurred())
						mu.Lock()
						if msg != nil {
							seen[msg]++
							consumedCount++
						}
						finished := consumedCount >= total
						mu.Unlock()
						if finished {
							select {
							case <-consumed:
							default:
								close(consumed)
							}
							return
						}
						select {
						case <-consumed:
							return
						default:
						}
					}
				}()
			}

			stopSwitching := make(chan struct{})
			switcherDone := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				defer close(switcherDone)
				mode := false
				for {
					select {
					case <-stopSwitching:
						return
					case <-time.After(5 * time.Millisecond):
					}
					mode = !mode
					Expect(underTest.SetMode(ctx, mode)).To(Succeed())
					Expect(underTest.HighPriorityMode()).To(Equal(mode))
				}
			}()

			wg.Wait()
			Eventually(consumed, 30*time.Second).Should(BeClosed())
			close(stopSwitching)
			Eventually(switcherDone).Should(BeClosed())

			mu.Lock()
			defer mu.Unlock()
			Expect(seen).To(HaveLen(total))
			for _, count := range seen {
				Expect(count).To(Equal(1))
			}
			Expect(underTest.Stats().InFlight).To(BeZero())
		})
	})
})
