// Package scheduler drives every periodic loop a running node needs:
// advertising routes, aging the route table, polling peers' backlogs,
// dispatching the local backlog, and aging the broadcast dedup
// history. Each loop owns its own ticker so a slow one never stalls
// the others.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/route-beacon/meshd/internal/backlog"
	"github.com/route-beacon/meshd/internal/broadcast"
	"github.com/route-beacon/meshd/internal/config"
	"github.com/route-beacon/meshd/internal/message"
	"github.com/route-beacon/meshd/internal/metrics"
	"github.com/route-beacon/meshd/internal/peer"
	"github.com/route-beacon/meshd/internal/processor"
	"github.com/route-beacon/meshd/internal/route"
	"github.com/route-beacon/meshd/internal/state"
)

// Sender delivers a collection to a peer's url.
type Sender interface {
	Send(ctx context.Context, url string, mc message.MessageCollection) (message.MessageCollection, error)
}

// Clock returns unix millis, overridable in tests.
type Clock func() int64

type Scheduler struct {
	State     *state.State
	Config    *config.Config
	LocalID   string
	Sender    Sender
	Processor *processor.Processor
	Backlog   *backlog.Engine
	Log       *zap.Logger
	Now       Clock
}

func (s *Scheduler) now() int64 {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UnixMilli()
}

func (s *Scheduler) logger() *zap.Logger {
	if s.Log != nil {
		return s.Log
	}
	return zap.NewNop()
}

// Run blocks until ctx is canceled, driving all five loops concurrently.
func (s *Scheduler) Run(ctx context.Context) {
	go s.loop(ctx, "advertise", s.Config.AdvertisePeriod(), s.advertiseOnce)
	go s.loop(ctx, "age_routes", s.Config.RouteAgePeriod(), s.ageRoutesOnce)
	go s.loop(ctx, "poll_backlogs", s.Config.PollBacklogPeriod(), s.pollBacklogsOnce)
	go s.loop(ctx, "process_backlog", s.Config.BacklogPeriod(), s.processBacklogOnce)
	go s.loop(ctx, "age_broadcast_history", s.Config.BroadcastHistoryPeriod(), s.ageBroadcastHistoryOnce)
	<-ctx.Done()
}

func (s *Scheduler) loop(ctx context.Context, name string, period time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// advertiseOnce sends the current route table to every known peer and
// feeds each reply back into the processor, per 4.C.
func (s *Scheduler) advertiseOnce(ctx context.Context) {
	if s.Sender == nil {
		return
	}
	adv := route.BuildAdvertisement(s.State)
	for _, p := range peer.All(s.State) {
		if p.URL == "" {
			continue
		}
		mc := message.MessageCollection{
			OriginID: s.LocalID, DestinationID: p.ID, HasDestination: p.ID != "",
			Messages: []message.Message{{Kind: message.KindRouteAdvertisement, RouteAdvertisement: &adv}},
		}
		reply, err := s.Sender.Send(ctx, p.URL, mc)
		if err != nil {
			if removed := route.RemoveByURL(s.State, p.URL); removed > 0 {
				metrics.RoutesRemovedByURLTotal.Add(float64(removed))
				s.logger().Warn("advertise: peer unreachable, routes removed",
					zap.String("peer", p.ID), zap.String("url", p.URL), zap.Int("removed", removed), zap.Error(err))
			}
			continue
		}
		peer.Learn(s.State, reply.OriginID, p.URL)
		if s.Processor != nil && len(reply.Messages) > 0 {
			s.Processor.Process(reply)
		}
	}
}

func (s *Scheduler) ageRoutesOnce(_ context.Context) {
	evicted := route.Age(s.State, s.Config.MaxRouteWeight)
	if evicted > 0 {
		metrics.RoutesAgedOutTotal.Add(float64(evicted))
		s.logger().Debug("aged out routes", zap.Int("count", evicted))
	}
	metrics.RouteTableSize.Set(float64(len(route.Snapshot(s.State))))
}

func (s *Scheduler) pollBacklogsOnce(ctx context.Context) {
	if s.Backlog == nil {
		return
	}
	if err := s.Backlog.PollPeers(ctx, s.State, s.LocalID); err != nil {
		s.logger().Warn("poll backlogs failed", zap.Error(err))
	}
}

func (s *Scheduler) processBacklogOnce(ctx context.Context) {
	if s.Backlog == nil {
		return
	}
	start := time.Now()
	if err := s.Backlog.DispatchOnce(ctx, s.State); err != nil {
		s.logger().Warn("backlog dispatch failed", zap.Error(err))
	}
	metrics.BacklogDispatchDuration.Observe(time.Since(start).Seconds())
}

func (s *Scheduler) ageBroadcastHistoryOnce(_ context.Context) {
	evicted := broadcast.AgeHistory(s.State, s.now(), s.Config.BroadcastExpirationMs)
	if evicted > 0 {
		s.logger().Debug("aged out broadcast history entries", zap.Int("count", evicted))
	}
}
