/*
Copyright 2022 The Matrix.org Foundation C.I.C.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package router owns the top-level fan-out from the messaging substrate
// (spec.md §6) to individual conferences: which room maps to which
// *conference.Conference, and which participant JID belongs to which
// conference, so an inbound session-accept or source delta reaches the
// right actor. It otherwise contains no conferencing logic of its own.
package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/signalmesh/focus/internal/admin"
	"github.com/signalmesh/focus/internal/bridge"
	"github.com/signalmesh/focus/internal/colibri"
	"github.com/signalmesh/focus/internal/conference"
	"github.com/signalmesh/focus/internal/sources"
	"github.com/signalmesh/focus/internal/transport"
	"github.com/sirupsen/logrus"
	"mellium.im/xmpp/jid"
)

// Router dispatches inbound substrate traffic to per-conference actors and
// tears conferences down once their room goes away (spec.md §4.A/§6).
type Router struct {
	substrate     transport.Substrate
	colibri       colibri.Transport
	bridges       *bridge.Registry
	admin         *admin.Manager
	config        conference.Config
	colibriConfig colibri.Config
	log           *logrus.Entry

	mu                     sync.Mutex
	conferences            map[string]*conference.Conference
	participantConferences map[string]string // jid string -> conference id
}

// New builds a Router. substrate is subscribed immediately so that inbound
// per-participant traffic starts flowing to whatever conferences get added.
func New(
	substrate transport.Substrate,
	colibriTransport colibri.Transport,
	bridges *bridge.Registry,
	adminMgr *admin.Manager,
	config conference.Config,
	colibriConfig colibri.Config,
	log *logrus.Entry,
) *Router {
	r := &Router{
		substrate:              substrate,
		colibri:                colibriTransport,
		bridges:                bridges,
		admin:                  adminMgr,
		config:                 config,
		colibriConfig:          colibriConfig,
		log:                    log,
		conferences:            make(map[string]*conference.Conference),
		participantConferences: make(map[string]string),
	}
	substrate.Subscribe(r.handleInbound)
	return r
}

// AddRoom starts a conference for conferenceID backed by room, driving the
// conference's message loop until ctx is cancelled or the room ends.
func (r *Router) AddRoom(ctx context.Context, conferenceID string, room transport.Room) *conference.Conference {
	mgr := colibri.New(conferenceID, r.colibri, r.colibriConfig, r.log.WithField("conference_id", conferenceID))
	c := conference.New(conferenceID, r.config, r.substrate, r.bridges, mgr)

	r.mu.Lock()
	r.conferences[conferenceID] = c
	r.mu.Unlock()

	if r.admin != nil {
		r.admin.RegisterConference(c)
	}

	go c.Run(ctx)
	go r.pumpRoomEvents(conferenceID, c, room)

	return c
}

// pumpRoomEvents feeds room membership events to c and maintains the
// jid->conference routing table, until room.Events() closes (room ended)
// or c itself ends first.
func (r *Router) pumpRoomEvents(conferenceID string, c *conference.Conference, room transport.Room) {
	defer r.removeConference(conferenceID)

	events := room.Events()
	for {
		select {
		case event, ok := <-events:
			if !ok {
				c.HandleMucEvent(transport.MucEvent{Kind: transport.RoomDestroyed})
				return
			}
			r.trackMembership(conferenceID, event)
			c.HandleMucEvent(event)
		case <-c.Done():
			return
		}
	}
}

func (r *Router) trackMembership(conferenceID string, event transport.MucEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch event.Kind {
	case transport.MemberJoined:
		r.participantConferences[event.Member.JID.String()] = conferenceID
	case transport.MemberLeft, transport.RoomDestroyed:
		delete(r.participantConferences, event.Member.JID.String())
	}
}

func (r *Router) removeConference(conferenceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conferences, conferenceID)
	for jidStr, cid := range r.participantConferences {
		if cid == conferenceID {
			delete(r.participantConferences, jidStr)
		}
	}
}

// RunBridgeSweep periodically evicts bridges that have stopped reporting,
// until ctx is cancelled (spec.md §4.D).
func (r *Router) RunBridgeSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.bridges.Sweep(now)
		}
	}
}

// handleInbound demuxes one message received over the substrate. A
// BridgeStatusReport updates the shared bridge registry regardless of which
// conference is using that bridge; everything else is routed to the
// conference owning its sender, logged and dropped when that conference
// can't be found or the shape isn't recognized.
func (r *Router) handleInbound(from jid.JID, msg interface{}) {
	logger := r.log.WithField("from", from.String())

	if report, ok := msg.(transport.BridgeStatusReport); ok {
		r.bridges.ReportStatus(report.JID, report.Stress, report.Region, report.Version, report.RelayID, report.Features, time.Now())
		return
	}

	c, ok := r.conferenceFor(from)
	if !ok {
		logger.Warn("dropping message from an unrecognized participant")
		return
	}

	id := sources.EndpointID(from.String())

	switch m := msg.(type) {
	case transport.SessionAccept:
		c.HandleSessionAccept(id, m.Sources)
	case transport.SourceAdd:
		c.HandleSourceAdd(id, m.Delta)
	case transport.SourceRemove:
		c.HandleSourceRemove(id, m.Delta)
	case transport.TransportInfo:
		c.HandleTransportInfo(id, []byte(m.Description))
	case transport.SessionTerminate:
		c.HandleSessionTerminate(id)
	default:
		logger.WithField("type", fmt.Sprintf("%T", m)).Warn("dropping message of unrecognized shape")
	}
}

func (r *Router) conferenceFor(from jid.JID) (*conference.Conference, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conferenceID, ok := r.participantConferences[from.String()]
	if !ok {
		return nil, false
	}
	c, ok := r.conferences[conferenceID]
	return c, ok
}
