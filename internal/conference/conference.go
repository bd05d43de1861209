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

// Package conference implements the conference controller described in
// spec.md §4.H: one instance per MUC room, owning everything else in this
// module (validator, signaling queues, bridge selection, Colibri
// allocations, Jingle sessions, participant records) and reacting to MUC
// membership and inbound signaling through a single message loop — the
// same "processMessages" shape a teacher repo's router uses, generalized
// from one process-wide router to one instance per conference.
package conference

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/signalmesh/focus/internal/bridge"
	"github.com/signalmesh/focus/internal/colibri"
	"github.com/signalmesh/focus/internal/common"
	"github.com/signalmesh/focus/internal/jingle"
	"github.com/signalmesh/focus/internal/participant"
	"github.com/signalmesh/focus/internal/sources"
	"github.com/signalmesh/focus/internal/sourcequeue"
	"github.com/signalmesh/focus/internal/transport"
	"github.com/signalmesh/focus/internal/validator"
	"github.com/sirupsen/logrus"
)

// Conference owns every piece of state for one MUC room. Every mutation —
// the participant map, the ConferenceSourceMap, per-session state — happens
// inside handle(), driven serially by Run()/Step(); nothing else is allowed
// to touch it directly (spec.md §5).
type Conference struct {
	id     string
	config Config
	state  State
	log    *logrus.Entry

	sourceMap  *validator.ConferenceSourceMap
	bridges    *bridge.Registry
	colibriMgr *colibri.Manager
	substrate  transport.Substrate
	pool       *participant.Pool

	participants  map[sources.EndpointID]*participant.Participant
	inviteCancels map[sources.EndpointID]context.CancelFunc

	// pinnedVersion overrides the bridge version derived from the current
	// participants, set via an admin PinVersion/UnpinVersion call.
	pinnedVersion string

	emptyGrace *common.WatchdogChannel

	inboxSend common.Sender[message]
	inboxRecv common.Receiver[message]

	// inviteResults is fed by a fresh common.MessageSink per invite task
	// (tagged with the participant's id), and drained alongside inbox by
	// Run/Step.
	inviteResults chan common.Message[sources.EndpointID, error]

	done chan struct{}
}

// New creates a Conference in the Starting state and starts its empty-room
// grace watchdog; the caller must run Run(ctx) (or drive it via Step in
// tests) to actually process events.
func New(id string, config Config, substrate transport.Substrate, bridges *bridge.Registry, colibriMgr *colibri.Manager) *Conference {
	inboxSend, inboxRecv := common.NewChannel[message](common.DefaultChannelSize)
	c := &Conference{
		id:            id,
		config:        config,
		state:         Starting,
		log:           logrus.WithField("conf_id", id),
		sourceMap:     validator.New(validator.Config{MaxSourcesPerEndpoint: config.MaxSourcesPerEndpoint, MaxGroupsPerEndpoint: config.MaxGroupsPerEndpoint}),
		bridges:       bridges,
		colibriMgr:    colibriMgr,
		substrate:     substrate,
		pool:          participant.NewPool(config.InviteConcurrency),
		participants:  make(map[sources.EndpointID]*participant.Participant),
		inviteCancels: make(map[sources.EndpointID]context.CancelFunc),
		inboxSend:     inboxSend,
		inboxRecv:     inboxRecv,
		inviteResults: make(chan common.Message[sources.EndpointID, error], common.DefaultChannelSize),
		done:          make(chan struct{}),
	}
	c.startEmptyGraceWatchdog()
	return c
}

// Done is closed once the conference has ended and released every resource.
func (c *Conference) Done() <-chan struct{} { return c.done }

// State returns the conference's current lifecycle state.
func (c *Conference) State() State { return c.state }

// ParticipantCount returns the number of participants currently tracked.
func (c *Conference) ParticipantCount() int { return len(c.participants) }

// ID returns this conference's identifier (the MUC room it's bound to).
func (c *Conference) ID() string { return c.id }

// PinVersion forces every future bridge selection for this conference to
// the given bridge version, regardless of what existing participants are
// already on (admin operation, spec.md §6).
func (c *Conference) PinVersion(version string) { c.post(pinVersionMessage{version: version}) }

// UnpinVersion removes a version pin set by PinVersion, reverting to the
// normal derive-from-current-participants behaviour.
func (c *Conference) UnpinVersion() { c.post(pinVersionMessage{version: ""}) }

// Run drives the message loop until ctx is cancelled or the conference ends.
// Cancelling ctx ends the conference.
func (c *Conference) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.end()
			return
		case <-c.done:
			return
		case msg := <-c.inboxRecv.Channel:
			c.handle(msg)
		case result := <-c.inviteResults:
			c.handleInviteResult(result.Sender, result.Content)
		}
	}
}

// Step processes at most one queued message, for deterministic tests. It
// reports whether a message was processed within timeout.
func (c *Conference) Step(timeout time.Duration) bool {
	select {
	case msg := <-c.inboxRecv.Channel:
		c.handle(msg)
		return true
	case result := <-c.inviteResults:
		c.handleInviteResult(result.Sender, result.Content)
		return true
	case <-time.After(timeout):
		return false
	}
}

// HandleMucEvent enqueues a membership/presence event (spec.md §6 MUC
// abstraction). Safe to call from any goroutine.
func (c *Conference) HandleMucEvent(event transport.MucEvent) { c.post(mucEventMessage{event}) }

// HandleSessionAccept enqueues an inbound session-accept for participant id.
func (c *Conference) HandleSessionAccept(id sources.EndpointID, accepted sources.EndpointSourceSet) {
	c.post(sessionAcceptMessage{id: id, accepted: accepted})
}

// HandleSourceAdd enqueues an inbound source-add for an Established session.
func (c *Conference) HandleSourceAdd(id sources.EndpointID, delta sources.EndpointSourceSet) {
	c.post(sourceAddMessage{id: id, delta: delta})
}

// HandleSourceRemove enqueues an inbound source-remove for an Established session.
func (c *Conference) HandleSourceRemove(id sources.EndpointID, delta sources.EndpointSourceSet) {
	c.post(sourceRemoveMessage{id: id, delta: delta})
}

// HandleTransportInfo enqueues an inbound transport-info for an Established session.
func (c *Conference) HandleTransportInfo(id sources.EndpointID, description []byte) {
	c.post(transportInfoMessage{id: id, description: description})
}

// HandleSessionTerminate enqueues an inbound session-terminate.
func (c *Conference) HandleSessionTerminate(id sources.EndpointID) {
	c.post(sessionTerminateMessage{id: id})
}

func (c *Conference) post(msg message) {
	if dropped := c.inboxSend.TrySend(msg); dropped != nil {
		c.log.Warn("conference inbox full, dropping message")
	}
}

func (c *Conference) handle(msg message) {
	switch m := msg.(type) {
	case mucEventMessage:
		c.handleMucEvent(m.event)
	case sessionAcceptMessage:
		c.handleSessionAccept(m.id, m.accepted)
	case sessionTimeoutMessage:
		c.handleSessionTimeout(m.id)
	case sourceAddMessage:
		c.handleSourceAdd(m.id, m.delta)
	case sourceRemoveMessage:
		c.handleSourceRemove(m.id, m.delta)
	case transportInfoMessage:
		c.handleTransportInfo(m.id, m.description)
	case sessionTerminateMessage:
		c.teardownParticipant(m.id, jingle.ReasonPeerTerminate)
	case emptyGraceExpiredMessage:
		c.handleEmptyGraceExpired()
	case pinVersionMessage:
		c.pinnedVersion = m.version
	default:
		c.log.Errorf("unknown message type: %T", m)
	}
}

func (c *Conference) handleMucEvent(event transport.MucEvent) {
	switch event.Kind {
	case transport.MemberJoined:
		c.handleMemberJoined(event.Member)
	case transport.MemberLeft:
		c.teardownParticipant(sources.EndpointID(event.Member.JID.String()), jingle.ReasonPeerTerminate)
	case transport.MemberRoleChanged, transport.PresenceUpdated:
		// Neither changes any signaling state this controller owns.
	case transport.RoomDestroyed:
		c.end()
	}
}

func (c *Conference) handleMemberJoined(member transport.MemberIdentity) {
	if c.state == Ending {
		c.log.WithField("participant_id", member.JID.String()).Warn("rejecting join: conference ended")
		return
	}
	if c.state == Starting {
		c.state = Running
	}
	c.cancelEmptyGraceWatchdog()

	id := sources.EndpointID(member.JID.String())
	if _, exists := c.participants[id]; exists {
		c.log.WithField("participant_id", id).Warn("duplicate join ignored")
		return
	}

	caps := participant.Capabilities{
		Audio:                                 member.SupportsAudio,
		Video:                                 member.SupportsVideo,
		Data:                                  member.SupportsData,
		StripSimulcast:                        member.StripSimulcast,
		SupportsReceivingMultipleVideoStreams: member.SupportsReceivingMultipleVideoStreams,
		Region:                                member.Region,
	}
	p := participant.New(id, member.JID, caps)
	c.participants[id] = p

	ctx, cancel := context.WithCancel(context.Background())
	c.inviteCancels[id] = cancel

	sink := common.NewMessageSink(id, c.inviteResults)
	c.pool.Submit(ctx, func(ctx context.Context) {
		result := participant.Run(ctx, p, c)
		if sinkErr := sink.Send(result); sinkErr != nil {
			c.log.WithError(sinkErr).WithField("participant_id", id).Warn("could not report invite result")
		}
	})
}

func (c *Conference) handleInviteResult(id sources.EndpointID, err error) {
	delete(c.inviteCancels, id)
	if err == nil {
		return
	}

	p, ok := c.participants[id]
	if !ok {
		return
	}
	c.log.WithError(err).WithField("participant_id", id).Info("invite task did not reach established")
	delete(c.participants, id)
	p.Session.Terminate(jingle.ReasonUnspecified)
	c.maybeStartEmptyGrace()
}

func (c *Conference) handleSessionAccept(id sources.EndpointID, accepted sources.EndpointSourceSet) {
	p, ok := c.participants[id]
	if !ok {
		c.log.WithField("participant_id", id).Warn("session-accept for unknown participant")
		return
	}

	err := participant.HandleAccept(p, accepted,
		func(delta sources.EndpointSourceSet) (sources.EndpointSourceSet, error) {
			return c.applyAccepted(id, delta)
		},
		func() { c.broadcastAdd(id, id, c.sourceMap.Get(id)) },
	)
	if err != nil {
		c.log.WithError(err).WithField("participant_id", id).Warn("session-accept rejected")
		return
	}
	p.Session.Ack()
}

func (c *Conference) handleSessionTimeout(id sources.EndpointID) {
	p, ok := c.participants[id]
	if !ok {
		return
	}
	if err := p.Session.Timeout(); err != nil {
		// Already moved past OfferSent (e.g. raced with an Accept); ignore.
		return
	}
	c.colibriMgr.Expire(context.Background(), string(id)) //nolint:errcheck
	delete(c.participants, id)
	c.maybeStartEmptyGrace()
}

func (c *Conference) handleSourceAdd(id sources.EndpointID, delta sources.EndpointSourceSet) {
	p, ok := c.participants[id]
	if !ok {
		return
	}
	if err := p.Session.RequireEstablished(); err != nil {
		c.log.WithError(err).WithField("participant_id", id).Warn("source-add outside established session")
		return
	}
	p.Session.Ack()

	accepted, err := c.applyAccepted(id, delta)
	if err != nil {
		c.log.WithError(err).WithField("participant_id", id).Warn("source-add rejected")
		return
	}
	c.broadcastAdd(id, id, accepted)
}

func (c *Conference) handleSourceRemove(id sources.EndpointID, delta sources.EndpointSourceSet) {
	p, ok := c.participants[id]
	if !ok {
		return
	}
	if err := p.Session.RequireEstablished(); err != nil {
		c.log.WithError(err).WithField("participant_id", id).Warn("source-remove outside established session")
		return
	}
	p.Session.Ack()

	removed, err := c.sourceMap.TryRemove(id, delta)
	if err != nil {
		c.log.WithError(err).WithField("participant_id", id).Warn("source-remove rejected")
		return
	}
	c.broadcastRemove(id, id, removed)
}

func (c *Conference) handleTransportInfo(id sources.EndpointID, description []byte) {
	p, ok := c.participants[id]
	if !ok {
		return
	}
	if err := p.Session.RequireEstablished(); err != nil {
		return
	}
	p.Session.Ack()
	if err := c.colibriMgr.UpdateTransport(context.Background(), string(id), colibri.TransportDescription(description)); err != nil {
		c.log.WithError(err).WithField("participant_id", id).Warn("failed to forward transport-info to bridge")
	}
}

func (c *Conference) teardownParticipant(id sources.EndpointID, reason jingle.TerminationReason) {
	p, ok := c.participants[id]
	if !ok {
		return
	}
	if cancel, ok := c.inviteCancels[id]; ok {
		cancel()
		delete(c.inviteCancels, id)
	}

	wasEstablished := p.Session.State() == jingle.Established
	p.Session.Terminate(reason)
	removed := c.sourceMap.RemoveEndpoint(id)
	delete(c.participants, id)

	if wasEstablished && !removed.Empty() {
		c.broadcastRemove(id, id, removed)
	}

	c.colibriMgr.Expire(context.Background(), string(id)) //nolint:errcheck
	c.maybeStartEmptyGrace()
}

func (c *Conference) applyAccepted(id sources.EndpointID, delta sources.EndpointSourceSet) (sources.EndpointSourceSet, error) {
	if err := c.checkSenderLimits(id, delta); err != nil {
		return sources.EndpointSourceSet{}, err
	}
	return c.sourceMap.TryAdd(id, delta)
}

// checkSenderLimits enforces maxAudioSenders/maxVideoSenders (spec.md §4.H)
// before delta ever reaches the validator: a sender is an endpoint
// publishing at least one source of that media type, and the count is
// checked against the conference-wide total delta would produce if accepted.
func (c *Conference) checkSenderLimits(id sources.EndpointID, delta sources.EndpointSourceSet) error {
	audioSenders := make(map[sources.EndpointID]struct{})
	videoSenders := make(map[sources.EndpointID]struct{})

	view := c.sourceMap.View()
	for _, otherID := range view.Endpoints() {
		countSenders(view.Get(otherID), otherID, audioSenders, videoSenders)
	}
	countSenders(delta, id, audioSenders, videoSenders)

	if c.config.MaxAudioSenders > 0 && len(audioSenders) > c.config.MaxAudioSenders {
		return fmt.Errorf("%w: audio senders=%d max=%d", ErrSenderCountExceeded, len(audioSenders), c.config.MaxAudioSenders)
	}
	if c.config.MaxVideoSenders > 0 && len(videoSenders) > c.config.MaxVideoSenders {
		return fmt.Errorf("%w: video senders=%d max=%d", ErrSenderCountExceeded, len(videoSenders), c.config.MaxVideoSenders)
	}
	return nil
}

func countSenders(set sources.EndpointSourceSet, id sources.EndpointID, audio, video map[sources.EndpointID]struct{}) {
	for _, s := range set.Sources() {
		switch s.MediaType {
		case sources.Audio:
			audio[id] = struct{}{}
		case sources.Video:
			video[id] = struct{}{}
		}
	}
}

func (c *Conference) broadcastAdd(exclude, owner sources.EndpointID, accepted sources.EndpointSourceSet) {
	if accepted.Empty() {
		return
	}
	delta := sources.NewView(map[sources.EndpointID]sources.EndpointSourceSet{owner: accepted})
	c.broadcast(exclude, func(p *participant.Participant) { p.Signaling.AddSources(delta) })
}

func (c *Conference) broadcastRemove(exclude, owner sources.EndpointID, removed sources.EndpointSourceSet) {
	if removed.Empty() {
		return
	}
	delta := sources.NewView(map[sources.EndpointID]sources.EndpointSourceSet{owner: removed})
	c.broadcast(exclude, func(p *participant.Participant) { p.Signaling.RemoveSources(delta) })
}

func (c *Conference) broadcast(exclude sources.EndpointID, mutate func(*participant.Participant)) {
	for otherID, other := range c.participants {
		if otherID == exclude || other.Session.State() != jingle.Established {
			continue
		}
		mutate(other)
		c.transmitUpdates(other)
	}
}

func (c *Conference) transmitUpdates(p *participant.Participant) {
	ctx := context.Background()
	for _, update := range p.Signaling.Update() {
		flattened := update.Sources.Flatten()
		var err error
		switch update.Action {
		case sourcequeue.Add:
			err = c.substrate.SendAndForget(ctx, p.JID, transport.SourceAdd{Peer: p.JID, Delta: flattened})
		default: // sourcequeue.Remove
			err = c.substrate.SendAndForget(ctx, p.JID, transport.SourceRemove{Peer: p.JID, Delta: flattened})
		}
		if err != nil {
			c.log.WithError(err).WithField("participant_id", p.ID).Warn("failed to transmit signaling update")
			continue
		}
		p.Session.RecordSend()
	}
}

// maybeStartEmptyGrace is invoked whenever the participant count may have
// dropped to zero. The grace period (spec.md §4.H) only ever applies before
// the first participant has joined: once the conference has left Starting,
// draining back to zero ends it immediately, with no second grace window.
func (c *Conference) maybeStartEmptyGrace() {
	if len(c.participants) != 0 || c.state == Ending {
		return
	}
	if c.state == Starting {
		if c.emptyGrace == nil {
			c.startEmptyGraceWatchdog()
		}
		return
	}
	c.end()
}

func (c *Conference) startEmptyGraceWatchdog() {
	cfg := common.WatchdogConfig{
		Timeout:   c.config.SingleParticipantTimeout,
		OnTimeout: func() { c.post(emptyGraceExpiredMessage{}) },
	}
	c.emptyGrace = cfg.Start()
}

func (c *Conference) cancelEmptyGraceWatchdog() {
	if c.emptyGrace != nil {
		c.emptyGrace.Close()
		c.emptyGrace = nil
	}
}

func (c *Conference) handleEmptyGraceExpired() {
	c.emptyGrace = nil
	if len(c.participants) == 0 && c.state == Starting {
		c.end()
	}
}

func (c *Conference) end() {
	if c.state == Ending {
		return
	}
	c.state = Ending
	c.cancelEmptyGraceWatchdog()

	for id, cancel := range c.inviteCancels {
		cancel()
		delete(c.inviteCancels, id)
	}
	c.colibriMgr.ExpireConference(context.Background())
	c.inboxRecv.Close()
	close(c.done)
}

// offerPayload is the opaque blob forwarded to a bridge as the Colibri
// offer; the actual SDP/Colibri encoding is an external collaborator's job.
func offerPayload(contents []string) colibri.Offer {
	data, err := json.Marshal(contents)
	if err != nil {
		return nil
	}
	return data
}
