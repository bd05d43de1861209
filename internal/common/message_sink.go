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

package common

import (
	"errors"
	"sync/atomic"
)

// ErrSinkSealed is returned by MessageSink.Send/TrySend once the sink has been sealed.
var ErrSinkSealed = errors.New("message sink is sealed")

// ErrSinkFull is returned by MessageSink.TrySend when the underlying channel has no
// spare capacity and the caller asked not to block.
var ErrSinkFull = errors.New("message sink is full")

// MessageSink lets many producers push messages onto one consumer channel while
// tagging every message with the (compile-time fixed) identity of its sender.
// It is the mechanism every per-participant/per-bridge/per-session actor uses
// to talk back to its owning conference's single message loop.
type MessageSink[SenderType comparable, MessageType any] struct {
	sender      SenderType
	messageSink chan<- Message[SenderType, MessageType]
	sealed      atomic.Bool
}

// NewMessageSink creates a sink that tags every message sent through it with sender.
func NewMessageSink[S comparable, M any](sender S, messageSink chan<- Message[S, M]) *MessageSink[S, M] {
	return &MessageSink[S, M]{sender: sender, messageSink: messageSink}
}

// Send delivers message to the sink, blocking if it is currently full.
func (s *MessageSink[S, M]) Send(message M) error {
	return s.send(message, false)
}

// TrySend delivers message to the sink without blocking, returning ErrSinkFull
// if there is no room.
func (s *MessageSink[S, M]) TrySend(message M) error {
	return s.send(message, true)
}

func (s *MessageSink[S, M]) send(message M, nonBlocking bool) error {
	if s.sealed.Load() {
		return ErrSinkSealed
	}

	wrapped := Message[S, M]{Sender: s.sender, Content: message}

	if nonBlocking {
		select {
		case s.messageSink <- wrapped:
			return nil
		default:
			return ErrSinkFull
		}
	}

	s.messageSink <- wrapped
	return nil
}

// Seal prevents any further message from being sent through this sink. The
// underlying channel is left open since other senders may still be using it.
func (s *MessageSink[S, M]) Seal() {
	s.sealed.Store(true)
}

// Message wraps an arbitrary payload with the identity of whoever sent it, so a
// single-consumer loop fed by many producers can tell them apart.
type Message[SenderType comparable, MessageType any] struct {
	Sender  SenderType
	Content MessageType
}
