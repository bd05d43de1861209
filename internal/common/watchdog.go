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
	"sync"
	"time"
)

// WatchdogConfig configures a watchdog timer: OnTimeout fires once Timeout has
// elapsed since the watchdog started, or since the last Notify, whichever is
// later. Used for sessionExpirationTimeout (a Jingle session must reach
// Established before this fires) and singleParticipantTimeout.
type WatchdogConfig struct {
	Timeout   time.Duration
	OnTimeout func()
}

// WatchdogChannel is the handle returned by Start; Notify resets the timer,
// Close stops it permanently.
type WatchdogChannel struct {
	channel chan<- struct{}
	mutex   sync.Mutex
	closed  bool
}

// Close stops the watchdog unless already stopped. Idempotent.
func (c *WatchdogChannel) Close() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.closed {
		close(c.channel)
		c.closed = true
	}
}

// Notify resets the timeout window. Returns false if the watchdog was already closed.
func (c *WatchdogChannel) Notify() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return false
	}

	c.channel <- struct{}{}
	return true
}

// Start begins the watchdog goroutine. It exits once the returned channel is closed.
func (c *WatchdogConfig) Start() *WatchdogChannel {
	incoming := make(chan struct{}, DefaultChannelSize)

	go func() {
		for {
			select {
			case _, ok := <-incoming:
				if !ok {
					return
				}
			case <-time.After(c.Timeout):
				c.OnTimeout()
			}
		}
	}()

	return &WatchdogChannel{channel: incoming}
}
