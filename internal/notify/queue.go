// Copyright 2026 The Crewdesk Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/crewdesk/crewdesk/internal/audit"
	"github.com/crewdesk/crewdesk/internal/observability/logger"
)

// Queue hands messages to a worker goroutine so callers never block on, or
// fail because of, mail delivery. Delivery failures are logged and audited,
// never propagated to the operation that enqueued the message.
type Queue struct {
	mailer      Mailer
	auditLogger audit.Logger
	ch          chan Message
	wg          sync.WaitGroup
	closeOnce   sync.Once
	sendTimeout time.Duration
}

// NewQueue creates a queue with a bounded buffer and starts its worker.
func NewQueue(mailer Mailer, auditLogger audit.Logger, size int, sendTimeout time.Duration) *Queue {
	if size <= 0 {
		size = 64
	}
	if sendTimeout == 0 {
		sendTimeout = 15 * time.Second
	}
	q := &Queue{
		mailer:      mailer,
		auditLogger: auditLogger,
		ch:          make(chan Message, size),
		sendTimeout: sendTimeout,
	}
	q.wg.Add(1)
	go q.run()
	return q
}

// Enqueue hands a message to the worker. A full buffer drops the message
// with an audit record instead of blocking the request.
func (q *Queue) Enqueue(ctx context.Context, msg Message) {
	select {
	case q.ch <- msg:
	default:
		q.reportFailure(ctx, msg, "queue_full")
	}
}

// Close stops accepting messages and drains the buffer.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.ch)
	})
	q.wg.Wait()
}

func (q *Queue) run() {
	defer q.wg.Done()
	for msg := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), q.sendTimeout)
		if err := q.mailer.Send(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "notification delivery failed",
				logger.Component("notify"),
				logger.Recipient(msg.To),
				logger.Subject(msg.Subject),
				logger.Error(err),
			)
			q.reportFailure(ctx, msg, "smtp_error")
		}
		cancel()
	}
}

func (q *Queue) reportFailure(ctx context.Context, msg Message, reason string) {
	q.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeNotificationFailed,
		Resource: msg.Subject,
		Metadata: map[string]any{
			audit.AttrReason: reason,
			"recipient":      msg.To,
		},
	})
}
