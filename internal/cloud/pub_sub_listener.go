// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Analyze requests can also arrive over Pub/Sub. A PubSubListener feeds each
// message body to the ad-script workflow and acknowledges it unless a
// redelivery could succeed where this attempt failed.

package cloud

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/jaycherian/gcp-go-adscript/internal/core/cor"
	"github.com/jaycherian/gcp-go-adscript/internal/core/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PubSubListener connects a subscription to the command that processes its
// messages. Its life-cycle is the server's, not a request's.
type PubSubListener struct {
	client       *pubsub.Client
	subscription *pubsub.Subscription
	command      cor.Command
	timeout      time.Duration // per message, zero for none
}

// NewPubSubListener creates a listener on subscriptionID. The command may be
// nil and attached later with SetCommand.
//
// Inputs:
//   - pubsubClient: The client that owns the subscription.
//   - subscriptionID: The subscription to receive from.
//   - command: The chain run for every message.
//
// Outputs:
//   - cmd: The listener. Nothing is received until Listen is called.
//   - err: Reserved for subscription setup failures.
func NewPubSubListener(
	pubsubClient *pubsub.Client,
	subscriptionID string,
	command cor.Command,
) (cmd *PubSubListener, err error) {
	cmd = &PubSubListener{
		client:       pubsubClient,
		subscription: pubsubClient.Subscription(subscriptionID),
		command:      command,
	}
	return cmd, nil
}

// SetCommand attaches a command to the listener unless one is already set.
// Listeners are created with the clients, before the workflows exist.
func (m *PubSubListener) SetCommand(command cor.Command) {
	if m.command == nil {
		m.command = command
	}
}

// SetTimeout bounds the processing of each message.
func (m *PubSubListener) SetTimeout(timeout time.Duration) {
	m.timeout = timeout
}

// Listen starts receiving messages in a background goroutine. Receiving
// stops when ctx is canceled.
func (m *PubSubListener) Listen(ctx context.Context) {
	if m.command == nil {
		slog.Warn("pubsub listener has no command, not listening", "subscription", m.subscription.ID())
		return
	}
	slog.Info("listening", "subscription", m.subscription.ID())

	go func() {
		tracer := otel.Tracer("message-listener")
		err := m.subscription.Receive(ctx, func(_ context.Context, msg *pubsub.Message) {
			spanCtx, span := tracer.Start(ctx, "receive-message")
			defer span.End()
			span.SetAttributes(attribute.String("msg_id", msg.ID))
			if msg.DeliveryAttempt != nil {
				span.SetAttributes(attribute.Int("delivery_attempt", *msg.DeliveryAttempt))
			}
			if m.timeout > 0 {
				var cancel context.CancelFunc
				spanCtx, cancel = context.WithTimeout(spanCtx, m.timeout)
				defer cancel()
			}
			slog.InfoContext(spanCtx, "received message", "subscription", m.subscription.ID(), "msg_id", msg.ID)

			errs := m.process(spanCtx, msg.Data)
			if len(errs) == 0 {
				span.SetStatus(codes.Ok, "success")
				msg.Ack()
				return
			}
			span.SetStatus(codes.Error, "failed")
			for name, e := range errs {
				slog.ErrorContext(spanCtx, "error executing chain", "command", name, "error", e)
			}
			if ShouldAck(errs) {
				msg.Ack()
				return
			}
			// Left unacknowledged, the message is redelivered after its ack deadline.
			slog.WarnContext(spanCtx, "message will be redelivered", "msg_id", msg.ID)
		})
		if err != nil {
			slog.Error("error receiving data", "subscription", m.subscription.ID(), "error", err)
		}
	}()
}

func (m *PubSubListener) process(ctx context.Context, data []byte) map[string]error {
	chainCtx := cor.NewBaseContext()
	defer chainCtx.Close()
	chainCtx.SetContext(ctx)
	chainCtx.Add(cor.CtxIn, string(data))
	m.command.Execute(chainCtx)
	return chainCtx.GetErrors()
}

// ShouldAck reports whether a message whose processing recorded errs should
// be acknowledged. Only retryable failures are left for redelivery, and a
// canceled run never is: it was stopped on purpose.
//
// Inputs:
//   - errs: The errors recorded by the chain, keyed by command name.
//
// Outputs:
//   - true to Ack, false to Nack.
func ShouldAck(errs map[string]error) bool {
	for _, e := range errs {
		if model.IsRetryable(e) && !errors.Is(e, context.Canceled) {
			return false
		}
	}
	return true
}
