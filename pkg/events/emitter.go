// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/LeeDigitalWorks/zapmedia/pkg/logger"
	"github.com/LeeDigitalWorks/zapmedia/pkg/types"
)

// Emitter publishes pipeline events to all configured publishers.
//
// Emit is fire-and-forget: publish failures are logged and counted, never
// returned, so event delivery cannot fail an upload that already
// committed. At-least-once delivery is the contract; consumers
// deduplicate on Envelope.EventID.
type Emitter struct {
	publishers []Publisher
	enabled    bool
}

// NewEmitter creates an emitter fanning out to the given publishers.
func NewEmitter(publishers ...Publisher) *Emitter {
	return &Emitter{publishers: publishers, enabled: len(publishers) > 0}
}

// NoopEmitter returns an emitter that drops all events.
func NoopEmitter() *Emitter {
	return &Emitter{enabled: false}
}

// Emit publishes the event on the topic. A zero EventID is filled in;
// callers that re-emit after a crash pass the original ID so consumers
// can deduplicate.
func (e *Emitter) Emit(ctx context.Context, topic string, env *Envelope) {
	if !e.enabled {
		eventsDroppedTotal.Inc()
		return
	}

	if env.EventID == "" {
		env.EventID = uuid.NewString()
	}
	if env.Timestamp == 0 {
		env.Timestamp = time.Now().UnixMilli()
	}

	data, err := env.Marshal()
	if err != nil {
		eventsErrorsTotal.WithLabelValues("marshal").Inc()
		logger.Warn().Err(err).Str("event", env.EventName).Msg("failed to marshal event")
		return
	}

	for _, pub := range e.publishers {
		if err := pub.Publish(ctx, topic, data); err != nil {
			eventsErrorsTotal.WithLabelValues(pub.Name()).Inc()
			logger.Warn().Err(err).
				Str("event", env.EventName).
				Str("event_id", env.EventID).
				Str("publisher", pub.Name()).
				Msg("failed to publish event")
			continue
		}
		eventsEmittedTotal.WithLabelValues(env.EventName).Inc()
	}
}

// EmitFileUploaded publishes a file.uploaded event for a completed upload.
func (e *Emitter) EmitFileUploaded(ctx context.Context, actor types.Actor, file *types.FileEntity, uploadID string) {
	payload, err := json.Marshal(FileUploadedPayload{
		StorageKey:  file.StorageKey,
		Size:        file.Size,
		ContentType: file.ContentType,
		Checksum:    file.Checksum,
		ETag:        file.ETag,
	})
	if err != nil {
		eventsErrorsTotal.WithLabelValues("marshal").Inc()
		return
	}

	e.Emit(ctx, TopicUploads, &Envelope{
		EventName: EventFileUploaded,
		TenantID:  file.TenantID,
		ActorID:   actor.ActorID,
		FileID:    file.FileID,
		UploadID:  uploadID,
		Payload:   payload,
	})
}
