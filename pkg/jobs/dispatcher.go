// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package jobs

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/LeeDigitalWorks/zapmedia/pkg/events"
	"github.com/LeeDigitalWorks/zapmedia/pkg/logger"
)

// Dispatcher consumes upload events and fans them out into processing
// jobs. Job IDs are derived from the event ID and job type, so a
// re-delivered event enqueues jobs that the idempotency guard and the
// primary-key constraint collapse into one execution.
type Dispatcher struct {
	queue  Queue
	broker events.Subscriber

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher reading from the broker and writing
// to the queue.
func NewDispatcher(queue Queue, broker events.Subscriber) *Dispatcher {
	return &Dispatcher{queue: queue, broker: broker}
}

// Start subscribes to the uploads topic and dispatches until ctx is
// cancelled.
func (d *Dispatcher) Start(ctx context.Context) error {
	ch, err := d.broker.Subscribe(ctx, events.TopicUploads)
	if err != nil {
		return err
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				d.dispatch(ctx, msg)
			}
		}
	}()
	return nil
}

// Wait blocks until the dispatch loop has exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(ctx context.Context, msg []byte) {
	env, err := events.Unmarshal(msg)
	if err != nil {
		logger.Warn().Err(err).Msg("jobs: dropping undecodable event")
		return
	}
	if env.EventName != events.EventFileUploaded {
		return
	}

	var uploaded events.FileUploadedPayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &uploaded); err != nil {
			logger.Warn().Err(err).Str("event_id", env.EventID).Msg("jobs: bad file.uploaded payload")
			return
		}
	}

	payload, err := MarshalPayload(&ProcessPayload{
		EventID:     env.EventID,
		FileID:      env.FileID,
		TenantID:    env.TenantID,
		StorageKey:  uploaded.StorageKey,
		ContentType: uploaded.ContentType,
		Size:        uploaded.Size,
	})
	if err != nil {
		logger.Error().Err(err).Str("event_id", env.EventID).Msg("jobs: marshal job payload")
		return
	}

	for _, jobType := range JobTypesFor(uploaded.ContentType) {
		job := &Job{
			// Deterministic per event+type: a redelivered event produces
			// the same job ID.
			ID:       env.EventID + ":" + string(jobType),
			Type:     jobType,
			Priority: PriorityNormal,
			Payload:  payload,
		}
		if err := d.queue.Enqueue(ctx, job); err != nil {
			logger.Warn().Err(err).
				Str("event_id", env.EventID).
				Str("type", string(jobType)).
				Msg("jobs: enqueue failed")
			continue
		}
		jobsEnqueuedTotal.WithLabelValues(string(jobType)).Inc()
	}

	logger.Debug().
		Str("event_id", env.EventID).
		Str("file_id", env.FileID).
		Msg("jobs: dispatched processing jobs")
}

// JobTypesFor returns the processing chain for a content type. Every
// file is scanned and triggers a notification; media types additionally
// get derivatives.
func JobTypesFor(contentType string) []JobType {
	types := []JobType{JobTypeScan}

	switch {
	case strings.HasPrefix(contentType, "image/"):
		types = append(types, JobTypeThumbnail, JobTypePreview)
	case strings.HasPrefix(contentType, "video/"), strings.HasPrefix(contentType, "audio/"):
		types = append(types, JobTypeTranscode)
	case contentType == "application/pdf":
		types = append(types, JobTypePreview)
	}

	return append(types, JobTypeNotify)
}
