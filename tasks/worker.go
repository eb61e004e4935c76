package tasks

import (
	"context"
	"errors"
	"fmt"

	"prago-api/events"
	"prago-api/models"
	"prago-api/store"

	"github.com/rs/zerolog/log"
)

// Worker executes jobs taken off the queue.
type Worker struct {
	store    store.Store
	notifier Notifier
	prober   Prober
	enqueuer Enqueuer
	events   events.Publisher
}

func NewWorker(s store.Store, notifier Notifier, prober Prober, enqueuer Enqueuer, publisher events.Publisher) *Worker {
	return &Worker{store: s, notifier: notifier, prober: prober, enqueuer: enqueuer, events: publisher}
}

// Handle runs one job. A returned error means the job should be dead-lettered.
func (w *Worker) Handle(ctx context.Context, job Job) error {
	switch job.Kind {
	case KindOTPEmail:
		var p OTPEmail
		if err := job.Decode(&p); err != nil {
			return err
		}
		return w.notifier.SendEmail(ctx, p.Email, otpSubject, otpEmailBody(p.Code))
	case KindOTPSMS:
		var p OTPSMS
		if err := job.Decode(&p); err != nil {
			return err
		}
		return w.notifier.SendSMS(ctx, p.Phone, otpSMSText(p.Code))
	case KindEmail:
		var p Email
		if err := job.Decode(&p); err != nil {
			return err
		}
		return w.notifier.SendEmail(ctx, p.To, p.Subject, p.Body)
	case KindEpisodeDuration:
		var p EpisodeDuration
		if err := job.Decode(&p); err != nil {
			return err
		}
		return w.episodeDuration(ctx, p.EpisodeID)
	case KindCourseHours:
		var p CourseHours
		if err := job.Decode(&p); err != nil {
			return err
		}
		return w.courseHours(ctx, p.CourseID)
	case KindPaymentCheck:
		var p PaymentCheck
		if err := job.Decode(&p); err != nil {
			return err
		}
		return w.paymentCheck(ctx, p.OrderID)
	}
	return fmt.Errorf("%w: %q", ErrUnknownKind, job.Kind)
}

func (w *Worker) episodeDuration(ctx context.Context, episodeID int64) error {
	r := w.store.Repos()
	episode, err := r.Courses.GetEpisode(ctx, episodeID)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn().Int64("episode_id", episodeID).Msg("episode vanished before probing")
		return nil
	}
	if err != nil {
		return err
	}
	if episode.Type != models.EpisodeVideo || episode.ContentURL == "" || episode.DurationSeconds != nil {
		return nil
	}

	seconds, err := w.prober.Duration(ctx, episode.ContentURL)
	if err != nil {
		return fmt.Errorf("probe episode %d: %w", episodeID, err)
	}
	if err := r.Courses.UpdateEpisodeDuration(ctx, episodeID, seconds); err != nil {
		return err
	}
	log.Info().Int64("episode_id", episodeID).Int("seconds", seconds).Msg("episode duration updated")

	job, err := NewJob(KindCourseHours, CourseHours{CourseID: episode.CourseID})
	if err != nil {
		return err
	}
	if err := w.enqueuer.Enqueue(ctx, job); err != nil {
		log.Error().Err(err).Int64("course_id", episode.CourseID).Msg("failed to enqueue course hours")
	}
	return nil
}

func (w *Worker) courseHours(ctx context.Context, courseID int64) error {
	r := w.store.Repos()
	episodes, err := r.Courses.ListEpisodes(ctx, courseID)
	if err != nil {
		return err
	}
	hours := models.CourseHours(episodes)
	if err := r.Courses.UpdateTotalHours(ctx, courseID, hours); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	log.Info().Int64("course_id", courseID).Str("hours", hours.String()).Msg("course hours updated")
	return nil
}

// paymentCheck cancels an order that is still pending and has no successful
// transaction.
func (w *Worker) paymentCheck(ctx context.Context, orderID int64) error {
	var canceled *models.Order
	err := w.store.WithTx(ctx, func(r *store.Repos) error {
		order, err := r.Orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderPending {
			return nil
		}
		paid, err := r.Transactions.HasSuccessful(ctx, orderID)
		if err != nil || paid {
			return err
		}
		order.Status = models.OrderCanceled
		if err := r.Orders.UpdateStatus(ctx, order); err != nil {
			return err
		}
		canceled = order
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("payment check for order %d: %w", orderID, err)
	}
	if canceled == nil {
		return nil
	}

	log.Info().Str("order_number", canceled.OrderNumber).Msg("auto-canceled unpaid order")
	if err := w.events.Publish(ctx, events.NewOrderEvent(events.OrderCanceled, canceled)); err != nil {
		log.Error().Err(err).Str("order_number", canceled.OrderNumber).Msg("failed to publish order canceled event")
	}
	return nil
}
