package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/nikoksr/notify"
	"github.com/nikoksr/notify/service/mail"

	"github.com/nandanugg/journey-tracker/config"
	"github.com/nandanugg/journey-tracker/module/journey/domain"
)

const lockedSubject = "Last Orders Accepted"

type sender interface {
	Send(ctx context.Context, subject, message string) error
}

// lockNotifier mails the configured contacts whenever a waypoint locks.
type lockNotifier struct {
	newSender func() sender
	logger    *slog.Logger
}

func newMailNotifier(cfg *config.Config, logger *slog.Logger) *lockNotifier {
	return &lockNotifier{
		logger: logger,
		newSender: func() sender {
			// a fresh service per send; receivers accumulate across AddReceivers calls
			mailSvc := mail.New(cfg.SMTPFrom, cfg.SMTPHost+":"+strconv.Itoa(cfg.SMTPPort))
			if cfg.SMTPUsername != "" {
				mailSvc.AuthenticateSMTP("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
			}
			mailSvc.AddReceivers(cfg.NotifyTo...)

			n := notify.New()
			n.UseServices(mailSvc)
			return n
		},
	}
}

func lockedMessage(evt *domain.CycleEvent, locked domain.LockNotice) string {
	return fmt.Sprintf(
		"Your town (%s) is now locked for new orders. Existing orders continue.\n\nJourney: %s\nLocked at: %s\nPending orders: %d",
		locked.WaypointName,
		evt.JourneyID,
		locked.LockedAt.UTC().Format("2006-01-02 15:04:05 UTC"),
		len(locked.PendingOrderIDs),
	)
}

func (n *lockNotifier) Handle(ctx context.Context, evt *domain.CycleEvent) {
	for _, locked := range evt.Locked {
		if err := n.newSender().Send(ctx, lockedSubject, lockedMessage(evt, locked)); err != nil {
			n.logger.Error("send email failed",
				"journey_id", evt.JourneyID,
				"waypoint_id", locked.WaypointID,
				"error", err,
			)
			continue
		}
		n.logger.Info("notification sent",
			"journey_id", evt.JourneyID,
			"waypoint_id", locked.WaypointID,
			"pending_orders", len(locked.PendingOrderIDs),
		)
	}
}
