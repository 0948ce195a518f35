package pagerduty

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/dzhang30/DZbot/internal/config"
	"github.com/dzhang30/DZbot/internal/status"
)

// Notifier dispatches a chat room notification. Satisfied by the hipchat
// client.
type Notifier interface {
	SendRoomNotification(ctx context.Context, room, message, color string) status.Status
}

// Monitor runs the scheduled primary/secondary on-call audit and notifies
// the configured room about deficient monitored policies.
type Monitor struct {
	pd       *Client
	notifier Notifier
	room     string
	policies map[string]bool
	log      *zap.Logger
}

// NewMonitor builds a monitor over the configured policy allow-list.
func NewMonitor(pd *Client, notifier Notifier, cfg *config.Config, log *zap.Logger) *Monitor {
	policies := make(map[string]bool, len(cfg.MonitoredEPs))
	for _, name := range cfg.MonitoredEPs {
		policies[name] = true
	}
	return &Monitor{
		pd:       pd,
		notifier: notifier,
		room:     cfg.MonitorRoom,
		policies: policies,
		log:      log,
	}
}

// Run audits every escalation policy and sends one room notification per
// monitored policy that is missing its primary or secondary on-call. The
// pass succeeds regardless of how many policies are deficient; it fails
// only if the audit itself or a notification dispatch fails.
func (m *Monitor) Run(ctx context.Context) status.Status {
	audit := m.pd.EnsureOncalls(ctx)
	if !audit.Status.Success {
		return status.Fail("%s", audit.Status.Content)
	}

	for _, line := range audit.Names {
		policyName := strings.SplitN(line, ":", 2)[0]
		if !m.policies[policyName] {
			continue
		}

		m.log.Info("monitored policy deficient", zap.String("policy", policyName))
		if sent := m.notifier.SendRoomNotification(ctx, m.room, line, "yellow"); !sent.Success {
			return status.Fail("%s", sent.Content)
		}
	}

	return status.OK("Monitored successfully")
}
