// Package command parses /dzbot chat commands and routes them to PagerDuty
// operations. The grammar is a cobra command tree built per inbound message
// and executed in-process; usage and flag-error text captured from cobra
// becomes the chat-facing reply, with the trigger token as the displayed
// program name.
package command

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dzhang30/DZbot/internal/format"
	"github.com/dzhang30/DZbot/internal/pagerduty"
)

// Trigger is the chat token that addresses the bot.
const Trigger = "/dzbot"

var triggerPattern = regexp.MustCompile(`^` + Trigger + `\s*`)

// verbs is the closed set of actions the bot understands. "help" and bare
// flags fall through to cobra so --help works naturally.
var verbs = map[string]bool{
	"list":           true,
	"override":       true,
	"notify":         true,
	"ensure-oncalls": true,
	"help":           true,
}

// Dispatcher turns one inbound chat command into one outbound reply.
type Dispatcher struct {
	pd  *pagerduty.Client
	log *zap.Logger
}

// NewDispatcher builds a dispatcher over the PagerDuty client.
func NewDispatcher(pd *pagerduty.Client, log *zap.Logger) *Dispatcher {
	return &Dispatcher{pd: pd, log: log}
}

// Reply parses the inbound message and returns the chat reply. senderName
// is the chat display name of the message author, used as the incident
// submitter identity for notify.
func (d *Dispatcher) Reply(ctx context.Context, message, senderName string) string {
	tokens := strings.Fields(triggerPattern.ReplaceAllString(message, ""))
	if len(tokens) == 0 {
		return "can't leave message blank, please enter a command"
	}

	verb := tokens[0]
	if !verbs[verb] && !strings.HasPrefix(verb, "-") {
		return fmt.Sprintf("incorrect action: %s", verb)
	}

	d.log.Info("dispatching command", zap.String("verb", verb), zap.String("sender", senderName))

	var reply string
	var buf bytes.Buffer

	root := d.newRoot(ctx, senderName, &reply)
	root.SetArgs(joinFlagValues(tokens))
	root.SetOut(&buf)
	root.SetErr(&buf)

	err := root.Execute()
	if buf.Len() > 0 {
		return buf.String()
	}
	if err != nil {
		return err.Error()
	}
	return reply
}

func (d *Dispatcher) newRoot(ctx context.Context, senderName string, reply *string) *cobra.Command {
	root := &cobra.Command{
		Use:   Trigger,
		Short: "chat-ops bridge between HipChat and PagerDuty",
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(d.listCmd(ctx, reply))
	root.AddCommand(d.overrideCmd(ctx, reply))
	root.AddCommand(d.notifyCmd(ctx, senderName, reply))
	root.AddCommand(d.ensureOncallsCmd(ctx, reply))

	return root
}

func (d *Dispatcher) listCmd(ctx context.Context, reply *string) *cobra.Command {
	var entity, name string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "list all specified entities or a single entity",
		RunE: func(cmd *cobra.Command, args []string) error {
			entityType, ok := pagerduty.ParseEntityType(entity)
			if !ok {
				return fmt.Errorf("invalid choice %q for --entity (choose from users, eps, services, oncalls, schedules)", entity)
			}
			*reply = d.list(ctx, entityType, name)
			return nil
		},
	}

	cmd.Flags().StringVar(&entity, "entity", "", "entity type: users, eps, services, oncalls or schedules")
	cmd.Flags().StringVar(&name, "name", "", "name of a specific oncalls user or eps policy")
	_ = cmd.MarkFlagRequired("entity")

	return cmd
}

func (d *Dispatcher) overrideCmd(ctx context.Context, reply *string) *cobra.Command {
	var schedule, user, start, end string

	cmd := &cobra.Command{
		Use:   "override",
		Short: "override the current schedule for the specified user",
		RunE: func(cmd *cobra.Command, args []string) error {
			*reply = format.Render(d.pd.OverrideSchedule(ctx, schedule, user, start, end).Content)
			return nil
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "", "schedule name that you want to override")
	cmd.Flags().StringVar(&user, "user", "", "user name")
	cmd.Flags().StringVar(&start, "start", "", "override start time (ISO 8601)")
	cmd.Flags().StringVar(&end, "end", "", "override end time (ISO 8601)")
	_ = cmd.MarkFlagRequired("schedule")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")

	return cmd
}

func (d *Dispatcher) notifyCmd(ctx context.Context, senderName string, reply *string) *cobra.Command {
	var entity, name, service, title, message string

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "send an incident to a user or escalation policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			entityType, ok := pagerduty.ParseEntityType(entity)
			if !ok || (entityType != pagerduty.Users && entityType != pagerduty.EscalationPolicies) {
				return fmt.Errorf("invalid choice %q for --entity (choose from users, eps)", entity)
			}
			*reply = format.Render(d.pd.SendIncident(ctx, entityType, senderName, name, service, title, message).Content)
			return nil
		},
	}

	cmd.Flags().StringVar(&entity, "entity", "", "entity type: users or eps")
	cmd.Flags().StringVar(&name, "name", "", "user name or escalation policy name")
	cmd.Flags().StringVar(&service, "service", "", "impacted service name")
	cmd.Flags().StringVar(&title, "title", "", "title of the incident")
	cmd.Flags().StringVar(&message, "message", "", "body of the incident")
	_ = cmd.MarkFlagRequired("entity")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("service")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("message")

	return cmd
}

func (d *Dispatcher) ensureOncallsCmd(ctx context.Context, reply *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ensure-oncalls",
		Short: "ensure each escalation policy has an oncall level 1 and level 2 user",
		RunE: func(cmd *cobra.Command, args []string) error {
			result := d.pd.EnsureOncalls(ctx)
			if !result.Status.Success {
				*reply = format.Render(result.Status.Content)
				return nil
			}
			*reply = format.Render(result.Names)
			return nil
		},
	}
}

// list handles both shapes of the list verb: with a name, a single-entity
// deep lookup (contact methods for an on-call user, the level map for an
// escalation policy); without one, the plain name listing.
func (d *Dispatcher) list(ctx context.Context, entityType pagerduty.EntityType, name string) string {
	if name == "" {
		result := d.pd.ListAllEntities(ctx, entityType)
		if !result.Status.Success {
			return format.Render(result.Status.Content)
		}
		return format.Render(result.Names)
	}

	switch entityType {
	case pagerduty.Oncalls:
		result := d.pd.ListContactMethods(ctx, name)
		if !result.Status.Success {
			return format.Render(result.Status.Content)
		}
		return format.Render(result.Methods)
	case pagerduty.EscalationPolicies:
		result := d.pd.ListEPByLevel(ctx, name)
		if !result.Status.Success {
			return format.Render(result.Status.Content)
		}
		return result.Levels.String()
	default:
		return fmt.Sprintf("%s is an incorrect entity type", entityType)
	}
}

// joinFlagValues collapses the free tokens following each --flag into one
// value so multi-word names ("--name Web Escalation") survive flag parsing.
func joinFlagValues(tokens []string) []string {
	out := make([]string, 0, len(tokens))

	i := 0
	for i < len(tokens) && !strings.HasPrefix(tokens[i], "--") {
		out = append(out, tokens[i])
		i++
	}
	for i < len(tokens) {
		out = append(out, tokens[i])
		i++

		var value []string
		for i < len(tokens) && !strings.HasPrefix(tokens[i], "--") {
			value = append(value, tokens[i])
			i++
		}
		if len(value) > 0 {
			out = append(out, strings.Join(value, " "))
		}
	}

	return out
}
