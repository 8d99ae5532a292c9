// Package services – ReminderService
//
// This file implements the ReminderService, which drives the delayed
// reminder conversation: offering preset delays, collecting a custom delay,
// collecting the reminder text, and handing the finished job to the
// scheduler. Once scheduled, a job is owned entirely by the scheduler: the
// user cannot cancel it and later conversation activity does not affect it.
package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-support-bot/internal/conversation"
	"github.com/tbourn/go-support-bot/internal/messaging"
)

// ReminderScheduler is the contract the reminder flow needs from the
// scheduler component: fire-and-forget registration of one future delivery.
type ReminderScheduler interface {
	// Schedule registers a single delivery of text to chatID after delay
	// and returns the job id.
	Schedule(chatID int64, delay time.Duration, text string) string
}

// payloadKeyMinutes is the scratch-payload key holding the chosen delay.
const payloadKeyMinutes = "minutes"

// CustomDelayData is the callback payload of the "custom delay" choice.
const CustomDelayData = "rem:custom"

// PresetDelayData builds the callback payload for a preset delay choice.
func PresetDelayData(minutes int) string {
	return fmt.Sprintf("rem:%d", minutes)
}

// ReminderService implements the reminder conversation flow.
type ReminderService struct {
	// States tracks each user's conversation step.
	States *conversation.Tracker
	// Messenger emits the prompts and acknowledgements of the flow.
	Messenger messaging.Messenger
	// Scheduler receives the finished job.
	Scheduler ReminderScheduler
	// Presets is the fixed list of offered delays, in minutes.
	Presets []int
	// Log is the component-scoped logger.
	Log zerolog.Logger
}

// NewReminderService constructs a ReminderService offering the given preset
// delays (minutes).
func NewReminderService(states *conversation.Tracker, m messaging.Messenger, sched ReminderScheduler, presets []int, log zerolog.Logger) *ReminderService {
	return &ReminderService{
		States:    states,
		Messenger: m,
		Scheduler: sched,
		Presets:   presets,
		Log:       log.With().Str("component", "reminders").Logger(),
	}
}

// PresentChoices offers the preset delays plus the custom option and moves
// the conversation to the awaiting-reminder-choice step.
func (s *ReminderService) PresentChoices(ctx context.Context, userID, chatID int64) error {
	kb := messaging.Keyboard{}
	row := make([]messaging.Choice, 0, 2)
	for _, m := range s.Presets {
		row = append(row, messaging.Choice{
			Label: fmt.Sprintf("%d min", m),
			Data:  PresetDelayData(m),
		})
		if len(row) == 2 {
			kb.Row(row...)
			row = row[:0:0]
		}
	}
	row = append(row, messaging.Choice{Label: "Custom delay", Data: CustomDelayData})
	kb.Row(row...)

	s.States.SetStep(userID, conversation.StepAwaitingReminderChoice, nil)
	return s.Messenger.SendChoiceKeyboard(ctx, chatID, "Pick a delay or enter your own:", kb)
}

// ChoosePreset stores the preset delay and advances directly to the
// awaiting-reminder-text step. A press on a stale keyboard, after the flow
// ended or the process restarted, returns conversation.ErrNoActiveFlow.
func (s *ReminderService) ChoosePreset(ctx context.Context, userID, chatID int64, minutes int) error {
	if err := s.States.UpdatePayload(userID, payloadKeyMinutes, minutes); err != nil {
		return err
	}
	s.States.SetStep(userID, conversation.StepAwaitingReminderText, map[string]any{
		payloadKeyMinutes: minutes,
	})
	return s.Messenger.SendText(ctx, chatID, "Now enter the reminder text:", nil)
}

// BeginCustom moves the conversation to the awaiting-reminder-custom step,
// prompting for a number of minutes.
func (s *ReminderService) BeginCustom(ctx context.Context, userID, chatID int64) error {
	s.States.SetStep(userID, conversation.StepAwaitingReminderCustom, nil)
	return s.Messenger.SendText(ctx, chatID, "Enter the delay in minutes:", nil)
}

// SubmitCustomDelay parses the user's custom delay. A value that is not a
// positive integer re-prompts, returns ErrInvalidDelay, and does not
// advance the conversation; a valid one is stored and the flow moves to
// the awaiting-reminder-text step.
func (s *ReminderService) SubmitCustomDelay(ctx context.Context, userID, chatID int64, raw string) error {
	minutes, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || minutes <= 0 {
		_ = s.Messenger.SendText(ctx, chatID, "Please enter a whole number of minutes greater than zero.", nil)
		return ErrInvalidDelay
	}

	s.States.SetStep(userID, conversation.StepAwaitingReminderText, map[string]any{
		payloadKeyMinutes: minutes,
	})
	return s.Messenger.SendText(ctx, chatID, "Now enter the reminder text:", nil)
}

// Finalize completes the flow: it reads the stored delay, clears the
// conversation, schedules exactly one delivery of text after that delay,
// and acknowledges immediately with the resolved delay.
//
// The flow topology guarantees a stored delay exists by the time the user
// reaches the awaiting-reminder-text step; a missing one therefore reports
// conversation.ErrNoActiveFlow.
func (s *ReminderService) Finalize(ctx context.Context, userID, chatID int64, text string) (int, error) {
	v, ok := s.States.Payload(userID, payloadKeyMinutes)
	if !ok {
		return 0, conversation.ErrNoActiveFlow
	}
	minutes, ok := v.(int)
	if !ok || minutes <= 0 {
		return 0, conversation.ErrNoActiveFlow
	}

	s.States.Clear(userID)

	jobID := s.Scheduler.Schedule(chatID, time.Duration(minutes)*time.Minute, text)
	s.Log.Info().
		Str("job_id", jobID).
		Int64("user_id", userID).
		Int("minutes", minutes).
		Msg("reminder scheduled")

	err := s.Messenger.SendText(ctx, chatID, fmt.Sprintf("Got it. I will remind you in %d minutes.", minutes), nil)
	return minutes, err
}
