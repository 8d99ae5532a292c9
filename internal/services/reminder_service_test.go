package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-support-bot/internal/conversation"
)

type fakeScheduler struct {
	mu    sync.Mutex
	chats []int64
	delay []time.Duration
	texts []string
}

func (f *fakeScheduler) Schedule(chatID int64, delay time.Duration, text string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats = append(f.chats, chatID)
	f.delay = append(f.delay, delay)
	f.texts = append(f.texts, text)
	return "job-1"
}

func newReminderService(presets ...int) (*ReminderService, *conversation.Tracker, *fakeMessenger, *fakeScheduler) {
	states := conversation.NewTracker()
	msgr := &fakeMessenger{}
	sched := &fakeScheduler{}
	svc := NewReminderService(states, msgr, sched, presets, zerolog.Nop())
	return svc, states, msgr, sched
}

func TestPresentChoices_KeyboardAndStep(t *testing.T) {
	svc, states, msgr, _ := newReminderService(1, 5, 10, 30)

	if err := svc.PresentChoices(context.Background(), 1, 10); err != nil {
		t.Fatalf("PresentChoices: %v", err)
	}
	if states.Step(1) != conversation.StepAwaitingReminderChoice {
		t.Fatalf("step = %q", states.Step(1))
	}
	if len(msgr.keyboards) != 1 {
		t.Fatalf("expected one keyboard, got %d", len(msgr.keyboards))
	}
	kb := msgr.keyboards[0]
	// Four presets, two per row, then the custom option on its own row.
	if len(kb.Rows) != 3 {
		t.Fatalf("unexpected row count: %+v", kb.Rows)
	}
	if kb.Rows[0][0].Data != "rem:1" || kb.Rows[0][1].Data != "rem:5" {
		t.Fatalf("first row: %+v", kb.Rows[0])
	}
	if kb.Rows[1][0].Data != "rem:10" || kb.Rows[1][1].Data != "rem:30" {
		t.Fatalf("second row: %+v", kb.Rows[1])
	}
	if len(kb.Rows[2]) != 1 || kb.Rows[2][0].Data != CustomDelayData {
		t.Fatalf("custom row: %+v", kb.Rows[2])
	}
}

func TestPresentChoices_OddPresetCount(t *testing.T) {
	svc, _, msgr, _ := newReminderService(1, 5, 10)

	if err := svc.PresentChoices(context.Background(), 1, 10); err != nil {
		t.Fatalf("PresentChoices: %v", err)
	}
	kb := msgr.keyboards[0]
	// 1+5 paired, 10 shares the final row with the custom option.
	if len(kb.Rows) != 2 || len(kb.Rows[1]) != 2 {
		t.Fatalf("unexpected layout: %+v", kb.Rows)
	}
	if kb.Rows[1][0].Data != "rem:10" || kb.Rows[1][1].Data != CustomDelayData {
		t.Fatalf("final row: %+v", kb.Rows[1])
	}
}

func TestChoosePreset_AdvancesToText(t *testing.T) {
	svc, states, _, _ := newReminderService(1, 5)

	states.SetStep(1, conversation.StepAwaitingReminderChoice, nil)
	if err := svc.ChoosePreset(context.Background(), 1, 10, 5); err != nil {
		t.Fatalf("ChoosePreset: %v", err)
	}
	if states.Step(1) != conversation.StepAwaitingReminderText {
		t.Fatalf("step = %q", states.Step(1))
	}
	v, ok := states.Payload(1, "minutes")
	if !ok || v.(int) != 5 {
		t.Fatalf("stored delay = %v (ok=%v)", v, ok)
	}
}

func TestChoosePreset_StaleKeyboardIsRejected(t *testing.T) {
	svc, states, msgr, _ := newReminderService(1, 5)

	// No active flow: the press came from a keyboard of a finished flow.
	if err := svc.ChoosePreset(context.Background(), 1, 10, 5); !errors.Is(err, conversation.ErrNoActiveFlow) {
		t.Fatalf("expected ErrNoActiveFlow, got %v", err)
	}
	if states.Step(1) != conversation.StepIdle {
		t.Fatalf("state created from stale press")
	}
	if len(msgr.texts) != 0 {
		t.Fatalf("prompt sent for stale press: %v", msgr.texts)
	}
}

func TestSubmitCustomDelay_RejectsInvalidInput(t *testing.T) {
	svc, states, msgr, _ := newReminderService(1)

	states.SetStep(1, conversation.StepAwaitingReminderCustom, nil)
	for _, raw := range []string{"abc", "0", "-3", "1.5", ""} {
		if err := svc.SubmitCustomDelay(context.Background(), 1, 10, raw); !errors.Is(err, ErrInvalidDelay) {
			t.Fatalf("raw=%q: expected ErrInvalidDelay, got %v", raw, err)
		}
		if states.Step(1) != conversation.StepAwaitingReminderCustom {
			t.Fatalf("raw=%q: state advanced on invalid delay", raw)
		}
	}
	if len(msgr.texts) != 5 {
		t.Fatalf("expected one re-prompt per rejection, got %d", len(msgr.texts))
	}
}

func TestSubmitCustomDelay_AcceptsPositiveInteger(t *testing.T) {
	svc, states, _, _ := newReminderService(1)

	states.SetStep(1, conversation.StepAwaitingReminderCustom, nil)
	if err := svc.SubmitCustomDelay(context.Background(), 1, 10, " 7 "); err != nil {
		t.Fatalf("SubmitCustomDelay: %v", err)
	}
	if states.Step(1) != conversation.StepAwaitingReminderText {
		t.Fatalf("step = %q", states.Step(1))
	}
	v, _ := states.Payload(1, "minutes")
	if v.(int) != 7 {
		t.Fatalf("stored delay = %v", v)
	}
}

func TestFinalize_SchedulesExactlyOneJob(t *testing.T) {
	svc, states, msgr, sched := newReminderService(1)

	states.SetStep(1, conversation.StepAwaitingReminderText, map[string]any{"minutes": 5})
	minutes, err := svc.Finalize(context.Background(), 1, 10, "drink water")
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if minutes != 5 {
		t.Fatalf("minutes = %d", minutes)
	}
	if len(sched.texts) != 1 || sched.texts[0] != "drink water" || sched.delay[0] != 5*time.Minute || sched.chats[0] != 10 {
		t.Fatalf("unexpected job: %+v %+v %+v", sched.chats, sched.delay, sched.texts)
	}
	if states.Step(1) != conversation.StepIdle {
		t.Fatalf("state not cleared after scheduling")
	}
	if len(msgr.texts) != 1 || !strings.Contains(msgr.texts[0], "5 minutes") {
		t.Fatalf("ack missing: %v", msgr.texts)
	}
}

func TestFinalize_MissingDelayReportsNoActiveFlow(t *testing.T) {
	svc, states, _, sched := newReminderService(1)

	// Text step reached without a stored delay (e.g. after a restart).
	states.SetStep(1, conversation.StepAwaitingReminderText, nil)
	if _, err := svc.Finalize(context.Background(), 1, 10, "x"); !errors.Is(err, conversation.ErrNoActiveFlow) {
		t.Fatalf("expected ErrNoActiveFlow, got %v", err)
	}
	if len(sched.texts) != 0 {
		t.Fatalf("job scheduled without a delay")
	}
}
