package speech

import "testing"

func TestDecide(t *testing.T) {
	t.Parallel()

	idle := stateView{}
	speakingView := func(p Priority) stateView {
		return stateView{hasSpeaking: true, speaking: p}
	}

	tests := []struct {
		name     string
		incoming Priority
		view     stateView
		want     action
	}{
		{
			name:     "important queues on idle",
			incoming: PriorityImportant,
			view:     idle,
			want:     action{admit: true},
		},
		{
			name:     "important preempts speaking text",
			incoming: PriorityImportant,
			view:     speakingView(PriorityText),
			want:     action{admit: true, preempt: true},
		},
		{
			name:     "important never preempts important",
			incoming: PriorityImportant,
			view:     speakingView(PriorityImportant),
			want:     action{admit: true},
		},
		{
			name:     "message drops notifications and waits behind important",
			incoming: PriorityMessage,
			view:     speakingView(PriorityImportant),
			want:     action{admit: true, dropNotifyProgress: true},
		},
		{
			name:     "message postpones speaking text",
			incoming: PriorityMessage,
			view:     speakingView(PriorityText),
			want:     action{admit: true, dropNotifyProgress: true, preempt: true},
		},
		{
			name:     "message does not preempt speaking message",
			incoming: PriorityMessage,
			view:     speakingView(PriorityMessage),
			want:     action{admit: true, dropNotifyProgress: true},
		},
		{
			name:     "text replaces own class and takes over notification",
			incoming: PriorityText,
			view:     speakingView(PriorityNotification),
			want:     action{admit: true, dropNotifyProgress: true, replaceOwnClass: true, preempt: true},
		},
		{
			name:     "text waits behind speaking message",
			incoming: PriorityText,
			view:     speakingView(PriorityMessage),
			want:     action{admit: true, dropNotifyProgress: true, replaceOwnClass: true},
		},
		{
			name:     "notification speaks on idle",
			incoming: PriorityNotification,
			view:     idle,
			want:     action{admit: true, dropNotifyProgress: true},
		},
		{
			name:     "notification canceled while text speaks",
			incoming: PriorityNotification,
			view:     speakingView(PriorityText),
			want:     action{},
		},
		{
			name:     "notification canceled while message pending",
			incoming: PriorityNotification,
			view:     stateView{pendingMessage: true},
			want:     action{},
		},
		{
			name:     "notification takes over speaking notification",
			incoming: PriorityNotification,
			view:     speakingView(PriorityNotification),
			want:     action{admit: true, dropNotifyProgress: true, preempt: true},
		},
		{
			name:     "progress speaks on idle",
			incoming: PriorityProgress,
			view:     idle,
			want:     action{admit: true, dropNotifyProgress: true},
		},
		{
			name:     "progress canceled while anything speaks",
			incoming: PriorityProgress,
			view:     speakingView(PriorityProgress),
			want:     action{},
		},
		{
			name:     "progress canceled while text pending",
			incoming: PriorityProgress,
			view:     stateView{pendingText: true},
			want:     action{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := decide(tc.incoming, tc.view); got != tc.want {
				t.Errorf("decide(%v, %+v) = %+v, want %+v", tc.incoming, tc.view, got, tc.want)
			}
		})
	}
}

func TestPriorityOrderingHelpers(t *testing.T) {
	t.Parallel()

	if !PriorityImportant.Outranks(PriorityProgress) {
		t.Error("important should outrank progress")
	}
	if PriorityText.Outranks(PriorityMessage) {
		t.Error("text should not outrank message")
	}
	if PriorityNotification.Resumable() || PriorityProgress.Resumable() {
		t.Error("notification and progress must not be resumable")
	}
	if !PriorityText.Resumable() {
		t.Error("text must be resumable")
	}
}

func TestParsePriority(t *testing.T) {
	t.Parallel()

	for _, p := range []Priority{
		PriorityImportant, PriorityMessage, PriorityText, PriorityNotification, PriorityProgress,
	} {
		got, err := ParsePriority(p.String())
		if err != nil {
			t.Fatalf("ParsePriority(%q): %v", p.String(), err)
		}
		if got != p {
			t.Errorf("ParsePriority(%q) = %v, want %v", p.String(), got, p)
		}
	}
	if _, err := ParsePriority("urgent"); err == nil {
		t.Error("expected error for unknown priority name")
	}
	if Priority(99).IsValid() {
		t.Error("Priority(99) should be invalid")
	}
}
