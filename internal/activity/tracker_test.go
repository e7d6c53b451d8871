package activity

import (
	"context"
	"errors"
	"testing"
	"time"

	"caosbot/internal/models"
	"caosbot/internal/reward"
	"caosbot/internal/store"
)

type reportCall struct {
	userID string
	amount int
	reason string
}

type fakeReporter struct {
	calls []reportCall
	err   error
}

func (f *fakeReporter) Report(ctx context.Context, user models.User, amount int, reason string) (reward.Receipt, error) {
	f.calls = append(f.calls, reportCall{user.ID, amount, reason})
	if f.err != nil {
		return reward.Receipt{}, f.err
	}
	return reward.Receipt{NewBalance: amount}, nil
}

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker(cfg models.RewardConfig) (*Tracker, *store.MemoryStore, *fakeReporter, *testClock) {
	st := store.NewMemoryStore()
	rep := &fakeReporter{}
	clk := &testClock{t: time.UnixMilli(1_700_000_000_000).UTC()}
	tr := NewTracker(st, func() models.RewardConfig { return cfg }, rep)
	tr.now = clk.now
	return tr, st, rep, clk
}

var bob = models.User{ID: "bob", Username: "bob"}

func TestRecordMessageThreshold(t *testing.T) {
	tr, st, rep, _ := newTestTracker(models.DefaultRewardConfig())
	ctx := context.Background()
	general := Message{ChannelID: "general"}

	for i := 1; i < 90; i++ {
		if err := tr.RecordMessage(ctx, bob, general); err != nil {
			t.Fatalf("RecordMessage %d: %v", i, err)
		}
	}
	rec, _, _ := st.Get(ctx, "bob")
	if rec.MessageCount != 89 {
		t.Fatalf("MessageCount after 89 = %d", rec.MessageCount)
	}
	if len(rep.calls) != 0 {
		t.Fatalf("reports before threshold = %d", len(rep.calls))
	}

	if err := tr.RecordMessage(ctx, bob, general); err != nil {
		t.Fatalf("RecordMessage 90: %v", err)
	}
	rec, _, _ = st.Get(ctx, "bob")
	if rec.MessageCount != 0 {
		t.Errorf("MessageCount after 90 = %d, want 0", rec.MessageCount)
	}
	if len(rep.calls) != 1 || rep.calls[0].amount != 1 || rep.calls[0].reason != ReasonMessages {
		t.Fatalf("reports = %+v, want one report of 1", rep.calls)
	}

	tr.RecordMessage(ctx, bob, general)
	rec, _, _ = st.Get(ctx, "bob")
	if rec.MessageCount != 1 {
		t.Errorf("MessageCount after 91 = %d, want 1", rec.MessageCount)
	}
	if len(rep.calls) != 1 {
		t.Errorf("reports after 91 = %d, want 1", len(rep.calls))
	}
}

func TestRecordMessageChannels(t *testing.T) {
	cfg := models.DefaultRewardConfig()
	cfg.Messages.ExcludedChannels = []string{"bots"}
	cfg.SpecialChannels = models.SpecialChannelRewards{Threshold: models.Threshold{Amount: 2, Coins: 3}, Channels: []string{"art"}}
	cfg.Forums.AllowedForums = []string{"forum"}

	tests := []struct {
		name        string
		msgs        []Message
		wantMsgs    int64
		wantSpecial int64
		wantForum   int64
		wantReports []reportCall
	}{
		{
			name:     "excluded channel is not counted",
			msgs:     []Message{{ChannelID: "bots"}, {ChannelID: "bots"}},
			wantMsgs: 0,
		},
		{
			name:        "special channel keeps its own counter",
			msgs:        []Message{{ChannelID: "art"}, {ChannelID: "art"}, {ChannelID: "art"}},
			wantSpecial: 1,
			wantReports: []reportCall{{"bob", 3, ReasonSpecialChannel}},
		},
		{
			name:        "thread under allowed forum counts as participation",
			msgs:        []Message{{ChannelID: "thread", ParentID: "forum", IsThread: true}},
			wantMsgs:    1,
			wantReports: []reportCall{{"bob", 1, ReasonForum}},
		},
		{
			name:     "thread under other channel is plain chat",
			msgs:     []Message{{ChannelID: "thread", ParentID: "general", IsThread: true}},
			wantMsgs: 1,
		},
		{
			name:        "allowed forum channel itself",
			msgs:        []Message{{ChannelID: "forum"}},
			wantMsgs:    1,
			wantReports: []reportCall{{"bob", 1, ReasonForum}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, st, rep, _ := newTestTracker(cfg)
			ctx := context.Background()
			for _, m := range tt.msgs {
				if err := tr.RecordMessage(ctx, bob, m); err != nil {
					t.Fatalf("RecordMessage: %v", err)
				}
			}
			rec, _, _ := st.Get(ctx, "bob")
			if rec.MessageCount != tt.wantMsgs {
				t.Errorf("MessageCount = %d, want %d", rec.MessageCount, tt.wantMsgs)
			}
			if rec.SpecialChannelCounts["art"] != tt.wantSpecial {
				t.Errorf("special count = %d, want %d", rec.SpecialChannelCounts["art"], tt.wantSpecial)
			}
			if rec.ForumCount != tt.wantForum {
				t.Errorf("ForumCount = %d, want %d", rec.ForumCount, tt.wantForum)
			}
			if len(rep.calls) != len(tt.wantReports) {
				t.Fatalf("reports = %+v, want %+v", rep.calls, tt.wantReports)
			}
			for i := range rep.calls {
				if rep.calls[i] != tt.wantReports[i] {
					t.Errorf("report %d = %+v, want %+v", i, rep.calls[i], tt.wantReports[i])
				}
			}
		})
	}
}

func TestRecordMessageCombinesGrants(t *testing.T) {
	cfg := models.DefaultRewardConfig()
	cfg.Messages.Amount = 1
	cfg.Forums.AllowedForums = []string{"forum"}
	tr, _, rep, _ := newTestTracker(cfg)

	if err := tr.RecordMessage(context.Background(), bob, Message{ChannelID: "forum"}); err != nil {
		t.Fatalf("RecordMessage: %v", err)
	}
	if len(rep.calls) != 1 {
		t.Fatalf("reports = %d, want a single combined report", len(rep.calls))
	}
	if rep.calls[0].amount != 2 || rep.calls[0].reason != ReasonMessages+" y "+ReasonForum {
		t.Errorf("report = %+v", rep.calls[0])
	}
}

func TestRecordMessageCommitsCounterBeforeReportFailure(t *testing.T) {
	cfg := models.DefaultRewardConfig()
	cfg.Messages.Amount = 1
	tr, st, rep, _ := newTestTracker(cfg)
	rep.err = reward.ErrReportFailed

	err := tr.RecordMessage(context.Background(), bob, Message{ChannelID: "general"})
	if !errors.Is(err, reward.ErrReportFailed) {
		t.Fatalf("err = %v, want ErrReportFailed", err)
	}
	rec, _, _ := st.Get(context.Background(), "bob")
	if rec.MessageCount != 0 {
		t.Errorf("MessageCount = %d, want reset to 0", rec.MessageCount)
	}
}

func TestRecordThreadCreated(t *testing.T) {
	cfg := models.DefaultRewardConfig()
	cfg.Forums.AllowedForums = []string{"forum"}
	cfg.Forums.CreationCoins = 2
	tr, _, rep, _ := newTestTracker(cfg)
	ctx := context.Background()

	tr.RecordThreadCreated(ctx, bob, "elsewhere")
	if len(rep.calls) != 0 {
		t.Fatalf("thread outside allowed forum rewarded: %+v", rep.calls)
	}
	tr.RecordThreadCreated(ctx, bob, "forum")
	if len(rep.calls) != 1 || rep.calls[0] != (reportCall{"bob", 2, ReasonThreadCreated}) {
		t.Errorf("reports = %+v", rep.calls)
	}
}

func TestVoiceSession(t *testing.T) {
	tr, st, rep, clk := newTestTracker(models.DefaultRewardConfig())
	ctx := context.Background()

	if err := tr.RecordVoiceState(ctx, bob, VoiceState{ChannelID: "lobby"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	rec, _, _ := st.Get(ctx, "bob")
	if rec.VoiceSessionStartedAt == nil || !rec.VoiceSessionStartedAt.Equal(clk.t) || rec.VoiceChannelID != "lobby" {
		t.Fatalf("after join = %+v", rec)
	}

	clk.advance(90 * time.Minute)
	if err := tr.RecordVoiceState(ctx, bob, VoiceState{}); err != nil {
		t.Fatalf("leave: %v", err)
	}
	rec, _, _ = st.Get(ctx, "bob")
	if rec.VoiceSessionStartedAt != nil || rec.VoiceChannelID != "" {
		t.Errorf("session still open: %+v", rec)
	}
	if want := (90 * time.Minute).Milliseconds(); rec.VoiceAccumulatedMs != want {
		t.Errorf("VoiceAccumulatedMs = %d, want %d", rec.VoiceAccumulatedMs, want)
	}
	if len(rep.calls) != 0 {
		t.Errorf("unexpected reports %+v", rep.calls)
	}
}

func TestVoiceNeverJoined(t *testing.T) {
	tr, st, _, _ := newTestTracker(models.DefaultRewardConfig())
	ctx := context.Background()

	if err := tr.RecordVoiceState(ctx, bob, VoiceState{}); err != nil {
		t.Fatalf("RecordVoiceState: %v", err)
	}
	rec, found, _ := st.Get(ctx, "bob")
	if found || rec.VoiceSessionStartedAt != nil {
		t.Errorf("leave without join should not touch the store: %+v", rec)
	}
}

func TestVoiceThresholdCarriesRemainder(t *testing.T) {
	tr, st, rep, clk := newTestTracker(models.DefaultRewardConfig())
	ctx := context.Background()

	tr.RecordVoiceState(ctx, bob, VoiceState{ChannelID: "lobby"})
	clk.advance(8*time.Hour + 30*time.Minute)
	tr.RecordVoiceState(ctx, bob, VoiceState{})

	rec, _, _ := st.Get(ctx, "bob")
	if want := (30 * time.Minute).Milliseconds(); rec.VoiceAccumulatedMs != want {
		t.Errorf("VoiceAccumulatedMs = %d, want %d", rec.VoiceAccumulatedMs, want)
	}
	if len(rep.calls) != 1 || rep.calls[0] != (reportCall{"bob", 1, ReasonVoice}) {
		t.Errorf("reports = %+v", rep.calls)
	}
}

func TestVoiceTransitions(t *testing.T) {
	cfg := models.DefaultRewardConfig()
	cfg.VoiceTime.ExcludedChannels = []string{"afk"}

	tests := []struct {
		name        string
		steps       []VoiceState
		wantOpen    bool
		wantChannel string
		wantAccMs   int64
	}{
		{
			name:  "self deafened join is ignored",
			steps: []VoiceState{{ChannelID: "lobby", SelfDeaf: true}},
		},
		{
			name:  "excluded channel join is ignored",
			steps: []VoiceState{{ChannelID: "afk"}},
		},
		{
			name:        "switch closes and reopens",
			steps:       []VoiceState{{ChannelID: "lobby"}, {ChannelID: "games"}},
			wantOpen:    true,
			wantChannel: "games",
			wantAccMs:   (10 * time.Minute).Milliseconds(),
		},
		{
			name:      "deafen mid session closes it",
			steps:     []VoiceState{{ChannelID: "lobby"}, {ChannelID: "lobby", SelfDeaf: true}},
			wantAccMs: (10 * time.Minute).Milliseconds(),
		},
		{
			name:      "move to excluded channel closes it",
			steps:     []VoiceState{{ChannelID: "lobby"}, {ChannelID: "afk"}},
			wantAccMs: (10 * time.Minute).Milliseconds(),
		},
		{
			name:        "mute toggle in same channel keeps the session",
			steps:       []VoiceState{{ChannelID: "lobby"}, {ChannelID: "lobby"}},
			wantOpen:    true,
			wantChannel: "lobby",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, st, _, clk := newTestTracker(cfg)
			ctx := context.Background()
			for _, step := range tt.steps {
				if err := tr.RecordVoiceState(ctx, bob, step); err != nil {
					t.Fatalf("RecordVoiceState(%+v): %v", step, err)
				}
				clk.advance(10 * time.Minute)
			}
			rec, _, _ := st.Get(ctx, "bob")
			if rec.InVoice() != tt.wantOpen || rec.VoiceChannelID != tt.wantChannel {
				t.Errorf("open = %v channel = %q, want %v %q", rec.InVoice(), rec.VoiceChannelID, tt.wantOpen, tt.wantChannel)
			}
			if rec.VoiceAccumulatedMs != tt.wantAccMs {
				t.Errorf("VoiceAccumulatedMs = %d, want %d", rec.VoiceAccumulatedMs, tt.wantAccMs)
			}
		})
	}
}

func TestVoiceMissedLeave(t *testing.T) {
	tests := []struct {
		name    string
		rejoin  string
		wantAcc int64
	}{
		{name: "rejoin same channel", rejoin: "lobby", wantAcc: (10 * time.Minute).Milliseconds()},
		{name: "rejoin other channel", rejoin: "games", wantAcc: (10 * time.Minute).Milliseconds()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, st, rep, clk := newTestTracker(models.DefaultRewardConfig())
			ctx := context.Background()

			tr.RecordVoiceState(ctx, bob, VoiceState{ChannelID: "lobby", Joined: true})
			clk.advance(24 * time.Hour)

			if err := tr.RecordVoiceState(ctx, bob, VoiceState{ChannelID: tt.rejoin, Joined: true}); err != nil {
				t.Fatalf("rejoin: %v", err)
			}
			rec, _, _ := st.Get(ctx, "bob")
			if rec.VoiceSessionStartedAt == nil || !rec.VoiceSessionStartedAt.Equal(clk.t) || rec.VoiceChannelID != tt.rejoin {
				t.Fatalf("after rejoin = %+v, want a session started now in %q", rec, tt.rejoin)
			}

			clk.advance(10 * time.Minute)
			tr.RecordVoiceState(ctx, bob, VoiceState{})

			rec, _, _ = st.Get(ctx, "bob")
			if rec.VoiceAccumulatedMs != tt.wantAcc {
				t.Errorf("VoiceAccumulatedMs = %d, want %d", rec.VoiceAccumulatedMs, tt.wantAcc)
			}
			if len(rep.calls) != 0 {
				t.Errorf("reports = %+v, want none", rep.calls)
			}
		})
	}
}

func TestVoiceMissedLeaveThenDeafenedJoin(t *testing.T) {
	tr, st, _, clk := newTestTracker(models.DefaultRewardConfig())
	ctx := context.Background()

	tr.RecordVoiceState(ctx, bob, VoiceState{ChannelID: "lobby", Joined: true})
	clk.advance(time.Hour)
	if err := tr.RecordVoiceState(ctx, bob, VoiceState{ChannelID: "lobby", SelfDeaf: true, Joined: true}); err != nil {
		t.Fatalf("RecordVoiceState: %v", err)
	}

	rec, _, _ := st.Get(ctx, "bob")
	if rec.InVoice() || rec.VoiceAccumulatedMs != 0 {
		t.Errorf("record = %+v, want stale session dropped without accrual", rec)
	}
}
