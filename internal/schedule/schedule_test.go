package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"wristdisp/internal/model"
)

type fakeRequester struct {
	mu     sync.Mutex
	accept bool
	got    []model.Direction
}

func (f *fakeRequester) SetFullRefresh(d model.Direction) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, d)
	return f.accept
}

func TestNewValidates(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		wantErr bool
	}{
		{"empty", nil, false},
		{"every", []Entry{{"@every 1m", model.Down}}, false},
		{"five fields", []Entry{{"*/5 * * * *", model.LeftAnim}}, false},
		{"bad spec", []Entry{{"every minute", model.Down}}, true},
		{"seconds field", []Entry{{"0 */5 * * * *", model.Down}}, true},
		{"no direction", []Entry{{"@hourly", model.None}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(&fakeRequester{}, tt.entries)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && s.Len() != len(tt.entries) {
				t.Errorf("Len() = %d, want %d", s.Len(), len(tt.entries))
			}
		})
	}
	if _, err := New(nil, nil); err == nil {
		t.Error("nil requester accepted")
	}
}

func TestJobsRequestTransitions(t *testing.T) {
	req := &fakeRequester{accept: true}
	s, err := New(req, []Entry{{"@every 1m", model.Up}, {"@hourly", model.RightAnim}})
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range s.c.Entries() {
		e.Job.Run()
	}
	if len(req.got) != 2 || req.got[0] != model.Up || req.got[1] != model.RightAnim {
		t.Errorf("requests = %v", req.got)
	}

	req.accept = false
	s.c.Entries()[0].Job.Run()
	if st := s.State(); st.Accepted != 2 || st.Ignored != 1 || st.Entries != 2 {
		t.Errorf("State() = %+v", st)
	}
}

func TestRunStopsWithContext(t *testing.T) {
	s, err := New(&fakeRequester{}, []Entry{{"@every 1h", model.Down}})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for s.Next().IsZero() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if next := s.Next(); next.IsZero() || time.Until(next) > time.Hour+time.Second {
		t.Errorf("Next() = %v", next)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
