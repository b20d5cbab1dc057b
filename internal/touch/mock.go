package touch

import (
	"context"
	"sync"
)

// Mock replays a script of reports, one per Read, looping at the end. It
// stands in for a controller in render-only mode and in tests.
type Mock struct {
	mu     sync.Mutex
	script []Report
	i      int
}

// NewMock returns a mock tapping the four quadrants of a w×h panel in turn,
// each tap held for a few polls and followed by a release.
func NewMock(w, h int) *Mock {
	var script []Report
	pts := [][2]int{{w / 4, h / 4}, {3 * w / 4, h / 4}, {3 * w / 4, 3 * h / 4}, {w / 4, 3 * h / 4}}
	for _, p := range pts {
		for i := 0; i < 5; i++ {
			script = append(script, Report{X: p[0], Y: p[1], Contact: true, Gesture: GestureSingleTap})
		}
		for i := 0; i < 45; i++ {
			script = append(script, Report{})
		}
	}
	return &Mock{script: script}
}

// NewScript returns a mock replaying exactly the given reports.
func NewScript(reports ...Report) *Mock {
	return &Mock{script: append([]Report(nil), reports...)}
}

func (m *Mock) Read(ctx context.Context) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.script) == 0 {
		return Report{}, nil
	}
	r := m.script[m.i]
	m.i = (m.i + 1) % len(m.script)
	return r, nil
}
