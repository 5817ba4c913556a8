package task

import "github.com/aipl-dev/aipl/internal/model"
import "testing"

func TestCanTransition_MatrixFromSpec(t *testing.T) {
	cases := []struct {
		from, to model.TaskStatus
		want     bool
	}{
		{model.StatusTodo, model.StatusDoing, true},
		{model.StatusTodo, model.StatusCanceled, true},
		{model.StatusTodo, model.StatusDone, false},
		{model.StatusDoing, model.StatusDone, true},
		{model.StatusDoing, model.StatusFailed, true},
		{model.StatusDoing, model.StatusCanceled, true},
		{model.StatusDoing, model.StatusStale, true},
		{model.StatusDoing, model.StatusTodo, false},
		{model.StatusStale, model.StatusTodo, true},
		{model.StatusStale, model.StatusDoing, true},
		{model.StatusStale, model.StatusCanceled, true},
		{model.StatusStale, model.StatusDone, false},
		{model.StatusDone, model.StatusTodo, false},
		{model.StatusFailed, model.StatusTodo, false},
		{model.StatusCanceled, model.StatusTodo, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []model.TaskStatus{model.StatusDone, model.StatusFailed, model.StatusCanceled} {
		if !IsTerminal(s) {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []model.TaskStatus{model.StatusTodo, model.StatusDoing, model.StatusStale} {
		if IsTerminal(s) {
			t.Errorf("expected %s not to be terminal", s)
		}
	}
}
