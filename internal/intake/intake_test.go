package intake

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-mail-assistant-go/internal/actions"
	"smart-mail-assistant-go/internal/extract"
	"smart-mail-assistant-go/internal/model"
	"smart-mail-assistant-go/internal/suggest"
)

// fakeServices records how many calls overlap
type fakeServices struct {
	active  atomic.Int32
	maxSeen atomic.Int32
	genErr  error
}

func (f *fakeServices) enter() func() {
	n := f.active.Add(1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return func() { f.active.Add(-1) }
}

func (f *fakeServices) Prepare(ctx context.Context, id uint, hint string) (*actions.PrepareResult, error) {
	defer f.enter()()
	return &actions.PrepareResult{SetID: id, Followups: []string{hint}}, nil
}

func (f *fakeServices) Execute(ctx context.Context, req actions.ExecuteRequest) (*actions.ExecuteResult, error) {
	defer f.enter()()
	if req.ActionType == "launch_rocket" {
		return nil, &actions.Error{Code: actions.CodeUnknownAction}
	}
	return &actions.ExecuteResult{OK: true}, nil
}

func (f *fakeServices) ResetForRetry(userID string) (int64, error) {
	defer f.enter()()
	return 4, nil
}

func (f *fakeServices) Generate(ctx context.Context, req suggest.Request) (*suggest.Result, error) {
	defer f.enter()()
	if f.genErr != nil {
		return nil, f.genErr
	}
	return &suggest.Result{Kind: req.Kind, Source: model.SourceLLM}, nil
}

func start(t *testing.T, f *fakeServices) *Intake {
	t.Helper()
	in := New(f, f, f, 8)
	ctx, cancel := context.WithCancel(context.Background())
	go in.Run(ctx)
	t.Cleanup(cancel)
	return in
}

func TestCommandsAreHandledOneAtATime(t *testing.T) {
	f := &fakeServices{}
	in := start(t, f)
	ctx := context.Background()

	var wg sync.WaitGroup
	for n := 0; n < 10; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			res, err := in.Prepare(ctx, uint(n), "hint")
			assert.NoError(t, err)
			assert.Equal(t, uint(n), res.SetID)
		}(n)
	}
	wg.Wait()
	assert.Equal(t, int32(1), f.maxSeen.Load())
}

func TestTypedHelpers(t *testing.T) {
	f := &fakeServices{}
	in := start(t, f)
	ctx := context.Background()

	res, err := in.Execute(ctx, actions.ExecuteRequest{MessageID: 1, ActionType: "trash"})
	require.NoError(t, err)
	assert.True(t, res.OK)

	_, err = in.Execute(ctx, actions.ExecuteRequest{MessageID: 1, ActionType: "launch_rocket"})
	assert.Equal(t, actions.CodeUnknownAction, actions.Code(err))

	n, err := in.Retry(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	gen, err := in.Generate(ctx, suggest.Request{Kind: suggest.KindCreateTask})
	require.NoError(t, err)
	assert.Equal(t, suggest.KindCreateTask, gen.Kind)
}

func TestGenerateSubstitutesDefaultForParseError(t *testing.T) {
	f := &fakeServices{genErr: &extract.ParseError{Raw: "?", Err: errors.New("no JSON object found")}}
	in := start(t, f)

	res, err := in.Generate(context.Background(), suggest.Request{})
	require.NoError(t, err)
	assert.Equal(t, suggest.KindChatResponse, res.Kind)
	assert.Equal(t, model.SourceDefault, res.Source)
}

func TestSubmitAfterStop(t *testing.T) {
	in := New(&fakeServices{}, nil, nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		in.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	_, err := in.Retry(context.Background(), "")
	assert.ErrorIs(t, err, ErrStopped)
}
