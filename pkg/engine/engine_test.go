package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/abilityd/pkg/ability"
	"github.com/harun/abilityd/pkg/category"
	"github.com/harun/abilityd/pkg/schema"
)

type fixture struct {
	registry *ability.Registry
	calls    atomic.Int32
	lastMu   sync.Mutex
	last     map[string]interface{}
}

func (f *fixture) lastInput() map[string]interface{} {
	f.lastMu.Lock()
	defer f.lastMu.Unlock()
	return f.last
}

func postInput() *schema.Node {
	return schema.Object(map[string]*schema.Node{
		"title":   {Type: schema.TypeString},
		"content": {Type: schema.TypeString},
		"status": {
			Type:    schema.TypeString,
			Default: "draft",
			Enum:    []interface{}{"draft", "publish"},
		},
	}, "title", "content")
}

func postOutput() *schema.Node {
	return schema.Object(map[string]*schema.Node{
		"success": {Type: schema.TypeBoolean},
		"url":     {Type: schema.TypeString},
		"error":   {Type: schema.TypeString},
	})
}

func newFixture(t *testing.T, mutate func(a *ability.Ability, f *fixture)) *fixture {
	t.Helper()

	cats := category.NewStore()
	require.NoError(t, cats.Register("site-post", "Create Post", ""))

	f := &fixture{registry: ability.NewRegistry(cats)}

	a := ability.Ability{
		ID:           "wpv/create-post",
		Label:        "Create Post",
		Category:     "site-post",
		InputSchema:  postInput(),
		OutputSchema: postOutput(),
		Permission:   ability.AllowAll,
		Execute: func(ctx context.Context, input map[string]interface{}, ictx ability.Context) (map[string]interface{}, error) {
			f.calls.Add(1)
			f.lastMu.Lock()
			f.last = input
			f.lastMu.Unlock()
			return map[string]interface{}{"success": true, "url": "https://example/1"}, nil
		},
		Exposure: ability.Exposure{Public: true, Type: ability.ExposeTool},
	}
	if mutate != nil {
		mutate(&a, f)
	}
	require.NoError(t, f.registry.Register(a))

	return f
}

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()

	var ee *Error
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, kind, ee.Kind)
	return ee
}

func TestEngine_Invoke_Success(t *testing.T) {
	f := newFixture(t, nil)
	e := New(f.registry, Options{})

	out, err := e.Invoke(context.Background(), "wpv/create-post", map[string]interface{}{
		"title":   "T",
		"content": "C",
		"status":  "publish",
	}, ability.Context{})

	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"success": true, "url": "https://example/1"}, out)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestEngine_Invoke_AppliesDefaults(t *testing.T) {
	f := newFixture(t, nil)
	e := New(f.registry, Options{})

	_, err := e.Invoke(context.Background(), "wpv/create-post", map[string]interface{}{
		"title":   "T",
		"content": "C",
	}, ability.Context{})

	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"title": "T", "content": "C", "status": "draft"}, f.lastInput())
}

func TestEngine_Invoke_UnknownAbility(t *testing.T) {
	f := newFixture(t, nil)
	e := New(f.registry, Options{})

	_, err := e.Invoke(context.Background(), "x/y", map[string]interface{}{}, ability.Context{})

	ee := requireKind(t, err, KindUnknownAbility)
	assert.Equal(t, "x/y", ee.AbilityID)
	assert.ErrorIs(t, err, ability.ErrAbilityNotFound)
}

func TestEngine_Invoke_PermissionDenied(t *testing.T) {
	f := newFixture(t, func(a *ability.Ability, _ *fixture) {
		a.Permission = ability.RequireCapability("publish_posts")
	})
	e := New(f.registry, Options{})

	// Invalid input too: permission must be checked first.
	_, err := e.Invoke(context.Background(), "wpv/create-post", map[string]interface{}{}, ability.Context{UserID: "guest"})

	requireKind(t, err, KindPermissionDenied)
	assert.Equal(t, int32(0), f.calls.Load())

	_, err = e.Invoke(context.Background(), "wpv/create-post", map[string]interface{}{
		"title":   "T",
		"content": "C",
	}, ability.Context{UserID: "1", Capabilities: []string{"publish_posts"}})
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestEngine_Invoke_PermissionPanicDenies(t *testing.T) {
	f := newFixture(t, func(a *ability.Ability, _ *fixture) {
		a.Permission = func(context.Context, ability.Context) bool { panic("boom") }
	})
	e := New(f.registry, Options{})

	_, err := e.Invoke(context.Background(), "wpv/create-post", map[string]interface{}{"title": "T", "content": "C"}, ability.Context{})

	requireKind(t, err, KindPermissionDenied)
	assert.Equal(t, int32(0), f.calls.Load())
}

func TestEngine_Invoke_InvalidInput(t *testing.T) {
	f := newFixture(t, nil)
	e := New(f.registry, Options{})

	tests := []struct {
		name  string
		input interface{}
		kind  schema.ViolationKind
		path  string
	}{
		{
			name:  "empty title",
			input: map[string]interface{}{"title": "", "content": "C"},
			kind:  schema.MissingRequiredField,
			path:  "title",
		},
		{
			name:  "status not in enum",
			input: map[string]interface{}{"title": "T", "content": "C", "status": "archived"},
			kind:  schema.EnumViolation,
			path:  "status",
		},
		{
			name:  "not an object",
			input: []interface{}{"T"},
			kind:  schema.TypeMismatch,
			path:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Invoke(context.Background(), "wpv/create-post", tt.input, ability.Context{})

			ee := requireKind(t, err, KindInvalidInput)
			require.Len(t, ee.Violations, 1)
			assert.Equal(t, tt.kind, ee.Violations[0].Kind)
			assert.Equal(t, tt.path, ee.Violations[0].Path)
			if tt.path != "" {
				assert.Contains(t, err.Error(), tt.path)
			}
		})
	}

	assert.Equal(t, int32(0), f.calls.Load())
}

func TestEngine_Invoke_NilInput(t *testing.T) {
	f := newFixture(t, nil)
	e := New(f.registry, Options{})

	_, err := e.Invoke(context.Background(), "wpv/create-post", nil, ability.Context{})

	ee := requireKind(t, err, KindInvalidInput)
	assert.Len(t, ee.Violations, 2)
}

func TestEngine_Invoke_BusinessFailureAsData(t *testing.T) {
	f := newFixture(t, func(a *ability.Ability, _ *fixture) {
		a.Execute = func(context.Context, map[string]interface{}, ability.Context) (map[string]interface{}, error) {
			return map[string]interface{}{"success": false, "error": "Could not insert the post into the database."}, nil
		}
	})
	e := New(f.registry, Options{})

	out, err := e.Invoke(context.Background(), "wpv/create-post", map[string]interface{}{"title": "T", "content": "C"}, ability.Context{})

	require.NoError(t, err)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "Could not insert the post into the database.", out["error"])
}

func TestEngine_Invoke_BusinessFailureError(t *testing.T) {
	cause := errors.New("database is locked")
	f := newFixture(t, func(a *ability.Ability, _ *fixture) {
		a.Execute = func(context.Context, map[string]interface{}, ability.Context) (map[string]interface{}, error) {
			return nil, cause
		}
	})
	e := New(f.registry, Options{})

	_, err := e.Invoke(context.Background(), "wpv/create-post", map[string]interface{}{"title": "T", "content": "C"}, ability.Context{})

	ee := requireKind(t, err, KindBusinessFailure)
	assert.Equal(t, "database is locked", ee.Message)
	assert.ErrorIs(t, err, cause)
}

func TestEngine_Invoke_OutputContractViolation(t *testing.T) {
	tests := []struct {
		name    string
		execute ability.ExecuteFunc
	}{
		{
			name: "wrong output type",
			execute: func(context.Context, map[string]interface{}, ability.Context) (map[string]interface{}, error) {
				return map[string]interface{}{"success": "yes"}, nil
			},
		},
		{
			name: "nil output",
			execute: func(context.Context, map[string]interface{}, ability.Context) (map[string]interface{}, error) {
				return nil, nil
			},
		},
		{
			name: "panic",
			execute: func(context.Context, map[string]interface{}, ability.Context) (map[string]interface{}, error) {
				panic("nil pointer somewhere")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(a *ability.Ability, _ *fixture) {
				a.Execute = tt.execute
			})
			e := New(f.registry, Options{})

			_, err := e.Invoke(context.Background(), "wpv/create-post", map[string]interface{}{"title": "T", "content": "C"}, ability.Context{})

			ee := requireKind(t, err, KindOutputContractViolation)
			assert.True(t, ee.Kind.IsDefect())
		})
	}
}

func TestEngine_Invoke_Timeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	f := newFixture(t, func(a *ability.Ability, _ *fixture) {
		a.Execute = func(ctx context.Context, _ map[string]interface{}, _ ability.Context) (map[string]interface{}, error) {
			<-release
			return map[string]interface{}{"success": true}, nil
		}
	})
	e := New(f.registry, Options{Timeout: 50 * time.Millisecond})
	assert.Equal(t, 50*time.Millisecond, e.Timeout())

	start := time.Now()
	_, err := e.Invoke(context.Background(), "wpv/create-post", map[string]interface{}{"title": "T", "content": "C"}, ability.Context{})

	ee := requireKind(t, err, KindTimeout)
	assert.Contains(t, ee.Message, "timed out")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestEngine_Invoke_CallerCancelled(t *testing.T) {
	f := newFixture(t, nil)
	e := New(f.registry, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Invoke(ctx, "wpv/create-post", map[string]interface{}{"title": "T", "content": "C"}, ability.Context{})

	requireKind(t, err, KindTimeout)
	assert.Equal(t, int32(0), f.calls.Load())
}

func TestEngine_Invoke_Concurrent(t *testing.T) {
	f := newFixture(t, func(a *ability.Ability, _ *fixture) {
		a.Execute = func(_ context.Context, input map[string]interface{}, _ ability.Context) (map[string]interface{}, error) {
			time.Sleep(10 * time.Millisecond)
			return map[string]interface{}{"success": true, "url": "https://example/" + input["title"].(string)}, nil
		}
	})
	e := New(f.registry, Options{Timeout: time.Second})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(title string) {
			defer wg.Done()
			out, err := e.Invoke(context.Background(), "wpv/create-post", map[string]interface{}{"title": title, "content": "C"}, ability.Context{})
			assert.NoError(t, err)
			assert.Equal(t, "https://example/"+title, out["url"])
		}(string(rune('a' + i)))
	}
	wg.Wait()
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindTimeout, KindOf(&Error{Kind: KindTimeout}))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}
