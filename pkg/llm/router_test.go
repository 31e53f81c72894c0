package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterResolveFallsBackToDefault(t *testing.T) {
	r := NewRouter(RoutingConfig{
		Default: Config{BaseURL: "http://default", Model: "gpt-4o-mini"},
		Tasks: map[TaskKind]Config{
			TaskNarrator: {Model: "gpt-4o"},
		},
	})

	assert.Equal(t, "gpt-4o", r.Resolve(TaskNarrator).Model())
	assert.Equal(t, "gpt-4o-mini", r.Resolve(TaskPlanner).Model())
	assert.Equal(t, "gpt-4o-mini", r.Resolve(TaskKind("unknown")).Model())
}

func TestRouterTaskBundlesInheritDefaults(t *testing.T) {
	merged := mergeConfig(
		Config{BaseURL: "http://default", APIKey: "sk-base", Model: "gpt-4o-mini", Timeout: 10 * time.Second},
		Config{Model: "gpt-4o"},
	)
	assert.Equal(t, "http://default", merged.BaseURL)
	assert.Equal(t, "sk-base", merged.APIKey)
	assert.Equal(t, "gpt-4o", merged.Model)
	assert.Equal(t, 10*time.Second, merged.Timeout)
}

func TestRouterChatRoutesByTaskKind(t *testing.T) {
	hits := make(map[string]int)
	newBackend := func(name string) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits[name]++
			_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
		}))
	}
	defaultSrv := newBackend("default")
	defer defaultSrv.Close()
	narratorSrv := newBackend("narrator")
	defer narratorSrv.Close()

	r := NewRouter(RoutingConfig{
		Default: Config{BaseURL: defaultSrv.URL, Model: "gpt-4o-mini"},
		Tasks: map[TaskKind]Config{
			TaskNarrator: {BaseURL: narratorSrv.URL, Model: "gpt-4o"},
		},
	})

	_, err := r.Chat(context.Background(), TaskNarrator, []Message{UserMessage("narrate")}, nil)
	require.NoError(t, err)
	_, err = r.Chat(context.Background(), TaskSummarizer, []Message{UserMessage("recap")}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, hits["narrator"])
	assert.Equal(t, 1, hits["default"])
}
