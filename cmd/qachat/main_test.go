package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/bhandras/qachat/internal/gateway"
	"github.com/bhandras/qachat/internal/storage"
	"github.com/stretchr/testify/require"
)

const knownSession = "session_1700000000000_abc123xyz"

type fakeService struct {
	mu        sync.Mutex
	ready     bool
	questions []string
}

func (f *fakeService) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		require.NoError(t, json.NewEncoder(w).Encode(v))
	}

	mux.HandleFunc("POST /api/initialize", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if !f.ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"detail": "индекс не загружен"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "success"})
	})
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{
			"status":       "healthy",
			"system_ready": f.ready,
			"timestamp":    "2024-05-01T10:00:00.123456",
		})
	})
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req gateway.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		f.questions = append(f.questions, req.Question)
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{
			"result":     "Ответ: " + req.Question,
			"confidence": 0.8,
			"source_documents": []map[string]any{
				{"content": "Уставный капитал составляет ...", "score": 0.9, "sections": []string{"Устав"}},
			},
		})
	})
	mux.HandleFunc("GET /api/history/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		resp := map[string]any{"session_id": id, "history": []any{}}
		if id == knownSession {
			resp["history"] = []map[string]any{
				{"question": "Кто?", "answer": "Мы.", "timestamp": "2024-05-01T10:00:00", "message_id": 7},
			}
		}
		writeJSON(w, http.StatusOK, resp)
	})
	mux.HandleFunc("GET /api/analytics", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"total_questions": 3})
	})
	mux.HandleFunc("GET /api/admin/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"sessions": 2})
	})
	mux.HandleFunc("POST /api/evaluate", func(w http.ResponseWriter, r *http.Request) {
		var req gateway.EvaluateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeJSON(w, http.StatusOK, map[string]any{"sample_size": req.SampleSize, "bleu": 0.42})
	})
	return mux
}

func (f *fakeService) asked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.questions...)
}

// setup points the client at a fake service and a scratch home directory.
func setup(t *testing.T, ready bool) (*fakeService, string) {
	t.Helper()
	f := &fakeService{ready: ready}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	home := t.TempDir()
	t.Setenv("QACHAT_HOME", home)
	t.Setenv("QACHAT_SERVER_URL", srv.URL+"/api")
	t.Setenv("DEBUG", "")
	t.Setenv("QACHAT_DEBUG", "")
	t.Setenv("QACHAT_LOG_LEVEL", "")
	t.Setenv("QACHAT_HTTP_TIMEOUT", "")
	t.Setenv("QACHAT_HEALTH_INTERVAL", "")
	return f, home
}

func execute(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(input))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func storedSession(t *testing.T, home string) string {
	t.Helper()
	kv, err := storage.NewFileKV(filepath.Join(home, "state.json"))
	require.NoError(t, err)
	id, ok, err := kv.Get(storage.CurrentSessionKey)
	require.NoError(t, err)
	require.True(t, ok)
	return id
}

func TestChatSession(t *testing.T) {
	f, home := setup(t, true)

	out, err := execute(t, "привет\n/quick\n/quick 2\n/quick 9\n/mood\n/new\n/quit\nне отправится\n")
	require.NoError(t, err)

	require.Contains(t, out, "assistant> Ответ: привет")
	require.Contains(t, out, "  confidence 0.80")
	require.Contains(t, out, "  [1] 0.90 Устав")
	require.Contains(t, out, "  1. Какой уставный капитал ПАО «Транснефть»?")
	require.Contains(t, out, "you> Когда была основана компания?")
	require.Contains(t, out, "assistant> Ответ: Когда была основана компания?")
	require.Contains(t, out, "pick a quick question between 1 and 4")
	require.Contains(t, out, "mood: ")
	require.NotContains(t, out, "you> привет", "typed lines are not echoed")

	require.Equal(t, []string{"привет", "Когда была основана компания?"}, f.asked())

	m := regexp.MustCompile(`new session (session_\d+_[0-9a-z]{9})`).FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	require.Equal(t, m[1], storedSession(t, home))
}

func TestChatNotReady(t *testing.T) {
	f, _ := setup(t, false)

	out, err := execute(t, "вопрос\n/init\n/status\n")
	require.NoError(t, err)
	require.Contains(t, out, "The service is not ready")
	require.Contains(t, out, "индекс не загружен")
	require.Contains(t, out, "the service is not ready; type /init to retry")
	require.Contains(t, out, "initialization failed")
	require.Empty(t, f.asked())
}

func TestChatResumesStoredHistory(t *testing.T) {
	_, home := setup(t, true)
	kv, err := storage.NewFileKV(filepath.Join(home, "state.json"))
	require.NoError(t, err)
	require.NoError(t, kv.Set(storage.CurrentSessionKey, knownSession))

	out, err := execute(t, "/history\n/quit\n")
	require.NoError(t, err)
	require.Contains(t, out, "session "+knownSession)
	// Printed once at start and again by /history.
	require.Equal(t, 2, strings.Count(out, "you> Кто?"), out)
	require.Equal(t, 2, strings.Count(out, "assistant> Мы."), out)
}

func TestChatEphemeralLeavesNoState(t *testing.T) {
	f, home := setup(t, true)

	out, err := execute(t, "привет\n/quit\n", "--ephemeral")
	require.NoError(t, err)
	require.Contains(t, out, "The session is kept in memory")
	require.Contains(t, out, "assistant> Ответ: привет")
	require.Equal(t, []string{"привет"}, f.asked())
	require.NoFileExists(t, filepath.Join(home, "state.json"))
}

func TestChatUnwritableStateFallsBackToMemory(t *testing.T) {
	f, home := setup(t, true)
	// A directory where the state file belongs cannot be read or replaced.
	require.NoError(t, os.Mkdir(filepath.Join(home, "state.json"), 0o700))

	out, err := execute(t, "привет\n/quit\n")
	require.NoError(t, err)
	require.Contains(t, out, "The session is kept in memory")
	require.Contains(t, out, "assistant> Ответ: привет")
	require.Equal(t, []string{"привет"}, f.asked())

	logs, err := os.ReadFile(filepath.Join(home, "qachat.log"))
	require.NoError(t, err)
	require.Contains(t, string(logs), "keeping the session in memory")
}

func TestChatResumesForeignSessionID(t *testing.T) {
	_, home := setup(t, true)
	kv, err := storage.NewFileKV(filepath.Join(home, "state.json"))
	require.NoError(t, err)
	require.NoError(t, kv.Set(storage.CurrentSessionKey, "legacy-42"))

	out, err := execute(t, "/quit\n")
	require.NoError(t, err)
	require.Contains(t, out, "session legacy-42")
	require.NotContains(t, out, "kept in memory")
	require.Equal(t, "legacy-42", storedSession(t, home))

	logs, err := os.ReadFile(filepath.Join(home, "qachat.log"))
	require.NoError(t, err)
	require.Contains(t, string(logs), "legacy-42, which this client did not mint")
}

func TestHealthCommand(t *testing.T) {
	setup(t, true)
	out, err := execute(t, "", "health")
	require.NoError(t, err)
	require.Contains(t, out, `status: ready (service "healthy", system_ready=true)`)
	require.Contains(t, out, "timestamp: 2024-05-01T10:00:00.123456")
}

func TestHistoryCommand(t *testing.T) {
	setup(t, true)

	_, err := execute(t, "", "history")
	require.ErrorContains(t, err, "no current session")

	out, err := execute(t, "", "history", knownSession)
	require.NoError(t, err)
	require.Contains(t, out, "session "+knownSession+", 2 messages")
	require.Contains(t, out, "you> Кто?")
	require.Contains(t, out, "assistant> Мы.")
}

func TestNewSessionCommand(t *testing.T) {
	_, home := setup(t, true)

	out, err := execute(t, "", "new-session")
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	require.True(t, storage.ValidSessionID(id), id)
	require.Equal(t, id, storedSession(t, home))

	out, err = execute(t, "", "history")
	require.NoError(t, err)
	require.Contains(t, out, "session "+id+", 0 messages")
}

func TestReportCommands(t *testing.T) {
	setup(t, true)

	out, err := execute(t, "", "analytics")
	require.NoError(t, err)
	require.Contains(t, out, "total_questions: 3")

	out, err = execute(t, "", "stats")
	require.NoError(t, err)
	require.Contains(t, out, "sessions: 2")

	out, err = execute(t, "", "evaluate", "--sample-size", "5")
	require.NoError(t, err)
	require.Contains(t, out, "sample_size: 5")
	require.Contains(t, out, "bleu: 0.42")

	_, err = execute(t, "", "evaluate", "--sample-size", "0")
	require.ErrorContains(t, err, "--sample-size must be positive")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "qachat 0.4.0"), out)
}

func TestServerFlagOverridesConfig(t *testing.T) {
	setup(t, true)
	t.Setenv("QACHAT_SERVER_URL", "http://127.0.0.1:1/api")

	_, err := execute(t, "", "health")
	require.Error(t, err)

	srv := httptest.NewServer((&fakeService{ready: true}).handler(t))
	defer srv.Close()
	out, err := execute(t, "", "--server", srv.URL+"/api/", "health")
	require.NoError(t, err)
	require.Contains(t, out, "status: ready")
}
