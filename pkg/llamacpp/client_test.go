package llamacpp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/menta2k/labeller/pkg/types"
)

func completionServer(t *testing.T, status int, content interface{}, seen *ChatCompletionRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if seen != nil {
			if err := json.NewDecoder(r.Body).Decode(seen); err != nil {
				t.Errorf("failed to decode request: %v", err)
			}
		}
		if status != http.StatusOK {
			http.Error(w, "model not loaded", status)
			return
		}
		resp := ChatCompletionResponse{
			ID:      "cmpl-1",
			Object:  "chat.completion",
			Choices: []Choice{{Message: Message{Role: "assistant", Content: content}}},
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("failed to encode response: %v", err)
		}
	}))
}

func TestLocateCards(t *testing.T) {
	var seen ChatCompletionRequest
	reply := "```json\n{\"cards\":[{\"side\":\"front\",\"confidence\":0.95,\"box\":{\"x\":0.2,\"y\":0.1,\"w\":0.3,\"h\":0.6}}]}\n```"
	srv := completionServer(t, http.StatusOK, reply, &seen)
	defer srv.Close()

	c, err := NewClient(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}

	got, err := c.LocateCards(context.Background(), "llava", "find cards", "iVBORw0KGgoAAAA")
	if err != nil {
		t.Fatalf("LocateCards failed: %v", err)
	}
	if len(got) != 1 || got[0].Box.Side != types.SideFront || got[0].Box.X != 0.2 {
		t.Errorf("unexpected suggestions %+v", got)
	}

	parts, ok := seen.Messages[0].Content.([]interface{})
	if !ok || len(parts) != 2 {
		t.Fatalf("Expected text and image parts, got %#v", seen.Messages[0].Content)
	}
	imagePart := parts[1].(map[string]interface{})
	url := imagePart["image_url"].(map[string]interface{})["url"].(string)
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Errorf("unexpected data URL %s", url)
	}
}

func TestSimpleQueryContentParts(t *testing.T) {
	content := []map[string]string{{"type": "text", "text": "A card."}}
	srv := completionServer(t, http.StatusOK, content, nil)
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	got, err := c.SimpleQuery(context.Background(), "m", "describe", "")
	if err != nil {
		t.Fatalf("SimpleQuery failed: %v", err)
	}
	if got != "A card." {
		t.Errorf("unexpected reply %q", got)
	}
}

func TestServerError(t *testing.T) {
	srv := completionServer(t, http.StatusServiceUnavailable, "", nil)
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.LocateCards(context.Background(), "m", "p", "")
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Errorf("Expected status error, got %v", err)
	}
}

func TestEmptyReply(t *testing.T) {
	srv := completionServer(t, http.StatusOK, "", nil)
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.SimpleQuery(context.Background(), "m", "p", ""); err == nil {
		t.Error("Expected error for empty reply")
	}
}

func TestNewClient(t *testing.T) {
	c, err := NewClient("")
	if err != nil {
		t.Fatal(err)
	}
	if c.baseURL != DefaultURL {
		t.Errorf("Expected default URL, got %s", c.baseURL)
	}
	if _, err := NewClient("localhost:8080"); err == nil {
		t.Error("Expected error for URL without scheme")
	}
}
