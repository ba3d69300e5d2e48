package e2e

import (
	"bufio"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"medqa/pkg/types"
)

func TestE2E_GenerateWithRetrieval(t *testing.T) {
	srv, _ := newStack(t)
	resp, body := httpPostJSON(t, srv.URL+"/generate", []byte(`{"query":"fever for three days"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	lines := decodeStream(t, body)
	if len(lines) != 5 {
		t.Fatalf("expected results, 3 responses, done; got %d lines: %s", len(lines), body)
	}
	if len(lines[0].Results) != 1 || lines[0].Results[0] != guidelinePassages[0].Text {
		t.Fatalf("cutoff should keep only the fever passage, got %v", lines[0].Results)
	}
	want := []string{"Give", "Give oral", "Give oral fluids"}
	for i, w := range want {
		if r := lines[1+i].Response; r == nil || *r != w {
			t.Fatalf("response %d = %v, want %q", i, r, w)
		}
	}
	if !lines[4].Done {
		t.Fatalf("last line should be done: %+v", lines[4])
	}
}

func TestE2E_GenerateWithoutRetrieval(t *testing.T) {
	srv, _ := newStack(t)
	_, body := httpPostJSON(t, srv.URL+"/generate", []byte(`{"query":"fever","use_retrieval":false}`))
	lines := decodeStream(t, body)
	if len(lines) != 4 || lines[0].Response == nil || !lines[3].Done {
		t.Fatalf("unexpected stream: %s", body)
	}
}

func TestE2E_NewRequestPreemptsRunningStream(t *testing.T) {
	srv, svc := newStack(t)

	first := postStream(t, srv.URL+"/generate", []byte(`{"query":"`+holdMarker+` cough","use_retrieval":false}`))
	defer first.Body.Close()
	sc := bufio.NewScanner(first.Body)
	if !sc.Scan() {
		t.Fatalf("first stream ended before its first line: %v", sc.Err())
	}
	if line, ok := types.DecodeLine(sc.Bytes()); !ok || line.Response == nil {
		t.Fatalf("expected a partial response, got %q", sc.Text())
	}

	_, body := httpPostJSON(t, srv.URL+"/generate", []byte(`{"query":"fever","use_retrieval":false}`))
	second := decodeStream(t, body)
	if len(second) == 0 || !second[len(second)-1].Done {
		t.Fatalf("second stream should complete: %s", body)
	}

	var rest []types.StreamLine
	for sc.Scan() {
		if line, ok := types.DecodeLine(sc.Bytes()); ok {
			rest = append(rest, line)
		}
	}
	if len(rest) != 1 || !rest[0].Cancelled || !rest[0].HadPartial {
		t.Fatalf("first stream should end with a single cancelled line, got %+v", rest)
	}

	st := svc.Status()
	if st.JobsCancelled != 1 || st.JobsCompleted != 1 {
		t.Fatalf("unexpected counters: %+v", st)
	}
}

func TestE2E_CancelEndpoint(t *testing.T) {
	srv, _ := newStack(t)
	stream := postStream(t, srv.URL+"/generate", []byte(`{"query":"`+holdMarker+`","use_retrieval":false}`))
	defer stream.Body.Close()
	sc := bufio.NewScanner(stream.Body)
	if !sc.Scan() {
		t.Fatalf("stream ended early: %v", sc.Err())
	}

	resp, body := httpPostJSON(t, srv.URL+"/cancel", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel status %d", resp.StatusCode)
	}
	var cr types.CancelResponse
	if err := json.Unmarshal(body, &cr); err != nil || !cr.Cancelled || !cr.HadPartial {
		t.Fatalf("cancel response %s (%v)", body, err)
	}
	if !sc.Scan() {
		t.Fatalf("missing terminator: %v", sc.Err())
	}
	if line, ok := types.DecodeLine(sc.Bytes()); !ok || !line.Cancelled {
		t.Fatalf("expected cancelled line, got %q", sc.Text())
	}

	_, body = httpPostJSON(t, srv.URL+"/cancel", nil)
	cr = types.CancelResponse{}
	if err := json.Unmarshal(body, &cr); err != nil || cr.Cancelled {
		t.Fatalf("second cancel should be a no-op: %s", body)
	}
}

func TestE2E_ConversationHistory(t *testing.T) {
	srv, _ := newStack(t)
	resp, body := httpPostJSON(t, srv.URL+"/conversations", []byte(`{"title":"Febrile child"}`))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", resp.StatusCode, body)
	}
	var conv types.Conversation
	if err := json.Unmarshal(body, &conv); err != nil || conv.ID == "" {
		t.Fatalf("create body %s (%v)", body, err)
	}

	payload, _ := json.Marshal(types.GenerateRequest{Query: "fever again", ConversationID: conv.ID})
	if resp, body := httpPostJSON(t, srv.URL+"/generate", payload); resp.StatusCode != http.StatusOK {
		t.Fatalf("generate status %d: %s", resp.StatusCode, body)
	}

	_, body = httpGet(t, srv.URL+"/conversations/"+conv.ID)
	var got types.Conversation
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("get body %s (%v)", body, err)
	}
	if got.Title != "Febrile child" || len(got.Exchanges) != 1 {
		t.Fatalf("unexpected conversation: %+v", got)
	}
	ex := got.Exchanges[0]
	if ex.Query != "fever again" || ex.Answer != "Give oral fluids" || ex.Status != "complete" || len(ex.Passages) != 1 {
		t.Fatalf("unexpected exchange: %+v", ex)
	}

	resp, _ = httpGet(t, srv.URL+"/conversations/does-not-exist")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing conversation status %d", resp.StatusCode)
	}
}

func TestE2E_InitAndStatus(t *testing.T) {
	srv, _ := newStack(t)
	resp, _ := httpGet(t, srv.URL+"/readyz")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz before init: %d", resp.StatusCode)
	}
	resp, body := httpPostJSON(t, srv.URL+"/init?wait=1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("init status %d: %s", resp.StatusCode, body)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, _ = httpGet(t, srv.URL+"/readyz")
		if resp.StatusCode == http.StatusOK || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz after init: %d", resp.StatusCode)
	}
	_, body = httpGet(t, srv.URL+"/status")
	var st types.StatusResponse
	if err := json.Unmarshal(body, &st); err != nil || st.Backend != "ready" {
		t.Fatalf("status %s (%v)", body, err)
	}
}
