package eigenclaw

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(server.URL, server.Client())
	if err != nil {
		t.Fatalf("构造客户端失败: %v", err)
	}
	return client
}

func TestLabelOne(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/label" || r.Method != http.MethodPost {
			t.Fatalf("路径或方法不符: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("解析请求失败: %v", err)
		}
		if body["description"] != "swap 1 ETH" {
			t.Fatalf("描述不符: %q", body["description"])
		}
		json.NewEncoder(w).Encode(Label{ActionType: "SWAP", Protocol: "Uniswap", Confidence: 0.95})
	}))

	label, err := client.LabelOne(context.Background(), "swap 1 ETH")
	if err != nil {
		t.Fatalf("标注失败: %v", err)
	}
	if label.ActionType != "SWAP" || label.Protocol != "Uniswap" {
		t.Fatalf("标签不符: %+v", label)
	}
}

func TestLabelBatchPreservesOrder(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var records []Record
		if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
			t.Fatalf("解析请求失败: %v", err)
		}
		json.NewEncoder(w).Encode(records)
	}))

	results, err := client.LabelBatch(context.Background(), []Record{
		{"description": "a"},
		{"description": "b"},
	})
	if err != nil {
		t.Fatalf("批量标注失败: %v", err)
	}
	if len(results) != 2 || results[0]["description"] != "a" || results[1]["description"] != "b" {
		t.Fatalf("结果顺序不符: %v", results)
	}
}

func TestWaitForJobPollsUntilTerminal(t *testing.T) {
	calls := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/jobs/j-1" {
			t.Fatalf("路径不符: %s", r.URL.Path)
		}
		calls++
		status := "running"
		if calls >= 3 {
			status = "succeeded"
		}
		json.NewEncoder(w).Encode(Job{ID: "j-1", Status: status, Done: calls, Total: 3})
	}))

	done, err := client.WaitForJob(context.Background(), "j-1", time.Millisecond)
	if err != nil {
		t.Fatalf("等待任务失败: %v", err)
	}
	if done.Status != "succeeded" || calls != 3 {
		t.Fatalf("轮询结果不符: %+v (calls=%d)", done, calls)
	}
}

func TestAPIErrorDecoding(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "not_found"})
	}))

	_, err := client.GetJob(context.Background(), "missing")
	if err == nil {
		t.Fatal("期望请求失败")
	}
	if !IsNotFound(err) {
		t.Fatalf("期望 404 错误，实际: %v", err)
	}
}

func TestListLabelsPassesLimit(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Fatalf("limit 不符: %q", got)
		}
		json.NewEncoder(w).Encode([]HistoryRecord{{ID: 1, TxHash: "0xabc"}})
	}))

	records, err := client.ListLabels(context.Background(), 5)
	if err != nil {
		t.Fatalf("查询历史失败: %v", err)
	}
	if len(records) != 1 || records[0].TxHash != "0xabc" {
		t.Fatalf("历史记录不符: %v", records)
	}
}
