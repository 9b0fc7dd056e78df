package ipc_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"morph/internal/daemon"
	"morph/internal/ipc"
	"morph/internal/logging"
	"morph/internal/queue"
	"morph/internal/stage"
	"morph/internal/testsupport"
	"morph/internal/workflow"
)

type noopStage struct{ name string }

func (s noopStage) Prepare(context.Context, *queue.Job) error { return nil }
func (s noopStage) Execute(context.Context, *queue.Job) error { return nil }
func (s noopStage) HealthCheck(context.Context) stage.Health  { return stage.Healthy(s.name) }

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.API.Bind = ""
	store := testsupport.MustOpenStore(t, cfg)
	historyStore := testsupport.MustOpenHistory(t, cfg)
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, store, logger, workflow.StageSet{
		Detector:  noopStage{name: "detect"},
		Converter: noopStage{name: "convert"},
		Deliverer: noopStage{name: "deliver"},
	})
	d, err := daemon.New(cfg, store, historyStore, logger, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	socket := filepath.Join(cfg.Paths.LogDir, "morph.sock")
	srv, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	time.Sleep(50 * time.Millisecond)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	startResp, err := client.Start()
	if err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}
	if !startResp.Started {
		t.Fatalf("expected Started=true, message=%s", startResp.Message)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running {
		t.Fatal("expected daemon to be running")
	}
	if status.PID <= 0 {
		t.Fatalf("unexpected pid %d", status.PID)
	}

	sourcePath := filepath.Join(cfg.Paths.InboxDir, "photo.png")
	testsupport.WriteFile(t, sourcePath, 2048)

	convResp, err := client.Convert(sourcePath, "jpg")
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if convResp.Job.SourceFormat != "png" || convResp.Job.TargetFormat != "jpg" {
		t.Fatalf("unexpected conversion pair: %s -> %s", convResp.Job.SourceFormat, convResp.Job.TargetFormat)
	}
	if convResp.Position < 1 {
		t.Fatalf("unexpected queue position %d", convResp.Position)
	}

	descResp, err := client.QueueDescribe(convResp.Job.ID)
	if err != nil {
		t.Fatalf("QueueDescribe failed: %v", err)
	}
	if descResp.Job.ID != convResp.Job.ID {
		t.Fatalf("described job %d, want %d", descResp.Job.ID, convResp.Job.ID)
	}

	removeResp, err := client.QueueRemove([]int64{convResp.Job.ID})
	if err != nil {
		t.Fatalf("QueueRemove failed: %v", err)
	}
	if removeResp.Removed != 1 {
		t.Fatalf("expected 1 job removed, got %d", removeResp.Removed)
	}

	logPath := d.LogPath()
	if err := os.WriteFile(logPath, []byte("first\nsecond\nthird\n"), 0o644); err != nil {
		t.Fatalf("write log file: %v", err)
	}

	logResp, err := client.LogTail(ipc.LogTailRequest{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("LogTail initial failed: %v", err)
	}
	if len(logResp.Lines) != 2 || logResp.Lines[0] != "second" || logResp.Lines[1] != "third" {
		t.Fatalf("unexpected log tail response: %#v", logResp.Lines)
	}

	followDone := make(chan struct{})
	go func(offset int64) {
		resp, err := client.LogTail(ipc.LogTailRequest{Offset: offset, Follow: true, WaitMillis: 5000})
		if err != nil {
			t.Errorf("LogTail follow error: %v", err)
			return
		}
		if len(resp.Lines) != 1 || resp.Lines[0] != "fourth" {
			t.Errorf("unexpected follow lines: %#v", resp.Lines)
		}
		close(followDone)
	}(logResp.Offset)

	time.Sleep(100 * time.Millisecond)
	if f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
		_, _ = f.WriteString("fourth\n")
		_ = f.Close()
	} else {
		t.Fatalf("append log: %v", err)
	}

	select {
	case <-followDone:
	case <-time.After(10 * time.Second):
		t.Fatal("log tail follow timed out")
	}

	stopResp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if !stopResp.Stopped {
		t.Fatalf("expected Stop to report stopped, got: %#v", stopResp)
	}

	jobA := testsupport.NewJob(t, store, "client-a", "a.png", "png", "jpg")
	jobB := testsupport.NewJob(t, store, "client-b", "b.wav", "wav", "mp3")
	jobB.Status = queue.StatusFailed
	if err := store.Update(ctx, jobB); err != nil {
		t.Fatalf("Update jobB: %v", err)
	}
	jobC := testsupport.NewJob(t, store, "client-c", "c.mp4", "mp4", "gif")
	jobC.Status = queue.StatusConverting
	if err := store.Update(ctx, jobC); err != nil {
		t.Fatalf("Update jobC: %v", err)
	}

	listResp, err := client.QueueList(nil)
	if err != nil {
		t.Fatalf("QueueList failed: %v", err)
	}
	if len(listResp.Jobs) != 3 {
		t.Fatalf("expected 3 queue jobs, got %d", len(listResp.Jobs))
	}

	failedResp, err := client.QueueList([]string{string(queue.StatusFailed)})
	if err != nil {
		t.Fatalf("QueueList failed filter: %v", err)
	}
	if len(failedResp.Jobs) != 1 || failedResp.Jobs[0].ID != jobB.ID {
		t.Fatalf("expected failed job %d, got %#v", jobB.ID, failedResp.Jobs)
	}

	resetResp, err := client.QueueReset()
	if err != nil {
		t.Fatalf("QueueReset failed: %v", err)
	}
	if resetResp.Updated != 1 {
		t.Fatalf("expected 1 job reset, got %d", resetResp.Updated)
	}
	updatedC, err := store.GetByID(ctx, jobC.ID)
	if err != nil {
		t.Fatalf("GetByID jobC: %v", err)
	}
	if updatedC.Status != queue.StatusPending {
		t.Fatalf("expected jobC back to pending after reset, got %s", updatedC.Status)
	}

	clearFailedResp, err := client.QueueClearFailed()
	if err != nil {
		t.Fatalf("QueueClearFailed failed: %v", err)
	}
	if clearFailedResp.Removed != 1 {
		t.Fatalf("expected 1 failed job removed, got %d", clearFailedResp.Removed)
	}

	jobA.Status = queue.StatusCompleted
	if err := store.Update(ctx, jobA); err != nil {
		t.Fatalf("Update jobA: %v", err)
	}
	clearCompletedResp, err := client.QueueClearCompleted()
	if err != nil {
		t.Fatalf("QueueClearCompleted failed: %v", err)
	}
	if clearCompletedResp.Removed != 1 {
		t.Fatalf("expected 1 completed job removed, got %d", clearCompletedResp.Removed)
	}

	retryResp, err := client.QueueRetry(nil)
	if err != nil {
		t.Fatalf("QueueRetry failed: %v", err)
	}
	if retryResp.Updated != 0 {
		t.Fatalf("expected 0 retried jobs, got %d", retryResp.Updated)
	}

	healthResp, err := client.QueueHealth()
	if err != nil {
		t.Fatalf("QueueHealth failed: %v", err)
	}
	if healthResp.Total != 1 || healthResp.Pending != 1 || healthResp.Failed != 0 {
		t.Fatalf("unexpected health response: %#v", healthResp)
	}

	dbHealth, err := client.DatabaseHealth()
	if err != nil {
		t.Fatalf("DatabaseHealth failed: %v", err)
	}
	if !strings.HasSuffix(dbHealth.DBPath, "queue.db") {
		t.Fatalf("unexpected db path: %s", dbHealth.DBPath)
	}

	banResp, err := client.SetBanned("client-x", true)
	if err != nil {
		t.Fatalf("SetBanned failed: %v", err)
	}
	if !banResp.Banned || banResp.ClientID != "client-x" {
		t.Fatalf("unexpected ban response: %#v", banResp)
	}
	clientsResp, err := client.Clients()
	if err != nil {
		t.Fatalf("Clients failed: %v", err)
	}
	foundBanned := false
	for _, c := range clientsResp.Clients {
		if c.ClientID == "client-x" && c.Banned {
			foundBanned = true
		}
	}
	if !foundBanned {
		t.Fatalf("expected banned client in listing: %#v", clientsResp.Clients)
	}
	if _, err := client.SetBanned("client-x", false); err != nil {
		t.Fatalf("unban failed: %v", err)
	}

	if _, err := client.Stats(); err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if _, err := client.History("client-a", 10); err != nil {
		t.Fatalf("History failed: %v", err)
	}

	notifyResp, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification failed: %v", err)
	}
	if notifyResp == nil || notifyResp.Message == "" {
		t.Fatalf("expected notification message, got %#v", notifyResp)
	}

	clearResp, err := client.QueueClear()
	if err != nil {
		t.Fatalf("QueueClear failed: %v", err)
	}
	if clearResp.Removed != 1 {
		t.Fatalf("expected 1 job cleared, got %d", clearResp.Removed)
	}

	status2, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status2.Running {
		t.Fatal("expected daemon to be stopped")
	}
}
