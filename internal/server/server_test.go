package server_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/chalkvoice/chalkvoice/internal/command"
	"github.com/chalkvoice/chalkvoice/internal/roster"
	"github.com/chalkvoice/chalkvoice/internal/server"
	"github.com/chalkvoice/chalkvoice/pkg/provider/asr/mock"
)

var (
	johnDoe  = roster.Student{ID: "s1", USN: "1GA23CI010", Name: "John Doe"}
	jonSmith = roster.Student{ID: "s2", USN: "1GA23CI024", Name: "Jon Smith"}
)

func newTestServer(t *testing.T, students []roster.Student, procOpts ...command.ProcessorOption) (*httptest.Server, *roster.MemStore) {
	t.Helper()
	store := roster.NewMemStore()
	if _, err := store.ReplaceStudents(context.Background(), students); err != nil {
		t.Fatalf("seeding students: %v", err)
	}
	processor := command.NewProcessor(store, roster.NewResolver(), procOpts...)
	ts := httptest.NewServer(server.New(processor, store).Handler())
	t.Cleanup(ts.Close)
	return ts, store
}

func postCommand(t *testing.T, ts *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/command", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/command: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, r io.Reader) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
	return v
}

type errorResponse struct {
	Error struct {
		Kind       string           `json:"kind"`
		Message    string           `json:"message"`
		Candidates []roster.Student `json:"candidates"`
	} `json:"error"`
}

func TestHandleCommand_Attendance(t *testing.T) {
	t.Parallel()
	ts, store := newTestServer(t, []roster.Student{johnDoe})

	resp := postCommand(t, ts, `{"transcript": "john is present", "date": "2026-08-30"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	conf := decodeBody[command.Confirmation](t, resp.Body)
	if conf.Student.USN != johnDoe.USN {
		t.Errorf("confirmed student = %+v, want John Doe", conf.Student)
	}
	if conf.Attendance == nil || conf.Attendance.Status != roster.Present {
		t.Fatalf("attendance = %+v, want Present", conf.Attendance)
	}

	rec, err := store.GetAttendance(context.Background(), johnDoe.ID, "2026-08-30")
	if err != nil {
		t.Fatalf("stored record: %v", err)
	}
	if rec.Status != roster.Present {
		t.Errorf("stored status = %s, want Present", rec.Status)
	}
}

func TestHandleCommand_Marks(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t, []roster.Student{johnDoe})

	resp := postCommand(t, ts, `{"transcript": "john IA1: Q1-8, Q3-7, Q6-9, Q8-8", "date": "2026-08-30"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	conf := decodeBody[command.Confirmation](t, resp.Body)
	if conf.Marks == nil || conf.Marks.Total != 32 {
		t.Fatalf("marks = %+v, want total 32", conf.Marks)
	}
}

func TestHandleCommand_ErrorStatuses(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t, []roster.Student{johnDoe, jonSmith})

	tests := []struct {
		name   string
		body   string
		status int
		kind   string
	}{
		{
			"ambiguous match",
			`{"transcript": "johnny is present", "date": "2026-08-30"}`,
			http.StatusConflict, "ambiguous_match",
		},
		{
			"no match",
			`{"transcript": "zzzyx is present", "date": "2026-08-30"}`,
			http.StatusNotFound, "no_match",
		},
		{
			"pair conflict",
			`{"transcript": "usn 1ga23ci010 ia1: q1-8, q2-7, q3-6, q4-9", "date": "2026-08-30"}`,
			http.StatusUnprocessableEntity, "pair_conflict",
		},
		{
			"unparseable",
			`{"transcript": "good morning", "date": "2026-08-30"}`,
			http.StatusUnprocessableEntity, "unparseable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postCommand(t, ts, tt.body)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			body := decodeBody[errorResponse](t, resp.Body)
			if body.Error.Kind != tt.kind {
				t.Errorf("kind = %q, want %q", body.Error.Kind, tt.kind)
			}
			if tt.kind == "ambiguous_match" && len(body.Error.Candidates) != 2 {
				t.Errorf("candidates = %+v, want both tied students", body.Error.Candidates)
			}
		})
	}
}

func TestHandleCommand_BadRequests(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t, []roster.Student{johnDoe})

	tests := []struct {
		name string
		body string
	}{
		{"neither transcript nor audio", `{"date": "2026-08-30"}`},
		{"both transcript and audio", `{"transcript": "x", "audio": "eA==", "date": "2026-08-30"}`},
		{"invalid base64", `{"audio": "not base64!!", "date": "2026-08-30"}`},
		{"invalid json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postCommand(t, ts, tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestHandleCommand_Audio(t *testing.T) {
	t.Parallel()
	stt := &mock.Provider{Transcript: "john is present"}
	ts, _ := newTestServer(t, []roster.Student{johnDoe}, command.WithASR(stt))

	audio := base64.StdEncoding.EncodeToString([]byte("wav bytes"))
	resp := postCommand(t, ts, `{"audio": "`+audio+`", "date": "2026-08-30"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if stt.TranscribeCallCount() != 1 {
		t.Errorf("transcribe called %d times, want 1", stt.TranscribeCallCount())
	}
	if string(stt.TranscribeCalls[0].Audio) != "wav bytes" {
		t.Error("decoded audio not forwarded to the provider")
	}
}

func TestHandleImport(t *testing.T) {
	t.Parallel()
	ts, store := newTestServer(t, nil)

	csv := "USN,Name\n1GA23CI010,John Doe\n1GA23CI011,Jane Roe\n"
	resp, err := http.Post(ts.URL+"/api/students/import", "text/csv", bytes.NewReader([]byte(csv)))
	if err != nil {
		t.Fatalf("POST import: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	result := decodeBody[map[string]int](t, resp.Body)
	if result["imported"] != 2 {
		t.Errorf("imported = %d, want 2", result["imported"])
	}

	students, err := store.ListStudents(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(students) != 2 {
		t.Errorf("got %d students, want 2", len(students))
	}
}

func TestHandleImport_BadCSV(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t, nil)

	resp, err := http.Post(ts.URL+"/api/students/import", "text/csv", strings.NewReader("Section\nA\n"))
	if err != nil {
		t.Fatalf("POST import: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestListEndpoints(t *testing.T) {
	t.Parallel()
	ts, store := newTestServer(t, []roster.Student{johnDoe})

	_, err := store.UpsertAttendance(context.Background(), roster.AttendanceRecord{
		StudentID: johnDoe.ID, Date: "2026-08-30", Status: roster.Present,
	})
	if err != nil {
		t.Fatalf("seed attendance: %v", err)
	}
	_, err = store.UpsertExamRecord(context.Background(), roster.ExamRecord{
		StudentID: johnDoe.ID, Exam: roster.ExamIA1,
		Scores: map[int]int{1: 8, 3: 7, 6: 9, 8: 8}, Total: 32,
	})
	if err != nil {
		t.Fatalf("seed marks: %v", err)
	}

	tests := []struct {
		path string
		want int
	}{
		{"/api/students", http.StatusOK},
		{"/api/attendance?date=2026-08-30", http.StatusOK},
		{"/api/attendance?date=tomorrow", http.StatusBadRequest},
		{"/api/marks?exam=IA1", http.StatusOK},
		{"/api/marks?exam=final", http.StatusBadRequest},
		{"/api/analytics/attendance", http.StatusOK},
		{"/api/analytics/exams?exam=IA1", http.StatusOK},
		{"/api/analytics/exams?exam=bogus", http.StatusBadRequest},
		{"/api/analytics/at-risk", http.StatusOK},
		{"/metrics", http.StatusOK},
	}
	for _, tt := range tests {
		resp, err := http.Get(ts.URL + tt.path)
		if err != nil {
			t.Fatalf("GET %s: %v", tt.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("GET %s: status = %d, want %d", tt.path, resp.StatusCode, tt.want)
		}
	}
}

func TestListAttendance_Filtered(t *testing.T) {
	t.Parallel()
	ts, store := newTestServer(t, []roster.Student{johnDoe})

	for _, date := range []string{"2026-08-29", "2026-08-30"} {
		if _, err := store.UpsertAttendance(context.Background(), roster.AttendanceRecord{
			StudentID: johnDoe.ID, Date: date, Status: roster.Present,
		}); err != nil {
			t.Fatalf("seed attendance: %v", err)
		}
	}

	resp, err := http.Get(ts.URL + "/api/attendance?date=2026-08-30")
	if err != nil {
		t.Fatalf("GET attendance: %v", err)
	}
	defer resp.Body.Close()
	records := decodeBody[[]roster.AttendanceRecord](t, resp.Body)
	if len(records) != 1 || records[0].Date != "2026-08-30" {
		t.Errorf("records = %+v, want only 2026-08-30", records)
	}
}

func TestLiveFeed(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t, []roster.Student{johnDoe})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/live"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dialing live feed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// Give the hub a moment to register the connection.
	time.Sleep(100 * time.Millisecond)

	resp := postCommand(t, ts, `{"transcript": "john is present", "date": "2026-08-30"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("command status = %d, want 200", resp.StatusCode)
	}

	var event struct {
		Event string               `json:"event"`
		Data  command.Confirmation `json:"data"`
	}
	if err := wsjson.Read(ctx, conn, &event); err != nil {
		t.Fatalf("reading feed event: %v", err)
	}
	if event.Event != "recorded" {
		t.Errorf("event = %q, want recorded", event.Event)
	}
	if event.Data.Student.USN != johnDoe.USN {
		t.Errorf("event student = %+v, want John Doe", event.Data.Student)
	}
}
