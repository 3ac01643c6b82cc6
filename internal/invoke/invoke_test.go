package invoke

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	ncerr "microservice/internal/errors"
	"microservice/internal/router"
	"microservice/util"
)

func TestInvoke_Routes(t *testing.T) {
	tests := []struct {
		name       string
		ev         Event
		wantStatus int
		wantBody   string
	}{
		{"index", Event{Method: "GET", Path: "/"}, 200, router.IndexHTML},
		{"defaults", Event{}, 200, router.IndexHTML},
		{"query in path", Event{Method: "GET", Path: "/?a=1"}, 200, router.IndexHTML},
		{"missing", Event{Method: "GET", Path: "/missing"}, 404, router.NotFoundBody},
		{"post", Event{Method: "POST", Path: "/", Body: "x=1"}, 404, router.NotFoundBody},
	}

	h := router.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Invoke(context.Background(), h, &tt.ev)
			if err != nil {
				t.Fatal(err)
			}
			if res.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", res.StatusCode, tt.wantStatus)
			}
			if res.Body != tt.wantBody {
				t.Errorf("body = %q, want %q", res.Body, tt.wantBody)
			}
			if res.IsBase64Encoded {
				t.Error("text body was base64 encoded")
			}
		})
	}
}

// TestInvoke_MatchesHTTP checks an event and the equivalent HTTP request
// get the same status, content type and body.
func TestInvoke_MatchesHTTP(t *testing.T) {
	cases := []struct{ method, target string }{
		{"GET", "/"},
		{"GET", "/missing"},
		{"POST", "/"},
		{"DELETE", "/x?y=z"},
	}

	h := router.New()
	for _, c := range cases {
		t.Run(c.method+" "+c.target, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.HTTPHandler(h).ServeHTTP(rec, httptest.NewRequest(c.method, c.target, nil))

			res, err := Invoke(context.Background(), h, &Event{Method: c.method, Path: c.target})
			if err != nil {
				t.Fatal(err)
			}
			if res.StatusCode != rec.Code {
				t.Errorf("status: invoke %d, http %d", res.StatusCode, rec.Code)
			}
			if res.Body != rec.Body.String() {
				t.Errorf("body: invoke %q, http %q", res.Body, rec.Body.String())
			}
			if got, want := res.Headers["Content-Type"], rec.Header().Get("Content-Type"); got != want {
				t.Errorf("Content-Type: invoke %q, http %q", got, want)
			}
		})
	}
}

func TestEvent_Request(t *testing.T) {
	ev := &Event{
		Method:          "PUT",
		Path:            "/items",
		Query:           "id=7",
		Headers:         map[string]string{"x-trace": "abc"},
		Body:            base64.StdEncoding.EncodeToString([]byte{0, 1, 2}),
		IsBase64Encoded: true,
	}
	req, err := ev.Request()
	if err != nil {
		t.Fatal(err)
	}
	if req.Method != "PUT" || req.Path != "/items" || req.RawQuery != "id=7" {
		t.Errorf("request = %s %s ? %s", req.Method, req.Path, req.RawQuery)
	}
	if got := req.Header.Get("X-Trace"); got != "abc" {
		t.Errorf("X-Trace = %q", got)
	}
	body, _ := io.ReadAll(req.Body)
	if !bytes.Equal(body, []byte{0, 1, 2}) {
		t.Errorf("body = %v", body)
	}
}

func TestInvoke_BadBase64(t *testing.T) {
	_, err := Invoke(context.Background(), router.New(), &Event{Body: "!!!", IsBase64Encoded: true})
	if !ncerr.IsProtocol(err) {
		t.Errorf("err = %v, want ProtocolError", err)
	}
}

func TestNewResult_Binary(t *testing.T) {
	raw := []byte{0xff, 0xfe, 0x00}
	res, err := NewResult(&router.Response{
		Status: 200,
		Header: http.Header{"Content-Type": {"application/octet-stream"}},
		Body:   raw,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsBase64Encoded {
		t.Fatal("binary body not base64 encoded")
	}
	got, _ := base64.StdEncoding.DecodeString(res.Body)
	if !bytes.Equal(got, raw) {
		t.Errorf("decoded = %v", got)
	}
}

func TestNewResult_Stream(t *testing.T) {
	res, err := NewResult(&router.Response{Status: 200, Stream: strings.NewReader("streamed")})
	if err != nil {
		t.Fatal(err)
	}
	if res.Body != "streamed" {
		t.Errorf("body = %q", res.Body)
	}
}

func TestServe_Lines(t *testing.T) {
	in := strings.Join([]string{
		`{"method":"GET","path":"/"}`,
		``,
		`not json`,
		`{"method":"GET","path":"/missing"}`,
	}, "\n")

	var logs bytes.Buffer
	logger := util.NewLogger(1)
	logger.SetOutput(&logs)

	var out bytes.Buffer
	if err := Serve(context.Background(), router.New(), strings.NewReader(in), &out, logger); err != nil {
		t.Fatal(err)
	}

	var got []Result
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var r Result
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("output line %q: %v", sc.Text(), err)
		}
		got = append(got, r)
	}

	want := []int{200, 400, 404}
	if len(got) != len(want) {
		t.Fatalf("results = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].StatusCode != w {
			t.Errorf("result %d: status = %d, want %d", i, got[i].StatusCode, w)
		}
	}
	if got[0].Body != router.IndexHTML {
		t.Error("index body mismatch")
	}
	if !strings.Contains(logs.String(), "event 3") {
		t.Errorf("bad line not logged with its number:\n%s", logs.String())
	}
}

func TestServe_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	logger := util.NewLogger(0)
	logger.SetOutput(io.Discard)
	if err := Serve(ctx, router.New(), strings.NewReader(`{"path":"/"}`+"\n"), &out, logger); err != nil {
		t.Fatal(err)
	}
	if out.Len() != 0 {
		t.Errorf("wrote %q after cancel", out.String())
	}
}
