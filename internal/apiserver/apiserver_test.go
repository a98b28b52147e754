package apiserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/ethosn/cascadec/internal/frontend"
	"github.com/ethosn/cascadec/internal/hwcaps"
	"github.com/ethosn/cascadec/pkg/npu"
)

func newTestEcho(t *testing.T) *echo.Echo {
	t.Helper()
	caps := map[string]hwcaps.Caps{"Ethos78_4Tops_4PleRatio": hwcaps.Ethos78_4Tops_4PleRatio()}
	server := NewServer(caps, nil, 0, 0)
	e := echo.New()
	server.Register(e)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func singleConvGraphJSON(t *testing.T) string {
	t.Helper()
	quant := npu.QuantInfo{ZeroPoint: 0, Scale: 1.0}
	shape := func(h, w, c int) npu.TensorInfo {
		s, err := npu.BuildShape([]int{1, h, w, c})
		if err != nil {
			t.Fatalf("BuildShape: %v", err)
		}
		return npu.TensorInfo{Shape: s, Quant: quant, Type: npu.QAsymmU8}
	}
	in := shape(16, 16, 8)
	out := shape(16, 16, 8)

	og := frontend.OperatorGraph{
		Ops: []frontend.Op{
			{Kind: frontend.OpInput, OperationID: 1, Outputs: []npu.TensorInfo{in}},
			{
				Kind:        frontend.OpConvolution,
				OperationID: 2,
				Inputs:      []npu.TensorInfo{in},
				InputSrcs:   []frontend.OperandRef{{OperationID: 1, OutputIndex: 0}},
				Outputs:     []npu.TensorInfo{out},
				Attrs:       frontend.Attrs{FilterH: 1, FilterW: 1, StrideH: 1, StrideW: 1},
			},
			{
				Kind:        frontend.OpOutput,
				OperationID: 3,
				Inputs:      []npu.TensorInfo{out},
				InputSrcs:   []frontend.OperandRef{{OperationID: 2, OutputIndex: 0}},
			},
		},
	}

	req := CompileRequest{Network: og, Capability: "Ethos78_4Tops_4PleRatio"}
	payload, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return string(payload)
}

func TestHealth(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t)
	rec := doJSON(t, e, http.MethodGet, "/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestCompileSucceeds(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t)
	rec := doJSON(t, e, http.MethodPost, "/v1/compile", singleConvGraphJSON(t))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp CompileResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.RequestID == "" {
		t.Fatalf("expected a non-empty request ID")
	}
	if resp.Agents == 0 {
		t.Fatalf("expected a non-zero agent count")
	}
	if len(resp.Command) == 0 {
		t.Fatalf("expected a non-empty command stream payload")
	}
}

func TestCompileRejectsUnknownCapability(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t)
	body := `{"network":{"ops":[]},"capability":"DoesNotExist"}`
	rec := doJSON(t, e, http.MethodPost, "/v1/compile", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body = %s", rec.Code, rec.Body.String())
	}
}

func TestCompileRejectsMalformedBody(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t)
	rec := doJSON(t, e, http.MethodPost, "/v1/compile", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body = %s", rec.Code, rec.Body.String())
	}
}

func TestCompileRateLimited(t *testing.T) {
	t.Parallel()
	caps := map[string]hwcaps.Caps{"Ethos78_4Tops_4PleRatio": hwcaps.Ethos78_4Tops_4PleRatio()}
	server := NewServer(caps, nil, 1, 1)
	e := echo.New()
	server.Register(e)

	body := singleConvGraphJSON(t)
	first := doJSON(t, e, http.MethodPost, "/v1/compile", body)
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200, body = %s", first.Code, first.Body.String())
	}
	second := doJSON(t, e, http.MethodPost, "/v1/compile", body)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", second.Code)
	}
}
