package api

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// buildMinimalELF returns a tiny ELF64 RISC-V executable with one
// PT_LOAD segment, matching the shape the loader package accepts.
func buildMinimalELF(vaddr uint64, code []byte) []byte {
	const ehdrSize = 64
	const phdrSize = 56
	dataOff := uint64(ehdrSize + phdrSize)

	buf := make([]byte, dataOff+uint64(len(code)))

	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // little-endian
	buf[6] = 1 // EV_CURRENT
	le := binary.LittleEndian
	le.PutUint16(buf[16:], 2)      // e_type = ET_EXEC
	le.PutUint16(buf[18:], 0xf3)   // e_machine = EM_RISCV
	le.PutUint32(buf[20:], 1)      // e_version
	le.PutUint64(buf[24:], vaddr)  // e_entry
	le.PutUint64(buf[32:], ehdrSize)
	le.PutUint16(buf[52:], ehdrSize)
	le.PutUint16(buf[54:], phdrSize)
	le.PutUint16(buf[56:], 1)

	ph := buf[ehdrSize:]
	le.PutUint32(ph[0:], 1)                     // PT_LOAD
	le.PutUint32(ph[4:], 5)                     // R+X
	le.PutUint64(ph[8:], dataOff)
	le.PutUint64(ph[16:], vaddr)
	le.PutUint64(ph[24:], vaddr)
	le.PutUint64(ph[32:], uint64(len(code)))
	le.PutUint64(ph[40:], uint64(len(code)))
	le.PutUint64(ph[48:], 0x1000)

	copy(buf[dataOff:], code)
	return buf
}

func newTestServer() *Server {
	return NewServer(0)
}

func createTestSession(t *testing.T, s *Server) string {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	s.handleCreateSession(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("handleCreateSession: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp SessionCreateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode session response: %v", err)
	}
	return resp.SessionID
}

func TestHandleCreateAndGetSession(t *testing.T) {
	s := newTestServer()
	sessionID := createTestSession(t, s)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session/"+sessionID, nil)
	rec := httptest.NewRecorder()
	s.handleGetSessionStatus(rec, req, sessionID)

	if rec.Code != http.StatusOK {
		t.Fatalf("handleGetSessionStatus: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var status SessionStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status response: %v", err)
	}
	if status.State != "halted" {
		t.Errorf("expected a freshly created session to be halted, got %q", status.State)
	}
}

func TestHandleGetSessionStatusUnknown(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session/nope", nil)
	rec := httptest.NewRecorder()
	s.handleGetSessionStatus(rec, req, "nope")

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown session, got %d", rec.Code)
	}
}

func TestHandleLoadProgramAndStep(t *testing.T) {
	s := newTestServer()
	sessionID := createTestSession(t, s)

	vaddr := uint64(0x80000000)
	code := []byte{
		0x13, 0x05, 0x10, 0x00, // addi a0, zero, 1
		0x73, 0x00, 0x00, 0x00, // ecall
	}
	elfBytes := buildMinimalELF(vaddr, code)

	loadBody, err := json.Marshal(LoadProgramRequest{Binary: elfBytes})
	if err != nil {
		t.Fatalf("marshal load request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/"+sessionID+"/load", bytes.NewReader(loadBody))
	rec := httptest.NewRecorder()
	s.handleLoadProgram(rec, req, sessionID)

	if rec.Code != http.StatusOK {
		t.Fatalf("handleLoadProgram: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var loadResp LoadProgramResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &loadResp); err != nil {
		t.Fatalf("decode load response: %v", err)
	}
	if !loadResp.Success {
		t.Fatalf("expected successful load, got error %q", loadResp.Error)
	}
	if loadResp.Entry != vaddr {
		t.Errorf("entry = %#x, want %#x", loadResp.Entry, vaddr)
	}

	stepReq := httptest.NewRequest(http.MethodPost, "/api/v1/session/"+sessionID+"/step", nil)
	stepRec := httptest.NewRecorder()
	s.handleStep(stepRec, stepReq, sessionID)

	if stepRec.Code != http.StatusOK {
		t.Fatalf("handleStep: status = %d, body = %s", stepRec.Code, stepRec.Body.String())
	}

	var regs RegistersResponse
	if err := json.Unmarshal(stepRec.Body.Bytes(), &regs); err != nil {
		t.Fatalf("decode registers response: %v", err)
	}
	if regs.PC != vaddr+4 {
		t.Errorf("PC after one step = %#x, want %#x", regs.PC, vaddr+4)
	}
	if regs.X[10] != 1 {
		t.Errorf("a0 after addi = %d, want 1", regs.X[10])
	}
}

func TestHandleLoadProgramRejectsEmptyBinary(t *testing.T) {
	s := newTestServer()
	sessionID := createTestSession(t, s)

	loadBody, _ := json.Marshal(LoadProgramRequest{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/"+sessionID+"/load", bytes.NewReader(loadBody))
	rec := httptest.NewRecorder()
	s.handleLoadProgram(rec, req, sessionID)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty binary, got %d", rec.Code)
	}
}

func TestHandleBreakpointAddAndList(t *testing.T) {
	s := newTestServer()
	sessionID := createTestSession(t, s)

	addBody, _ := json.Marshal(BreakpointRequest{Address: 0x80000004})
	addReq := httptest.NewRequest(http.MethodPost, "/api/v1/session/"+sessionID+"/breakpoint", bytes.NewReader(addBody))
	addRec := httptest.NewRecorder()
	s.handleBreakpoint(addRec, addReq, sessionID)

	if addRec.Code != http.StatusOK {
		t.Fatalf("add breakpoint: status = %d, body = %s", addRec.Code, addRec.Body.String())
	}

	listReq := httptest.NewRequest(http.MethodGet, "/api/v1/session/"+sessionID+"/breakpoints", nil)
	listRec := httptest.NewRecorder()
	s.handleListBreakpoints(listRec, listReq, sessionID)

	var listResp BreakpointsResponse
	if err := json.Unmarshal(listRec.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("decode breakpoints response: %v", err)
	}
	if len(listResp.Breakpoints) != 1 || listResp.Breakpoints[0].Address != 0x80000004 {
		t.Errorf("unexpected breakpoints list: %+v", listResp.Breakpoints)
	}
}

func TestHandleDestroySession(t *testing.T) {
	s := newTestServer()
	sessionID := createTestSession(t, s)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/session/"+sessionID, nil)
	rec := httptest.NewRecorder()
	s.handleDestroySession(rec, req, sessionID)

	if rec.Code != http.StatusOK {
		t.Fatalf("handleDestroySession: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	statusReq := httptest.NewRequest(http.MethodGet, "/api/v1/session/"+sessionID, nil)
	statusRec := httptest.NewRecorder()
	s.handleGetSessionStatus(statusRec, statusReq, sessionID)
	if statusRec.Code != http.StatusNotFound {
		t.Errorf("expected session to be gone after destroy, got status %d", statusRec.Code)
	}
}
