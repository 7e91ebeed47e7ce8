package mcp

import "testing"

func TestParseRequest_Valid(t *testing.T) {
	raw := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	req, err := ParseRequest(raw)
	if err != nil {
		t.Fatalf("ParseRequest() error: %v", err)
	}
	if req.Method != "tools/list" {
		t.Errorf("Method = %q, want tools/list", req.Method)
	}
}

func TestParseRequest_RejectsBadVersion(t *testing.T) {
	raw := []byte(`{"jsonrpc":"1.0","id":1,"method":"tools/list"}`)
	if _, err := ParseRequest(raw); err == nil {
		t.Fatal("expected error for wrong jsonrpc version")
	}
}

func TestParseRequest_RejectsEmptyMethod(t *testing.T) {
	raw := []byte(`{"jsonrpc":"2.0","id":1,"method":""}`)
	if _, err := ParseRequest(raw); err == nil {
		t.Fatal("expected error for empty method")
	}
}

func TestIsNotification(t *testing.T) {
	cases := []struct {
		name string
		body string
		want bool
	}{
		{"no id field", `{"jsonrpc":"2.0","method":"notify"}`, true},
		{"has id", `{"jsonrpc":"2.0","id":1,"method":"call"}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsNotification([]byte(tc.body)); got != tc.want {
				t.Errorf("IsNotification(%s) = %v, want %v", tc.body, got, tc.want)
			}
		})
	}
}

func TestExtractID(t *testing.T) {
	id, ok := ExtractID([]byte(`{"jsonrpc":"2.0","id":42,"result":{}}`))
	if !ok {
		t.Fatal("expected ok=true")
	}
	if f, isFloat := id.(float64); !isFloat || f != 42 {
		t.Errorf("id = %v (%T), want float64 42", id, id)
	}

	if _, ok := ExtractID([]byte(`not json`)); ok {
		t.Error("expected ok=false for unparseable body")
	}
}

func TestRPCError_Error(t *testing.T) {
	resp := InternalError(1, "boom")
	if resp.Error.Code != CodeInternalError {
		t.Errorf("Code = %d, want %d", resp.Error.Code, CodeInternalError)
	}
	if got := resp.Error.Error(); got == "" {
		t.Error("Error() returned empty string")
	}
}

func TestContentTooLarge(t *testing.T) {
	resp := ContentTooLarge(1, "body exceeds limit")
	if resp.Error.Code != CodeContentTooLarge {
		t.Errorf("Code = %d, want %d", resp.Error.Code, CodeContentTooLarge)
	}
}
