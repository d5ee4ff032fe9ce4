package types

import "testing"

func TestEndpointRoundTrip(t *testing.T) {
	ep, err := ParseEndpoint("192.168.1.5:4242")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := ep.String(); got != "192.168.1.5:4242" {
		t.Fatalf("string: got %q", got)
	}

	text, err := ep.MarshalText()
	if err != nil {
		t.Fatalf("marshal text: %v", err)
	}

	var decoded Endpoint
	if err := decoded.UnmarshalText(text); err != nil {
		t.Fatalf("unmarshal text: %v", err)
	}
	if !decoded.Equal(ep) {
		t.Fatalf("round trip mismatch: got %v want %v", decoded, ep)
	}
}

func TestEndpointAsMapKey(t *testing.T) {
	a, _ := ParseEndpoint("10.0.0.1:1")
	b, _ := ParseEndpoint("10.0.0.2:1")

	m := map[Endpoint]string{a: "a", b: "b"}
	if m[a] != "a" || m[b] != "b" {
		t.Fatalf("endpoint did not behave as a stable map key")
	}
}

func TestEndpointOrdering(t *testing.T) {
	a, _ := ParseEndpoint("10.0.0.1:100")
	b, _ := ParseEndpoint("10.0.0.1:200")
	c, _ := ParseEndpoint("10.0.0.2:1")

	if !a.Less(b) {
		t.Fatalf("expected a < b by port")
	}
	if !b.Less(c) {
		t.Fatalf("expected b < c by ip")
	}
}

func TestParseEndpointRejectsMalformed(t *testing.T) {
	cases := []string{"not-an-endpoint", "10.0.0.1", "::1:80", "10.0.0.1:notaport"}
	for _, c := range cases {
		if _, err := ParseEndpoint(c); err == nil {
			t.Errorf("expected error parsing %q", c)
		}
	}
}
