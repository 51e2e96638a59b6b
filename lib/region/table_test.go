package region

import "testing"

func TestChatHostCaseInsensitive(t *testing.T) {
	host, ok := ChatHost("NA")
	if !ok {
		t.Fatal("expected na to resolve")
	}
	if host != "na2.chat.si.riotgames.com" {
		t.Fatalf("host = %q, want na2.chat.si.riotgames.com", host)
	}
}

func TestChatHostUnknownCode(t *testing.T) {
	if _, ok := ChatHost("atlantis"); ok {
		t.Fatal("expected unknown region code to report ok=false")
	}
}

func TestListReturnsOneEntryPerCanonicalCode(t *testing.T) {
	regions := List()
	if len(regions) != len(displayOrder) {
		t.Fatalf("List() returned %d regions, want %d", len(regions), len(displayOrder))
	}
	seen := make(map[string]bool)
	for _, r := range regions {
		if r.DisplayName == "" {
			t.Fatalf("region %q has empty display name", r.Code)
		}
		if seen[r.Code] {
			t.Fatalf("duplicate region code %q in List()", r.Code)
		}
		seen[r.Code] = true
	}
}
