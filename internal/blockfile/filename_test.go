package blockfile

import "testing"

func TestParseFilename_WithHeight(t *testing.T) {
	network, height, hash, ok := ParseFilename("mainnet-120-3NKxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx.json")
	if !ok {
		t.Fatal("expected ok=true")
	}
	if network != "mainnet" {
		t.Errorf("network = %q, want mainnet", network)
	}
	if height == nil || *height != 120 {
		t.Errorf("height = %v, want 120", height)
	}
	if hash != "3NKxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx" {
		t.Errorf("hash = %q", hash)
	}
}

func TestParseFilename_WithoutHeight(t *testing.T) {
	network, height, hash, ok := ParseFilename("mainnet-3NKyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyy.json")
	if !ok {
		t.Fatal("expected ok=true")
	}
	if network != "mainnet" {
		t.Errorf("network = %q, want mainnet", network)
	}
	if height != nil {
		t.Errorf("height = %v, want nil", height)
	}
	if hash != "3NKyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyy" {
		t.Errorf("hash = %q", hash)
	}
}

func TestParseFilename_NetworkWithDashes(t *testing.T) {
	network, height, _, ok := ParseFilename("mina-mainnet-5-3NKzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz.json")
	if !ok {
		t.Fatal("expected ok=true")
	}
	if network != "mina-mainnet" {
		t.Errorf("network = %q, want mina-mainnet", network)
	}
	if height == nil || *height != 5 {
		t.Errorf("height = %v, want 5", height)
	}
}

func TestParseFilename_Invalid(t *testing.T) {
	cases := []string{
		"",
		"not-json.txt",
		"mainnet-notahash.json",
		"3NKonly.json",
	}
	for _, c := range cases {
		if IsValidBlockFile(c) {
			t.Errorf("IsValidBlockFile(%q) = true, want false", c)
		}
	}
}

func TestFilenameRoundTrip(t *testing.T) {
	h := uint64(42)
	cases := []struct {
		network string
		height  *uint64
		hash    string
	}{
		{"mainnet", &h, "3Nabc"},
		{"mainnet", nil, "3Nxyz"},
		{"devnet", &h, "3Ndevnet"},
	}
	for _, c := range cases {
		name := FormatFilename(c.network, c.height, c.hash)
		network, height, hash, ok := ParseFilename(name)
		if !ok {
			t.Fatalf("ParseFilename(%q) ok=false", name)
		}
		if network != c.network || hash != c.hash {
			t.Errorf("round-trip mismatch for %q: got network=%q hash=%q", name, network, hash)
		}
		if (c.height == nil) != (height == nil) {
			t.Errorf("round-trip height nilness mismatch for %q", name)
			continue
		}
		if c.height != nil && *height != *c.height {
			t.Errorf("round-trip height mismatch for %q: got %d want %d", name, *height, *c.height)
		}
	}
}
