package icrypto

import (
	"bytes"
	"testing"
)

func TestAAD(t *testing.T) {
	a1 := AADRecordData("r1", 1)
	a2 := AADRecordData("r1", 1)
	if !bytes.Equal(a1, a2) {
		t.Error("AADRecordData should be deterministic")
	}
	if bytes.Equal(a1, AADRecordData("r2", 1)) {
		t.Error("AADRecordData should differ across records")
	}
	if bytes.Equal(a1, AADRecordData("r1", 2)) {
		t.Error("AADRecordData should differ across envelope versions")
	}
	// Length prefixing keeps ids that share a prefix apart.
	if bytes.Equal(AADRecordData("r1", 1)[:len(AADRecordData("r", 1))], AADRecordData("r", 1)) {
		t.Error("AADRecordData should length-prefix the record id")
	}
}

func TestLookupID(t *testing.T) {
	id1 := LookupID("correct horse battery staple")
	id2 := LookupID("correct horse battery staple")
	if id1 != id2 {
		t.Error("LookupID should be deterministic")
	}
	if len(id1) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(id1))
	}
	if id1 == LookupID("correct horse battery stapler") {
		t.Error("LookupID should differ for different passphrases")
	}
	if LookupID("caf\u00e9") != LookupID("cafe\u0301") {
		t.Error("LookupID should normalize unicode input")
	}
	if !MatchLookupID(id1, id2) {
		t.Error("MatchLookupID should accept equal IDs")
	}
	if MatchLookupID(id1, "") {
		t.Error("MatchLookupID should reject mismatched IDs")
	}
}

func TestDataKeys(t *testing.T) {
	key1, err := DeriveDataKey("correct horse battery staple", "r1")
	if err != nil {
		t.Fatalf("DeriveDataKey failed: %v", err)
	}
	if len(key1) != 32 {
		t.Errorf("expected 32-byte key, got %d", len(key1))
	}

	key2, _ := DeriveDataKey("correct horse battery staple", "r1")
	if !bytes.Equal(key1, key2) {
		t.Error("DeriveDataKey should be deterministic")
	}

	key3, _ := DeriveDataKey("correct horse battery staple", "r2")
	if bytes.Equal(key1, key3) {
		t.Error("DeriveDataKey should be different for different records")
	}

	key4, _ := DeriveDataKey("another passphrase", "r1")
	if bytes.Equal(key1, key4) {
		t.Error("DeriveDataKey should be different for different passphrases")
	}
}
