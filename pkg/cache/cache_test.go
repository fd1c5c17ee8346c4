package cache

import "testing"

func TestKeyOrderIndependent(t *testing.T) {
	a := map[string]string{"function": "GLOBAL_QUOTE", "symbol": "IBM"}
	b := map[string]string{"symbol": "IBM", "function": "GLOBAL_QUOTE"}
	if Key(a) != Key(b) {
		t.Error("same params in different order should produce same key")
	}
	c := map[string]string{"function": "GLOBAL_QUOTE", "symbol": "MSFT"}
	if Key(a) == Key(c) {
		t.Error("different params should produce different keys")
	}
	if len(Key(a)) != 64 {
		t.Errorf("expected hex sha256, got %q", Key(a))
	}
}

func TestKeyEscapesSeparators(t *testing.T) {
	a := map[string]string{"q": "a&b=c"}
	b := map[string]string{"q": "a", "b": "c"}
	if Key(a) == Key(b) {
		t.Error("separator characters in values must not collide")
	}
}

func TestKeyEmpty(t *testing.T) {
	if Key(nil) != Key(map[string]string{}) {
		t.Error("nil and empty params should share a key")
	}
}

func TestCategoryKey(t *testing.T) {
	params := map[string]string{"symbol": "AAPL"}
	if CategoryKey("quote", params) == CategoryKey("news", params) {
		t.Error("same params under different categories should not share a key")
	}
	if CategoryKey("quote", params) != CategoryKey("quote", map[string]string{"symbol": "AAPL"}) {
		t.Error("same category and params should share a key")
	}
	if CategoryKey("", params) == Key(params) {
		t.Error("category keys should not collide with plain keys")
	}
	// The separator cannot be forged through the category name.
	if CategoryKey("a\nsymbol=AAPL", nil) == CategoryKey("a", params) {
		t.Error("category must be escaped")
	}
}
