package embedding

import "testing"

func TestSimpleTokenizer(t *testing.T) {
	tok := &SimpleTokenizer{}

	inputIDs, attentionMask, tokenTypeIDs := tok.Tokenize("hello world", 16)
	if len(inputIDs) != 16 || len(attentionMask) != 16 || len(tokenTypeIDs) != 16 {
		t.Fatalf("lengths = %d %d %d, want 16 each", len(inputIDs), len(attentionMask), len(tokenTypeIDs))
	}
	if inputIDs[0] != 101 {
		t.Errorf("first token = %d, want [CLS] 101", inputIDs[0])
	}
	if inputIDs[3] != 102 {
		t.Errorf("token after words = %d, want [SEP] 102", inputIDs[3])
	}
	if attentionMask[0] != 1 || attentionMask[1] != 1 || attentionMask[4] != 0 {
		t.Errorf("attention mask wrong: %v", attentionMask[:6])
	}
}

func TestSimpleTokenizer_Deterministic(t *testing.T) {
	tok := &SimpleTokenizer{}
	a, _, _ := tok.Tokenize("the same text", 32)
	b, _, _ := tok.Tokenize("the same text", 32)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("token IDs differ at %d", i)
		}
	}
}

func TestSimpleTokenizer_Truncates(t *testing.T) {
	tok := &SimpleTokenizer{}
	inputIDs, _, _ := tok.Tokenize("one two three four five six seven eight", 4)
	if len(inputIDs) != 4 {
		t.Fatalf("length = %d, want 4", len(inputIDs))
	}
	if inputIDs[3] != 102 {
		t.Errorf("last slot = %d, want [SEP] 102", inputIDs[3])
	}
}
