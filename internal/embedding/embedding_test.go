package embedding

import "testing"

func TestCosineSimilarity(t *testing.T) {
	a := []float64{1, 0, 0}
	b := []float64{1, 0, 0}
	c := []float64{0, 1, 0}

	if sim := CosineSimilarity(a, b); sim < 0.999 {
		t.Errorf("identical vectors: sim = %f, want ~1", sim)
	}
	if sim := CosineSimilarity(a, c); sim != 0 {
		t.Errorf("orthogonal vectors: sim = %f, want 0", sim)
	}
}

func TestCosineSimilarity_DegenerateInputs(t *testing.T) {
	if sim := CosineSimilarity(nil, nil); sim != 0 {
		t.Errorf("nil vectors: sim = %f, want 0", sim)
	}
	if sim := CosineSimilarity([]float64{1, 2}, []float64{1, 2, 3}); sim != 0 {
		t.Errorf("mismatched lengths: sim = %f, want 0", sim)
	}
	if sim := CosineSimilarity([]float64{0, 0}, []float64{1, 1}); sim != 0 {
		t.Errorf("zero vector: sim = %f, want 0", sim)
	}
}

func TestMockEmbedder_SimilarTextsScoreHigher(t *testing.T) {
	m := NewMockEmbedder(64)

	a, _ := m.Embed("fixed the flaky websocket reconnect bug")
	b, _ := m.Embed("the websocket reconnect bug was flaky")
	c, _ := m.Embed("added pagination to the admin dashboard")

	simAB := CosineSimilarity(a, b)
	simAC := CosineSimilarity(a, c)
	if simAB <= simAC {
		t.Errorf("related texts should score higher: ab=%f ac=%f", simAB, simAC)
	}
}

func TestMockEmbedder_Deterministic(t *testing.T) {
	m := NewMockEmbedder(32)
	a, _ := m.Embed("hello world")
	b, _ := m.Embed("hello world")
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("mock embeddings should be deterministic")
		}
	}
}
