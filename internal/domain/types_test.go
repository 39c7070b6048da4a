package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestParseTradingDate(t *testing.T) {
	d, err := ParseTradingDate(" 2025-03-07 ")
	if err != nil {
		t.Fatalf("ParseTradingDate returned error: %v", err)
	}
	if d != "2025-03-07" {
		t.Errorf("ParseTradingDate = %q, want %q", d, "2025-03-07")
	}
	if d.Compact() != "20250307" {
		t.Errorf("Compact() = %q, want %q", d.Compact(), "20250307")
	}

	for _, bad := range []string{"", "2025-3-7", "20250307", "2025-02-30"} {
		if _, err := ParseTradingDate(bad); !errors.Is(err, ErrInvalidDate) {
			t.Errorf("ParseTradingDate(%q) error = %v, want ErrInvalidDate", bad, err)
		}
	}
}

func TestBucketFor(t *testing.T) {
	tests := []struct {
		streak int
		want   Bucket
	}{
		{0, BucketFirst},
		{1, BucketFirst},
		{2, BucketTwo},
		{3, BucketThree},
		{4, BucketFourPlus},
		{11, BucketFourPlus},
	}
	for _, tt := range tests {
		if got := BucketFor(tt.streak); got != tt.want {
			t.Errorf("BucketFor(%d) = %s, want %s", tt.streak, got, tt.want)
		}
	}
}

func TestBucketCountsJSONOrder(t *testing.T) {
	var c BucketCounts
	c.Add(BucketFirst)
	c.Add(BucketFirst)
	c.Add(BucketFourPlus)

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal returned error: %v", err)
	}
	want := `{"四板+":1,"三板":0,"二板":0,"首板":2}`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}

	var back BucketCounts
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal returned error: %v", err)
	}
	if back != c {
		t.Errorf("Unmarshal = %v, want %v", back, c)
	}
	if back.Total() != 3 {
		t.Errorf("Total() = %d, want 3", back.Total())
	}

	if err := json.Unmarshal([]byte(`{"五板":1}`), &back); err == nil {
		t.Error("Unmarshal accepted an unknown bucket")
	}
}

func TestBucketCountsRows(t *testing.T) {
	c := BucketCounts{3, 0, 1, 7}
	rows := c.Rows()
	if len(rows) != 4 {
		t.Fatalf("len(Rows()) = %d, want 4", len(rows))
	}
	wantCats := []string{"四板+", "三板", "二板", "首板"}
	for i, r := range rows {
		if r.Category != wantCats[i] {
			t.Errorf("rows[%d].Category = %q, want %q", i, r.Category, wantCats[i])
		}
	}
	if rows[3].Count != 7 {
		t.Errorf("rows[3].Count = %d, want 7", rows[3].Count)
	}
	if c.Max() != 7 {
		t.Errorf("Max() = %d, want 7", c.Max())
	}
}

func TestHistoryError(t *testing.T) {
	base := errors.New("connection reset")
	err := fmt.Errorf("fetch: %w", &HistoryError{Symbol: "600000", Kind: FailureNetwork, Err: base})

	if !errors.Is(err, base) {
		t.Error("HistoryError does not unwrap to its cause")
	}
	if got := KindOf(err); got != FailureNetwork {
		t.Errorf("KindOf = %q, want %q", got, FailureNetwork)
	}
	if got := KindOf(&HistoryError{Symbol: "X", Kind: FailureNotFound}); got != FailureNotFound {
		t.Errorf("KindOf = %q, want %q", got, FailureNotFound)
	}
}
