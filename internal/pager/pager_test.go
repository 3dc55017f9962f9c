package pager

import "testing"

func makeItems(n int) []Item {
	items := make([]Item, n)
	for i := range items {
		items[i] = Item{Tenant: "t", Room: "r", Threshold: i + 1}
	}
	return items
}

func TestPageCount(t *testing.T) {
	t.Parallel()
	tests := []struct {
		n    int
		want int
	}{
		{0, 0},
		{1, 1},
		{25, 1},
		{100, 1},   // 4 chunks
		{101, 1},   // 5 chunks: single-page special case
		{125, 1},   // 5 chunks exactly full
		{126, 2},   // 6 chunks
		{130, 2},
		{201, 3},   // 9 chunks
	}
	for _, tt := range tests {
		if got := PageCount(tt.n); got != tt.want {
			t.Errorf("PageCount(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestBuildTwoPages(t *testing.T) {
	t.Parallel()
	items := makeItems(130)

	p0 := Build(items, 0)
	if p0.Count != 2 {
		t.Fatalf("Count = %d, want 2", p0.Count)
	}
	if len(p0.Chunks) != 4 {
		t.Fatalf("page 0 chunks = %d, want 4", len(p0.Chunks))
	}
	total := 0
	for _, c := range p0.Chunks {
		total += len(c)
	}
	if total != 100 {
		t.Fatalf("page 0 records = %d, want 100", total)
	}
	if p0.HasPrev || !p0.HasNext {
		t.Fatalf("page 0 nav = prev:%v next:%v, want prev:false next:true", p0.HasPrev, p0.HasNext)
	}

	p1 := Build(items, 1)
	if len(p1.Chunks) != 2 {
		t.Fatalf("page 1 chunks = %d, want 2", len(p1.Chunks))
	}
	total = 0
	for _, c := range p1.Chunks {
		total += len(c)
	}
	if total != 30 {
		t.Fatalf("page 1 records = %d, want 30", total)
	}
	if !p1.HasPrev || p1.HasNext {
		t.Fatalf("page 1 nav = prev:%v next:%v, want prev:true next:false", p1.HasPrev, p1.HasNext)
	}
	// First record of page 1 is record 101 (threshold 101 in this fixture).
	if got := p1.Chunks[0][0].Threshold; got != 101 {
		t.Fatalf("page 1 starts at threshold %d, want 101", got)
	}
}

func TestBuildFiveChunkSinglePage(t *testing.T) {
	t.Parallel()
	items := makeItems(110) // 5 chunks

	p := Build(items, 0)
	if p.Count != 1 {
		t.Fatalf("Count = %d, want 1", p.Count)
	}
	if len(p.Chunks) != 5 {
		t.Fatalf("chunks = %d, want 5 on the collapsed single page", len(p.Chunks))
	}
	if p.HasPrev || p.HasNext {
		t.Fatal("single page must have no navigation")
	}
	if got := len(p.Chunks[4]); got != 10 {
		t.Fatalf("fifth chunk = %d records, want 10", got)
	}
}

func TestBuildClampsPageIndex(t *testing.T) {
	t.Parallel()
	items := makeItems(130)
	if p := Build(items, 7); p.Index != 1 {
		t.Fatalf("Index = %d, want clamp to 1", p.Index)
	}
	if p := Build(items, -3); p.Index != 0 {
		t.Fatalf("Index = %d, want clamp to 0", p.Index)
	}
	if p := Build(nil, 0); p.Count != 0 || len(p.Chunks) != 0 {
		t.Fatalf("empty input yielded %+v", p)
	}
}

func TestSortNumericThreshold(t *testing.T) {
	t.Parallel()
	items := []Item{
		{TenantName: "Beta", RoomName: "General", Threshold: 2},
		{TenantName: "Alpha", RoomName: "Lounge", Threshold: 10},
		{TenantName: "Alpha", RoomName: "Lounge", Threshold: 2},
		{TenantName: "Alpha", RoomName: "Arena", Threshold: 5},
	}
	Sort(items)

	want := []struct {
		tenant string
		room   string
		thr    int
	}{
		{"Alpha", "Arena", 5},
		{"Alpha", "Lounge", 2},
		{"Alpha", "Lounge", 10},
		{"Beta", "General", 2},
	}
	for i, w := range want {
		got := items[i]
		if got.TenantName != w.tenant || got.RoomName != w.room || got.Threshold != w.thr {
			t.Fatalf("items[%d] = %v/%v/%d, want %v/%v/%d",
				i, got.TenantName, got.RoomName, got.Threshold, w.tenant, w.room, w.thr)
		}
	}
}
