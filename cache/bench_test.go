package cache

import (
	"context"
	"fmt"
	"testing"
)

func BenchmarkStore_Get_Hit(b *testing.B) {
	s := NewStore[string](DefaultConfig())
	ctx := context.Background()
	k := key("metformin renal dosing", "pubmed")
	s.Set(ctx, k, "value")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = s.Get(ctx, k)
	}
}

func BenchmarkStore_Get_Miss(b *testing.B) {
	s := NewStore[string](DefaultConfig())
	ctx := context.Background()
	k := key("missing", "pubmed")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = s.Get(ctx, k)
	}
}

func BenchmarkStore_Set(b *testing.B) {
	s := NewStore[string](DefaultConfig())
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Set(ctx, key(fmt.Sprintf("query%d", i), "pubmed"), "value")
	}
}

// BenchmarkStore_Set_AtCapacity measures writes that trigger eviction.
func BenchmarkStore_Set_AtCapacity(b *testing.B) {
	s := NewStore[string](Config{MaxEntries: 100})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Set(ctx, key(fmt.Sprintf("query%d", i), "pubmed"), "value")
	}
}

func BenchmarkCanonicalKey(b *testing.B) {
	k := KeyComponents{Query: "What are the latest treatments for type 2 diabetes", Source: "PubMed", MaxResults: 25}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = CanonicalKey(k)
	}
}

func BenchmarkParseKey(b *testing.B) {
	key := CanonicalKey(KeyComponents{Query: "covid treatment", Source: "pubmed"})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ParseKey(key)
	}
}

func BenchmarkCoordinator_Fetch_Hit(b *testing.B) {
	c := NewCoordinator(NewStore[string](DefaultConfig()))
	ctx := context.Background()
	k := key("warm key", "fda")
	fetch := func(context.Context) (string, error) { return "v", nil }
	_, _ = c.Fetch(ctx, k, fetch)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.Fetch(ctx, k, fetch)
	}
}

func BenchmarkStore_Concurrent_ReadWrite(b *testing.B) {
	s := NewStore[int](Config{MaxEntries: 500})
	ctx := context.Background()
	keys := make([]KeyComponents, 1000)
	for i := range keys {
		keys[i] = key(fmt.Sprintf("query%d", i), "pubmed")
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			k := keys[i%len(keys)]
			if i%4 == 0 {
				s.Set(ctx, k, i)
			} else {
				_, _ = s.Get(ctx, k)
			}
			i++
		}
	})
}
