package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func BenchmarkGenerateToken(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := GenerateToken(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkValidate(b *testing.B) {
	mr := miniredis.RunT(b)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b.Cleanup(func() { _ = rdb.Close() })

	m := NewManager(NewStore(rdb, "", ""), time.Hour)
	ctx := context.Background()
	token, err := m.GenerateToken()
	if err != nil {
		b.Fatal(err)
	}
	if _, err := m.Create(ctx, token, testUser("bench")); err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := m.Validate(ctx, token, true); err != nil {
			b.Fatal(err)
		}
	}
}
