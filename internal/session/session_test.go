package session

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/vizloom/internal/dataset"
	"github.com/KaramelBytes/vizloom/internal/pipeline"
)

func entry(q string) Entry {
	return Entry{Interaction: &pipeline.Interaction{Query: q}}
}

func TestHistoryBoundedAndOrdered(t *testing.T) {
	st := NewStore(Options{MaxHistory: 2})
	s := st.Create()
	s.Append(entry("a"))
	s.Append(entry("b"))
	s.Append(entry("c"))

	h := s.History()
	require.Len(t, h, 2)
	assert.Equal(t, "b", h[0].Interaction.Query)
	assert.Equal(t, "c", h[1].Interaction.Query)

	s.ClearHistory()
	assert.Empty(t, s.History())
}

func TestReplaceDatasetKeepsLog(t *testing.T) {
	s := NewStore(Options{}).Create()
	first, err := dataset.Load("a.csv", strings.NewReader("x\n1\n"), dataset.DefaultOptions())
	require.NoError(t, err)
	second, err := dataset.Load("b.csv", strings.NewReader("y\n2\n"), dataset.DefaultOptions())
	require.NoError(t, err)

	s.ReplaceDataset(first)
	s.Append(entry("q"))
	s.ReplaceDataset(second)
	assert.Same(t, second, s.Dataset())
	assert.Len(t, s.History(), 1)

	s.SetAPIKey("k")
	assert.Equal(t, "k", s.APIKey())
}

func TestStoreSweepExpiresIdle(t *testing.T) {
	var counts []int
	st := NewStore(Options{TTL: time.Minute, OnChange: func(n int) { counts = append(counts, n) }})
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return now }

	old := st.Create()
	now = now.Add(50 * time.Second)
	fresh := st.Create()
	now = now.Add(20 * time.Second)

	assert.Equal(t, 1, st.Sweep())
	_, ok := st.Get(old.ID)
	assert.False(t, ok)
	_, ok = st.Get(fresh.ID)
	assert.True(t, ok)
	assert.Equal(t, []int{1, 2, 1}, counts)
}

func TestGetOrCreate(t *testing.T) {
	st := NewStore(Options{})
	s := st.GetOrCreate("missing")
	assert.NotEqual(t, "missing", s.ID)
	assert.Same(t, s, st.GetOrCreate(s.ID))
	st.Delete(s.ID)
	assert.Equal(t, 0, st.Len())
}

func TestSerializeRunsOneAtATime(t *testing.T) {
	s := NewStore(Options{}).Create()
	var mu sync.Mutex
	active, peak := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Serialize(func() {
				mu.Lock()
				active++
				if active > peak {
					peak = active
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, peak)
}
