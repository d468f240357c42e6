package decisioncache_test

import (
	"strconv"
	"testing"

	"github.com/shieldkit/webshield/internal/filter/decisioncache"
	"github.com/stretchr/testify/assert"
)

func TestCache(t *testing.T) {
	c := decisioncache.New(&decisioncache.Config{
		Generations:    3,
		GenerationSize: 2,
	})

	v, ok := c.Get("absent")
	assert.False(t, ok)
	assert.Equal(t, decisioncache.NotApplicable, v)

	for i := range 6 {
		c.Set(strconv.Itoa(i), decisioncache.ValueOf(i%2 == 0))
	}

	assert.Equal(t, 6, c.Len())

	v, ok = c.Get("0")
	assert.True(t, ok)
	assert.Equal(t, decisioncache.Blocked, v)

	v, ok = c.Get("5")
	assert.True(t, ok)
	assert.Equal(t, decisioncache.Allowed, v)

	// The seventh item drops the oldest generation wholesale.
	c.Set("6", decisioncache.Blocked)
	assert.Equal(t, 5, c.Len())

	for _, k := range []string{"0", "1"} {
		_, ok = c.Get(k)
		assert.False(t, ok, k)
	}

	for _, k := range []string{"2", "3", "4", "5", "6"} {
		_, ok = c.Get(k)
		assert.True(t, ok, k)
	}

	c.Clear()
	assert.Zero(t, c.Len())

	_, ok = c.Get("6")
	assert.False(t, ok)
}

func TestCache_update(t *testing.T) {
	c := decisioncache.New(&decisioncache.Config{
		Generations:    2,
		GenerationSize: 1,
	})

	c.Set("a", decisioncache.Allowed)
	c.Set("a", decisioncache.Blocked)
	assert.Equal(t, 1, c.Len())

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, decisioncache.Blocked, v)
}

func TestCache_defaults(t *testing.T) {
	c := decisioncache.New(&decisioncache.Config{})

	n := decisioncache.DefaultGenerations * decisioncache.DefaultGenerationSize
	for i := range n {
		c.Set(strconv.Itoa(i), decisioncache.Allowed)
	}

	assert.Equal(t, n, c.Len())

	c.Set("new", decisioncache.Blocked)
	assert.Equal(t, n-decisioncache.DefaultGenerationSize+1, c.Len())
}

func TestKey(t *testing.T) {
	assert.Equal(t, "example.com_http://ads.example.net/", decisioncache.Key(
		"example.com",
		"http://ads.example.net/",
	))
}

func BenchmarkCache_Set(b *testing.B) {
	c := decisioncache.New(&decisioncache.Config{})
	keys := make([]string, 1000)
	for i := range keys {
		keys[i] = decisioncache.Key("example.com", "http://example.net/"+strconv.Itoa(i))
	}

	b.ReportAllocs()
	for i := 0; b.Loop(); i++ {
		c.Set(keys[i%len(keys)], decisioncache.Allowed)
	}
}
