package listener

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryOrderAndRemove(t *testing.T) {
	r := NewRegistry[func(string)]()
	var got []string

	r.Add(func(s string) { got = append(got, "a:"+s) })
	h := r.Add(func(s string) { got = append(got, "b:"+s) })
	r.Add(func(s string) { got = append(got, "c:"+s) })
	assert.Equal(t, 3, r.Len())

	r.Each(func(l func(string)) { l("x") })
	assert.Equal(t, []string{"a:x", "b:x", "c:x"}, got)

	assert.True(t, r.Remove(h))
	assert.False(t, r.Remove(h))

	got = nil
	r.Each(func(l func(string)) { l("y") })
	assert.Equal(t, []string{"a:y", "c:y"}, got)
}

func TestRegistryPanicIsolation(t *testing.T) {
	r := NewRegistry[func()]()
	called := false
	r.Add(func() { panic("listener failure") })
	r.Add(func() { called = true })

	assert.NotPanics(t, func() {
		r.Each(func(l func()) { l() })
	})
	assert.True(t, called)
}

func TestRegistryRemoveDuringEach(t *testing.T) {
	r := NewRegistry[func()]()
	var second Handle
	count := 0
	r.Add(func() {
		count++
		r.Remove(second)
	})
	second = r.Add(func() { count++ })

	r.Each(func(l func()) { l() })
	assert.Equal(t, 2, count)
	assert.Equal(t, 1, r.Len())
}
